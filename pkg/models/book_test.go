package models_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/aravindthiru29/flipbook/pkg/models"
)

var _ = Describe("Models", func() {
	Context("Highlight coordinates", func() {
		It("unmarshals the nested-array wire format", func() {
			var h models.Highlight
			payload := []byte(`{
				"book_id": "b1",
				"page_number": 2,
				"coordinates": [[10, 10, 50, 50], [60, 10, 120, 30]],
				"color": "green"
			}`)
			Expect(json.Unmarshal(payload, &h)).To(Succeed())

			Expect(h.Coordinates).To(Equal([]models.Rect{
				{10, 10, 50, 50},
				{60, 10, 120, 30},
			}))
			Expect(h.PageNumber).To(Equal(2))
		})

		It("marshals back to the same shape", func() {
			h := models.Highlight{
				ID:          "h1",
				BookID:      "b1",
				PageNumber:  0,
				Coordinates: []models.Rect{{1, 2, 3, 4}},
				Color:       models.DefaultHighlightColor,
			}
			data, err := json.Marshal(h)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"coordinates":[[1,2,3,4]]`))
			Expect(string(data)).To(ContainSubstring(`"color":"yellow"`))
		})
	})

	Context("Note positions", func() {
		It("omits absent x/y instead of sending zeros", func() {
			note := models.Note{
				ID:         "n1",
				BookID:     "b1",
				PageNumber: 1,
				Content:    "margin comment",
				CreatedAt:  time.Now(),
			}
			data, err := json.Marshal(note)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).NotTo(ContainSubstring(`"x"`))
			Expect(string(data)).NotTo(ContainSubstring(`"y"`))
		})
	})
})
