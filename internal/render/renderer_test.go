package render_test

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/aravindthiru29/flipbook/internal/render"
	"github.com/aravindthiru29/flipbook/pkg/logger"
)

// fakeDoc scripts what each quality tier returns. Keys are DPI values.
type fakeDoc struct {
	pages   int
	results map[float64]fakeResult
	calls   []float64
}

type fakeResult struct {
	img image.Image
	err error
}

func (d *fakeDoc) PageCount() int { return d.pages }

func (d *fakeDoc) ImageAt(page int, dpi float64) (image.Image, error) {
	d.calls = append(d.calls, dpi)
	res, ok := d.results[dpi]
	if !ok {
		return nil, errors.New("unscripted dpi")
	}
	return res.img, res.err
}

func solidImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

func emptyImage() image.Image {
	// Allocated but never drawn into: all-zero pixels.
	return image.NewRGBA(image.Rect(0, 0, 4, 4))
}

func rendererTestLogger() *logger.Logger {
	log := logger.New(
		logger.WithOutput(GinkgoWriter),
		logger.WithPrefix("[render-test] "),
		logger.WithFlags(0),
	)
	log.SetVerbose(true)
	return log
}

var _ = Describe("Renderer", func() {
	var r *render.Renderer

	BeforeEach(func() {
		r = render.NewRenderer(render.DefaultTiers, rendererTestLogger())
	})

	It("returns the highest tier when it succeeds", func() {
		doc := &fakeDoc{
			pages: 1,
			results: map[float64]fakeResult{
				144: {img: solidImage()},
			},
		}

		data, err := r.RenderPage(doc, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).NotTo(BeEmpty())
		Expect(doc.calls).To(Equal([]float64{144}))
	})

	It("falls through to the lowest tier when higher tiers error", func() {
		doc := &fakeDoc{
			pages: 1,
			results: map[float64]fakeResult{
				144: {err: errors.New("out of memory")},
				108: {err: errors.New("out of memory")},
				72:  {img: solidImage()},
			},
		}

		data, err := r.RenderPage(doc, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).NotTo(BeEmpty())
		Expect(doc.calls).To(Equal([]float64{144, 108, 72}))
	})

	It("treats an empty raster as a tier failure", func() {
		doc := &fakeDoc{
			pages: 1,
			results: map[float64]fakeResult{
				144: {img: emptyImage()},
				108: {img: solidImage()},
			},
		}

		data, err := r.RenderPage(doc, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).NotTo(BeEmpty())
		Expect(doc.calls).To(Equal([]float64{144, 108}))
	})

	It("serves a degraded render when every tier fails", func() {
		// All ladder attempts fail; the terminal attempt accepts whatever
		// the lowest tier produces, even an empty raster.
		doc := &fakeDoc{
			pages: 1,
			results: map[float64]fakeResult{
				144: {err: errors.New("broken page object")},
				108: {err: errors.New("broken page object")},
				72:  {img: emptyImage()},
			},
		}

		data, err := r.RenderPage(doc, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).NotTo(BeEmpty())
		// Ladder walk plus one terminal attempt at the lowest tier.
		Expect(doc.calls).To(Equal([]float64{144, 108, 72, 72}))

		img, err := jpeg.Decode(bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())
		Expect(img.Bounds().Dx()).To(Equal(4))
	})

	It("fails only when the page is unrenderable outright", func() {
		doc := &fakeDoc{
			pages: 1,
			results: map[float64]fakeResult{
				144: {err: errors.New("corrupt stream")},
				108: {err: errors.New("corrupt stream")},
				72:  {err: errors.New("corrupt stream")},
			},
		}

		_, err := r.RenderPage(doc, 0)
		Expect(err).To(MatchError(render.ErrRenderFailure))
	})

	DescribeTable("rejecting pages outside the open document",
		func(page int) {
			doc := &fakeDoc{pages: 3}
			_, err := r.RenderPage(doc, page)
			Expect(err).To(MatchError(render.ErrRenderFailure))
			Expect(doc.calls).To(BeEmpty())
		},
		Entry("negative page", -1),
		Entry("page equal to count", 3),
		Entry("page beyond count", 10),
	)
})
