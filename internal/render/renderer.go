package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/aravindthiru29/flipbook/pkg/logger"
)

// ErrRenderFailure means a page could not be produced even in degraded
// mode: the document cannot be opened, or the page index is invalid for
// the open document.
var ErrRenderFailure = errors.New("render failure")

const (
	baseDPI     = 72
	jpegQuality = 85
)

// DefaultTiers are the raster scale factors tried in order. The last tier
// doubles as the degraded-mode fallback.
var DefaultTiers = []float64{2.0, 1.5, 1.0}

// PageImager is the rasterizing side of an open document handle.
type PageImager interface {
	PageCount() int
	ImageAt(page int, dpi float64) (image.Image, error)
}

// Renderer converts one page of an open document into JPEG bytes, walking
// a descending quality ladder. A tier only counts as a success when the
// raster has non-zero content; if every tier fails, one final attempt at
// the lowest tier returns whatever comes back, degraded or not. The policy
// is: a valid page always yields some image.
type Renderer struct {
	tiers []float64
	log   *logger.Logger
}

func NewRenderer(tiers []float64, log *logger.Logger) *Renderer {
	if len(tiers) == 0 {
		tiers = DefaultTiers
	}
	return &Renderer{tiers: tiers, log: log}
}

func (r *Renderer) RenderPage(doc PageImager, page int) ([]byte, error) {
	if page < 0 || page >= doc.PageCount() {
		return nil, fmt.Errorf("%w: page %d not in open document (%d pages)",
			ErrRenderFailure, page, doc.PageCount())
	}

	for _, scale := range r.tiers {
		img, err := doc.ImageAt(page, baseDPI*scale)
		if err != nil {
			r.log.Debug("render page %d at scale %.1f failed: %v", page, scale, err)
			continue
		}
		if blankRaster(img) {
			r.log.Debug("render page %d at scale %.1f produced empty raster", page, scale)
			continue
		}
		return encodeJPEG(img)
	}

	// Every tier failed. Take whatever the lowest tier gives us rather
	// than failing the page.
	lowest := r.tiers[len(r.tiers)-1]
	r.log.Warn("page %d failed all quality tiers, serving degraded render at scale %.1f", page, lowest)

	img, err := doc.ImageAt(page, baseDPI*lowest)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d unrenderable: %v", ErrRenderFailure, page, err)
	}
	return encodeJPEG(img)
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("%w: encoding: %v", ErrRenderFailure, err)
	}
	return buf.Bytes(), nil
}

// blankRaster reports whether an image has no drawable content: empty
// bounds, or an RGBA buffer that was never written to.
func blankRaster(img image.Image) bool {
	if img == nil {
		return true
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return true
	}
	if rgba, ok := img.(*image.RGBA); ok {
		for _, b := range rgba.Pix {
			if b != 0 {
				return false
			}
		}
		return true
	}
	return false
}
