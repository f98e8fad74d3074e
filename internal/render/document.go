package render

import (
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"

	"github.com/aravindthiru29/flipbook/pkg/models"
)

// Document is an open document handle. fitz handles are not safe for
// concurrent use, so every call into the underlying document is serialized.
type Document struct {
	mu    sync.Mutex
	doc   *fitz.Document
	path  string
	pages int
}

func OpenDocument(path string) (*Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrRenderFailure, path, err)
	}
	return &Document{
		doc:   doc,
		path:  path,
		pages: doc.NumPage(),
	}, nil
}

func (d *Document) PageCount() int {
	return d.pages
}

// ImageAt rasterizes one zero-indexed page at the given DPI.
func (d *Document) ImageAt(page int, dpi float64) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.ImageDPI(page, dpi)
}

// TOC returns the document outline, or an empty slice when the document
// carries none.
func (d *Document) TOC() ([]models.TOCEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	outlines, err := d.doc.ToC()
	if err != nil {
		return nil, fmt.Errorf("extracting table of contents for %s: %w", d.path, err)
	}

	entries := make([]models.TOCEntry, 0, len(outlines))
	for _, o := range outlines {
		entries = append(entries, models.TOCEntry{
			Level: o.Level,
			Title: o.Title,
			Page:  o.Page,
		})
	}
	return entries, nil
}

func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Close()
}
