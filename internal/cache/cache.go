package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"

	"github.com/aravindthiru29/flipbook/internal/render"
	"github.com/aravindthiru29/flipbook/pkg/logger"
	"github.com/aravindthiru29/flipbook/pkg/models"
)

// Resolver supplies local bytes for a book's source locator.
type Resolver interface {
	Resolve(ctx context.Context, bookID, locator string) (string, error)
}

// Renderer produces image bytes for one page of an open document.
type Renderer interface {
	RenderPage(doc render.PageImager, page int) ([]byte, error)
}

// Doc is an open document handle the cache can rasterize from and close.
type Doc interface {
	render.PageImager
	Close() error
}

// OpenFunc opens a document handle for a local path.
type OpenFunc func(path string) (Doc, error)

func fitzOpen(path string) (Doc, error) {
	return render.OpenDocument(path)
}

// Cache persists rendered page artifacts under one directory per book,
// one JPEG per page. A missing or zero-length file is a miss; population
// is cache-aside with per-(book,page) single-flight so concurrent callers
// and the warm worker never render the same page twice at once.
type Cache struct {
	pagesDir string
	resolver Resolver
	renderer Renderer
	open     OpenFunc
	group    singleflight.Group
	log      *logger.Logger
}

type Option func(*Cache)

// WithOpener replaces the document opener. Tests use this to avoid
// touching real documents.
func WithOpener(open OpenFunc) Option {
	return func(c *Cache) {
		c.open = open
	}
}

func New(pagesDir string, resolver Resolver, renderer Renderer, log *logger.Logger, options ...Option) (*Cache, error) {
	if err := os.MkdirAll(pagesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create pages directory: %w", err)
	}
	c := &Cache{
		pagesDir: pagesDir,
		resolver: resolver,
		renderer: renderer,
		open:     fitzOpen,
		log:      log,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// ArtifactPath is the deterministic location for a page's rendered image.
func (c *Cache) ArtifactPath(bookID string, page int) string {
	return filepath.Join(c.pagesDir, bookID, fmt.Sprintf("page_%d.jpg", page))
}

// Cached reports whether a non-empty artifact exists for the page. A
// zero-length file counts as absent: it means a writer crashed between
// creating the file and filling it.
func (c *Cache) Cached(bookID string, page int) bool {
	info, err := os.Stat(c.ArtifactPath(bookID, page))
	return err == nil && info.Size() > 0
}

// GetOrRender returns the artifact path for a page, rendering and
// persisting it first if needed. The caller has already validated the
// page against the book's page count.
func (c *Cache) GetOrRender(ctx context.Context, book models.Book, page int) (string, error) {
	path := c.ArtifactPath(book.ID, page)
	if c.Cached(book.ID, page) {
		return path, nil
	}

	_, err, _ := c.group.Do(c.key(book.ID, page), func() (interface{}, error) {
		if c.Cached(book.ID, page) {
			return path, nil
		}

		local, err := c.resolver.Resolve(ctx, book.ID, book.Source)
		if err != nil {
			return nil, err
		}

		doc, err := c.open(local)
		if err != nil {
			return nil, err
		}
		defer doc.Close()

		return path, c.fill(book.ID, doc, page)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// Populate renders a page through an already-open handle. The warm worker
// uses this to reuse one handle across a whole book walk; the single-flight
// key is shared with GetOrRender so the two paths never duplicate work.
func (c *Cache) Populate(bookID string, doc Doc, page int) (string, error) {
	path := c.ArtifactPath(bookID, page)
	_, err, _ := c.group.Do(c.key(bookID, page), func() (interface{}, error) {
		if c.Cached(bookID, page) {
			return path, nil
		}
		return path, c.fill(bookID, doc, page)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// InvalidateBook removes every artifact for a book. Best effort: a warm
// worker may still be writing into the directory, and partial absence is
// fine.
func (c *Cache) InvalidateBook(bookID string) error {
	dir := filepath.Join(c.pagesDir, bookID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing artifact directory for book %s: %w", bookID, err)
	}
	return nil
}

func (c *Cache) fill(bookID string, doc render.PageImager, page int) error {
	data, err := c.renderer.RenderPage(doc, page)
	if err != nil {
		return err
	}
	return c.writeArtifact(bookID, page, data)
}

// writeArtifact publishes bytes with a temp-file rename so readers never
// observe a partially written artifact.
func (c *Cache) writeArtifact(bookID string, page int, data []byte) error {
	dir := filepath.Join(c.pagesDir, bookID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "page-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write artifact: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.ArtifactPath(bookID, page)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to publish artifact: %w", err)
	}

	c.log.Debug("cached page %d of book %s", page, bookID)
	return nil
}

func (c *Cache) key(bookID string, page int) string {
	return fmt.Sprintf("%s/%d", bookID, page)
}
