package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/aravindthiru29/flipbook/internal/cache"
	"github.com/aravindthiru29/flipbook/internal/render"
	"github.com/aravindthiru29/flipbook/internal/source"
	"github.com/aravindthiru29/flipbook/internal/store"
	"github.com/aravindthiru29/flipbook/internal/warm"
	"github.com/aravindthiru29/flipbook/pkg/logger"
	"github.com/aravindthiru29/flipbook/pkg/models"
)

var (
	// ErrPageOutOfRange means the requested page is outside [0, page_count).
	ErrPageOutOfRange = errors.New("page out of range")

	// ErrInvalidDocument means an uploaded file is not a usable PDF.
	ErrInvalidDocument = errors.New("invalid document")
)

// Opener opens a document handle for metadata reads. Split out so tests
// can run the library without a PDF toolkit.
type Opener func(path string) (cache.Doc, error)

// TOCReader is implemented by document handles that carry an outline.
type TOCReader interface {
	TOC() ([]models.TOCEntry, error)
}

// Library wires the store, the render cache, the source resolver and the
// warm pool into the operations the HTTP surface exposes.
type Library struct {
	store     *store.Store
	cache     *cache.Cache
	resolver  *source.Resolver
	pool      *warm.Pool
	open      Opener
	validate  func(path string) error
	tocs      *gocache.Cache
	uploadDir string
	log       *logger.Logger
}

type Option func(*Library)

// WithOpener replaces the document opener used for page counts and TOCs.
func WithOpener(open Opener) Option {
	return func(l *Library) {
		l.open = open
	}
}

// WithValidator replaces the upload-time document validation step.
func WithValidator(validate func(path string) error) Option {
	return func(l *Library) {
		l.validate = validate
	}
}

// WithUploadDir marks dir as service-owned: deleting a book whose source
// lives under it also removes the source file. Sources elsewhere (remote
// URLs, caller-provided paths) are never touched.
func WithUploadDir(dir string) Option {
	return func(l *Library) {
		l.uploadDir = dir
	}
}

func New(st *store.Store, rc *cache.Cache, resolver *source.Resolver, pool *warm.Pool, tocTTL time.Duration, log *logger.Logger, options ...Option) *Library {
	l := &Library{
		store:    st,
		cache:    rc,
		resolver: resolver,
		pool:     pool,
		open: func(path string) (cache.Doc, error) {
			return render.OpenDocument(path)
		},
		validate: func(path string) error {
			return api.ValidateFile(path, nil)
		},
		tocs: gocache.New(tocTTL, 10*time.Minute),
		log:  log,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// AddBook registers an uploaded document and queues its warm-up walk. The
// locator is resolved and the document opened once, up front, so a book
// record never exists without a known page count.
func (l *Library) AddBook(ctx context.Context, title, locator string) (models.Book, error) {
	id := uuid.NewString()

	local, err := l.resolver.Resolve(ctx, id, locator)
	if err != nil {
		return models.Book{}, err
	}

	if err := l.validate(local); err != nil {
		return models.Book{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	doc, err := l.open(local)
	if err != nil {
		return models.Book{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	pageCount := doc.PageCount()
	doc.Close()

	book, err := l.store.CreateBook(models.Book{
		ID:        id,
		Title:     title,
		Source:    locator,
		PageCount: pageCount,
	})
	if err != nil {
		return models.Book{}, err
	}

	l.pool.Enqueue(warm.Job{
		BookID:    book.ID,
		Locator:   book.Source,
		PageCount: book.PageCount,
	})

	l.log.Info("Added book %s (%q, %d pages)", book.ID, book.Title, book.PageCount)
	return book, nil
}

func (l *Library) GetBook(bookID string) (models.Book, error) {
	return l.store.GetBook(bookID)
}

func (l *Library) ListBooks() []models.Book {
	return l.store.ListBooks()
}

func (l *Library) RenameBook(bookID, title string) (models.Book, error) {
	return l.store.RenameBook(bookID, title)
}

// RenderPage returns the artifact path for a page, rendering on a cache
// miss. The bounds check runs before the cache or renderer are touched.
func (l *Library) RenderPage(ctx context.Context, bookID string, page int) (string, error) {
	book, err := l.store.GetBook(bookID)
	if err != nil {
		return "", err
	}
	if page < 0 || page >= book.PageCount {
		return "", fmt.Errorf("%w: page %d of book %s (%d pages)",
			ErrPageOutOfRange, page, bookID, book.PageCount)
	}
	return l.cache.GetOrRender(ctx, book, page)
}

// TableOfContents returns the book's outline, memoized per book. TOC
// extraction never fails outward: any problem yields an empty list.
func (l *Library) TableOfContents(ctx context.Context, bookID string) ([]models.TOCEntry, error) {
	book, err := l.store.GetBook(bookID)
	if err != nil {
		return nil, err
	}

	if cached, ok := l.tocs.Get(book.ID); ok {
		return cached.([]models.TOCEntry), nil
	}

	entries := l.extractTOC(ctx, book)
	l.tocs.SetDefault(book.ID, entries)
	return entries, nil
}

func (l *Library) extractTOC(ctx context.Context, book models.Book) []models.TOCEntry {
	local, err := l.resolver.Resolve(ctx, book.ID, book.Source)
	if err != nil {
		l.log.Warn("toc for book %s unavailable: %v", book.ID, err)
		return []models.TOCEntry{}
	}

	doc, err := l.open(local)
	if err != nil {
		l.log.Warn("toc for book %s unavailable: %v", book.ID, err)
		return []models.TOCEntry{}
	}
	defer doc.Close()

	reader, ok := doc.(TOCReader)
	if !ok {
		return []models.TOCEntry{}
	}
	entries, err := reader.TOC()
	if err != nil {
		l.log.Warn("toc extraction for book %s failed: %v", book.ID, err)
		return []models.TOCEntry{}
	}
	if entries == nil {
		entries = []models.TOCEntry{}
	}
	return entries
}

// DeleteBook runs the deletion cascade: cache invalidation first, then the
// cached source copy and the uploaded file, then the record and its
// annotations. File cleanup is best effort and never blocks record deletion.
func (l *Library) DeleteBook(bookID string) error {
	book, err := l.store.GetBook(bookID)
	if err != nil {
		return err
	}

	if err := l.cache.InvalidateBook(bookID); err != nil {
		l.log.Warn("cache invalidation for book %s: %v", bookID, err)
	}
	l.resolver.Forget(bookID)
	l.tocs.Delete(bookID)
	l.removeUpload(book)

	if err := l.store.DeleteBook(bookID); err != nil {
		return err
	}
	l.log.Info("Deleted book %s", bookID)
	return nil
}

// removeUpload deletes the source file of a book the service stored itself.
// Only paths inside the configured upload directory qualify.
func (l *Library) removeUpload(book models.Book) {
	if l.uploadDir == "" {
		return
	}
	rel, err := filepath.Rel(l.uploadDir, book.Source)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return
	}
	if err := os.Remove(book.Source); err != nil && !os.IsNotExist(err) {
		l.log.Warn("removing upload for book %s: %v", book.ID, err)
	}
}

// CreateNote validates the page against the owning book before storing.
func (l *Library) CreateNote(note models.Note) (models.Note, error) {
	book, err := l.store.GetBook(note.BookID)
	if err != nil {
		return models.Note{}, err
	}
	if note.PageNumber < 0 || note.PageNumber >= book.PageCount {
		return models.Note{}, fmt.Errorf("%w: page %d of book %s (%d pages)",
			store.ErrValidation, note.PageNumber, book.ID, book.PageCount)
	}
	return l.store.CreateNote(note)
}

func (l *Library) ListNotes(bookID string) ([]models.Note, error) {
	return l.store.ListNotes(bookID)
}

func (l *Library) DeleteNote(noteID string) error {
	return l.store.DeleteNote(noteID)
}

func (l *Library) CreateHighlight(h models.Highlight) (models.Highlight, error) {
	book, err := l.store.GetBook(h.BookID)
	if err != nil {
		return models.Highlight{}, err
	}
	if h.PageNumber < 0 || h.PageNumber >= book.PageCount {
		return models.Highlight{}, fmt.Errorf("%w: page %d of book %s (%d pages)",
			store.ErrValidation, h.PageNumber, book.ID, book.PageCount)
	}
	return l.store.CreateHighlight(h)
}

func (l *Library) ListHighlights(bookID string) ([]models.Highlight, error) {
	return l.store.ListHighlights(bookID)
}

func (l *Library) DeleteHighlight(highlightID string) error {
	return l.store.DeleteHighlight(highlightID)
}
