package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aravindthiru29/flipbook/pkg/logger"
	"github.com/aravindthiru29/flipbook/pkg/models"
)

var (
	// ErrNotFound means the targeted book, note or highlight id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation means a record is missing required fields.
	ErrValidation = errors.New("validation failed")
)

// Store keeps books, notes and highlights in memory and persists every
// mutation to a single JSON file. Deleting a book cascades to its notes
// and highlights in one critical section.
type Store struct {
	path string
	log  *logger.Logger

	mu         sync.RWMutex
	books      map[string]models.Book
	notes      map[string]models.Note
	highlights map[string]models.Highlight
}

type snapshot struct {
	Books      []models.Book      `json:"books"`
	Notes      []models.Note      `json:"notes"`
	Highlights []models.Highlight `json:"highlights"`
}

// Open loads the store from path, starting empty when the file does not
// exist yet.
func Open(path string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &Store{
		path:       path,
		log:        log,
		books:      make(map[string]models.Book),
		notes:      make(map[string]models.Note),
		highlights: make(map[string]models.Highlight),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open store file: %w", err)
	}
	defer file.Close()

	var snap snapshot
	if err := json.NewDecoder(file).Decode(&snap); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to decode store file: %w", err)
	}

	for _, b := range snap.Books {
		s.books[b.ID] = b
	}
	for _, n := range snap.Notes {
		s.notes[n.ID] = n
	}
	for _, h := range snap.Highlights {
		s.highlights[h.ID] = h
	}
	s.log.Debug("loaded %d books, %d notes, %d highlights from %s",
		len(s.books), len(s.notes), len(s.highlights), s.path)
	return nil
}

// save persists the current state. Callers hold the write lock.
func (s *Store) save() error {
	snap := snapshot{
		Books:      make([]models.Book, 0, len(s.books)),
		Notes:      make([]models.Note, 0, len(s.notes)),
		Highlights: make([]models.Highlight, 0, len(s.highlights)),
	}
	for _, b := range s.books {
		snap.Books = append(snap.Books, b)
	}
	for _, n := range s.notes {
		snap.Notes = append(snap.Notes, n)
	}
	for _, h := range s.highlights {
		snap.Highlights = append(snap.Highlights, h)
	}
	sort.Slice(snap.Books, func(i, j int) bool { return snap.Books[i].ID < snap.Books[j].ID })
	sort.Slice(snap.Notes, func(i, j int) bool { return snap.Notes[i].ID < snap.Notes[j].ID })
	sort.Slice(snap.Highlights, func(i, j int) bool { return snap.Highlights[i].ID < snap.Highlights[j].ID })

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "library-*.json")
	if err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write store: %w", err)
	}
	return nil
}

// CreateBook inserts a book, filling ID and CreatedAt when unset.
func (s *Store) CreateBook(book models.Book) (models.Book, error) {
	if book.Title == "" {
		return models.Book{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if book.Source == "" {
		return models.Book{}, fmt.Errorf("%w: source is required", ErrValidation)
	}
	if book.PageCount < 0 {
		return models.Book{}, fmt.Errorf("%w: page count cannot be negative", ErrValidation)
	}

	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	if book.CreatedAt.IsZero() {
		book.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[book.ID] = book
	if err := s.save(); err != nil {
		delete(s.books, book.ID)
		return models.Book{}, err
	}
	return book, nil
}

func (s *Store) GetBook(id string) (models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	book, ok := s.books[id]
	if !ok {
		return models.Book{}, fmt.Errorf("%w: book %s", ErrNotFound, id)
	}
	return book, nil
}

// ListBooks returns all books, newest first.
func (s *Store) ListBooks() []models.Book {
	s.mu.RLock()
	defer s.mu.RUnlock()

	books := make([]models.Book, 0, len(s.books))
	for _, b := range s.books {
		books = append(books, b)
	}
	sort.Slice(books, func(i, j int) bool {
		return books[i].CreatedAt.After(books[j].CreatedAt)
	})
	return books
}

func (s *Store) RenameBook(id, title string) (models.Book, error) {
	if title == "" {
		return models.Book{}, fmt.Errorf("%w: title is required", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[id]
	if !ok {
		return models.Book{}, fmt.Errorf("%w: book %s", ErrNotFound, id)
	}
	old := book.Title
	book.Title = title
	s.books[id] = book
	if err := s.save(); err != nil {
		book.Title = old
		s.books[id] = book
		return models.Book{}, err
	}
	return book, nil
}

// DeleteBook removes a book together with all of its notes and highlights.
func (s *Store) DeleteBook(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.books[id]; !ok {
		return fmt.Errorf("%w: book %s", ErrNotFound, id)
	}

	delete(s.books, id)
	for nid, n := range s.notes {
		if n.BookID == id {
			delete(s.notes, nid)
		}
	}
	for hid, h := range s.highlights {
		if h.BookID == id {
			delete(s.highlights, hid)
		}
	}
	return s.save()
}

func (s *Store) CreateNote(note models.Note) (models.Note, error) {
	if note.Content == "" {
		return models.Note{}, fmt.Errorf("%w: content is required", ErrValidation)
	}
	if note.PageNumber < 0 {
		return models.Note{}, fmt.Errorf("%w: page number cannot be negative", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[note.BookID]; !ok {
		return models.Note{}, fmt.Errorf("%w: book %s", ErrNotFound, note.BookID)
	}

	note.ID = uuid.NewString()
	note.CreatedAt = time.Now().UTC()
	s.notes[note.ID] = note
	if err := s.save(); err != nil {
		delete(s.notes, note.ID)
		return models.Note{}, err
	}
	return note, nil
}

func (s *Store) ListNotes(bookID string) ([]models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.books[bookID]; !ok {
		return nil, fmt.Errorf("%w: book %s", ErrNotFound, bookID)
	}

	notes := make([]models.Note, 0)
	for _, n := range s.notes {
		if n.BookID == bookID {
			notes = append(notes, n)
		}
	}
	sort.Slice(notes, func(i, j int) bool {
		return notes[i].CreatedAt.Before(notes[j].CreatedAt)
	})
	return notes, nil
}

func (s *Store) DeleteNote(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[id]; !ok {
		return fmt.Errorf("%w: note %s", ErrNotFound, id)
	}
	delete(s.notes, id)
	return s.save()
}

func (s *Store) CreateHighlight(h models.Highlight) (models.Highlight, error) {
	if len(h.Coordinates) == 0 {
		return models.Highlight{}, fmt.Errorf("%w: coordinates are required", ErrValidation)
	}
	if h.PageNumber < 0 {
		return models.Highlight{}, fmt.Errorf("%w: page number cannot be negative", ErrValidation)
	}
	if h.Color == "" {
		h.Color = models.DefaultHighlightColor
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[h.BookID]; !ok {
		return models.Highlight{}, fmt.Errorf("%w: book %s", ErrNotFound, h.BookID)
	}

	h.ID = uuid.NewString()
	h.CreatedAt = time.Now().UTC()
	s.highlights[h.ID] = h
	if err := s.save(); err != nil {
		delete(s.highlights, h.ID)
		return models.Highlight{}, err
	}
	return h, nil
}

func (s *Store) ListHighlights(bookID string) ([]models.Highlight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.books[bookID]; !ok {
		return nil, fmt.Errorf("%w: book %s", ErrNotFound, bookID)
	}

	highlights := make([]models.Highlight, 0)
	for _, h := range s.highlights {
		if h.BookID == bookID {
			highlights = append(highlights, h)
		}
	}
	sort.Slice(highlights, func(i, j int) bool {
		return highlights[i].CreatedAt.Before(highlights[j].CreatedAt)
	})
	return highlights, nil
}

func (s *Store) DeleteHighlight(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.highlights[id]; !ok {
		return fmt.Errorf("%w: highlight %s", ErrNotFound, id)
	}
	delete(s.highlights, id)
	return s.save()
}
