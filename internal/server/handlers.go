package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aravindthiru29/flipbook/internal/library"
	"github.com/aravindthiru29/flipbook/internal/render"
	"github.com/aravindthiru29/flipbook/internal/source"
	"github.com/aravindthiru29/flipbook/internal/store"
	"github.com/aravindthiru29/flipbook/pkg/models"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file part")
		return
	}
	defer file.Close()

	name := sanitizeFilename(header.Filename)
	if name == "" {
		writeError(w, http.StatusBadRequest, "no selected file")
		return
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		writeError(w, http.StatusBadRequest, "invalid file type")
		return
	}

	dest := filepath.Join(s.uploadDir, uuid.NewString()[:8]+"_"+name)
	if err := saveUpload(file, dest); err != nil {
		s.log.Error("saving upload %s: %v", name, err)
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	title := strings.TrimSuffix(name, filepath.Ext(name))
	book, err := s.library.AddBook(r.Context(), title, dest)
	if err != nil {
		os.Remove(dest)
		s.writeLibraryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"book_id":    book.ID,
		"title":      book.Title,
		"page_count": book.PageCount,
	})
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.library.ListBooks())
}

func (s *Server) handleRenameBook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	book, err := s.library.RenameBook(chi.URLParam(r, "bookID"), req.Title)
	if err != nil {
		s.writeLibraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "title": book.Title})
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	if err := s.library.DeleteBook(chi.URLParam(r, "bookID")); err != nil {
		s.writeLibraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(chi.URLParam(r, "pageNum"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid page number")
		return
	}

	path, err := s.library.RenderPage(r.Context(), chi.URLParam(r, "bookID"), page)
	if err != nil {
		s.writeLibraryError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, path)
}

func (s *Server) handleTOC(w http.ResponseWriter, r *http.Request) {
	entries, err := s.library.TableOfContents(r.Context(), chi.URLParam(r, "bookID"))
	if err != nil {
		s.writeLibraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PageNumber *int     `json:"page_number"`
		Content    string   `json:"content"`
		X          *float64 `json:"x"`
		Y          *float64 `json:"y"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PageNumber == nil {
		writeError(w, http.StatusBadRequest, "page_number is required")
		return
	}

	note, err := s.library.CreateNote(models.Note{
		BookID:     chi.URLParam(r, "bookID"),
		PageNumber: *req.PageNumber,
		Content:    req.Content,
		X:          req.X,
		Y:          req.Y,
	})
	if err != nil {
		s.writeLibraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.library.ListNotes(chi.URLParam(r, "bookID"))
	if err != nil {
		s.writeLibraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := s.library.DeleteNote(chi.URLParam(r, "noteID")); err != nil {
		s.writeLibraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleCreateHighlight(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PageNumber  *int          `json:"page_number"`
		Coordinates []models.Rect `json:"coordinates"`
		Color       string        `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PageNumber == nil {
		writeError(w, http.StatusBadRequest, "page_number is required")
		return
	}

	highlight, err := s.library.CreateHighlight(models.Highlight{
		BookID:      chi.URLParam(r, "bookID"),
		PageNumber:  *req.PageNumber,
		Coordinates: req.Coordinates,
		Color:       req.Color,
	})
	if err != nil {
		s.writeLibraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, highlight)
}

func (s *Server) handleListHighlights(w http.ResponseWriter, r *http.Request) {
	highlights, err := s.library.ListHighlights(chi.URLParam(r, "bookID"))
	if err != nil {
		s.writeLibraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, highlights)
}

func (s *Server) handleDeleteHighlight(w http.ResponseWriter, r *http.Request) {
	if err := s.library.DeleteHighlight(chi.URLParam(r, "highlightID")); err != nil {
		s.writeLibraryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// writeLibraryError maps the library error taxonomy onto HTTP statuses.
func (s *Server) writeLibraryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, library.ErrPageOutOfRange):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrValidation), errors.Is(err, library.ErrInvalidDocument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, source.ErrUnavailable), errors.Is(err, render.ErrRenderFailure):
		s.log.Error("%v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.log.Error("%v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are already out; nothing left to do.
		_ = err
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func saveUpload(file io.Reader, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}

// sanitizeFilename keeps the base name and replaces anything outside a
// conservative character set.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
