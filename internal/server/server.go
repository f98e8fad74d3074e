package server

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/aravindthiru29/flipbook/internal/library"
	"github.com/aravindthiru29/flipbook/pkg/logger"
)

// Server is the HTTP surface over the library: upload, page images, table
// of contents and annotation CRUD.
type Server struct {
	router         chi.Router
	library        *library.Library
	uploadDir      string
	maxUploadBytes int64
	log            *logger.Logger
}

func New(lib *library.Library, uploadDir string, maxUploadMB int, log *logger.Logger) (*Server, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	s := &Server{
		router:         chi.NewRouter(),
		library:        lib,
		uploadDir:      uploadDir,
		maxUploadBytes: int64(maxUploadMB) << 20,
		log:            log,
	}
	s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)

	s.router.Get("/healthz", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(10, time.Minute))
		r.Post("/upload", s.handleUpload)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/books", s.handleListBooks)

		r.Route("/book/{bookID}", func(r chi.Router) {
			r.Put("/", s.handleRenameBook)
			r.Delete("/", s.handleDeleteBook)
			r.Get("/page/{pageNum}", s.handleGetPage)
			r.Get("/toc", s.handleTOC)

			r.Get("/notes", s.handleListNotes)
			r.Post("/notes", s.handleCreateNote)
			r.Get("/highlights", s.handleListHighlights)
			r.Post("/highlights", s.handleCreateHighlight)
		})

		r.Delete("/note/{noteID}", s.handleDeleteNote)
		r.Delete("/highlight/{highlightID}", s.handleDeleteHighlight)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("%s %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
