package models

import (
	"time"
)

// Book is an uploaded document. Source is an opaque locator the source
// resolver knows how to turn into local bytes: either a filesystem path or
// an http(s) URL.
type Book struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	PageCount int       `json:"page_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Note is a free-text annotation pinned to one page of a book. X and Y are
// optional positions in the rendered page's coordinate space.
type Note struct {
	ID         string    `json:"id"`
	BookID     string    `json:"book_id"`
	PageNumber int       `json:"page_number"`
	Content    string    `json:"content"`
	X          *float64  `json:"x,omitempty"`
	Y          *float64  `json:"y,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Rect is one highlighted region: x0, y0, x1, y1 in page coordinates.
type Rect [4]float64

// Highlight marks one or more rectangular regions on a page.
type Highlight struct {
	ID          string    `json:"id"`
	BookID      string    `json:"book_id"`
	PageNumber  int       `json:"page_number"`
	Coordinates []Rect    `json:"coordinates"`
	Color       string    `json:"color"`
	CreatedAt   time.Time `json:"created_at"`
}

// DefaultHighlightColor is applied when a highlight is created without one.
const DefaultHighlightColor = "yellow"

// TOCEntry is one row of a book's table of contents.
type TOCEntry struct {
	Level int    `json:"level"`
	Title string `json:"title"`
	Page  int    `json:"page"`
}
