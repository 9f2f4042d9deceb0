package api

import (
	"github.com/starford/commonplace/internal/models"
	"github.com/starford/commonplace/internal/notestore"
)

// NoteRequest is the request body for creating or updating a note. On
// create, id and created are optional (the engine assigns them); on update
// they are ignored in favor of the stored values.
type NoteRequest struct {
	ID         string         `json:"id,omitempty"`
	Module     string         `json:"module,omitempty" example:"zettelkasten"`
	Title      string         `json:"title,omitempty" example:"Epistemology Notes"`
	Content    string         `json:"content" example:"# Epistemology\nKant argued..."`
	Created    string         `json:"created,omitempty"`
	Tags       []string       `json:"tags,omitempty" example:"philosophy,kant"`
	Properties map[string]any `json:"properties,omitempty"`
	Links      []models.Link  `json:"links,omitempty"`
}

// Note converts the request into a domain note.
func (r NoteRequest) Note() models.Note {
	return models.Note{
		ID:         r.ID,
		Module:     r.Module,
		Title:      r.Title,
		Content:    r.Content,
		Created:    r.Created,
		Tags:       r.Tags,
		Properties: r.Properties,
		Links:      r.Links,
	}
}

// MoveRequest is the request body for relocating a note to another module.
type MoveRequest struct {
	Module string `json:"module" example:"archive"`
}

// NoteDetail is the full note response: the domain note enriched with its
// file location, a content checksum for If-Match updates, and backlinks.
type NoteDetail struct {
	models.Note
	Location  string        `json:"location"`
	Checksum  string        `json:"checksum"`
	Backlinks []models.Edge `json:"backlinks"`
}

// NoteListResponse wraps module/tag listings.
type NoteListResponse struct {
	Notes []models.Note `json:"notes"`
	Total int           `json:"total" example:"42"`
}

// SearchResponse wraps ranked search results.
type SearchResponse struct {
	Results []models.Note `json:"results"`
}

// LinksResponse wraps link-graph traversals.
type LinksResponse struct {
	Links []models.Edge `json:"links"`
}

// RebuildResponse is the rebuild report.
type RebuildResponse = notestore.Report
