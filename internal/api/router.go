package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/commonplace/internal/notestore"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(store *notestore.Store, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(store)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/{id}", h.GetNote)
	r.Put("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.DeleteNote)
	r.Post("/notes/{id}/move", h.MoveNote)

	// Link graph.
	r.Get("/notes/{id}/links", h.Links)
	r.Get("/notes/{id}/backlinks", h.Backlinks)

	// Search.
	r.Get("/search", h.Search)

	// Index administration.
	r.Post("/rebuild", h.Rebuild)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
