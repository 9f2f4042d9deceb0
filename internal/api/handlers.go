package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/commonplace/internal/apperr"
	"github.com/starford/commonplace/internal/checksum"
	"github.com/starford/commonplace/internal/models"
	"github.com/starford/commonplace/internal/notestore"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	store *notestore.Store
}

// NewHandler creates a new Handler.
func NewHandler(store *notestore.Store) *Handler {
	return &Handler{store: store}
}

// detail assembles the full response payload for one note.
func (h *Handler) detail(id string) (*NoteDetail, error) {
	note, err := h.store.Get(id)
	if err != nil {
		return nil, err
	}
	loc, err := h.store.Location(id)
	if err != nil {
		return nil, err
	}
	bl, err := h.store.Backlinks(id)
	if err != nil {
		return nil, err
	}
	if bl == nil {
		bl = []models.Edge{}
	}
	return &NoteDetail{
		Note:      *note,
		Location:  loc,
		Checksum:  checksum.SumString(note.Content),
		Backlinks: bl,
	}, nil
}

// CreateNote handles POST /api/notes.
//
//	@Summary	Create a new note
//	@Tags		notes
//	@Accept		json
//	@Produce	json
//	@Param		body	body		NoteRequest	true	"Note to create"
//	@Success	201		{object}	NoteDetail
//	@Failure	400		{object}	errResponse
//	@Failure	409		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" && req.Title == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("title or content is required"))
		return
	}

	id, err := h.store.Create(req.Note())
	var lag *apperr.IndexLagError
	switch {
	case err == nil:
	case errors.As(err, &lag):
		// Durable but unindexed; report the id so the caller can retry
		// reads after the next rebuild.
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "warning": lag.Error()})
		return
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("note already exists"))
		return
	default:
		slog.Error("create note failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	detail, err := h.detail(id)
	if err != nil {
		slog.Error("load created note failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary	Get a single note by id
//	@Tags		notes
//	@Produce	json
//	@Param		id	path		string	true	"Note id"
//	@Success	200	{object}	NoteDetail
//	@Failure	404	{object}	errResponse
//	@Security	BearerAuth
//	@Router		/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	detail, err := h.detail(id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get note failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// UpdateNote handles PUT /api/notes/{id} with optimistic concurrency.
//
//	@Summary	Update a note
//	@Tags		notes
//	@Accept		json
//	@Produce	json
//	@Param		id			path	string		true	"Note id"
//	@Param		If-Match	header	string		false	"Content checksum for optimistic concurrency"
//	@Param		body		body	NoteRequest	true	"Updated note"
//	@Success	200	{object}	NoteDetail
//	@Failure	404	{object}	errResponse
//	@Failure	409	{object}	errResponse
//	@Security	BearerAuth
//	@Router		/notes/{id} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	id := chi.URLParam(r, "id")

	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	if ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`); ifMatch != "" {
		current, err := h.store.Get(id)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, errorBody("not found"))
			} else {
				writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			}
			return
		}
		if ifMatch != checksum.SumString(current.Content) {
			writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
			return
		}
	}

	note := req.Note()
	note.ID = id
	err := h.store.Update(note)
	var lag *apperr.IndexLagError
	switch {
	case err == nil:
	case errors.As(err, &lag):
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "warning": lag.Error()})
		return
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	case errors.Is(err, apperr.ErrMoveRequired):
		writeJSON(w, http.StatusConflict, errorBody("module change relocates the note, use POST /notes/{id}/move"))
		return
	default:
		slog.Error("update note failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	detail, err := h.detail(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// MoveNote handles POST /api/notes/{id}/move.
//
//	@Summary	Relocate a note to another module
//	@Tags		notes
//	@Accept		json
//	@Produce	json
//	@Param		id		path	string		true	"Note id"
//	@Param		body	body	MoveRequest	true	"Target module"
//	@Success	200	{object}	NoteDetail
//	@Failure	404	{object}	errResponse
//	@Security	BearerAuth
//	@Router		/notes/{id}/move [post]
func (h *Handler) MoveNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Module == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("module is required"))
		return
	}

	if err := h.store.Move(id, req.Module); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("move note failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	detail, err := h.detail(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary	Delete a note
//	@Tags		notes
//	@Param		id	path	string	true	"Note id"
//	@Success	204	"Note deleted"
//	@Failure	404	{object}	errResponse
//	@Security	BearerAuth
//	@Router		/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Delete(id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("delete note failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListNotes handles GET /api/notes?module=...|tag=...
//
//	@Summary	List notes by module or tag
//	@Tags		notes
//	@Produce	json
//	@Param		module	query		string	false	"Module filter"
//	@Param		tag		query		string	false	"Tag filter"
//	@Success	200		{object}	NoteListResponse
//	@Failure	400		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	module := q.Get("module")
	tag := q.Get("tag")

	var (
		notes []models.Note
		err   error
	)
	switch {
	case module != "" && tag != "":
		writeJSON(w, http.StatusBadRequest, errorBody("pass either module or tag, not both"))
		return
	case module != "":
		notes, err = h.store.NotesByModule(module)
	case tag != "":
		notes, err = h.store.NotesByTag(tag)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("module or tag query parameter is required"))
		return
	}
	if err != nil {
		slog.Error("list notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if notes == nil {
		notes = []models.Note{}
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Total: len(notes)})
}

// Search handles GET /api/search.
//
//	@Summary	Full-text search across notes
//	@Tags		search
//	@Produce	json
//	@Param		q		query		string	true	"Search query"
//	@Param		module	query		string	false	"Restrict to module"
//	@Param		limit	query		int		false	"Max results"
//	@Success	200		{object}	SearchResponse
//	@Failure	400		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	module := r.URL.Query().Get("module")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	results, err := h.store.Search(q, module, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if results == nil {
		results = []models.Note{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Links handles GET /api/notes/{id}/links.
//
//	@Summary	Outgoing links of a note
//	@Tags		links
//	@Produce	json
//	@Param		id	path		string	true	"Note id"
//	@Success	200	{object}	LinksResponse
//	@Security	BearerAuth
//	@Router		/notes/{id}/links [get]
func (h *Handler) Links(w http.ResponseWriter, r *http.Request) {
	h.edges(w, r, h.store.LinksFrom)
}

// Backlinks handles GET /api/notes/{id}/backlinks.
//
//	@Summary	Notes linking to this note
//	@Tags		links
//	@Produce	json
//	@Param		id	path		string	true	"Note id"
//	@Success	200	{object}	LinksResponse
//	@Security	BearerAuth
//	@Router		/notes/{id}/backlinks [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	h.edges(w, r, h.store.Backlinks)
}

func (h *Handler) edges(w http.ResponseWriter, r *http.Request, fn func(string) ([]models.Edge, error)) {
	id := chi.URLParam(r, "id")
	edges, err := fn(id)
	if err != nil {
		slog.Error("link query failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if edges == nil {
		edges = []models.Edge{}
	}
	writeJSON(w, http.StatusOK, LinksResponse{Links: edges})
}

// Rebuild handles POST /api/rebuild.
//
//	@Summary	Rebuild the secondary index from store files
//	@Tags		admin
//	@Produce	json
//	@Success	200	{object}	RebuildResponse
//	@Security	BearerAuth
//	@Router		/rebuild [post]
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	report, err := h.store.Rebuild()
	if err != nil {
		slog.Error("rebuild failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if report.Failures == nil {
		report.Failures = []notestore.Failure{}
	}
	writeJSON(w, http.StatusOK, report)
}
