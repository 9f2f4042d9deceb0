// Package notestore coordinates the record codec, the file store and the
// secondary index into coherent create/update/move/delete/query/rebuild
// operations, and defines the consistency contract between them: files are
// the system of record, the index is a derived cache.
package notestore

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/commonplace/internal/apperr"
	"github.com/starford/commonplace/internal/codec"
	"github.com/starford/commonplace/internal/index"
	"github.com/starford/commonplace/internal/models"
	"github.com/starford/commonplace/internal/storage"
)

// Store is the note persistence façade.
//
// Concurrency model: mutations on distinct notes may run concurrently.
// Grouped-layout mutations targeting the same container file are serialized
// by a per-path lock. Rebuild takes the coarse write lock and therefore
// excludes every other operation for its duration.
type Store struct {
	files  storage.Provider
	layout storage.Layout
	idx    index.NoteIndex
	codec  *codec.Codec
	newID  func() string
	logger *slog.Logger

	mu    sync.RWMutex
	paths pathLocks
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides the note id generator (UUIDs by default).
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// New creates a note store over the given collaborators.
func New(files storage.Provider, layout storage.Layout, idx index.NoteIndex, c *codec.Codec, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		files:  files,
		layout: layout,
		idx:    idx,
		codec:  c,
		newID:  uuid.NewString,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the underlying index connection.
func (s *Store) Close() error {
	return s.idx.Close()
}

// Create assigns the note an id (when absent) and timestamps, writes it to
// its resolved file, then indexes it. A failed index upsert after a durable
// write returns the new id together with an IndexLagError: the note is on
// disk and will be picked up by the next rebuild.
func (s *Store) Create(n models.Note) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n.Normalize()
	if n.ID == "" {
		n.ID = s.newID()
	}
	if _, err := s.idx.Location(n.ID); err == nil {
		return "", fmt.Errorf("note %s: %w", n.ID, apperr.ErrAlreadyExists)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return "", err
	}

	now := s.codec.Timestamp()
	if n.Created == "" {
		n.Created = now
	}
	n.Modified = now

	loc := s.layout.Resolve(n.Module, n.ID, n.Created)
	if err := s.writeRecord(loc, n); err != nil {
		return "", err
	}
	if err := s.idx.Upsert(n, loc); err != nil {
		s.logger.Warn("note durable but unindexed",
			slog.String("id", n.ID), slog.String("location", loc), slog.String("error", err.Error()))
		return n.ID, &apperr.IndexLagError{NoteID: n.ID, Location: loc, Err: err}
	}
	return n.ID, nil
}

// Update rewrites an existing note in place. Created is immutable and the
// target file must not change; a module change that would relocate the note
// is rejected with ErrMoveRequired (use Move).
func (s *Store) Update(n models.Note) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n.ID == "" {
		return fmt.Errorf("update: id required: %w", apperr.ErrNotFound)
	}
	loc, err := s.idx.Location(n.ID)
	if err != nil {
		return fmt.Errorf("update note %s: %w", n.ID, err)
	}
	existing, err := s.idx.Get(n.ID)
	if err != nil {
		return fmt.Errorf("update note %s: %w", n.ID, err)
	}

	n.Created = existing.Created
	if n.Module == "" {
		n.Module = existing.Module
	}
	n.Normalize()

	if newLoc := s.layout.Resolve(n.Module, n.ID, n.Created); newLoc != loc {
		return fmt.Errorf("note %s: %s -> %s: %w", n.ID, loc, newLoc, apperr.ErrMoveRequired)
	}

	n.Modified = s.codec.Timestamp()
	if err := s.writeRecord(loc, n); err != nil {
		return err
	}
	if err := s.idx.Upsert(n, loc); err != nil {
		s.logger.Warn("note durable but unindexed",
			slog.String("id", n.ID), slog.String("location", loc), slog.String("error", err.Error()))
		return &apperr.IndexLagError{NoteID: n.ID, Location: loc, Err: err}
	}
	return nil
}

// Move relocates a note to a different module: write at the new location
// first, then remove the old record, then re-index. A crash between the two
// file mutations leaves the note duplicated rather than lost; the next
// rebuild surfaces that state.
func (s *Store) Move(id, module string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if module == "" {
		module = models.DefaultModule
	}
	oldLoc, err := s.idx.Location(id)
	if err != nil {
		return fmt.Errorf("move note %s: %w", id, err)
	}
	note, err := s.idx.Get(id)
	if err != nil {
		return fmt.Errorf("move note %s: %w", id, err)
	}

	note.Module = module
	note.Modified = s.codec.Timestamp()
	newLoc := s.layout.Resolve(note.Module, note.ID, note.Created)

	if err := s.writeRecord(newLoc, *note); err != nil {
		return err
	}
	if newLoc != oldLoc {
		if err := s.removeRecord(oldLoc, id); err != nil {
			return err
		}
	}
	if err := s.idx.Upsert(*note, newLoc); err != nil {
		s.logger.Warn("note durable but unindexed",
			slog.String("id", id), slog.String("location", newLoc), slog.String("error", err.Error()))
		return &apperr.IndexLagError{NoteID: id, Location: newLoc, Err: err}
	}
	return nil
}

// Delete removes a note from its file and from the index. An already
// missing file is tolerated with a warning; the index row is removed
// either way.
func (s *Store) Delete(id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, err := s.idx.Location(id)
	if err != nil {
		return fmt.Errorf("delete note %s: %w", id, err)
	}
	if err := s.removeRecord(loc, id); err != nil {
		return err
	}
	return s.idx.Remove(id)
}

// Get returns a note by id from the index.
func (s *Store) Get(id string) (*models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.Get(id)
}

// Location returns the file a note is recorded at.
func (s *Store) Location(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.Location(id)
}

// Search runs a ranked full-text query, optionally restricted to a module.
func (s *Store) Search(term, module string, limit int) ([]models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.Search(term, module, limit)
}

// NotesByModule returns all notes in a module.
func (s *Store) NotesByModule(module string) ([]models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.NotesByModule(module)
}

// NotesByTag returns all notes carrying a tag.
func (s *Store) NotesByTag(tag string) ([]models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.NotesByTag(tag)
}

// LinksFrom returns a note's outgoing edges.
func (s *Store) LinksFrom(id string) ([]models.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.LinksFrom(id)
}

// Backlinks returns the edges pointing at a note.
func (s *Store) Backlinks(id string) ([]models.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.Backlinks(id)
}

// writeRecord persists one note at loc. Flat layout owns the whole file;
// grouped layout re-reads the container and replaces or appends the note's
// section. Containers carrying malformed sections refuse mutation so a
// rewrite cannot silently drop records it could not parse.
func (s *Store) writeRecord(loc string, n models.Note) error {
	if !s.layout.Grouped() {
		data, err := s.codec.Encode(n)
		if err != nil {
			return err
		}
		return s.files.Write(loc, data)
	}

	unlock := s.paths.lock(loc)
	defer unlock()

	notes, err := s.readContainer(loc)
	if err != nil {
		return err
	}

	replaced := false
	for i := range notes {
		if notes[i].ID == n.ID {
			notes[i] = n
			replaced = true
			break
		}
	}
	if !replaced {
		notes = append(notes, n)
	}

	data, err := s.codec.EncodeGroup(notes)
	if err != nil {
		return err
	}
	return s.files.Write(loc, data)
}

// removeRecord removes one note from loc. Flat layout deletes the file;
// grouped layout rewrites the container without that section, deleting the
// file only when it becomes empty.
func (s *Store) removeRecord(loc, id string) error {
	if !s.layout.Grouped() {
		exists, err := s.files.Exists(loc)
		if err != nil {
			return err
		}
		if !exists {
			s.logger.Warn("note file already missing", slog.String("id", id), slog.String("location", loc))
			return nil
		}
		return s.files.Delete(loc)
	}

	unlock := s.paths.lock(loc)
	defer unlock()

	exists, err := s.files.Exists(loc)
	if err != nil {
		return err
	}
	if !exists {
		s.logger.Warn("container already missing", slog.String("id", id), slog.String("location", loc))
		return nil
	}

	notes, err := s.readContainer(loc)
	if err != nil {
		return err
	}

	kept := notes[:0]
	removed := false
	for _, c := range notes {
		if c.ID == id {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	if !removed {
		s.logger.Warn("note not present in container", slog.String("id", id), slog.String("location", loc))
	}
	if len(kept) == 0 {
		return s.files.Delete(loc)
	}

	data, err := s.codec.EncodeGroup(kept)
	if err != nil {
		return err
	}
	return s.files.Write(loc, data)
}

// readContainer reads loc and parses it as a container, tolerating a file
// that does not exist yet. Any malformed section aborts with a DecodeError:
// the caller is about to rewrite the file and must not drop what it cannot
// parse.
func (s *Store) readContainer(loc string) ([]models.Note, error) {
	exists, err := s.files.Exists(loc)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	data, err := s.files.Read(loc)
	if err != nil {
		return nil, err
	}
	notes, failures := s.codec.DecodeGroup(data)
	if len(failures) > 0 {
		first := failures[0]
		first.Location = loc
		return nil, fmt.Errorf("container %s has %d malformed section(s), refusing rewrite: %w", loc, len(failures), first)
	}
	return notes, nil
}

// pathLocks serializes read-modify-write cycles on shared container files.
type pathLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (p *pathLocks) lock(path string) (unlock func()) {
	p.mu.Lock()
	if p.m == nil {
		p.m = make(map[string]*sync.Mutex)
	}
	l, ok := p.m[path]
	if !ok {
		l = &sync.Mutex{}
		p.m[path] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}
