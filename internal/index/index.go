package index

import "github.com/starford/commonplace/internal/models"

// Entry pairs a note with the store file it was read from.
type Entry struct {
	Note     models.Note
	Location string
}

// NoteIndex defines the interface for secondary-index operations.
// Consumers should depend on this interface rather than the concrete *DB
// type to facilitate testing with mocks.
type NoteIndex interface {
	Upsert(n models.Note, location string) error
	Get(id string) (*models.Note, error)
	Location(id string) (string, error)
	Remove(id string) error
	RemoveAt(location string) ([]string, error)
	IDsAt(location string) ([]string, error)
	NotesByModule(module string) ([]models.Note, error)
	NotesByTag(tag string) ([]models.Note, error)
	Search(term, module string, limit int) ([]models.Note, error)
	LinksFrom(id string) ([]models.Edge, error)
	Backlinks(id string) ([]models.Edge, error)
	Rebuild(entries []Entry) error
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
