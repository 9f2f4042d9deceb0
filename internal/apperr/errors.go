// Package apperr defines the error taxonomy shared across the engine.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports that a query or mutation target does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists reports a create with an id the index already holds.
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict reports an If-Match checksum mismatch on update.
	ErrConflict = errors.New("conflict")
	// ErrMoveRequired reports an update that would change the note's file
	// location (module or creation bucket changed); callers must use the
	// explicit move operation instead.
	ErrMoveRequired = errors.New("update would change file location, use move")
)

// DecodeError reports a malformed record. It is scoped to a single record:
// container parsing collects one DecodeError per bad section and keeps going.
type DecodeError struct {
	Location string // file the record came from, if known
	NoteID   string // record id, if one could be determined
	Err      error
}

func (e *DecodeError) Error() string {
	switch {
	case e.Location != "" && e.NoteID != "":
		return fmt.Sprintf("decode %s (note %s): %v", e.Location, e.NoteID, e.Err)
	case e.Location != "":
		return fmt.Sprintf("decode %s: %v", e.Location, e.Err)
	case e.NoteID != "":
		return fmt.Sprintf("decode note %s: %v", e.NoteID, e.Err)
	default:
		return fmt.Sprintf("decode: %v", e.Err)
	}
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IndexLagError reports that a note was durably written to its file but the
// index upsert failed afterwards. The note is safe on disk and unsearchable
// until the next rebuild; callers should log and move on, not retry the write.
type IndexLagError struct {
	NoteID   string
	Location string
	Err      error
}

func (e *IndexLagError) Error() string {
	return fmt.Sprintf("note %s written to %s but not indexed: %v", e.NoteID, e.Location, e.Err)
}

func (e *IndexLagError) Unwrap() error { return e.Err }
