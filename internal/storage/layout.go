package storage

import (
	"fmt"
	"path"

	"github.com/starford/commonplace/internal/codec"
)

// Layout is the placement policy: a pure mapping from a note's identity to
// the file that stores it. The same (module, id, created) always resolves to
// the same path; only an explicit move changes a note's location.
type Layout interface {
	// Resolve returns the store-relative path for a note.
	Resolve(module, id, created string) string
	// Grouped reports whether resolved files hold multiple notes.
	Grouped() bool
}

// Layout names accepted in configuration.
const (
	LayoutFlat    = "flat"
	LayoutGrouped = "grouped"
)

// ParseLayout maps a configuration string to a Layout.
func ParseLayout(name string) (Layout, error) {
	switch name {
	case LayoutFlat:
		return Flat{}, nil
	case LayoutGrouped, "":
		return Monthly{}, nil
	default:
		return nil, fmt.Errorf("storage: unknown layout %q", name)
	}
}

// Flat places one note per file: <module>/<id>.md.
type Flat struct{}

func (Flat) Resolve(module, id, _ string) string {
	return path.Join(module, id+RecordExt)
}

func (Flat) Grouped() bool { return false }

// Monthly groups notes by module and calendar month of creation:
// <module>/<YYYY-MM>.md. Notes with an unparsable created timestamp land in
// a shared "undated" bucket rather than being rejected.
type Monthly struct{}

func (Monthly) Resolve(module, _, created string) string {
	bucket := "undated"
	if t, err := codec.ParseTime(created); err == nil {
		bucket = t.UTC().Format("2006-01")
	}
	return path.Join(module, bucket+RecordExt)
}

func (Monthly) Grouped() bool { return true }
