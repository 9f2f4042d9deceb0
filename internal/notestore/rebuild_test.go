package notestore

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/commonplace/internal/apperr"
	"github.com/starford/commonplace/internal/models"
)

func TestRebuildIdempotent(t *testing.T) {
	s, _ := testStore(t, "grouped")

	for i := 0; i < 3; i++ {
		if _, err := s.Create(models.Note{Module: "box", Content: "body"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	first, err := s.Rebuild()
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	second, err := s.Rebuild()
	if err != nil {
		t.Fatalf("second Rebuild: %v", err)
	}
	if first.Indexed != 3 || second.Indexed != 3 {
		t.Errorf("indexed = %d then %d, want 3 both times", first.Indexed, second.Indexed)
	}
	if len(first.Failures) != 0 || len(second.Failures) != 0 {
		t.Errorf("failures = %v / %v", first.Failures, second.Failures)
	}
}

func TestRebuildRecoversIndex(t *testing.T) {
	s, _ := testStore(t, "grouped")

	id, _ := s.Create(models.Note{Module: "box", Title: "Kant", Content: "transcendental idealism"})

	// Wipe the index out from under the store, then rebuild from files.
	if err := s.idx.Rebuild(nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(id); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("index not actually wiped: %v", err)
	}

	report, err := s.Rebuild()
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if report.Indexed != 1 {
		t.Errorf("indexed = %d, want 1", report.Indexed)
	}

	n, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get after rebuild: %v", err)
	}
	if n.Title != "Kant" {
		t.Errorf("title = %q", n.Title)
	}
	results, err := s.Search("transcendental", "", 10)
	if err != nil || len(results) != 1 {
		t.Errorf("Search after rebuild = %+v, %v", results, err)
	}
}

func TestRebuildReportsCorruptSection(t *testing.T) {
	s, files := testStore(t, "grouped")

	id, _ := s.Create(models.Note{Module: "box", Content: "survivor"})
	loc, _ := s.Location(id)

	data, _ := files.Read(loc)
	broken := append(data, []byte("<!-- NOTE_START: bad -->\n---\nid: [oops\n---\n\nx\n<!-- NOTE_END: bad -->\n")...)
	if err := files.Write(loc, broken); err != nil {
		t.Fatal(err)
	}

	report, err := s.Rebuild()
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if report.Indexed != 1 {
		t.Errorf("indexed = %d, want 1", report.Indexed)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("failures = %d, want exactly 1", len(report.Failures))
	}
	f := report.Failures[0]
	if f.Location != loc || f.NoteID != "bad" {
		t.Errorf("failure = %+v", f)
	}

	if _, err := s.Get(id); err != nil {
		t.Errorf("good section lost: %v", err)
	}

	// The corrupt file is left untouched for manual repair.
	after, _ := files.Read(loc)
	if string(after) != string(broken) {
		t.Error("rebuild modified a corrupt file")
	}
}

func TestRebuildForeignFlatFile(t *testing.T) {
	s, files := testStore(t, "flat")

	// A hand-written file with no metadata block at all.
	if err := files.Write("box/scratchpad.md", []byte("just thoughts\n")); err != nil {
		t.Fatal(err)
	}

	report, err := s.Rebuild()
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if report.Indexed != 1 {
		t.Fatalf("indexed = %d, want 1", report.Indexed)
	}

	n, err := s.Get("scratchpad")
	if err != nil {
		t.Fatalf("Get by slug id: %v", err)
	}
	if !strings.Contains(n.Content, "just thoughts") {
		t.Errorf("content = %q", n.Content)
	}
	if n.Module != models.DefaultModule {
		t.Errorf("module = %q", n.Module)
	}
}

func TestReindexLocationReconciles(t *testing.T) {
	s, files := testStore(t, "grouped")

	id1, _ := s.Create(models.Note{Module: "box", Content: "stays"})
	id2, _ := s.Create(models.Note{Module: "box", Content: "goes"})
	loc, _ := s.Location(id1)

	// Rewrite the container externally with only the first note.
	n1, _ := s.Get(id1)
	data, err := s.codec.EncodeGroup([]models.Note{*n1})
	if err != nil {
		t.Fatal(err)
	}
	if err := files.Write(loc, data); err != nil {
		t.Fatal(err)
	}

	upserted, removed, err := s.reindexLocation(loc)
	if err != nil {
		t.Fatalf("reindexLocation: %v", err)
	}
	if len(upserted) != 1 || upserted[0] != id1 {
		t.Errorf("upserted = %v", upserted)
	}
	if len(removed) != 1 || removed[0] != id2 {
		t.Errorf("removed = %v", removed)
	}
	if _, err := s.Get(id2); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("externally removed note still indexed: %v", err)
	}
}

func TestRemoveLocation(t *testing.T) {
	s, _ := testStore(t, "grouped")

	id1, _ := s.Create(models.Note{Module: "box", Content: "a"})
	id2, _ := s.Create(models.Note{Module: "box", Content: "b"})
	loc, _ := s.Location(id1)

	removed, err := s.removeLocation(loc)
	if err != nil {
		t.Fatalf("removeLocation: %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("removed = %v, want both ids", removed)
	}
	for _, id := range []string{id1, id2} {
		if _, err := s.Get(id); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("note %s still indexed: %v", id, err)
		}
	}
}
