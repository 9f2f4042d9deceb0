package notestore

import (
	"errors"
	"log/slog"

	"github.com/starford/commonplace/internal/apperr"
	"github.com/starford/commonplace/internal/codec"
	"github.com/starford/commonplace/internal/index"
	"github.com/starford/commonplace/internal/models"
)

// Failure records one file or record that could not be indexed.
type Failure struct {
	Location string `json:"location"`
	NoteID   string `json:"note_id,omitempty"`
	Reason   string `json:"reason"`
}

// Report summarizes a rebuild.
type Report struct {
	Indexed  int       `json:"indexed"`
	Failures []Failure `json:"failures"`
}

// Rebuild reconstructs the whole index from the store files. It is the
// authoritative recovery path: per-record parse failures are collected and
// reported, never fatal, and files that fail to parse are left untouched on
// disk. The index swap happens in a single transaction, so an interrupted
// rebuild never leaves it half-populated. Rebuild excludes all concurrent
// writers for its duration.
func (s *Store) Rebuild() (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildLocked()
}

func (s *Store) rebuildLocked() (Report, error) {
	var report Report

	paths, err := s.files.Enumerate("")
	if err != nil {
		return report, err
	}

	var entries []index.Entry
	for _, p := range paths {
		data, err := s.files.Read(p)
		if err != nil {
			report.Failures = append(report.Failures, Failure{Location: p, Reason: err.Error()})
			continue
		}

		if codec.IsGrouped(data) {
			notes, failures := s.codec.DecodeGroup(data)
			for _, f := range failures {
				report.Failures = append(report.Failures, Failure{Location: p, NoteID: f.NoteID, Reason: f.Err.Error()})
			}
			for _, n := range notes {
				entries = append(entries, index.Entry{Note: n, Location: p})
			}
			continue
		}

		note, err := s.codec.Decode(data, codec.Slug(p))
		if err != nil {
			var de *apperr.DecodeError
			f := Failure{Location: p, Reason: err.Error()}
			if errors.As(err, &de) {
				f.NoteID = de.NoteID
			}
			report.Failures = append(report.Failures, f)
			continue
		}
		entries = append(entries, index.Entry{Note: note, Location: p})
	}

	if err := s.idx.Rebuild(entries); err != nil {
		return report, err
	}
	report.Indexed = len(entries)

	s.logger.Info("index rebuilt",
		slog.Int("indexed", report.Indexed),
		slog.Int("failed", len(report.Failures)))
	return report, nil
}

// reindexLocation re-parses one file and reconciles the index with it:
// every note now in the file is upserted and ids previously recorded there
// but no longer present are removed. Used by the watcher after external
// edits. Returns upserted and removed ids.
func (s *Store) reindexLocation(loc string) (upserted, removed []string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := s.files.Read(loc)
	if err != nil {
		return nil, nil, err
	}

	var notes []models.Note
	if codec.IsGrouped(data) {
		var failures []*apperr.DecodeError
		notes, failures = s.codec.DecodeGroup(data)
		for _, f := range failures {
			s.logger.Warn("skipping malformed section",
				slog.String("location", loc), slog.String("id", f.NoteID), slog.String("error", f.Err.Error()))
		}
	} else {
		note, derr := s.codec.Decode(data, codec.Slug(loc))
		if derr != nil {
			return nil, nil, derr
		}
		notes = []models.Note{note}
	}

	prev, err := s.idx.IDsAt(loc)
	if err != nil {
		return nil, nil, err
	}

	present := make(map[string]struct{}, len(notes))
	for _, n := range notes {
		present[n.ID] = struct{}{}
		if err := s.idx.Upsert(n, loc); err != nil {
			return upserted, removed, err
		}
		upserted = append(upserted, n.ID)
	}
	for _, id := range prev {
		if _, ok := present[id]; ok {
			continue
		}
		if err := s.idx.Remove(id); err != nil {
			return upserted, removed, err
		}
		removed = append(removed, id)
	}
	return upserted, removed, nil
}

// removeLocation drops every indexed note recorded at loc. Used by the
// watcher when a file disappears.
func (s *Store) removeLocation(loc string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.RemoveAt(loc)
}
