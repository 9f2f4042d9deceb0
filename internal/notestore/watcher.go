package notestore

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/commonplace/internal/storage"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted", "rebuilt"; id is the note
// id, empty for "rebuilt".
type EventCallback func(kind, id string)

// Watch starts an fsnotify watcher on the store root and keeps the index
// reconciled with external edits until ctx is cancelled. A changed file is
// re-parsed as a whole, so container files with several notes per file are
// handled the same way as flat ones. Renames schedule a debounced full
// rebuild, since fsnotify only reports the old path.
func (s *Store) Watch(ctx context.Context, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var rebuildTimer *time.Timer
	var rebuildCh <-chan time.Time

	scheduleRebuild := func() {
		if rebuildTimer == nil {
			rebuildTimer = time.NewTimer(200 * time.Millisecond)
			rebuildCh = rebuildTimer.C
		} else {
			rebuildTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if rebuildTimer != nil {
				rebuildTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-rebuildCh:
			if _, rbErr := s.Rebuild(); rbErr != nil {
				logger.Warn("watcher: rebuild failed", slog.String("error", rbErr.Error()))
			} else if cb != nil {
				cb("rebuilt", "")
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			// New directories are added to the watch list; any records
			// already inside them are indexed.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if skippedDir(filepath.Base(absPath)) {
						continue
					}
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath), slog.String("error", addErr.Error()))
					}
					s.indexNewDir(root, absPath, logger, cb)
					continue
				}
			}

			if !strings.HasSuffix(absPath, storage.RecordExt) {
				continue
			}
			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if strings.HasPrefix(rel, storage.IndexDir+"/") {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				upserted, removed, idxErr := s.reindexLocation(rel)
				if idxErr != nil {
					logger.Warn("watcher: reindex failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
					continue
				}
				kind := "updated"
				if ev.Op&fsnotify.Create != 0 {
					kind = "created"
				}
				logger.Debug("watcher: reindexed", slog.String("path", rel),
					slog.Int("notes", len(upserted)), slog.Int("removed", len(removed)))
				if cb != nil {
					for _, id := range upserted {
						cb(kind, id)
					}
					for _, id := range removed {
						cb("deleted", id)
					}
				}

			case ev.Op&fsnotify.Remove != 0:
				ids, delErr := s.removeLocation(rel)
				if delErr != nil {
					logger.Warn("watcher: remove failed", slog.String("path", rel), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: removed", slog.String("path", rel), slog.Int("notes", len(ids)))
				if cb != nil {
					for _, id := range ids {
						cb("deleted", id)
					}
				}

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the old path only; the new path
				// arrives as a separate Create if it stays watched. Drop the
				// old entries now, then reconcile everything shortly after.
				if ids, delErr := s.removeLocation(rel); delErr == nil && cb != nil {
					for _, id := range ids {
						cb("deleted", id)
					}
				}
				scheduleRebuild()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// indexNewDir indexes any record files found in a newly created directory.
func (s *Store) indexNewDir(root, dirPath string, logger *slog.Logger, cb EventCallback) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skippedDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, storage.RecordExt) {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if upserted, _, idxErr := s.reindexLocation(rel); idxErr == nil {
			logger.Debug("watcher: indexed from new dir", slog.String("path", rel))
			if cb != nil {
				for _, id := range upserted {
					cb("created", id)
				}
			}
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher,
// skipping hidden directories (the index subtree lives in one).
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skippedDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func skippedDir(name string) bool {
	return strings.HasPrefix(name, ".")
}
