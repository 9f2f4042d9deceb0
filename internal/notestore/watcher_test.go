package notestore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/commonplace/internal/apperr"
	"github.com/starford/commonplace/internal/codec"
	"github.com/starford/commonplace/internal/index"
	"github.com/starford/commonplace/internal/models"
	"github.com/starford/commonplace/internal/storage"
)

func watcherTestEnv(t *testing.T) (*Store, string) {
	t.Helper()

	dir := t.TempDir()
	files, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}

	dbFile, err := os.CreateTemp("", "commonplace-watcher-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	layout, _ := storage.ParseLayout("flat")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(files, layout, db, codec.New(time.Now), logger), dir
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func record(t *testing.T, id, content string) []byte {
	t.Helper()
	c := codec.New(time.Now)
	data, err := c.Encode(models.Note{
		ID: id, Module: "box", Title: id, Content: content,
		Created:  c.Timestamp(),
		Modified: c.Timestamp(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	s, dir := watcherTestEnv(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go func() {
		_ = s.Watch(ctx, dir, logger, func(kind, id string) {
			mu.Lock()
			events = append(events, kind+":"+id)
			mu.Unlock()
		})
	}()

	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "ext.md"), record(t, "ext", "written outside"), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := s.Get("ext")
		return err == nil
	}, "externally written note not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:ext" {
				return true
			}
		}
		return false
	}, "expected created:ext callback")
}

func TestWatcher_NewDirWatched(t *testing.T) {
	s, dir := watcherTestEnv(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = s.Watch(ctx, dir, logger, nil) }()
	time.Sleep(100 * time.Millisecond)

	subDir := filepath.Join(dir, "box")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(subDir, "deep.md"), record(t, "deep", "nested"), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := s.Get("deep")
		return err == nil
	}, "file in new subdir not indexed by watcher")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	s, dir := watcherTestEnv(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := os.WriteFile(filepath.Join(dir, "del.md"), record(t, "del", "delete me"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Rebuild(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("del"); err != nil {
		t.Fatalf("precondition: note should be indexed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = s.Watch(ctx, dir, logger, nil) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.Remove(filepath.Join(dir, "del.md")); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := s.Get("del")
		return errors.Is(err, apperr.ErrNotFound)
	}, "deleted file still in index")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	s, dir := watcherTestEnv(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := os.WriteFile(filepath.Join(dir, "old.md"), record(t, "old", "renaming"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Rebuild(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = s.Watch(ctx, dir, logger, nil) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.Rename(filepath.Join(dir, "old.md"), filepath.Join(dir, "renamed.md")); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		loc, err := s.Location("old")
		if err != nil {
			return false
		}
		return loc == "renamed.md"
	}, "rename reconciliation failed: note should be indexed at its new location")
}

func TestWatcher_ContainerEditReconciled(t *testing.T) {
	s, dir := watcherTestEnv(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Hand-build a two-note container, then rewrite it with one note gone.
	c := codec.New(time.Now)
	two, err := c.EncodeGroup([]models.Note{
		{ID: "g1", Module: "box", Title: "g1", Content: "one",
			Created: c.Timestamp(), Modified: c.Timestamp()},
		{ID: "g2", Module: "box", Title: "g2", Content: "two",
			Created: c.Timestamp(), Modified: c.Timestamp()},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "group.md"), two, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Rebuild(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Watch(ctx, dir, logger, nil) }()
	time.Sleep(100 * time.Millisecond)

	one, err := c.EncodeGroup([]models.Note{
		{ID: "g1", Module: "box", Title: "g1", Content: "one",
			Created: c.Timestamp(), Modified: c.Timestamp()},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "group.md"), one, 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := s.Get("g2")
		return errors.Is(err, apperr.ErrNotFound)
	}, "note removed from container still in index")

	if _, err := s.Get("g1"); err != nil {
		t.Errorf("surviving container note lost: %v", err)
	}
}
