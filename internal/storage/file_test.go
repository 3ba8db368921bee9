package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"dailybot/pkg/logx"
)

func newFileStore(t *testing.T) (DocStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedule-config.json")
	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	return s, path
}

func TestFileStoreReadMissing(t *testing.T) {
	t.Parallel()
	s, _ := newFileStore(t)
	if _, err := s.Read(context.Background()); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("err = %v, want ErrNoDocument", err)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	s, path := newFileStore(t)
	ctx := context.Background()

	body := []byte(`{"timezone":"UTC"}`)
	if err := s.Write(ctx, body); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	got, err := s.Read(ctx)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if string(got) != string(body) {
		t.Fatalf("Read = %q, want %q", got, body)
	}

	// No temp file left behind.
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file left after write: %v", err)
	}
}

func TestFileStoreWatch(t *testing.T) {
	t.Parallel()
	s, path := newFileStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Write(ctx, []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	var changes atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Watch(ctx, func() { changes.Add(1) })
	}()

	// Give the watcher time to attach before mutating the file.
	time.Sleep(300 * time.Millisecond)

	// An external edit must notify (after the debounce window).
	if err := os.WriteFile(path, []byte(`{"v":2}`), 0o644); err != nil {
		t.Fatalf("external write: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for changes.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if changes.Load() == 0 {
		t.Fatal("external edit did not notify")
	}

	// A write through the store must not notify itself.
	before := changes.Load()
	if err := s.Write(ctx, []byte(`{"v":3}`)); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	time.Sleep(600 * time.Millisecond)
	if changes.Load() != before {
		t.Fatalf("self-write notified: %d -> %d", before, changes.Load())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop on context cancel")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "etcd", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
