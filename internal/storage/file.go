package storage

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "dailybot/pkg/logx"
)

// fileStore keeps the document in a single JSON file.
//
// Writes go through a temp file + rename so readers never observe a partial
// document. lastHash tracks the last content this process wrote (or already
// notified about) so Watch can skip self-inflicted and duplicate events.
type fileStore struct {
	path string
	log  logx.Logger

	mu       sync.Mutex
	lastHash uint64
}

func openFile(cfg Config, log logx.Logger) (DocStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{path: path, log: log}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Read(ctx context.Context) ([]byte, error) {
	_ = ctx
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoDocument
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *fileStore) Write(ctx context.Context, body []byte) error {
	_ = ctx
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	s.mu.Lock()
	s.lastHash = hashBytes(body)
	s.mu.Unlock()
	return nil
}

// Watch observes the document file for external changes.
//
// When fsnotify gets into a bad state (common on some platforms + certain
// editors), the watcher may stop delivering events or close its channels.
// Self-heal by recreating the watcher with a small exponential backoff.
func (s *fileStore) Watch(ctx context.Context, onChange func()) error {
	dir := filepath.Dir(s.path)
	file := filepath.Base(s.path)

	const (
		restartBackoffBase = 250 * time.Millisecond
		restartBackoffMax  = 5 * time.Second
	)
	backoff := restartBackoffBase
	// local RNG to avoid global contention (and to keep jitter deterministic per process).
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	// debounce to avoid partial writes
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() {
			b, err := os.ReadFile(s.path)
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					s.log.Warn("document read failed after change", logx.String("path", s.path), logx.Err(err))
				}
				return
			}

			// Skip events for content this process just wrote, and editor
			// quirks that fire multiple events without content changes.
			h := hashBytes(b)
			s.mu.Lock()
			unchanged := h != 0 && h == s.lastHash
			if !unchanged {
				s.lastHash = h
			}
			s.mu.Unlock()
			if unchanged {
				s.log.Debug("document unchanged; skipping notify", logx.String("path", s.path))
				return
			}

			s.log.Debug("document changed externally", logx.String("path", s.path))
			onChange()
		})
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err != nil {
			s.log.Warn("document watch init failed", logx.Err(err), logx.String("dir", dir))
			wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
			if backoff < restartBackoffMax {
				backoff *= 2
				if backoff > restartBackoffMax {
					backoff = restartBackoffMax
				}
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
				continue
			}
		}

		if err := w.Add(dir); err != nil {
			_ = w.Close()
			s.log.Warn("document watch add failed", logx.Err(err), logx.String("dir", dir))
			wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
			if backoff < restartBackoffMax {
				backoff *= 2
				if backoff > restartBackoffMax {
					backoff = restartBackoffMax
				}
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
				continue
			}
		}

		// success; reset backoff so transient issues don't cause long restart delays
		backoff = restartBackoffBase
		s.log.Debug("document watcher started", logx.String("dir", dir), logx.String("file", file))

		// inner loop: runs until watcher breaks, then outer loop recreates it.
		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				// Compare by basename (more robust across absolute/relative paths and OS quirks).
				if strings.EqualFold(filepath.Base(ev.Name), file) {
					if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
						debounce()
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				// Overflow means we may have missed events; reload once and keep going.
				// Avoid depending on a specific fsnotify error constant across versions.
				if strings.Contains(strings.ToLower(err.Error()), "overflow") {
					s.log.Warn("document watch overflow; forcing reload", logx.Err(err), logx.String("dir", dir))
					debounce()
					continue
				}
				s.log.Warn("document watch error", logx.Err(err), logx.String("dir", dir))
				// Some fsnotify backends surface watcher closure via an error.
				if strings.Contains(strings.ToLower(err.Error()), "closed") {
					broken = true
					break
				}
			}
		}

		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		// restart with a small jittered backoff to avoid tight restart loops.
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		s.log.Warn(
			"document watcher stopped; restarting",
			logx.String("dir", dir),
			logx.String("file", file),
			logx.Duration("backoff", wait),
		)
		if backoff < restartBackoffMax {
			backoff *= 2
			if backoff > restartBackoffMax {
				backoff = restartBackoffMax
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
			continue
		}
	}
}

// hashBytes returns a stable 64-bit hash of bytes. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
