package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNoDocument is returned by Read when no document has been written yet.
var ErrNoDocument = errors.New("storage: no document")

// Config configures the document store.
//
// If Driver is empty, "file" is assumed.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	PollEvery   time.Duration // sqlite watch interval; 0 means 2s
}

// DocStore holds exactly one document as an opaque byte blob.
//
// Write replaces the whole document atomically: a concurrent Read observes
// either the previous or the new content, never a partial write.
//
// Watch blocks until ctx is done, invoking onChange whenever the stored
// document is changed by another writer. Changes caused by this store's own
// Write calls are suppressed on a best-effort basis (content hash), so a
// caller reacting to onChange will not loop on its own writes.
type DocStore interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, body []byte) error
	Watch(ctx context.Context, onChange func()) error
	Close() error
}
