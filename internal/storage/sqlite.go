//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	logx "dailybot/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schedule_document (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	body     BLOB    NOT NULL,
	revision INTEGER NOT NULL DEFAULT 0
);
`

// sqliteStore keeps the document in a single-row table with a revision
// counter. Watch polls the revision; there is no push primitive in SQLite.
type sqliteStore struct {
	db        *sql.DB
	log       logx.Logger
	pollEvery time.Duration

	mu      sync.Mutex
	lastRev int64 // last revision this process wrote or notified about
}

func openSQLite(cfg Config, log logx.Logger) (DocStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}

	poll := cfg.PollEvery
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &sqliteStore{db: db, log: log, pollEvery: poll}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Read(ctx context.Context) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM schedule_document WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoDocument
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (s *sqliteStore) Write(ctx context.Context, body []byte) error {
	var rev int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO schedule_document(id, body, revision) VALUES(1, ?, 1)
		 ON CONFLICT(id) DO UPDATE SET body = excluded.body, revision = schedule_document.revision + 1
		 RETURNING revision`,
		body,
	).Scan(&rev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lastRev = rev
	s.mu.Unlock()
	return nil
}

func (s *sqliteStore) Watch(ctx context.Context, onChange func()) error {
	// Seed the baseline so a pre-existing document does not look like a
	// change on the first poll.
	var rev int64
	if err := s.db.QueryRowContext(ctx, `SELECT revision FROM schedule_document WHERE id = 1`).Scan(&rev); err == nil {
		s.mu.Lock()
		if rev > s.lastRev {
			s.lastRev = rev
		}
		s.mu.Unlock()
	}

	t := time.NewTicker(s.pollEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			var rev int64
			err := s.db.QueryRowContext(ctx, `SELECT revision FROM schedule_document WHERE id = 1`).Scan(&rev)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				s.log.Warn("document revision poll failed", logx.Err(err))
				continue
			}
			s.mu.Lock()
			changed := rev != s.lastRev
			if changed {
				s.lastRev = rev
			}
			s.mu.Unlock()
			if changed {
				s.log.Debug("document changed externally", logx.Int64("revision", rev))
				onChange()
			}
		}
	}
}
