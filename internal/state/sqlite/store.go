// Package sqlite implements the durable StateStore on an embedded
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sayouzone/edgar-harvester/internal/edgar"
)

const driverName = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS processed_filings (
	cik          INTEGER NOT NULL,
	accession    TEXT    NOT NULL,
	processed_at TEXT    NOT NULL,
	PRIMARY KEY (cik, accession)
);
CREATE TABLE IF NOT EXISTS failed_filings (
	run_id    TEXT    NOT NULL,
	cik       INTEGER NOT NULL,
	accession TEXT    NOT NULL,
	stage     TEXT    NOT NULL,
	attempts  INTEGER NOT NULL,
	reason    TEXT    NOT NULL,
	failed_at TEXT    NOT NULL
);
`

// Store is a StateStore backed by a single SQLite file. The processed
// set is mirrored in memory so membership checks stay O(1); all writes
// are serialized through one mutex and a single connection.
type Store struct {
	db *sql.DB

	mu        sync.RWMutex
	processed map[edgar.FilingKey]struct{}
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL keeps readers unblocked; a single connection keeps writes
	// linearizable.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{
		db:        db,
		processed: make(map[edgar.FilingKey]struct{}),
	}, nil
}

// Load reads the processed set into memory.
func (s *Store) Load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT cik, accession FROM processed_filings`)
	if err != nil {
		return &edgar.StateError{Op: "load", Err: err}
	}
	defer func() { _ = rows.Close() }()

	loaded := make(map[edgar.FilingKey]struct{})
	for rows.Next() {
		var key edgar.FilingKey
		if err := rows.Scan(&key.CIK, &key.Accession); err != nil {
			return &edgar.StateError{Op: "load", Err: err}
		}
		loaded[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return &edgar.StateError{Op: "load", Err: err}
	}

	s.mu.Lock()
	s.processed = loaded
	s.mu.Unlock()
	return nil
}

// Contains reports whether the key was already fully processed.
func (s *Store) Contains(_ context.Context, key edgar.FilingKey) (bool, error) {
	s.mu.RLock()
	_, ok := s.processed[key]
	s.mu.RUnlock()
	return ok, nil
}

// MarkProcessed durably records the key. Marking an already-processed
// key is a no-op.
func (s *Store) MarkProcessed(ctx context.Context, key edgar.FilingKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[key]; ok {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_filings (cik, accession, processed_at) VALUES (?, ?, ?)`,
		key.CIK, key.Accession, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return &edgar.StateError{Op: "mark", Err: err}
	}
	s.processed[key] = struct{}{}
	return nil
}

// RecordFailure appends one row to the failure ledger.
func (s *Store) RecordFailure(ctx context.Context, rec edgar.FailureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO failed_filings (run_id, cik, accession, stage, attempts, reason, failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Key.CIK, rec.Key.Accession, rec.Stage, rec.Attempts, rec.Reason,
		rec.FailedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return &edgar.StateError{Op: "record failure", Err: err}
	}
	return nil
}

// Flush checkpoints the WAL so a Load in a new process observes every
// key marked before the flush.
func (s *Store) Flush(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return &edgar.StateError{Op: "flush", Err: err}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
