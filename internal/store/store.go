// Package store handles SQLite persistence of the request journal.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/trainviz/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps SQLite access for journaled requests.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Handlers journal concurrently and SQLite allows one writer.
	db.SetMaxOpenConns(1)
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS requests (
			id INTEGER PRIMARY KEY,
			request_id TEXT NOT NULL,
			received_at TEXT NOT NULL,
			epochs INTEGER NOT NULL,
			learning_rate REAL NOT NULL,
			batch_size INTEGER NOT NULL,
			status INTEGER NOT NULL,
			error TEXT NOT NULL,
			duration_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_requests_received_at ON requests(received_at);`,
		`CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordRequest stores one journal entry.
func (s *Store) RecordRequest(ctx context.Context, entry model.RequestEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests (request_id, received_at, epochs, learning_rate, batch_size, status, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID,
		entry.ReceivedAt.UTC().Format(timeLayout),
		entry.Epochs,
		entry.LearningRate,
		entry.BatchSize,
		entry.Status,
		entry.Error,
		entry.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// ListRequests returns journal entries oldest first. Last keeps only the
// most recent N matches.
func (s *Store) ListRequests(ctx context.Context, filter model.RequestFilter) ([]model.RequestEntry, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.Since != nil {
		clauses = append(clauses, "received_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}
	if filter.Status != 0 {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	limit := -1
	if filter.Last > 0 {
		limit = filter.Last
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT request_id, received_at, epochs, learning_rate, batch_size, status, error, duration_ms
		FROM (
			SELECT * FROM requests
			WHERE %s
			ORDER BY received_at DESC, id DESC
			LIMIT ?
		)
		ORDER BY received_at ASC, id ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var entries []model.RequestEntry
	for rows.Next() {
		var entry model.RequestEntry
		var receivedAt string
		if err := rows.Scan(&entry.RequestID, &receivedAt, &entry.Epochs, &entry.LearningRate, &entry.BatchSize, &entry.Status, &entry.Error, &entry.DurationMs); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(timeLayout, receivedAt)
		if err != nil {
			return nil, err
		}
		entry.ReceivedAt = parsed
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// CountByStatus returns the number of journaled requests per HTTP status.
func (s *Store) CountByStatus(ctx context.Context) (map[int]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM requests GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	counts := map[int]int{}
	for rows.Next() {
		var status, count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}
