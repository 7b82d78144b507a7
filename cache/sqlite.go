package cache

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

type SQLiteBackend struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteBackend creates a new backend with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteBackend(filename string) (*SQLiteBackend, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", filename, err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		prefix TEXT NOT NULL,
		key TEXT NOT NULL,
		bytes BLOB,
		PRIMARY KEY (prefix, key)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache table: %w", err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	return &SQLiteBackend{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s *SQLiteBackend) Variants(ctx context.Context, prefix string) ([]Entry, error) {
	entries := make([]Entry, 0)
	rows, err := s.db.QueryContext(ctx, "SELECT key, bytes FROM cache WHERE prefix = ?", prefix)
	if err != nil {
		return entries, fmt.Errorf("sqlite select: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.Key, &entry.Bytes); err != nil {
			return entries, fmt.Errorf("sqlite scan: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return entries, fmt.Errorf("sqlite rows: %w", err)
	}
	return entries, nil
}

func (s *SQLiteBackend) Put(ctx context.Context, prefix, key string, bytes []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO cache (prefix, key, bytes) VALUES (?, ?, ?)", prefix, key, bytes)
	if err != nil {
		return fmt.Errorf("sqlite insert: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, prefix, key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM cache WHERE prefix = ? AND key = ?", prefix, key)
	if err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
