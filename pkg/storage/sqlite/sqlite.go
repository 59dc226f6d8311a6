// Package sqlite provides a SQLite-backed implementation of the document store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goclaw/dayloop/pkg/storage"
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements storage.DocumentStore with one row per document.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a database at path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStorage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS documents (
		actor      TEXT NOT NULL,
		kind       TEXT NOT NULL,
		name       TEXT NOT NULL,
		data       BLOB NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (actor, kind, name)
	);`)
	return err
}

// Get retrieves a document.
func (s *SQLiteStorage) Get(ctx context.Context, key storage.Key) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE actor = ? AND kind = ? AND name = ?`,
		key.Actor, string(key.Kind), key.Name,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.NewNotFound(key)
		}
		return nil, &storage.StorageUnavailableError{Cause: err}
	}
	return data, nil
}

// Put upserts a document.
func (s *SQLiteStorage) Put(ctx context.Context, key storage.Key, data []byte) error {
	if err := key.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (actor, kind, name, data, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (actor, kind, name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key.Actor, string(key.Kind), key.Name, data, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return nil
}

// Delete removes a document.
func (s *SQLiteStorage) Delete(ctx context.Context, key storage.Key) error {
	if err := key.Validate(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE actor = ? AND kind = ? AND name = ?`,
		key.Actor, string(key.Kind), key.Name,
	)
	if err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.NewNotFound(key)
	}
	return nil
}

// List returns document names for one actor and kind.
func (s *SQLiteStorage) List(ctx context.Context, actor string, kind storage.Kind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM documents WHERE actor = ? AND kind = ? ORDER BY name`,
		actor, string(kind),
	)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
