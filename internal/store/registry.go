package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// IndexedFileRecord describes one currently indexed path.
type IndexedFileRecord struct {
	FilePath    string `json:"file_path"`
	FileName    string `json:"file_name"`
	FileType    string `json:"file_type"`
	LastUpdated int64  `json:"last_updated"` // epoch seconds
	ChunkCount  int    `json:"chunk_count"`
}

// Registry persists IndexedFileRecords in SQLite, one row per path.
type Registry struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

// OpenRegistry opens or creates the registry database at path.
// An empty path keeps the registry in memory.
func OpenRegistry(path string) (*Registry, error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}

	r := &Registry{db: db, path: path}
	if err := r.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize registry schema: %w", err)
	}
	return r, nil
}

func (r *Registry) initSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS indexed_files (
			file_path    TEXT PRIMARY KEY,
			file_name    TEXT NOT NULL,
			file_type    TEXT NOT NULL,
			last_updated INTEGER NOT NULL,
			chunk_count  INTEGER NOT NULL
		)`)
	return err
}

// Upsert inserts rec or overwrites the record with the same FilePath.
func (r *Registry) Upsert(ctx context.Context, rec IndexedFileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("registry is closed")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO indexed_files (file_path, file_name, file_type, last_updated, chunk_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			file_name    = excluded.file_name,
			file_type    = excluded.file_type,
			last_updated = excluded.last_updated,
			chunk_count  = excluded.chunk_count`,
		rec.FilePath, rec.FileName, rec.FileType, rec.LastUpdated, rec.ChunkCount)
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", rec.FilePath, err)
	}
	return nil
}

// Get returns the record for path, or nil when none exists.
func (r *Registry) Get(ctx context.Context, path string) (*IndexedFileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("registry is closed")
	}

	var rec IndexedFileRecord
	err := r.db.QueryRowContext(ctx, `
		SELECT file_path, file_name, file_type, last_updated, chunk_count
		FROM indexed_files WHERE file_path = ?`, path).
		Scan(&rec.FilePath, &rec.FileName, &rec.FileType, &rec.LastUpdated, &rec.ChunkCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", path, err)
	}
	return &rec, nil
}

// List returns all records ordered by path.
func (r *Registry) List(ctx context.Context) ([]IndexedFileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("registry is closed")
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT file_path, file_name, file_type, last_updated, chunk_count
		FROM indexed_files ORDER BY file_path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := []IndexedFileRecord{}
	for rows.Next() {
		var rec IndexedFileRecord
		if err := rows.Scan(&rec.FilePath, &rec.FileName, &rec.FileType, &rec.LastUpdated, &rec.ChunkCount); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Delete removes the records for paths and returns how many existed.
func (r *Registry) Delete(ctx context.Context, paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, fmt.Errorf("registry is closed")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(paths)), ",")
	args := make([]any, len(paths))
	for i, p := range paths {
		args[i] = p
	}

	res, err := r.db.ExecContext(ctx,
		"DELETE FROM indexed_files WHERE file_path IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// DeleteAll removes every record.
func (r *Registry) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("registry is closed")
	}

	if _, err := r.db.ExecContext(ctx, "DELETE FROM indexed_files"); err != nil {
		return fmt.Errorf("failed to clear registry: %w", err)
	}
	return nil
}

// Count returns the number of records.
func (r *Registry) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, fmt.Errorf("registry is closed")
	}

	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM indexed_files").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// Close closes the database. It is safe to call more than once.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.db.Close()
}
