package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/store"
)

// WatchEntry is one watched file or directory. A directory tracks each file
// beneath it separately in Stamps so one bad file never holds back the rest.
type WatchEntry struct {
	Name         string               `json:"name"`
	Path         string               `json:"path"`
	RegisteredAt time.Time            `json:"registered_at"` // zero until the first verified upload
	Stamps       map[string]time.Time `json:"stamps,omitempty"`
}

// registeredAt returns when file, covered by this entry, was last settled.
func (e WatchEntry) registeredAt(file string) time.Time {
	if file == e.Path {
		return e.RegisteredAt
	}
	return e.Stamps[file]
}

// FileStamp marks File, covered by the watch entry at Entry, as settled at At.
type FileStamp struct {
	Entry string
	File  string
	At    time.Time
}

// WatchDocument is the watch-list of one (collection, port) pair.
type WatchDocument struct {
	Collection    string       `json:"collection"`
	Port          int          `json:"port"`
	IP            string       `json:"ip"`
	LastCheckTime time.Time    `json:"last_check_time"`
	Files         []WatchEntry `json:"files"`
}

func (d *WatchDocument) indexOf(path string) int {
	for i, e := range d.Files {
		if e.Path == path {
			return i
		}
	}
	return -1
}

// WatchStore persists watch documents in SQLite.
type WatchStore struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenWatchStore opens or creates the watch database at path. An empty path
// keeps it in memory.
func OpenWatchStore(path string) (*WatchStore, error) {
	db, err := store.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS watch_documents (
			collection      TEXT NOT NULL,
			port            INTEGER NOT NULL,
			ip              TEXT NOT NULL DEFAULT '',
			last_check_time INTEGER NOT NULL DEFAULT 0,
			files           TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (collection, port)
		)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize watch schema: %w", err)
	}
	return &WatchStore{db: db}, nil
}

// Close closes the database.
func (s *WatchStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*WatchDocument, error) {
	var (
		doc       WatchDocument
		lastCheck int64
		files     string
	)
	if err := row.Scan(&doc.Collection, &doc.Port, &doc.IP, &lastCheck, &files); err != nil {
		return nil, err
	}
	if lastCheck > 0 {
		doc.LastCheckTime = time.Unix(0, lastCheck)
	}
	if err := json.Unmarshal([]byte(files), &doc.Files); err != nil {
		return nil, amerrors.CorruptState(
			fmt.Sprintf("watch list %s:%d is not valid JSON", doc.Collection, doc.Port), err)
	}
	return &doc, nil
}

// List returns all watch documents ordered by collection and port.
func (s *WatchStore) List(ctx context.Context) ([]WatchDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT collection, port, ip, last_check_time, files
		FROM watch_documents ORDER BY collection, port`)
	if err != nil {
		return nil, fmt.Errorf("failed to list watch documents: %w", err)
	}
	defer rows.Close()

	docs := []WatchDocument{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// Get returns the document for (collection, port), or nil when absent.
func (s *WatchStore) Get(ctx context.Context, collection string, port int) (*WatchDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(ctx, s.db, collection, port)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *WatchStore) get(ctx context.Context, q querier, collection string, port int) (*WatchDocument, error) {
	row := q.QueryRowContext(ctx, `
		SELECT collection, port, ip, last_check_time, files
		FROM watch_documents WHERE collection = ? AND port = ?`, collection, port)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return doc, err
}

func (s *WatchStore) put(ctx context.Context, tx *sql.Tx, doc *WatchDocument) error {
	files, err := json.Marshal(doc.Files)
	if err != nil {
		return err
	}
	var lastCheck int64
	if !doc.LastCheckTime.IsZero() {
		lastCheck = doc.LastCheckTime.UnixNano()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO watch_documents (collection, port, ip, last_check_time, files)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, port) DO UPDATE SET
			ip = excluded.ip,
			last_check_time = excluded.last_check_time,
			files = excluded.files`,
		doc.Collection, doc.Port, doc.IP, lastCheck, string(files))
	return err
}

// update applies fn to the document inside a transaction. When none exists,
// fn receives a new empty document if create is set and is skipped otherwise.
// Returning false skips the write.
func (s *WatchStore) update(ctx context.Context, collection string, port int, create bool, fn func(*WatchDocument) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	doc, err := s.get(ctx, tx, collection, port)
	if err != nil {
		return err
	}
	if doc == nil {
		if !create {
			return nil
		}
		doc = &WatchDocument{Collection: collection, Port: port, Files: []WatchEntry{}}
	}
	if !fn(doc) {
		return nil
	}
	if err := s.put(ctx, tx, doc); err != nil {
		return fmt.Errorf("failed to save watch list %s:%d: %w", collection, port, err)
	}
	return tx.Commit()
}

// AddWatch registers path in the (collection, port) watch-list. Paths are
// made absolute and are unique per list; re-adding a path renames it.
func (s *WatchStore) AddWatch(ctx context.Context, collection string, port int, ip, name, path string) (*WatchEntry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidPath, "invalid path "+path, err)
	}
	if name == "" {
		name = filepath.Base(abs)
	}

	var entry WatchEntry
	err = s.update(ctx, collection, port, true, func(doc *WatchDocument) bool {
		if ip != "" {
			doc.IP = ip
		}
		if i := doc.indexOf(abs); i >= 0 {
			doc.Files[i].Name = name
			entry = doc.Files[i]
			return true
		}
		entry = WatchEntry{Name: name, Path: abs}
		doc.Files = append(doc.Files, entry)
		return true
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// RemoveWatch removes path from the watch-list and reports whether it was there.
func (s *WatchStore) RemoveWatch(ctx context.Context, collection string, port int, path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, amerrors.New(amerrors.ErrCodeInvalidPath, "invalid path "+path, err)
	}

	removed := false
	err = s.update(ctx, collection, port, false, func(doc *WatchDocument) bool {
		i := doc.indexOf(abs)
		if i < 0 {
			return false
		}
		doc.Files = append(doc.Files[:i], doc.Files[i+1:]...)
		removed = true
		return true
	})
	return removed, err
}

// ClearWatch deletes the whole (collection, port) watch-list.
func (s *WatchStore) ClearWatch(ctx context.Context, collection string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM watch_documents WHERE collection = ? AND port = ?", collection, port)
	if err != nil {
		return fmt.Errorf("failed to clear watch list %s:%d: %w", collection, port, err)
	}
	return nil
}

// Stamp records settled files and the check time. A stamp on a file entry
// sets its RegisteredAt; a stamp under a directory goes into that entry's
// Stamps and advances its RegisteredAt. When live is non-nil, directory stamps
// for files outside it are dropped. Entries removed since the tick started are
// ignored.
func (s *WatchStore) Stamp(ctx context.Context, collection string, port int, stamps []FileStamp, live map[string]struct{}, checked time.Time) error {
	return s.update(ctx, collection, port, false, func(doc *WatchDocument) bool {
		for _, st := range stamps {
			i := doc.indexOf(st.Entry)
			if i < 0 {
				continue
			}
			e := &doc.Files[i]
			if st.File != e.Path {
				if e.Stamps == nil {
					e.Stamps = make(map[string]time.Time)
				}
				e.Stamps[st.File] = st.At
				if !st.At.After(e.RegisteredAt) {
					continue
				}
			}
			e.RegisteredAt = st.At
		}
		if live != nil {
			for i := range doc.Files {
				for f := range doc.Files[i].Stamps {
					if _, ok := live[f]; !ok {
						delete(doc.Files[i].Stamps, f)
					}
				}
			}
		}
		doc.LastCheckTime = checked
		return true
	})
}
