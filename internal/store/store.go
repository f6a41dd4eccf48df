// Package store persists Book snapshots in SQLite, one record per book
// addressed by the (title, author) pair. Upserts are how translation
// progress survives interruption; the record holds the full serialized
// book tree.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jackzampolin/bookbaker/internal/book"
)

// ErrNotFound is returned when no record exists for the requested key.
var ErrNotFound = errors.New("book not found")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS books (
	title    TEXT NOT NULL,
	author   TEXT NOT NULL,
	url      TEXT NOT NULL DEFAULT '',
	data     TEXT NOT NULL,
	saved_at TEXT NOT NULL,
	PRIMARY KEY (title, author)
);
CREATE INDEX IF NOT EXISTS idx_books_url ON books(url);
`

// Store is a key-addressed persistent store of book snapshots. It is safe
// for concurrent use across tasks.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the store at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply store schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the filesystem path of the backing database.
func (s *Store) Path() string { return s.path }

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Upsert writes the book snapshot under its (title, author) key, stamping
// the book's SavedAt with the snapshot instant.
func (s *Store) Upsert(ctx context.Context, b *book.Book) error {
	b.TimeMeta.SavedAt = time.Now().UTC()
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to serialize book %q: %w", b.Title, err)
	}
	const q = `
INSERT INTO books (title, author, url, data, saved_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(title, author) DO UPDATE SET url=excluded.url, data=excluded.data, saved_at=excluded.saved_at`
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, q,
			b.Title, b.Author, b.URL, string(data), b.TimeMeta.SavedAt.Format(time.RFC3339Nano))
		return err
	})
}

// Get returns the book stored under (title, author), or ErrNotFound.
func (s *Store) Get(ctx context.Context, title, author string) (*book.Book, error) {
	return s.getWhere(ctx, "title = ? AND author = ?", title, author)
}

// GetByURL returns the most recently saved book whose source URL matches.
// The export stage uses this to look a finished book up by its task URL.
func (s *Store) GetByURL(ctx context.Context, url string) (*book.Book, error) {
	return s.getWhere(ctx, "url = ? ORDER BY saved_at DESC", url)
}

func (s *Store) getWhere(ctx context.Context, where string, args ...any) (*book.Book, error) {
	var data string
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			"SELECT data FROM books WHERE "+where+" LIMIT 1", args...).Scan(&data)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query book: %w", err)
	}
	var b book.Book
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, fmt.Errorf("failed to deserialize book: %w", err)
	}
	return &b, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
