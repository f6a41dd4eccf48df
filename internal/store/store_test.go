package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jackzampolin/bookbaker/internal/book"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "books.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	b := &book.Book{
		Title:  "テスト小説",
		Author: "作者",
		URL:    "https://example.com/novel/1",
		Chapters: []*book.Chapter{{
			Title: "第一章",
			Episodes: []*book.Episode{{
				Title: "第1話",
				Lines: []book.Line{{Content: "こんにちは"}},
			}},
		}},
	}

	if err := s.Upsert(ctx, b); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if b.TimeMeta.SavedAt.IsZero() {
		t.Error("Upsert should stamp SavedAt")
	}

	got, err := s.Get(ctx, "テスト小説", "作者")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Chapters[0].Episodes[0].Lines[0].Content != "こんにちは" {
		t.Error("stored tree does not round-trip")
	}
}

func TestUpsertReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	b := &book.Book{Title: "t", Author: "a", URL: "u"}
	if err := s.Upsert(ctx, b); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	trans := "translated"
	b.TitleTranslated = &trans
	if err := s.Upsert(ctx, b); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	got, err := s.Get(ctx, "t", "a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.TitleTranslated == nil || *got.TitleTranslated != "translated" {
		t.Error("upsert did not replace record in place")
	}
}

func TestGetByURL(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, &book.Book{Title: "t", Author: "a", URL: "https://example.com/n/1"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if _, err := s.GetByURL(ctx, "https://example.com/n/1"); err != nil {
		t.Errorf("GetByURL() error = %v", err)
	}
	if _, err := s.GetByURL(ctx, "https://example.com/other"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByURL(missing) error = %v, want ErrNotFound", err)
	}
}

func TestGetNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(context.Background(), "no", "body"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}
