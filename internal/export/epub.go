package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jackzampolin/bookbaker/internal/book"
	"github.com/jackzampolin/bookbaker/internal/svcctx"
)

const EpubName = "epub"

// Epub writes ePub 3.0 files, one per book, into OutputDir. Chapter and
// line content uses the translated text and falls back to the source text
// for metadata that was never translated.
type Epub struct {
	// OutputDir receives <title>.epub files; created on demand.
	OutputDir string

	name string
}

// NewEpub creates an ePub exporter registered under name, writing into
// outputDir. Both default when empty.
func NewEpub(name, outputDir string) *Epub {
	if name == "" {
		name = EpubName
	}
	if outputDir == "" {
		outputDir = "exports"
	}
	return &Epub{OutputDir: outputDir, name: name}
}

// Name implements Exporter.
func (e *Epub) Name() string { return e.name }

// Export implements Exporter.
func (e *Epub) Export(ctx context.Context, svc *svcctx.Services, b *book.Book, t *book.Task) error {
	logger := svc.Log().With("exporter", e.name, "book", b.Title)
	logger.Info("exporting book")

	bld := newBuilder(b, t.TargetLang)

	if b.Cover != nil {
		data, err := fetchContent(ctx, svc, b.Cover.URL, t.URL)
		if err != nil {
			// A missing cover never blocks the export.
			logger.Warn("failed to fetch cover image", "url", b.Cover.URL, "error", err)
		} else {
			bld.setCover(data, coverMediaType(b.Cover.URL))
		}
	}
	for i, ch := range b.Chapters {
		if ch.Cover == nil {
			continue
		}
		data, err := fetchContent(ctx, svc, ch.Cover.URL, t.URL)
		if err != nil {
			logger.Warn("failed to fetch chapter cover image", "chapter", ch.Title, "url", ch.Cover.URL, "error", err)
			continue
		}
		bld.setChapterCover(i, data, coverMediaType(ch.Cover.URL))
	}

	if err := os.MkdirAll(e.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(e.OutputDir, sanitizeFilename(b.Title)+".epub")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := bld.writeTo(f); err != nil {
		return fmt.Errorf("failed to write epub: %w", err)
	}
	logger.Info("wrote epub", "path", path)
	return nil
}

// coverMediaType guesses the image media type from the URL extension.
func coverMediaType(url string) string {
	switch strings.ToLower(filepath.Ext(strings.TrimSuffix(url, "/"))) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// sanitizeFilename strips path separators and other characters that break
// filesystems out of a book title.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_",
		"?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
	)
	out := strings.TrimSpace(replacer.Replace(name))
	if out == "" {
		out = "book-" + uuid.New().String()[:8]
	}
	return out
}
