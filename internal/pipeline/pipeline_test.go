package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/bookbaker/internal/book"
	"github.com/jackzampolin/bookbaker/internal/crawler"
	"github.com/jackzampolin/bookbaker/internal/export"
	"github.com/jackzampolin/bookbaker/internal/store"
	"github.com/jackzampolin/bookbaker/internal/svcctx"
	"github.com/jackzampolin/bookbaker/internal/translate"
)

func testServices(t *testing.T) *svcctx.Services {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "books.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return &svcctx.Services{
		Store:  st,
		Logger: slog.New(slog.DiscardHandler),
	}
}

// memoExporter records which books it was asked to export.
type memoExporter struct {
	mu    sync.Mutex
	books []*book.Book
}

func (m *memoExporter) Name() string { return "memo" }

func (m *memoExporter) Export(ctx context.Context, svc *svcctx.Services, b *book.Book, t *book.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books = append(m.books, b)
	return nil
}

func (m *memoExporter) exported() []*book.Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*book.Book(nil), m.books...)
}

func testRoles(t *testing.T, crawlers ...crawler.Crawler) (*Roles, *memoExporter) {
	t.Helper()
	discard := slog.New(slog.DiscardHandler)

	cr := crawler.NewRegistry()
	cr.SetLogger(discard)
	for _, c := range crawlers {
		cr.Register(c)
	}

	tr := translate.NewRegistry()
	tr.SetLogger(discard)
	tr.Register(&translate.MockTranslator{})

	er := export.NewRegistry()
	er.SetLogger(discard)
	memo := &memoExporter{}
	er.Register(memo)

	return &Roles{Crawlers: cr, Translators: tr, Exporters: er}, memo
}

func scriptedTask(url, name string) *book.Task {
	return &book.Task{
		URL:          url,
		FriendlyName: name,
		Crawler:      "scripted",
		SauceLang:    "JA",
		TargetLang:   "ZH",
		Translators:  []string{"mock"},
		Exporters:    []string{"memo"},
	}
}

func episodes(titles ...string) []book.Episode {
	eps := make([]book.Episode, len(titles))
	for i, title := range titles {
		eps[i] = book.Episode{
			Title: title,
			Lines: []book.Line{{Content: "line one of " + title}, {Content: "line two of " + title}},
		}
	}
	return eps
}

func TestRunEndToEnd(t *testing.T) {
	svc := testServices(t)
	src := &crawler.Scripted{
		CrawlerName: "scripted",
		Book:        book.Book{Title: "本", Author: "author"},
		Episodes:    episodes("第一話", "第二話"),
	}
	roles, memo := testRoles(t, src)
	task := scriptedTask("https://example.com/b1", "b1")

	if err := Run(context.Background(), svc, roles, []*book.Task{task}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	saved, err := svc.Store.Get(context.Background(), "本", "author")
	if err != nil {
		t.Fatalf("Store.Get() error = %v", err)
	}
	if !saved.FullyTranslated() {
		t.Error("persisted book not fully translated")
	}

	got := memo.exported()
	if len(got) != 1 {
		t.Fatalf("exported %d books, want 1", len(got))
	}
	if !got[0].FullyTranslated() {
		t.Error("exported book not fully translated")
	}
}

func TestRunSourceFailureDoesNotAbortSiblings(t *testing.T) {
	svc := testServices(t)
	good := &crawler.Scripted{
		CrawlerName: "scripted",
		Book:        book.Book{Title: "good", Author: "a"},
		Episodes:    episodes("ep1"),
	}
	roles, memo := testRoles(t, good)

	goodTask := scriptedTask("https://example.com/good", "good")
	badTask := &book.Task{
		URL:          "https://example.com/bad",
		FriendlyName: "bad",
		Crawler:      "missing-crawler",
		Translators:  []string{"mock"},
		Exporters:    []string{"memo"},
	}

	err := Run(context.Background(), svc, roles, []*book.Task{goodTask, badTask})
	if err == nil {
		t.Fatal("expected error for failed task")
	}

	got := memo.exported()
	if len(got) != 1 || got[0].Title != "good" {
		t.Errorf("exported = %v, want only the good book", got)
	}
}

func TestRunMidStreamFailureSkipsExport(t *testing.T) {
	svc := testServices(t)
	src := &crawler.Scripted{
		CrawlerName: "scripted",
		Book:        book.Book{Title: "broken", Author: "a"},
		Episodes:    episodes("ep1"),
		Err:         errors.New("fetch blew up"),
	}
	roles, memo := testRoles(t, src)
	task := scriptedTask("https://example.com/broken", "broken")

	if err := Run(context.Background(), svc, roles, []*book.Task{task}); err == nil {
		t.Fatal("expected error")
	}
	if len(memo.exported()) != 0 {
		t.Error("half-acquired book was exported")
	}
}

func TestRunUnknownTranslatorFailsTask(t *testing.T) {
	svc := testServices(t)
	src := &crawler.Scripted{
		CrawlerName: "scripted",
		Book:        book.Book{Title: "本", Author: "a"},
		Episodes:    episodes("ep1"),
	}
	roles, memo := testRoles(t, src)

	task := scriptedTask("https://example.com/b", "b")
	task.Translators = []string{"ghost"}

	if err := Run(context.Background(), svc, roles, []*book.Task{task}); err == nil {
		t.Fatal("expected error for unknown translator")
	}
	if len(memo.exported()) != 0 {
		t.Error("task with missing translator was exported")
	}
}

func TestRunSlowTranslatorDoesNotStallSiblings(t *testing.T) {
	svc := testServices(t)
	slowSrc := &crawler.Scripted{
		CrawlerName: "slow-src",
		Book:        book.Book{Title: "slow", Author: "a"},
		Episodes:    episodes("ep1", "ep2", "ep3"),
	}
	fastSrc := &crawler.Scripted{
		CrawlerName: "fast-src",
		Book:        book.Book{Title: "fast", Author: "a"},
		Episodes:    episodes("ep1"),
	}
	roles, memo := testRoles(t, slowSrc, fastSrc)
	roles.Translators.Register(&translate.MockTranslator{
		TranslatorName: "slowpoke",
		Delay:          20 * time.Millisecond,
	})

	fastTask := scriptedTask("https://example.com/fast", "fast")
	fastTask.Crawler = "fast-src"
	slowTask := scriptedTask("https://example.com/slow", "slow")
	slowTask.Crawler = "slow-src"
	slowTask.Translators = []string{"slowpoke"}

	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), svc, roles, []*book.Task{slowTask, fastTask})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not finish")
	}
	if len(memo.exported()) != 2 {
		t.Errorf("exported %d books, want 2", len(memo.exported()))
	}
}

func TestRunDelayedTranslatorKeepsTreeIntact(t *testing.T) {
	// The crawler runs far ahead of a delayed translator, so most events
	// wait in the worker queue while the chapter keeps growing. Episode
	// writes made after the queue drains must still land in the stored
	// tree: every episode exactly once, every title translated.
	svc := testServices(t)
	titles := []string{"e1", "e2", "e3", "e4", "e5"}
	src := &crawler.Scripted{
		CrawlerName: "scripted",
		Book:        book.Book{Title: "本", Author: "a"},
		Episodes:    episodes(titles...),
	}
	roles, memo := testRoles(t, src)
	roles.Translators.Register(&translate.MockTranslator{
		TranslatorName: "laggard",
		Delay:          10 * time.Millisecond,
	})

	task := scriptedTask("https://example.com/b", "b")
	task.Translators = []string{"laggard"}

	if err := Run(context.Background(), svc, roles, []*book.Task{task}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	saved, err := svc.Store.Get(context.Background(), "本", "a")
	if err != nil {
		t.Fatalf("Store.Get() error = %v", err)
	}
	if len(saved.Chapters) != 1 {
		t.Fatalf("stored book has %d chapters, want 1", len(saved.Chapters))
	}
	ch := saved.Chapters[0]
	if len(ch.Episodes) != len(titles) {
		t.Fatalf("stored chapter has %d episodes, want %d", len(ch.Episodes), len(titles))
	}
	seen := make(map[string]bool, len(titles))
	for _, ep := range ch.Episodes {
		if seen[ep.Title] {
			t.Errorf("episode %q stored twice", ep.Title)
		}
		seen[ep.Title] = true
		if ep.TitleTranslated == nil {
			t.Errorf("stored episode %q lost its translated title", ep.Title)
		}
		if !ep.FullyTranslated() {
			t.Errorf("stored episode %q has untranslated lines", ep.Title)
		}
	}
	if len(memo.exported()) != 1 {
		t.Errorf("exported %d books, want 1", len(memo.exported()))
	}
}

func TestRunCancelledContext(t *testing.T) {
	svc := testServices(t)
	src := &crawler.Scripted{
		CrawlerName: "scripted",
		Book:        book.Book{Title: "本", Author: "a"},
		Episodes:    episodes("ep1", "ep2"),
		Delay:       50 * time.Millisecond,
	}
	roles, _ := testRoles(t, src)
	task := scriptedTask("https://example.com/b", "b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		Run(ctx, svc, roles, []*book.Task{task})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}
