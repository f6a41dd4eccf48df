package crawler

import (
	"context"
	"time"

	"github.com/jackzampolin/bookbaker/internal/book"
	"github.com/jackzampolin/bookbaker/internal/fanin"
	"github.com/jackzampolin/bookbaker/internal/svcctx"
)

// Scripted is an in-memory crawler that replays a fixed set of episodes.
// It follows the full source contract (store lookup, staleness check,
// lock-around-mutation, upsert-then-yield) so tests exercise the same
// protocol a site crawler does.
type Scripted struct {
	CrawlerName string
	Book        book.Book      // template: title, author, metadata
	Episodes    []book.Episode // emitted in order into a single chapter
	Chapter     string         // chapter title, may be empty for the default
	Delay       time.Duration  // optional pause before each episode
	Err         error          // when set, fail after emitting all episodes
}

// Name implements Crawler.
func (s *Scripted) Name() string {
	if s.CrawlerName == "" {
		return "scripted"
	}
	return s.CrawlerName
}

// Crawl implements Crawler.
func (s *Scripted) Crawl(ctx context.Context, svc *svcctx.Services, t *book.Task) fanin.Stream {
	out := make(chan Event)
	go s.run(ctx, svc, t, out)
	return out
}

type Event = fanin.Event

func (s *Scripted) run(ctx context.Context, svc *svcctx.Services, t *book.Task, out chan<- Event) {
	defer close(out)
	logger := svc.Log()

	t.Lock()
	b, err := svc.Store.Get(ctx, s.Book.Title, s.Book.Author)
	if err != nil {
		b = &book.Book{}
		*b = s.Book
		b.TimeMeta = book.NewTimeMeta()
	}
	b.URL = t.URL

	ch := b.Chapter(s.Chapter)
	if ch == nil {
		ch = &book.Chapter{Title: s.Chapter, TimeMeta: book.NewTimeMeta()}
		b.Chapters = append(b.Chapters, ch)
	}
	t.Unlock()

	for i := range s.Episodes {
		if s.Delay > 0 {
			select {
			case <-time.After(s.Delay):
			case <-ctx.Done():
				return
			}
		}

		t.Lock()
		incoming := s.Episodes[i]
		ep := ch.Episode(incoming.Title)
		if ep == nil {
			incoming.TimeMeta = book.NewTimeMeta()
			ep = &incoming
			ch.Episodes = append(ch.Episodes, ep)
		} else if incoming.TimeMeta.UpdatedAt != nil && ep.TimeMeta.Stale(*incoming.TimeMeta.UpdatedAt) {
			incoming.TimeMeta.SavedAt = book.NewTimeMeta().SavedAt
			*ep = incoming
		}
		if err := svc.Store.Upsert(ctx, b); err != nil {
			logger.Warn("scripted crawler upsert failed", "book", b.Title, "error", err)
		}
		t.Unlock()

		select {
		case out <- Event{Task: t, Book: b, Chapter: ch, Episode: ep}:
		case <-ctx.Done():
			return
		}
	}

	if s.Err != nil {
		select {
		case out <- Event{Task: t, Err: s.Err}:
		case <-ctx.Done():
		}
		return
	}

	t.Lock()
	if err := svc.Store.Upsert(ctx, b); err != nil {
		logger.Warn("scripted crawler final upsert failed", "book", b.Title, "error", err)
	}
	t.Unlock()
}
