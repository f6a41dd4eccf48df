// Package pipeline orchestrates a run: per-task crawl streams merged by
// readiness, episodes translated as they arrive, finished books exported at
// the end. One task failing never aborts its siblings.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackzampolin/bookbaker/internal/book"
	"github.com/jackzampolin/bookbaker/internal/crawler"
	"github.com/jackzampolin/bookbaker/internal/export"
	"github.com/jackzampolin/bookbaker/internal/fanin"
	"github.com/jackzampolin/bookbaker/internal/store"
	"github.com/jackzampolin/bookbaker/internal/svcctx"
	"github.com/jackzampolin/bookbaker/internal/translate"
)

// Roles bundles the registries a run dispatches against.
type Roles struct {
	Crawlers    *crawler.Registry
	Translators *translate.Registry
	Exporters   *export.Registry
}

// workerQueueSize bounds how far a crawler may run ahead of its task's
// translation chain before backpressure kicks in.
const workerQueueSize = 256

// Run executes all tasks to completion. Each task gets a dedicated worker
// so a slow translation chain never stalls dispatch for sibling tasks,
// while episodes within one task stay in arrival order. Returns an error
// summarizing task failures; a partial run still exports what succeeded.
func Run(ctx context.Context, svc *svcctx.Services, roles *Roles, tasks []*book.Task) error {
	logger := svc.Log()

	var failed sync.Map // *book.Task -> error

	streams := make([]fanin.Stream, 0, len(tasks))
	for _, t := range tasks {
		c, err := roles.Crawlers.Resolve(t)
		if err != nil {
			streams = append(streams, fanin.Fail(t, err))
			continue
		}
		logger.Info("starting task", "task", taskName(t), "crawler", c.Name())
		streams = append(streams, c.Crawl(ctx, svc, t))
	}

	var wg sync.WaitGroup
	workers := make(map[*book.Task]chan fanin.Event, len(tasks))
	workerFor := func(t *book.Task) chan fanin.Event {
		if ch, ok := workers[t]; ok {
			return ch
		}
		ch := make(chan fanin.Event, workerQueueSize)
		workers[t] = ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range ch {
				translateEpisode(ctx, svc, roles, ev, &failed)
			}
		}()
		return ch
	}

	for ev := range fanin.Merge(ctx, streams...) {
		if ev.Err != nil {
			logger.Error("task source failed", "task", taskName(ev.Task), "error", ev.Err)
			failed.Store(ev.Task, ev.Err)
			continue
		}
		select {
		case workerFor(ev.Task) <- ev:
		case <-ctx.Done():
		}
	}
	for _, ch := range workers {
		close(ch)
	}
	wg.Wait()

	runExports(ctx, svc, roles, tasks, &failed)

	nfailed := 0
	failed.Range(func(_, _ any) bool {
		nfailed++
		return true
	})
	if nfailed > 0 {
		return fmt.Errorf("%d of %d tasks failed", nfailed, len(tasks))
	}
	return ctx.Err()
}

// translateEpisode runs the task's translator chain over one episode,
// holding the task lock for the whole chain so a concurrently crawling
// source never observes a half-translated tree.
func translateEpisode(ctx context.Context, svc *svcctx.Services, roles *Roles, ev fanin.Event, failed *sync.Map) {
	logger := svc.Log().With("task", taskName(ev.Task), "episode", ev.Episode.Title)

	chain := make([]translate.Translator, 0, len(ev.Task.Translators))
	for _, name := range ev.Task.Translators {
		tr, err := roles.Translators.Get(name)
		if err != nil {
			logger.Error("translator unavailable", "translator", name, "error", err)
			failed.Store(ev.Task, err)
			return
		}
		chain = append(chain, tr)
	}

	ev.Task.Lock()
	defer ev.Task.Unlock()

	for _, tr := range chain {
		if err := tr.Translate(ctx, svc, ev.Episode, ev.Task, ev.Chapter, ev.Book); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Debug("translation interrupted", "translator", tr.Name())
				return
			}
			logger.Error("translation failed", "translator", tr.Name(), "error", err)
			failed.Store(ev.Task, err)
			return
		}
	}
}

// runExports loads each successful task's final snapshot from the store
// and runs its exporter list. Failed tasks are skipped so half-translated
// books are never packaged.
func runExports(ctx context.Context, svc *svcctx.Services, roles *Roles, tasks []*book.Task, failed *sync.Map) {
	logger := svc.Log()

	for _, t := range tasks {
		if len(t.Exporters) == 0 {
			continue
		}
		if _, bad := failed.Load(t); bad {
			logger.Warn("skipping export for failed task", "task", taskName(t))
			continue
		}
		b, err := svc.Store.GetByURL(ctx, t.URL)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				logger.Warn("no book to export", "task", taskName(t))
			} else {
				logger.Error("failed to load book for export", "task", taskName(t), "error", err)
				failed.Store(t, err)
			}
			continue
		}
		for _, name := range t.Exporters {
			e, err := roles.Exporters.Get(name)
			if err != nil {
				logger.Error("exporter unavailable", "exporter", name, "error", err)
				failed.Store(t, err)
				continue
			}
			if err := e.Export(ctx, svc, b, t); err != nil {
				logger.Error("export failed", "exporter", name, "task", taskName(t), "error", err)
				failed.Store(t, err)
			}
		}
	}
}

func taskName(t *book.Task) string {
	if t.FriendlyName != "" {
		return t.FriendlyName
	}
	return t.URL
}
