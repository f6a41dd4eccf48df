// Package fanin merges independent per-task acquisition streams into one
// consumer-facing sequence ordered by readiness, the Go re-expression of a
// select-style multiplexer over async generators.
package fanin

import (
	"context"
	"sync"

	"github.com/jackzampolin/bookbaker/internal/book"
)

// Event is one acquisition result: the full in-progress book tree plus the
// specific episode just updated, tagged with the task that produced it. A
// source that fails mid-stream delivers exactly one Event with Err set and
// then ends; sibling sources are unaffected.
type Event struct {
	Task    *book.Task
	Book    *book.Book
	Chapter *book.Chapter
	Episode *book.Episode
	Err     error
}

// Stream is a lazy, finite sequence of acquisition events for one task.
// Producers close the channel when the sequence is exhausted.
type Stream <-chan Event

// Merge multiplexes any number of streams into a single channel delivering
// events in the order they become ready. The merged channel closes once
// every source is exhausted or the context is cancelled; a slow or hung
// source never blocks delivery from the others.
func Merge(ctx context.Context, streams ...Stream) <-chan Event {
	out := make(chan Event)
	var wg sync.WaitGroup
	for _, s := range streams {
		wg.Add(1)
		go func(s Stream) {
			defer wg.Done()
			for {
				select {
				case ev, ok := <-s:
					if !ok {
						return
					}
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(s)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Fail returns a single-event stream carrying a source failure. Used when a
// task's source cannot even start, so the failure still surfaces through the
// merged sequence instead of aborting its siblings.
func Fail(t *book.Task, err error) Stream {
	ch := make(chan Event, 1)
	ch <- Event{Task: t, Err: err}
	close(ch)
	return ch
}
