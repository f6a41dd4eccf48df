package fanin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackzampolin/bookbaker/internal/book"
)

// timedSource yields one event per delay entry, then closes.
func timedSource(t *book.Task, delays ...time.Duration) Stream {
	ch := make(chan Event)
	go func() {
		defer close(ch)
		for _, d := range delays {
			time.Sleep(d)
			ch <- Event{Task: t, Episode: &book.Episode{Title: t.FriendlyName}}
		}
	}()
	return ch
}

func TestMergeOrdersByReadiness(t *testing.T) {
	taskA := &book.Task{FriendlyName: "A"}
	taskB := &book.Task{FriendlyName: "B"}

	// A yields at ~100ms; B yields at ~50ms and ~200ms.
	merged := Merge(context.Background(),
		timedSource(taskA, 100*time.Millisecond),
		timedSource(taskB, 50*time.Millisecond, 150*time.Millisecond),
	)

	var order []string
	for ev := range merged {
		order = append(order, ev.Task.FriendlyName)
	}
	if len(order) != 3 {
		t.Fatalf("got %d events, want 3", len(order))
	}
	if order[0] != "B" || order[1] != "A" {
		t.Errorf("order = %v, want B first then A", order)
	}
}

func TestMergeSurvivesHungSource(t *testing.T) {
	taskA := &book.Task{FriendlyName: "A"}
	taskB := &book.Task{FriendlyName: "B"}
	taskC := &book.Task{FriendlyName: "C"}

	hung := make(chan Event) // C never yields and never closes

	ctx, cancel := context.WithCancel(context.Background())
	merged := Merge(ctx,
		timedSource(taskA, 10*time.Millisecond),
		timedSource(taskB, 5*time.Millisecond, 20*time.Millisecond),
		Stream(hung),
	)

	seen := 0
	for seen < 3 {
		select {
		case ev := <-merged:
			if ev.Task == taskC {
				t.Fatal("hung source produced an event")
			}
			seen++
		case <-time.After(time.Second):
			t.Fatal("merge blocked on hung source")
		}
	}

	// Cancelling releases the hung source's forwarder and closes the merge.
	cancel()
	select {
	case _, ok := <-merged:
		if ok {
			t.Error("expected merged channel to close after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("merged channel did not close after cancel")
	}
}

func TestMergePropagatesSourceFailure(t *testing.T) {
	taskA := &book.Task{FriendlyName: "A"}
	taskB := &book.Task{FriendlyName: "B"}
	boom := errors.New("fetch failed")

	merged := Merge(context.Background(),
		Fail(taskA, boom),
		timedSource(taskB, time.Millisecond),
	)

	var failed, succeeded int
	for ev := range merged {
		if ev.Err != nil {
			failed++
			if ev.Task != taskA {
				t.Error("failure attributed to wrong task")
			}
			if !errors.Is(ev.Err, boom) {
				t.Errorf("err = %v, want %v", ev.Err, boom)
			}
		} else {
			succeeded++
		}
	}
	if failed != 1 || succeeded != 1 {
		t.Errorf("failed=%d succeeded=%d, want one of each", failed, succeeded)
	}
}

func TestMergeNoSources(t *testing.T) {
	merged := Merge(context.Background())
	select {
	case _, ok := <-merged:
		if ok {
			t.Error("expected immediate close with no sources")
		}
	case <-time.After(time.Second):
		t.Fatal("merged channel did not close")
	}
}
