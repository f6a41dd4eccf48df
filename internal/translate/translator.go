// Package translate drives pluggable translation backends through a
// batching, validating, retrying protocol. Backends register by name; tasks
// reference them singly or as an ordered chain.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jackzampolin/bookbaker/internal/book"
	"github.com/jackzampolin/bookbaker/internal/svcctx"
)

// Translator is the one operation every backend exposes. The episode is
// mutated in place: after a successful call every non-blank line either
// keeps its prior translation or carries a fresh one recorded both as the
// canonical value and under the translator's name in candidates.
//
// Callers must hold the task lock for the duration of the call.
type Translator interface {
	// Name returns the translator's registry name, unique within a run.
	Name() string

	// Translate fills in translations for the episode, using chapter and
	// book (either may be nil) as contextual grounding. When book is
	// non-nil the current snapshot is upserted into the store afterwards
	// so progress survives interruption.
	Translate(ctx context.Context, svc *svcctx.Services, ep *book.Episode, t *book.Task, ch *book.Chapter, b *book.Book) error
}

// Registry holds translators by name, thread-safe.
type Registry struct {
	mu          sync.RWMutex
	translators map[string]Translator
	logger      *slog.Logger
}

// NewRegistry creates an empty translator registry.
func NewRegistry() *Registry {
	return &Registry{
		translators: make(map[string]Translator),
		logger:      slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register adds a translator by name.
func (r *Registry) Register(t Translator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translators[t.Name()] = t
	if r.logger != nil {
		r.logger.Info("registered translator", "name", t.Name())
	}
}

// Get returns a translator by name.
func (r *Registry) Get(name string) (Translator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.translators[name]
	if !ok {
		return nil, fmt.Errorf("translator not found: %s", name)
	}
	return t, nil
}

// List returns all registered translator names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.translators))
	for name := range r.translators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
