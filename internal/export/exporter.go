// Package export packages finished books into distributable formats.
// Exporters register by name; tasks reference them as an ordered list run
// after crawling and translation complete.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jackzampolin/bookbaker/internal/book"
	"github.com/jackzampolin/bookbaker/internal/svcctx"
)

// Exporter renders a book snapshot to an external artifact. Export reads
// the book without mutating it, so it needs no task lock.
type Exporter interface {
	// Name returns the exporter's registry name.
	Name() string

	// Export writes the book to the exporter's output target.
	Export(ctx context.Context, svc *svcctx.Services, b *book.Book, t *book.Task) error
}

// Registry holds exporters by name, thread-safe.
type Registry struct {
	mu        sync.RWMutex
	exporters map[string]Exporter
	logger    *slog.Logger
}

// NewRegistry creates an empty exporter registry.
func NewRegistry() *Registry {
	return &Registry{
		exporters: make(map[string]Exporter),
		logger:    slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register adds an exporter by name.
func (r *Registry) Register(e Exporter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exporters[e.Name()] = e
	if r.logger != nil {
		r.logger.Info("registered exporter", "name", e.Name())
	}
}

// Get returns an exporter by name.
func (r *Registry) Get(name string) (Exporter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.exporters[name]
	if !ok {
		return nil, fmt.Errorf("exporter not found: %s", name)
	}
	return e, nil
}

// List returns all registered exporter names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.exporters))
	for name := range r.exporters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
