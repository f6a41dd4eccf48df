// Package crawler defines the content-source contract: each crawler turns a
// task into a lazy stream of acquisition events. Site-specific markup
// parsing lives behind this interface; the pipeline only depends on the
// stream shape, the staleness rule, and the task-lock protocol.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/jackzampolin/bookbaker/internal/book"
	"github.com/jackzampolin/bookbaker/internal/fanin"
	"github.com/jackzampolin/bookbaker/internal/svcctx"
)

// Crawler produces the acquisition stream for one task.
//
// Implementations must consult the document store before re-fetching an
// entity (re-fetch only when TimeMeta.Stale reports the source's update
// instant is newer than the saved snapshot), must hold the task lock while
// mutating the book tree, and must release it around each send on the
// stream so a consumer can begin translating while crawling continues. The
// stream ends after a single Err event on failure.
type Crawler interface {
	// Name returns the crawler's registry name.
	Name() string

	// Crawl starts acquisition for the task and returns its event stream.
	// The stream is closed when the task is exhausted or ctx is cancelled.
	Crawl(ctx context.Context, svc *svcctx.Services, t *book.Task) fanin.Stream
}

// Registry holds crawlers by name plus the host suffixes they claim, so a
// task without an explicit crawler selector can be dispatched by URL.
type Registry struct {
	mu       sync.RWMutex
	crawlers map[string]Crawler
	hosts    map[string]string // host suffix -> crawler name
	logger   *slog.Logger
}

// NewRegistry creates an empty crawler registry.
func NewRegistry() *Registry {
	return &Registry{
		crawlers: make(map[string]Crawler),
		hosts:    make(map[string]string),
		logger:   slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register adds a crawler under its name, claiming the given host suffixes
// for automatic dispatch.
func (r *Registry) Register(c Crawler, hostSuffixes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.crawlers[c.Name()] = c
	for _, h := range hostSuffixes {
		r.hosts[strings.ToLower(h)] = c.Name()
	}
	if r.logger != nil {
		r.logger.Info("registered crawler", "name", c.Name(), "hosts", hostSuffixes)
	}
}

// Get returns a crawler by name.
func (r *Registry) Get(name string) (Crawler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.crawlers[name]
	if !ok {
		return nil, fmt.Errorf("crawler not found: %s", name)
	}
	return c, nil
}

// List returns all registered crawler names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.crawlers))
	for name := range r.crawlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve picks the crawler for a task: the explicit selector when set,
// otherwise the crawler whose host suffix matches the task URL.
func (r *Registry) Resolve(t *book.Task) (Crawler, error) {
	if t.Crawler != "" {
		return r.Get(t.Crawler)
	}
	u, err := url.Parse(t.URL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid task url %q: %w", t.URL, err)
	}
	host := strings.ToLower(u.Hostname())

	r.mu.RLock()
	defer r.mu.RUnlock()
	for suffix, name := range r.hosts {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return r.crawlers[name], nil
		}
	}
	return nil, fmt.Errorf("no crawler claims host %q", host)
}
