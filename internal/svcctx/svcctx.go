// Package svcctx provides the shared run context handed into every pipeline
// operation. It replaces ambient globals: the document store, HTTP client,
// and logger are constructed once by the top-level command, threaded through
// Services, and torn down after all tasks complete. This package is separate
// from pipeline to avoid import cycles with the role packages.
package svcctx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jackzampolin/bookbaker/internal/store"
)

// Services holds the shared collaborators for one run. The store and HTTP
// client are safe for concurrent use across tasks; everything mutable per
// task lives behind the task lock instead.
type Services struct {
	Store  *store.Store
	Client *http.Client
	Logger *slog.Logger
}

// Log returns the run logger, falling back to slog.Default.
func (s *Services) Log() *slog.Logger {
	if s == nil || s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// HTTPClient returns the shared HTTP client, falling back to
// http.DefaultClient.
func (s *Services) HTTPClient() *http.Client {
	if s == nil || s.Client == nil {
		return http.DefaultClient
	}
	return s.Client
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}
