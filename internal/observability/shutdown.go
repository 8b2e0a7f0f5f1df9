package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ShutdownCoordinator closes node components in reverse registration
// order, so the event sink closes before the state backend it drains
// from. It runs at most once.
type ShutdownCoordinator struct {
	// Logger defaults to slog.Default.
	Logger *slog.Logger

	mu       sync.Mutex
	handlers []namedHandler
	done     bool
	result   error
}

type namedHandler struct {
	name string
	fn   func(context.Context) error
}

// Register adds a shutdown handler. Once shutdown has run, fn runs
// immediately instead.
func (s *ShutdownCoordinator) Register(name string, fn func(context.Context) error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		if err := fn(context.Background()); err != nil {
			s.logger().Error("late shutdown handler failed", "component", name, "error", err)
		}
		return
	}
	s.handlers = append(s.handlers, namedHandler{name: name, fn: fn})
	s.mu.Unlock()
}

// Shutdown runs every handler, newest first, and joins their errors.
// Later calls return the first result.
func (s *ShutdownCoordinator) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return s.result
	}
	s.done = true

	log := s.logger()
	var errs []error
	for i := len(s.handlers) - 1; i >= 0; i-- {
		h := s.handlers[i]
		log.DebugContext(ctx, "shutting down", "component", h.name)
		if err := h.fn(ctx); err != nil {
			log.ErrorContext(ctx, "shutdown error", "component", h.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	s.handlers = nil
	s.result = errors.Join(errs...)
	return s.result
}

func (s *ShutdownCoordinator) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
