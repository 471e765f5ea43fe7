package inference

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Loader owns the process-wide Handle. The first Get opens the backend; all
// later callers share the same immutable Handle. A failed open is not
// remembered, so the next Get tries again.
type Loader struct {
	open Opener
	log  zerolog.Logger

	handle atomic.Pointer[Handle]

	mu      sync.Mutex
	lastErr error
}

// NewLoader returns a Loader that builds its backend with open.
func NewLoader(open Opener, log zerolog.Logger) *Loader {
	return &Loader{open: open, log: log.With().Str("component", "inference").Logger()}
}

// Get returns the shared Handle, opening the backend if needed. Concurrent
// callers block until the first open finishes.
func (l *Loader) Get(ctx context.Context) (*Handle, error) {
	if h := l.handle.Load(); h != nil {
		return h, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if h := l.handle.Load(); h != nil {
		return h, nil
	}
	if l.open == nil {
		l.lastErr = ErrDependencyUnavailable("no inference backend configured")
		return nil, l.lastErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := l.open(ctx)
	if err != nil {
		l.lastErr = err
		l.log.Error().Err(err).Msg("inference backend init failed")
		return nil, err
	}
	if b == nil {
		l.lastErr = errors.New("inference backend opener returned nil")
		return nil, l.lastErr
	}
	h := newHandle(b)
	l.handle.Store(h)
	l.lastErr = nil
	w, hgt := b.InputSize()
	l.log.Info().Int("input_w", w).Int("input_h", hgt).Strs("labels", h.labels).Msg("inference backend ready")
	return h, nil
}

// Loaded reports whether the Handle exists.
func (l *Loader) Loaded() bool { return l.handle.Load() != nil }

// LastError returns the most recent init failure, or nil.
func (l *Loader) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Close releases the backend if it was opened.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := l.handle.Swap(nil)
	if h == nil {
		return nil
	}
	return h.backend.Close()
}
