package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Hook releases one resource.
type Hook func(context.Context) error

type namedHook struct {
	name string
	fn   Hook
}

// Handler handles graceful shutdown.
type Handler struct {
	timeout time.Duration
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	hooks []namedHook
	once  sync.Once
	err   error
	done  chan struct{}
}

// NewHandler creates a handler whose context is cancelled on SIGINT or SIGTERM.
func NewHandler(timeout time.Duration, logger *slog.Logger) *Handler {
	return newHandler(context.Background(), timeout, logger, syscall.SIGINT, syscall.SIGTERM)
}

// NewHandlerContext is NewHandler with a parent context. Cancelling
// parent also starts shutdown.
func NewHandlerContext(parent context.Context, timeout time.Duration, logger *slog.Logger) *Handler {
	return newHandler(parent, timeout, logger, syscall.SIGINT, syscall.SIGTERM)
}

func newHandler(parent context.Context, timeout time.Duration, logger *slog.Logger, sigs ...os.Signal) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := signal.NotifyContext(parent, sigs...)
	return &Handler{
		timeout: timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Context is cancelled when a termination signal arrives or Trigger is called.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Trigger starts shutdown without a signal.
func (h *Handler) Trigger() {
	h.cancel()
}

// OnShutdown registers a hook. Hooks run in reverse registration order.
func (h *Handler) OnShutdown(name string, hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, namedHook{name: name, fn: hook})
}

// Wait blocks until shutdown is triggered, then runs the hooks.
func (h *Handler) Wait() error {
	<-h.ctx.Done()
	return h.Shutdown()
}

// Shutdown runs every hook once, even if earlier hooks fail, and returns
// the joined errors. Later calls return the first result.
func (h *Handler) Shutdown() error {
	h.once.Do(func() {
		h.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		h.mu.Lock()
		hooks := make([]namedHook, len(h.hooks))
		copy(hooks, h.hooks)
		h.mu.Unlock()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			hk := hooks[i]
			start := time.Now()
			if err := hk.fn(ctx); err != nil {
				h.logger.Error("shutdown hook failed", "hook", hk.name, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", hk.name, err))
				continue
			}
			h.logger.Debug("shutdown hook done", "hook", hk.name, "duration", time.Since(start))
		}

		h.err = errors.Join(errs...)
		close(h.done)
	})
	return h.err
}

// Done returns a channel that closes when all hooks have run.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
