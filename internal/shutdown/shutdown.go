// Package shutdown runs cleanup callbacks when the process is asked to stop.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/PentesterFlow/uiprobe/internal/logger"
)

// Callback is a function called during shutdown.
type Callback func(ctx context.Context) error

// Config holds shutdown configuration.
type Config struct {
	Timeout time.Duration
	Signals []os.Signal
	Log     *logger.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// Handler manages graceful shutdown.
type Handler struct {
	mu        sync.Mutex
	callbacks []Callback
	names     []string

	isShuttingDown atomic.Bool
	done           chan struct{}
	timeout        time.Duration
	log            *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	sigChan  chan os.Signal
	received atomic.Value
	result   *Result
}

// Result holds the outcome of a shutdown.
type Result struct {
	Elapsed time.Duration
	Errors  []error
}

// New creates a handler and starts listening for cfg.Signals. Zero fields
// take their DefaultConfig values.
func New(cfg Config) *Handler {
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = defaults.Signals
	}
	if cfg.Log == nil {
		cfg.Log = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	h := &Handler{
		callbacks: make([]Callback, 0),
		names:     make([]string, 0),
		done:      make(chan struct{}),
		timeout:   cfg.Timeout,
		log:       cfg.Log.WithComponent("shutdown"),
		ctx:       ctx,
		cancel:    cancel,
		sigChan:   make(chan os.Signal, 1),
	}

	signal.Notify(h.sigChan, cfg.Signals...)

	return h
}

// Register registers a named callback. Callbacks run in reverse order.
func (h *Handler) Register(name string, callback Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.callbacks = append(h.callbacks, callback)
	h.names = append(h.names, name)
}

// RegisterFunc registers a cleanup function that cannot fail.
func (h *Handler) RegisterFunc(name string, fn func()) {
	h.Register(name, func(ctx context.Context) error {
		fn()
		return nil
	})
}

// Context is cancelled when shutdown begins.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Signal returns the signal that triggered shutdown, or nil.
func (h *Handler) Signal() os.Signal {
	if sig, ok := h.received.Load().(os.Signal); ok {
		return sig
	}
	return nil
}

// Listen cancels Context as soon as a signal arrives, without running
// callbacks. Callers that keep working after the signal call Shutdown
// themselves.
func (h *Handler) Listen() {
	go func() {
		select {
		case sig := <-h.sigChan:
			h.received.Store(sig)
			h.log.Event(logger.InfoLevel).Str("signal", sig.String()).Msg("Signal received")
			h.cancel()
		case <-h.done:
		}
	}()
}

// Shutdown cancels Context and runs callbacks LIFO, each bounded by the
// handler timeout. Later calls wait for the first and return its result.
func (h *Handler) Shutdown() *Result {
	if !h.isShuttingDown.CompareAndSwap(false, true) {
		<-h.done
		return h.result
	}

	start := time.Now()
	h.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), h.timeout)
	defer shutdownCancel()

	h.mu.Lock()
	callbacks := make([]Callback, len(h.callbacks))
	names := make([]string, len(h.names))
	copy(callbacks, h.callbacks)
	copy(names, h.names)
	h.mu.Unlock()

	var errs []error
	for i := len(callbacks) - 1; i >= 0; i-- {
		if err := h.executeCallback(shutdownCtx, names[i], callbacks[i]); err != nil {
			h.log.WithError(err).WithField("callback", names[i]).Warn("Shutdown callback failed")
			errs = append(errs, err)
		}
	}

	signal.Stop(h.sigChan)
	h.result = &Result{Elapsed: time.Since(start), Errors: errs}
	close(h.done)
	return h.result
}

func (h *Handler) executeCallback(ctx context.Context, name string, callback Callback) error {
	done := make(chan error, 1)

	go func() {
		done <- callback(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &TimeoutError{CallbackName: name}
	}
}

// TimeoutError is returned when a callback times out.
type TimeoutError struct {
	CallbackName string
}

func (e *TimeoutError) Error() string {
	return "shutdown callback timed out: " + e.CallbackName
}
