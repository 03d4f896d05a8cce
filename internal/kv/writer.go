package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultDebounce is the coalescing window used when none is given.
	DefaultDebounce = 500 * time.Millisecond

	// minRetryDelay spaces retries of failed keys when the window is shorter.
	minRetryDelay = time.Second

	defaultFlushTimeout = 10 * time.Second
)

// Logger is the logging surface used by the writer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// FlushObserver is told the outcome of every key written by a flush.
type FlushObserver func(key string, err error)

// Writer coalesces writes per key in front of a Store.
//
// Schedule records the newest value for a key; the first pending write arms
// a timer and when it fires every pending key is written once. A key whose
// write fails is re-queued unless a newer value arrived meanwhile. Close
// flushes what is pending and rejects later writes.
type Writer struct {
	store        Store
	window       time.Duration
	flushTimeout time.Duration
	logger       Logger
	observer     FlushObserver

	mu      sync.Mutex
	pending map[string]json.RawMessage
	timer   *time.Timer
	closed  bool

	// flushMu serialises flushes so a key is never written out of order.
	flushMu sync.Mutex
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithLogger sets the logger.
func WithLogger(l Logger) WriterOption {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithFlushObserver registers fn for flush outcomes.
func WithFlushObserver(fn FlushObserver) WriterOption {
	return func(w *Writer) { w.observer = fn }
}

// WithFlushTimeout bounds a timer-driven flush (default 10s).
func WithFlushTimeout(d time.Duration) WriterOption {
	return func(w *Writer) {
		if d > 0 {
			w.flushTimeout = d
		}
	}
}

// NewWriter creates a writer with the given coalescing window. A negative
// window selects DefaultDebounce.
func NewWriter(store Store, window time.Duration, opts ...WriterOption) *Writer {
	if window < 0 {
		window = DefaultDebounce
	}
	w := &Writer{
		store:        store,
		window:       window,
		flushTimeout: defaultFlushTimeout,
		logger:       nopLogger{},
		pending:      make(map[string]json.RawMessage),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Schedule queues v for key, replacing any value not yet written. The value
// is marshalled immediately, so later changes to v are not picked up.
func (w *Writer) Schedule(key string, v any) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.pending[key] = data
	w.armLocked(w.window)
	return nil
}

// Pending returns the number of keys waiting to be written.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Flush writes every pending key now. Failed keys stay queued and the
// returned error joins their failures.
func (w *Writer) Flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string]json.RawMessage)
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	keys := make([]string, 0, len(batch))
	for k := range batch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		err := w.store.Set(ctx, key, batch[key])
		if w.observer != nil {
			w.observer(key, err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("writing %s: %w", key, err))
			w.requeue(key, batch[key])
		}
	}
	return errors.Join(errs...)
}

// Close flushes pending writes and stops accepting new ones. Calling it
// again only retries what is still pending.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	return w.Flush(ctx)
}

func (w *Writer) requeue(key string, data json.RawMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, newer := w.pending[key]; newer {
		return
	}
	w.pending[key] = data
	if !w.closed {
		w.armLocked(max(w.window, minRetryDelay))
	}
}

// armLocked starts the flush timer unless one is already running.
func (w *Writer) armLocked(after time.Duration) {
	if w.timer != nil {
		return
	}
	w.timer = time.AfterFunc(after, w.flushOnTimer)
}

func (w *Writer) flushOnTimer() {
	ctx, cancel := context.WithTimeout(context.Background(), w.flushTimeout)
	defer cancel()

	if err := w.Flush(ctx); err != nil {
		w.logger.Warn("kv flush failed, will retry", "error", err)
	}
}
