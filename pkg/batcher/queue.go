package batcher

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/conduit/pkg/errors"
	"github.com/ajitpratap0/conduit/pkg/metrics"
	"github.com/ajitpratap0/conduit/pkg/observability"
)

const (
	triggerSize  = "size"
	triggerTimer = "timer"
	triggerDrain = "drain"
)

type entry[T any] struct {
	item   T
	result *Result
}

// Queue buffers items for one key. Insert and flush begin/end are
// serialized by mu; the callback itself runs outside the lock.
type Queue[T any] struct {
	registry *Registry[T]
	key      string
	opts     Options

	mu       sync.Mutex
	pending  []entry[T]
	callback Callback[T]
	busy     bool
	closed   bool
	timer    *time.Timer
	gen      uint64
	// settled is closed when the in-flight flush cycle ends
	settled chan struct{}
}

func newQueue[T any](r *Registry[T], key string, opts Options) *Queue[T] {
	return &Queue[T]{
		registry: r,
		key:      key,
		opts:     opts,
	}
}

// Key returns the queue key
func (q *Queue[T]) Key() string {
	return q.key
}

// Options returns the thresholds the queue was created with
func (q *Queue[T]) Options() Options {
	return q.opts
}

// Len returns the number of items waiting for a flush
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// SetCallback registers fn as the flush callback, replacing any previous
// one. A flush uses the callback registered when it starts.
func (q *Queue[T]) SetCallback(fn Callback[T]) {
	q.mu.Lock()
	q.callback = fn
	q.mu.Unlock()
}

// Add appends item and returns its Result without blocking.
func (q *Queue[T]) Add(item T) *Result {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return resolved(ErrClosed)
	}

	res := newResult()
	q.pending = append(q.pending, entry[T]{item: item, result: res})
	metrics.PendingItems.WithLabelValues(q.registry.name).Inc()

	// A running flush re-evaluates the queue when it ends
	if q.busy {
		return res
	}

	if len(q.pending) >= q.opts.MaxSize {
		q.startFlushLocked(triggerSize)
	} else {
		q.armLocked()
	}
	return res
}

// AddAndWait adds item and waits for the outcome of its flush cycle
func (q *Queue[T]) AddAndWait(ctx context.Context, item T) error {
	return q.Add(item).Wait(ctx)
}

// Flush starts a flush of pending items and waits until the queue is idle
// and empty, or ctx is done.
func (q *Queue[T]) Flush(ctx context.Context) error {
	for {
		q.mu.Lock()
		if !q.busy && len(q.pending) == 0 {
			q.mu.Unlock()
			return nil
		}
		if !q.busy {
			q.startFlushLocked(triggerDrain)
		}
		settled := q.settled
		q.mu.Unlock()

		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// armLocked restarts the throttle timer
func (q *Queue[T]) armLocked() {
	q.disarmLocked()
	gen := q.gen
	q.timer = time.AfterFunc(q.opts.Throttle, func() {
		q.onTimer(gen)
	})
}

// disarmLocked stops the timer and invalidates any callback already queued
func (q *Queue[T]) disarmLocked() {
	q.gen++
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

func (q *Queue[T]) onTimer(gen uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if gen != q.gen || q.busy || len(q.pending) == 0 {
		return
	}
	q.startFlushLocked(triggerTimer)
}

// startFlushLocked takes every pending item and runs the callback on them
// in a new goroutine. Items added while it runs wait for the next cycle.
func (q *Queue[T]) startFlushLocked(trigger string) {
	batch := q.pending
	n := len(batch)
	q.pending = nil

	q.busy = true
	q.disarmLocked()
	q.settled = make(chan struct{})
	metrics.PendingItems.WithLabelValues(q.registry.name).Sub(float64(n))

	go q.runFlush(q.callback, batch, q.settled, trigger)
}

func (q *Queue[T]) runFlush(cb Callback[T], batch []entry[T], settled chan struct{}, trigger string) {
	err := q.invoke(cb, batch, trigger)

	for _, e := range batch {
		e.result.resolve(err)
	}

	q.mu.Lock()
	q.busy = false
	switch {
	case len(q.pending) >= q.opts.MaxSize:
		q.startFlushLocked(triggerSize)
	case len(q.pending) > 0:
		q.armLocked()
	}
	q.mu.Unlock()

	close(settled)
}

// invoke runs cb with panic recovery and records the flush
func (q *Queue[T]) invoke(cb Callback[T], batch []entry[T], trigger string) (err error) {
	log := q.registry.logger.With(
		zap.String("key", q.key),
		zap.Int("size", len(batch)),
		zap.String("trigger", trigger))

	if cb == nil {
		log.Warn("batcher.no_callback", zap.Int("dropped", len(batch)))
		metrics.Flushes.WithLabelValues(q.registry.name, trigger, "dropped").Inc()
		return ErrNoCallback
	}

	items := make([]T, len(batch))
	for i, e := range batch {
		items[i] = e.item
	}

	ctx, span := observability.StartSpan(q.registry.ctx, "batcher.flush",
		attribute.String("key", q.key),
		attribute.Int("size", len(items)),
		attribute.String("trigger", trigger))
	timer := metrics.NewTimer()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrorTypeHandler, "flush callback panicked: %v", r).
				WithDetail("key", q.key)
		}

		observability.EndSpan(span, err)
		metrics.FlushDuration.WithLabelValues(q.registry.name).Observe(timer.Seconds())
		metrics.FlushSize.WithLabelValues(q.registry.name).Observe(float64(len(items)))
		metrics.Flushes.WithLabelValues(q.registry.name, trigger, metrics.Status(err)).Inc()

		if err != nil {
			log.Error("batcher.flush.error", zap.Error(err))
			return
		}
		log.Debug("batcher.flushed", zap.Duration("duration", timer.Stop()))
	}()

	return cb(ctx, items)
}

// close rejects further items; pending ones still flush
func (q *Queue[T]) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// retire closes the queue if it is idle and empty
func (q *Queue[T]) retire() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.busy || len(q.pending) > 0 {
		return false
	}
	q.closed = true
	q.disarmLocked()
	return true
}
