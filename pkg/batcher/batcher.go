// Package batcher accumulates items under string keys and flushes them to a
// callback when a queue reaches its size threshold or stays idle for its
// throttle interval.
//
// # Overview
//
// A Registry owns independent per-key queues, created lazily on first
// reference. Each queue guarantees that at most one flush callback runs at
// a time; items added while a flush is in flight wait for the next cycle.
// Every added item gets a Result that resolves with the outcome of the
// flush it ended up in.
//
// # Basic Usage
//
//	reg := batcher.NewRegistry[Event](batcher.WithLogger(log))
//	q, err := reg.GetOrCreate("org-1/user:update-0", batcher.Options{MaxSize: 100, Throttle: time.Second})
//	if err != nil {
//	    return err
//	}
//	q.SetCallback(func(ctx context.Context, events []Event) error {
//	    return sink.Write(ctx, events)
//	})
//	err = q.AddAndWait(ctx, event)
//
// # Thresholds
//
// The first GetOrCreate for a key fixes its options; later calls with
// different options keep the original ones and log a warning. A flush never
// hands more than MaxSize items to the callback. The throttle timer restarts
// on every insert and is disarmed while a flush is running.
package batcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/conduit/pkg/errors"
)

const (
	// DefaultMaxSize is used when Options.MaxSize is zero
	DefaultMaxSize = 1000
	// DefaultThrottle is used for the zero Options value
	DefaultThrottle = 10 * time.Second
)

var (
	// ErrNoCallback resolves items flushed from a queue without a callback.
	// Those items are dropped.
	ErrNoCallback = errors.New(errors.ErrorTypeConfig, "no flush callback registered")

	// ErrClosed is returned for items added after the queue or registry was
	// closed or evicted
	ErrClosed = errors.New(errors.ErrorTypeClosed, "accumulator is closed")
)

// Callback receives a flushed batch in insertion order
type Callback[T any] func(ctx context.Context, items []T) error

// Options configures a queue's flush thresholds. A zero MaxSize takes the
// registry default. Throttle 0 flushes right after an insert, except in the
// zero Options value, which takes both defaults.
type Options struct {
	// MaxSize flushes the queue once it holds this many items
	MaxSize int `yaml:"max_size" json:"max_size"`
	// Throttle flushes the queue after this long without an insert
	Throttle time.Duration `yaml:"throttle" json:"throttle"`
}

// Validate rejects negative thresholds
func (o Options) Validate() error {
	if o.MaxSize < 0 {
		return errors.Newf(errors.ErrorTypeConfig, "max size must be at least 1, got %d", o.MaxSize)
	}
	if o.Throttle < 0 {
		return errors.Newf(errors.ErrorTypeConfig, "throttle cannot be negative, got %s", o.Throttle)
	}
	return nil
}

// withDefaults fills unset fields from defaults and rejects negative ones
func (o Options) withDefaults(defaults Options) (Options, error) {
	if err := o.Validate(); err != nil {
		return o, err
	}
	if o == (Options{}) {
		return defaults, nil
	}
	if o.MaxSize == 0 {
		o.MaxSize = defaults.MaxSize
	}
	return o, nil
}

type registryOptions struct {
	logger   *zap.Logger
	name     string
	ctx      context.Context
	defaults Options
}

// RegistryOption configures a Registry
type RegistryOption func(*registryOptions)

// WithLogger sets the registry logger
func WithLogger(l *zap.Logger) RegistryOption {
	return func(o *registryOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithName labels the registry's metrics and logs
func WithName(name string) RegistryOption {
	return func(o *registryOptions) {
		o.name = name
	}
}

// WithBaseContext sets the context handed to flush callbacks
func WithBaseContext(ctx context.Context) RegistryOption {
	return func(o *registryOptions) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// WithDefaults overrides the options applied to zero fields
func WithDefaults(defaults Options) RegistryOption {
	return func(o *registryOptions) {
		if defaults.MaxSize > 0 {
			o.defaults.MaxSize = defaults.MaxSize
		}
		if defaults.Throttle > 0 {
			o.defaults.Throttle = defaults.Throttle
		}
	}
}

// Registry owns every queue of one item type.
type Registry[T any] struct {
	mu     sync.RWMutex
	queues map[string]*Queue[T]
	closed bool

	logger   *zap.Logger
	name     string
	ctx      context.Context
	defaults Options
}

// NewRegistry creates an empty registry
func NewRegistry[T any](opts ...RegistryOption) *Registry[T] {
	o := &registryOptions{
		logger:   zap.NewNop(),
		name:     "default",
		ctx:      context.Background(),
		defaults: Options{MaxSize: DefaultMaxSize, Throttle: DefaultThrottle},
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Registry[T]{
		queues:   make(map[string]*Queue[T]),
		logger:   o.logger.With(zap.String("component", "batcher"), zap.String("registry", o.name)),
		name:     o.name,
		ctx:      o.ctx,
		defaults: o.defaults,
	}
}

// GetOrCreate returns the queue for key, creating it with opts on first
// reference. Options of an existing queue are never changed.
func (r *Registry[T]) GetOrCreate(key string, opts Options) (*Queue[T], error) {
	opts, err := opts.withDefaults(r.defaults)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid accumulator options").WithDetail("key", key)
	}

	r.mu.RLock()
	q, ok := r.queues[key]
	closed := r.closed
	r.mu.RUnlock()

	if !ok {
		if closed {
			return nil, ErrClosed
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrClosed
		}
		q, ok = r.queues[key]
		if !ok {
			q = newQueue(r, key, opts)
			r.queues[key] = q
			r.mu.Unlock()
			r.logger.Debug("batcher.queue.created",
				zap.String("key", key),
				zap.Int("max_size", opts.MaxSize),
				zap.Duration("throttle", opts.Throttle))
			return q, nil
		}
		r.mu.Unlock()
	}

	if q.opts != opts {
		r.logger.Warn("batcher.options.ignored",
			zap.String("key", key),
			zap.Int("max_size", q.opts.MaxSize),
			zap.Duration("throttle", q.opts.Throttle),
			zap.Int("requested_max_size", opts.MaxSize),
			zap.Duration("requested_throttle", opts.Throttle))
	}
	return q, nil
}

// Get returns the queue for key if it exists
func (r *Registry[T]) Get(key string) (*Queue[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[key]
	return q, ok
}

// Len returns the number of queues
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.queues)
}

// Evict removes the queue for key if it is idle and empty. Handles to an
// evicted queue reject new items with ErrClosed.
func (r *Registry[T]) Evict(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues[key]
	if !ok || !q.retire() {
		return false
	}
	delete(r.queues, key)
	r.logger.Debug("batcher.queue.evicted", zap.String("key", key))
	return true
}

// Flush forces a flush of every queue and waits until all of them are
// idle and empty or ctx is done.
func (r *Registry[T]) Flush(ctx context.Context) error {
	for _, q := range r.snapshot() {
		if err := q.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close rejects new queues and items, then drains every queue.
func (r *Registry[T]) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	queues := r.snapshot()
	for _, q := range queues {
		q.close()
	}
	for _, q := range queues {
		if err := q.Flush(ctx); err != nil {
			return err
		}
	}
	r.logger.Info("batcher.closed", zap.Int("queues", len(queues)))
	return nil
}

func (r *Registry[T]) snapshot() []*Queue[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Queue[T], 0, len(r.queues))
	for _, q := range r.queues {
		out = append(out, q)
	}
	return out
}
