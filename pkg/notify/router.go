// Package notify routes inbound notifications to batched handlers.
//
// Each registration for an event name owns one accumulator queue per
// scope; notifications are added to those queues and the registration's
// handler receives them in batches. Report updates are additionally split
// into their sub-events, each delivered straight to the event handlers.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/conduit/pkg/batcher"
	"github.com/ajitpratap0/conduit/pkg/errors"
	"github.com/ajitpratap0/conduit/pkg/logger"
	"github.com/ajitpratap0/conduit/pkg/metrics"
)

// BatchHandler receives a batch of notifications for one scope
type BatchHandler func(ctx context.Context, scope Scope, batch []Notification) error

// EventHandler receives one sub-event of a report
type EventHandler func(ctx context.Context, scope Scope, payload EventPayload) error

type registration struct {
	handler BatchHandler
	options batcher.Options
}

// Router maps canonical event names to ordered handler registrations.
type Router struct {
	registry *batcher.Registry[Notification]
	logger   *zap.Logger

	mu     sync.RWMutex
	routes map[string][]registration
	events []EventHandler
}

// Option configures a Router
type Option func(*Router)

// WithLogger sets the router logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter creates a router feeding queues of registry
func NewRouter(registry *batcher.Registry[Notification], opts ...Option) *Router {
	r := &Router{
		registry: registry,
		logger:   zap.NewNop(),
		routes:   make(map[string][]registration),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "notify"))
	return r
}

// Handle registers fn for event. Zero options take the registry defaults.
// It panics on a nil handler or invalid options, like http.ServeMux does
// for a bad pattern.
func (r *Router) Handle(event string, fn BatchHandler, opts batcher.Options) *Router {
	if fn == nil {
		panic("notify: nil handler for " + event)
	}
	if err := opts.Validate(); err != nil {
		panic(fmt.Sprintf("notify: invalid options for %s: %v", event, err))
	}
	key := Canonicalize(event).String()

	r.mu.Lock()
	r.routes[key] = append(r.routes[key], registration{handler: fn, options: opts})
	r.mu.Unlock()
	return r
}

// HandleEvent registers fn for report sub-events
func (r *Router) HandleEvent(fn EventHandler) *Router {
	if fn == nil {
		panic("notify: nil event handler")
	}
	r.mu.Lock()
	r.events = append(r.events, fn)
	r.mu.Unlock()
	return r
}

// Routes returns the registered canonical event names, sorted
func (r *Router) Routes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.routes))
	for key := range r.routes {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Dispatch feeds n to every registration of msg's event and, for report
// updates, delivers each sub-event to the event handlers. It waits for all
// of them; a failure carries the status code of the failing constituent,
// or 400.
func (r *Router) Dispatch(ctx context.Context, scope Scope, msg Message, n Notification) (err error) {
	if msg.Subject == "" {
		return errors.New(errors.ErrorTypeInvalidInput, "empty message").WithStatus(http.StatusBadRequest)
	}

	name := Canonicalize(msg.Subject)
	key := name.String()
	ctx = logger.ContextWith(ctx, scope.RequestID, scope.Organization, scope.Ship)
	log := r.logger.With(logger.Fields(ctx)...).With(
		zap.String("event", key),
		zap.String("scope", scope.Key()))

	r.mu.RLock()
	regs := append([]registration(nil), r.routes[key]...)
	events := append([]EventHandler(nil), r.events...)
	r.mu.RUnlock()

	defer func() {
		metrics.Notifications.WithLabelValues(key, metrics.Status(err)).Inc()
	}()

	// Resolve every queue before adding to any of them
	queues := make([]*batcher.Queue[Notification], len(regs))
	for i, reg := range regs {
		q, err := r.registry.GetOrCreate(fmt.Sprintf("%s/%s-%d", scope.Key(), key, i), reg.options)
		if err != nil {
			return r.fail(log, err)
		}
		queues[i] = q
	}

	var g errgroup.Group

	for i, q := range queues {
		handler := regs[i].handler
		q.SetCallback(func(ctx context.Context, batch []Notification) error {
			return handler(logger.ContextWith(ctx, scope.RequestID, scope.Organization, scope.Ship), scope, batch)
		})

		res := q.Add(n)
		g.Go(func() error {
			return res.Wait(ctx)
		})
	}

	dispatched := 0
	if key == ReportUpdate && len(events) > 0 {
		for _, payload := range expand(msg, n.Message) {
			for _, fn := range events {
				g.Go(func() error {
					return deliver(ctx, fn, scope, payload)
				})
				dispatched++
			}
		}
	}

	if len(regs) == 0 && dispatched == 0 {
		log.Debug("notify.unrouted")
		return nil
	}

	if err := g.Wait(); err != nil {
		return r.fail(log, err)
	}
	log.Debug("notify.dispatched", zap.Int("queues", len(regs)), zap.Int("events", dispatched))
	return nil
}

func (r *Router) fail(log *zap.Logger, err error) error {
	status := errors.StatusCode(err)
	log.Error("notify.dispatch.error", zap.Int("status", status), zap.Error(err))
	return errors.Wrap(err, errors.ErrorTypeHandler, "notification dispatch failed").WithStatus(status)
}

// deliver runs an event handler, converting a panic into an error
func deliver(ctx context.Context, fn EventHandler, scope Scope, payload EventPayload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrorTypeHandler, "event handler panicked: %v", r)
		}
	}()
	return fn(ctx, scope, payload)
}
