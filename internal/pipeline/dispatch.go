package pipeline

import (
	"context"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/conduit/pkg/errors"
	"github.com/ajitpratap0/conduit/pkg/logger"
	"github.com/ajitpratap0/conduit/pkg/metrics"
)

// ChunkHandler processes one chunk. The context is cancelled once any
// other invocation of the same dispatch has failed.
type ChunkHandler func(ctx context.Context, chunk Chunk) error

// Dispatch pulls chunks and runs handler on each with at most concurrency
// invocations outstanding. It returns nil only if every invocation
// succeeded; otherwise it returns the first failure. No invocation starts
// after a failure has been observed, and in-flight ones are waited for.
func Dispatch(ctx context.Context, chunks ChunkReader, handler ChunkHandler, concurrency int, log *zap.Logger) error {
	if concurrency <= 0 {
		return errors.Newf(errors.ErrorTypeConfig, "concurrency must be positive, got %d", concurrency).
			WithDetail("concurrency", concurrency)
	}
	log = logger.OrNop(log)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	drained := false
	for index := 0; gctx.Err() == nil; index++ {
		chunk, err := chunks.Next()
		if err == io.EOF {
			drained = true
			break
		}
		if err != nil {
			g.Go(func() error { return err })
			break
		}

		g.Go(func() error {
			// The slot may have been freed by a failing invocation
			if err := gctx.Err(); err != nil {
				return err
			}
			return invoke(gctx, handler, chunk, index, log)
		})
	}

	err := g.Wait()
	if err == nil && !drained {
		// Parent cancelled before every chunk was handled
		err = errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "dispatch cancelled")
	}
	return err
}

// invoke runs handler, converting a panic into a handler error. Every
// failure is logged before it is returned.
func invoke(ctx context.Context, handler ChunkHandler, chunk Chunk, index int, log *zap.Logger) (err error) {
	metrics.HandlersInFlight.Inc()
	timer := metrics.NewTimer()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrorTypeHandler, "handler panicked: %v", r).
				WithDetail("chunk", index)
		}

		metrics.HandlersInFlight.Dec()
		status := metrics.Status(err)
		metrics.HandlerDuration.WithLabelValues(status).Observe(timer.Seconds())
		metrics.ChunksDispatched.WithLabelValues(status).Inc()

		if err != nil {
			log.Error("extract.handler.error",
				zap.Int("chunk", index),
				zap.Int("records", len(chunk)),
				zap.Error(err))
		}
	}()

	return handler(ctx, chunk)
}
