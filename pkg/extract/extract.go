// Package extract runs bulk extractions: fetch a resource, decode it into
// records, regroup them into fixed-size chunks and hand each chunk to a
// handler with bounded concurrency.
//
// # Basic Usage
//
//	ex := extract.New(fetcher, extract.WithLogger(log))
//	ok, err := ex.Extract(ctx, extract.Request{
//	    Body:      extract.Body{URL: url, Format: decode.FormatCSV},
//	    BatchSize: 100,
//	    Handler: func(ctx context.Context, chunk extract.Chunk) error {
//	        return upsert(ctx, chunk)
//	    },
//	})
//
// Extract resolves true only once every chunk has been handled. The first
// transport, decode or handler failure ends the run; nothing is retried.
package extract

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/conduit/internal/pipeline"
	"github.com/ajitpratap0/conduit/pkg/clients"
	"github.com/ajitpratap0/conduit/pkg/compression"
	"github.com/ajitpratap0/conduit/pkg/config"
	"github.com/ajitpratap0/conduit/pkg/decode"
	"github.com/ajitpratap0/conduit/pkg/errors"
	"github.com/ajitpratap0/conduit/pkg/metrics"
	"github.com/ajitpratap0/conduit/pkg/observability"
)

// DefaultConcurrency is the number of handler calls allowed in flight
const DefaultConcurrency = 2

// Chunk is an ordered group of decoded records
type Chunk = pipeline.Chunk

// Handler processes one chunk
type Handler = pipeline.ChunkHandler

// Body names the resource to extract
type Body struct {
	URL    string        `json:"url"`
	Format decode.Format `json:"format"`
}

// Request describes one extraction run.
type Request struct {
	Body      Body
	BatchSize int
	Handler   Handler

	// OnResponse observes the transport response before decoding starts
	OnResponse func(*clients.Response)
	// OnError observes transport failures
	OnError func(error)
}

// Extractor runs extraction requests against a fetcher.
type Extractor struct {
	fetcher     clients.Fetcher
	logger      *zap.Logger
	concurrency int
	decompress  bool
}

// Option configures an Extractor
type Option func(*Extractor)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithConcurrency overrides the handler concurrency
func WithConcurrency(n int) Option {
	return func(e *Extractor) {
		e.concurrency = n
	}
}

// WithDecompression toggles detecting compression from the URL extension.
// A declared Content-Encoding is always honored.
func WithDecompression(enabled bool) Option {
	return func(e *Extractor) {
		e.decompress = enabled
	}
}

// New creates an Extractor
func New(fetcher clients.Fetcher, opts ...Option) *Extractor {
	e := &Extractor{
		fetcher:     fetcher,
		logger:      zap.NewNop(),
		concurrency: DefaultConcurrency,
		decompress:  true,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "extractor"))
	return e
}

// NewFromConfig creates an Extractor from the extract section of the config
func NewFromConfig(fetcher clients.Fetcher, cfg config.ExtractConfig, log *zap.Logger) *Extractor {
	return New(fetcher,
		WithLogger(log),
		WithConcurrency(cfg.Concurrency),
		WithDecompression(cfg.Decompress),
	)
}

// Extract runs req to completion. It returns true, nil only when every
// chunk was handled successfully, and false with the first error
// otherwise.
func (e *Extractor) Extract(ctx context.Context, req Request) (ok bool, err error) {
	format, err := validate(req)
	if err != nil {
		return false, err
	}

	ctx, span := observability.StartSpan(ctx, "extract",
		attribute.String("format", string(format)),
		attribute.Int("batch_size", req.BatchSize))
	start := time.Now()
	stats := &runStats{}

	defer func() {
		observability.EndSpan(span, err)
		metrics.Extractions.WithLabelValues(string(format), metrics.Status(err)).Inc()

		fields := []zap.Field{
			zap.String("format", string(format)),
			zap.Int64("records", atomic.LoadInt64(&stats.records)),
			zap.Int64("chunks", atomic.LoadInt64(&stats.chunks)),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			e.logger.Error("extract.failed", append(fields,
				zap.Bool("retryable", errors.IsRetryable(err)),
				zap.Error(err))...)
			return
		}
		e.logger.Info("extract.completed", fields...)
	}()

	resp, err := e.fetcher.Fetch(ctx, req.Body.URL)
	if err != nil {
		if !errors.IsType(err, errors.ErrorTypeTransport) {
			err = errors.Wrap(err, errors.ErrorTypeTransport, "failed to fetch resource")
		}
		if req.OnError != nil {
			req.OnError(err)
		}
		return false, err
	}
	defer resp.Body.Close()

	if req.OnResponse != nil {
		req.OnResponse(resp)
	}

	body, err := compression.NewReader(e.algorithm(resp, req.Body.URL), resp.Body)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeDecode, "failed to decompress resource")
	}
	defer body.Close()

	records, err := decode.New(format, body)
	if err != nil {
		return false, err
	}

	chunks, err := pipeline.Group(&countingRecords{src: records, stats: stats, format: format}, req.BatchSize)
	if err != nil {
		return false, err
	}

	err = pipeline.Dispatch(ctx, &countingChunks{src: chunks, stats: stats}, req.Handler, e.concurrency, e.logger)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e *Extractor) algorithm(resp *clients.Response, rawURL string) compression.Algorithm {
	if enc := resp.ContentEncoding(); enc != "" {
		return compression.Detect(enc, rawURL)
	}
	if e.decompress {
		return compression.FromPath(rawURL)
	}
	return compression.None
}

// validate rejects a request before any transport activity and returns
// its normalized format
func validate(req Request) (decode.Format, error) {
	if req.Body.URL == "" {
		return "", errors.New(errors.ErrorTypeInvalidInput, "body.url is required")
	}
	format, err := decode.ParseFormat(string(req.Body.Format))
	if err != nil {
		return "", err
	}
	if req.BatchSize <= 0 {
		return "", errors.Newf(errors.ErrorTypeConfig, "batch size must be positive, got %d", req.BatchSize)
	}
	if req.Handler == nil {
		return "", errors.New(errors.ErrorTypeInvalidInput, "handler is required")
	}
	return format, nil
}
