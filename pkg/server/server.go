// Package server exposes the notification router and the extractor over
// HTTP.
//
// Routes:
//
//	POST /notify   deliver one notification envelope
//	POST /extract  run an extraction with the configured chunk handler
//	GET  /healthz  liveness and registered routes
//	GET  /metrics  prometheus exposition
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ajitpratap0/conduit/pkg/config"
	"github.com/ajitpratap0/conduit/pkg/extract"
	"github.com/ajitpratap0/conduit/pkg/logger"
	"github.com/ajitpratap0/conduit/pkg/notify"
)

// Server is the HTTP boundary of a connector.
type Server struct {
	cfg    config.ServerConfig
	router *notify.Router
	logger *zap.Logger

	extractor *extract.Extractor
	handler   extract.Handler
	batchSize int

	mux  *mux.Router
	http *http.Server
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithExtractor enables POST /extract. Every chunk of a run goes to
// handler; batchSize applies when a request names none.
func WithExtractor(ex *extract.Extractor, handler extract.Handler, batchSize int) Option {
	return func(s *Server) {
		s.extractor = ex
		s.handler = handler
		s.batchSize = batchSize
	}
}

// New creates a server dispatching notifications to router
func New(cfg config.ServerConfig, router *notify.Router, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		router: router,
		logger: zap.NewNop(),
		mux:    mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "server"))

	s.mux.Use(s.correlate, s.logRequests)
	RegisterNotify(s.mux, s)
	if s.extractor != nil {
		RegisterExtract(s.mux, s)
	}
	RegisterHealth(s.mux, s)
	s.mux.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe listens on the configured address. It returns nil after
// Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server.listening", zap.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones, bounded
// by the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	s.logger.Info("server.shutdown")
	return s.http.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.With(logger.Fields(r.Context())...).Debug("server.request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
