// Package server exposes the VoxRelay HTTP and WebSocket surface: the /ws
// audio ingest endpoint, health probes, the Prometheus /metrics endpoint, and
// an optional static file server for the demo client page.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxrelay/voxrelay/internal/health"
	"github.com/voxrelay/voxrelay/internal/observe"
	"github.com/voxrelay/voxrelay/internal/relay"
)

// shutdownTimeout bounds the drain of in-flight HTTP requests on stop.
const shutdownTimeout = 15 * time.Second

// Config holds the network-facing settings for the server.
type Config struct {
	// ListenAddr is the TCP address to listen on (e.g., ":8080").
	ListenAddr string

	// StaticDir, when set, serves its contents at / (the demo client page).
	StaticDir string

	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string

	// SubscriberQueue bounds each connection's outbound message queue.
	// Zero selects relay.DefaultSubscriberQueue.
	SubscriberQueue int

	// DumpDir, when set, writes every received audio chunk into a
	// per-connection subdirectory for debugging.
	DumpDir string
}

// Server ties the relay registry and broadcaster to the HTTP surface.
type Server struct {
	cfg      Config
	registry *relay.Registry
	bus      *relay.Broadcaster
	logger   *slog.Logger
	metrics  *observe.Metrics
	checkers []health.Checker

	// baseCtx bounds every session's lifetime independently of the
	// per-request context, so a session can still drain after its HTTP
	// handler returns.
	baseCtx context.Context
}

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the server logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics sets the metrics sink. May be nil.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealthCheckers adds readiness checks to /readyz.
func WithHealthCheckers(checkers ...health.Checker) Option {
	return func(s *Server) { s.checkers = append(s.checkers, checkers...) }
}

// New creates a Server. registry and bus are required.
func New(cfg Config, registry *relay.Registry, bus *relay.Broadcaster, opts ...Option) (*Server, error) {
	if registry == nil {
		return nil, errors.New("server: registry is required")
	}
	if bus == nil {
		return nil, errors.New("server: broadcaster is required")
	}
	s := &Server{
		cfg:      cfg,
		registry: registry,
		bus:      bus,
		logger:   slog.Default(),
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler builds the full route table:
//
//	GET /ws       — WebSocket audio ingest + message fan-out
//	GET /healthz  — liveness
//	GET /readyz   — readiness
//	GET /metrics  — Prometheus scrape endpoint
//	/             — static demo page (only when StaticDir is configured)
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", s.handleWS)
	health.New(s.checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	if s.cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}

	return observe.Middleware(s.metricsOrDefault())(mux)
}

// metricsOrDefault keeps the middleware path free of nil instrument handles.
func (s *Server) metricsOrDefault() *observe.Metrics {
	if s.metrics != nil {
		return s.metrics
	}
	return observe.DefaultMetrics()
}

// Run listens on the configured address and serves until ctx is cancelled,
// then drains in-flight requests and tears down all sessions.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx

	httpSrv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
			err = httpSrv.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info("server listening",
		"addr", s.cfg.ListenAddr,
		"tls", s.cfg.CertFile != "",
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := s.registry.Teardown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
