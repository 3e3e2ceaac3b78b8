package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rafaeljc/mimir/internal/config"
)

// Server is the admin HTTP server: probes, Prometheus metrics and, when
// enabled, the profiler. It listens on its own port.
type Server struct {
	logger   *slog.Logger
	cfg      *config.ObservabilityConfig
	checkers []Checker
	http     *http.Server
	listener net.Listener
}

// NewServer wires the admin routes. The readiness probe runs every checker.
func NewServer(logger *slog.Logger, cfg *config.ObservabilityConfig, checkers ...Checker) *Server {
	if logger == nil {
		panic("observability: logger cannot be nil")
	}
	if cfg == nil {
		panic("observability: config cannot be nil")
	}

	s := &Server{logger: logger, cfg: cfg, checkers: checkers}
	s.http = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      s.routes(),
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		IdleTimeout:  3 * cfg.Timeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer, middleware.NoCache)

	r.Get(s.cfg.LivenessPath, s.liveness)
	r.Get(s.cfg.ReadinessPath, s.readiness)
	r.Method(http.MethodGet, s.cfg.MetricsPath, promhttp.Handler())
	if s.cfg.PprofEnabled {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

// Handler exposes the routes without a listener.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start binds the port and serves in the background. A bind failure is
// returned; later serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("observability server listen: %w", err)
	}
	s.listener = ln

	s.logger.Info("starting observability server",
		slog.String("addr", ln.Addr().String()),
		slog.String("readiness_path", s.cfg.ReadinessPath),
		slog.String("metrics_path", s.cfg.MetricsPath),
		slog.Int("checkers", len(s.checkers)),
		slog.Bool("pprof", s.cfg.PprofEnabled),
	)
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("observability server failed", slog.Any("error", err))
		}
	}()
	return nil
}

// Addr is the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops a started server; it is a no-op otherwise.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	s.logger.Info("stopping observability server")
	return s.http.Shutdown(ctx)
}
