package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"static-server/internal/handlers"
	"static-server/internal/logging"
	"static-server/internal/middleware"
	"static-server/internal/pipeline"
	"static-server/internal/startup"

	"github.com/gorilla/mux"
)

// Stage names, in pipeline order.
const (
	StageMetrics     = "metrics"
	StageLogger      = "logger"
	StageBody        = "body"
	StageCompression = "compression"
	StageMinify      = "minify"
	StageSessions    = "session"
	StageStatic      = "static"
	StageNotFound    = "notfound"
)

// Options adjusts pipeline construction. The zero value is what the
// server runs with.
type Options struct {
	// AccessLog receives access log lines instead of stdout.
	AccessLog io.Writer
}

// Stages builds the public pipeline's stages in their fixed order.
func Stages(config *startup.Config, h *handlers.Handlers, opts Options) ([]pipeline.Stage, error) {
	metricsConfig := middleware.DefaultMetricsConfig()
	metricsConfig.SkipPaths = config.LogSkipPaths

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.SkipPaths = config.LogSkipPaths
	loggingConfig.TrustProxy = config.TrustProxy
	loggingConfig.Output = opts.AccessLog

	bodyConfig := middleware.DefaultBodyConfig()
	if config.BodyLimit > 0 {
		bodyConfig.Limit = config.BodyLimit
	}

	compressionConfig := middleware.DefaultCompressionConfig()
	compressionConfig.MinSize = config.CompressMinSize
	if config.CompressSkipExtensions != nil {
		compressionConfig.SkipExtensions = config.CompressSkipExtensions
	}

	minifyConfig := middleware.DefaultMinifyConfig()
	if config.MinifyCache {
		minifyConfig.Cache = middleware.NewMinifyCache(config.MinifyCacheTTL, config.MinifyCacheTTL)
	}

	sessionConfig := middleware.DefaultSessionConfig(config.SessionSecret)
	sessionConfig.Secure = config.SessionSecure
	store, err := middleware.NewSessionStore(sessionConfig)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	return []pipeline.Stage{
		pipeline.FromMiddleware(StageMetrics, middleware.Metrics(metricsConfig)),
		pipeline.FromMiddleware(StageLogger, middleware.Logger(loggingConfig)),
		pipeline.StageFunc(StageBody, middleware.BodyDecoder(bodyConfig)),
		pipeline.FromMiddleware(StageCompression, middleware.Compression(compressionConfig)),
		pipeline.FromMiddleware(StageMinify, middleware.Minify(minifyConfig)),
		pipeline.FromMiddleware(StageSessions, middleware.Sessions(store)),
		pipeline.StageFunc(StageStatic, h.Static),
		pipeline.StageFunc(StageNotFound, handlers.NotFound),
	}, nil
}

// NewPipeline builds the public request pipeline with handlers.ServerError
// as its error stage.
func NewPipeline(config *startup.Config, h *handlers.Handlers, opts Options) (*pipeline.Pipeline, error) {
	stages, err := Stages(config, h, opts)
	if err != nil {
		return nil, err
	}
	return pipeline.New(handlers.ServerError, stages), nil
}

// NewAdminRouter builds the router of the metrics/health listener.
func NewAdminRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", h.MetricsHandler()).Methods(http.MethodGet).Name("metrics")
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet).Name("healthz")
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead).Name("livez")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet).Name("readyz")
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet).Name("version")

	return r
}

// Server owns the public listener and the optional admin listener.
type Server struct {
	config   *startup.Config
	pipeline *pipeline.Pipeline
	admin    *mux.Router
	public   *http.Server
	metrics  *http.Server
}

// New wires handlers, the pipeline and the admin router for config.
func New(config *startup.Config, opts Options) (*Server, error) {
	h := handlers.New(config)

	p, err := NewPipeline(config, h, opts)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:   config,
		pipeline: p,
		public: &http.Server{
			Addr:              ":" + config.Port,
			Handler:           p,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}

	if config.MetricsEnabled {
		s.admin = NewAdminRouter(h)
		s.metrics = &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           s.admin,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
		}
	}

	return s, nil
}

// Pipeline returns the public request pipeline.
func (s *Server) Pipeline() *pipeline.Pipeline {
	return s.pipeline
}

// AdminRouter returns the admin router, or nil when metrics are disabled.
func (s *Server) AdminRouter() *mux.Router {
	return s.admin
}

// Run listens on the configured ports and serves until ctx is done or a
// listener fails, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, started time.Time) error {
	publicLn, err := net.Listen("tcp", s.public.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.public.Addr, err)
	}

	var adminLn net.Listener
	if s.metrics != nil {
		adminLn, err = net.Listen("tcp", s.metrics.Addr)
		if err != nil {
			publicLn.Close()
			return fmt.Errorf("listen on %s: %w", s.metrics.Addr, err)
		}
	}

	return s.Serve(ctx, publicLn, adminLn, started)
}

// Serve is Run on already-bound listeners. adminLn may be nil.
func (s *Server) Serve(ctx context.Context, publicLn, adminLn net.Listener, started time.Time) error {
	errCh := make(chan error, 2)

	go func() {
		if err := s.public.Serve(publicLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if s.metrics != nil && adminLn != nil {
		startup.LogHTTPRoutes(s.admin)
		go func() {
			if err := s.metrics.Serve(adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	startup.LogPipeline(s.pipeline.Stages())
	startup.LogServerStarted(startup.ServerConfig{
		Port:            portOf(publicLn, s.config.Port),
		MetricsPort:     portOf(adminLn, s.config.MetricsPort),
		MetricsEnabled:  s.metrics != nil && adminLn != nil,
		StartupDuration: time.Since(started),
	})

	var serveErr error
	select {
	case <-ctx.Done():
		startup.LogShutdownInitiated(context.Cause(ctx).Error())
	case serveErr = <-errCh:
		logging.Error("%v", serveErr)
		startup.LogShutdownInitiated("server failure")
	}

	s.shutdown()
	return serveErr
}

func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if s.metrics != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := s.metrics.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := s.public.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownComplete()
}

// portOf reports the port a listener is bound to, which differs from the
// configured one when the configured port is 0.
func portOf(ln net.Listener, configured string) string {
	if ln == nil {
		return configured
	}
	if _, port, err := net.SplitHostPort(ln.Addr().String()); err == nil {
		return port
	}
	return configured
}
