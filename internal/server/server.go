package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/semantrix/adaptroute/internal/dispatch"
	"github.com/semantrix/adaptroute/internal/models"
	"github.com/semantrix/adaptroute/internal/observability"
	"github.com/semantrix/adaptroute/internal/transport"
)

// Version is reported by the health endpoint.
var Version = "dev"

// Server represents the HTTP server in front of the dispatcher.
type Server struct {
	config      *Config
	router      *chi.Mux
	dispatcher  *dispatch.Dispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
	tracing     *observability.Tracing
	server      *http.Server
	startedAt   time.Time
	stopMetrics context.CancelFunc
}

// DispatchSettings is the dispatch section of the configuration.
type DispatchSettings struct {
	Mode            string `mapstructure:"mode"`
	dispatch.Config `mapstructure:",squash"`
}

// Config holds the server configuration.
type Config struct {
	Server struct {
		Port            int           `mapstructure:"port"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`

	Dispatch DispatchSettings `mapstructure:"dispatch"`

	Providers map[string]transport.ProviderConfig `mapstructure:"providers"`

	Proxy transport.ProxyConfig `mapstructure:"proxy"`

	Observability struct {
		Logging observability.LoggerConfig  `mapstructure:"logging"`
		Metrics observability.MetricsConfig `mapstructure:"metrics"`
		Tracing observability.TracingConfig `mapstructure:"tracing"`
	} `mapstructure:"observability"`
}

// ProviderConfigs converts the provider section into typed keys, skipping
// names that are not supported providers.
func (c *Config) ProviderConfigs() (map[models.Provider]transport.ProviderConfig, []string) {
	configs := make(map[models.Provider]transport.ProviderConfig, len(c.Providers))
	var unknown []string
	for name, pc := range c.Providers {
		p, err := models.ParseProvider(name)
		if err != nil {
			unknown = append(unknown, name)
			continue
		}
		configs[p] = pc
	}
	return configs, unknown
}

// NewServer creates a new server instance.
func NewServer(config *Config) (*Server, error) {
	logger, err := observability.NewLogger(config.Observability.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	metrics, err := observability.NewMetrics(config.Observability.Metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	tracing := observability.NewTracing(config.Observability.Tracing, logger)

	mode, err := transport.ParseMode(config.Dispatch.Mode)
	if err != nil {
		return nil, err
	}

	providerConfigs, unknown := config.ProviderConfigs()
	for _, name := range unknown {
		logger.Warn("Unknown provider in configuration", zap.String("provider", name))
	}

	strategy, err := transport.Select(mode, transport.Settings{
		Providers: providerConfigs,
		Proxy:     config.Proxy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select transport: %w", err)
	}

	dispatcher, err := dispatch.New(strategy, config.Dispatch.Config,
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(metrics),
		dispatch.WithTracing(tracing),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	desc := strategy.Describe()
	logger.Info("Transport selected",
		zap.String("mode", string(desc.Mode)),
		zap.String("strategy", desc.Strategy),
		zap.String("proxy_url", desc.ProxyURL))
	for _, p := range models.AllProviders {
		if err := strategy.Validate(p); err != nil {
			logger.Warn("Provider unavailable in this mode", zap.String("provider", p.String()), zap.Error(err))
		}
	}

	server := &Server{
		config:     config,
		router:     chi.NewRouter(),
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
		tracing:    tracing,
		startedAt:  time.Now(),
	}

	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Server.Port),
		Handler:      server.router,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  config.Server.IdleTimeout,
	}

	return server, nil
}

// setupRoutes configures the HTTP routes and middleware.
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.observabilityMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Caller-ID"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Get("/health", s.handleHealthCheck)

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/generate", s.handleGenerate)
		r.Post("/generate/batch", s.handleBatch)
		r.Post("/estimate", s.handleEstimate)
		r.Get("/models", s.handleGetModels)
	})

	s.router.Route("/admin", func(r chi.Router) {
		r.Get("/providers/{name}/health", s.handleGetProviderHealth)
		r.Get("/transport", s.handleGetTransport)
	})
}

// observabilityMiddleware traces, logs and measures every request.
func (s *Server) observabilityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx, span := s.tracing.StartSpan(r.Context(), "http_request",
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
			attribute.String("http.user_agent", r.UserAgent()))

		wrappedWriter := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrappedWriter, r.WithContext(ctx))

		duration := time.Since(start)
		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		s.metrics.RecordRequest(r.Method, endpoint, wrappedWriter.statusCode, duration)

		s.tracing.EndSpan(span, nil,
			attribute.Int("http.status_code", wrappedWriter.statusCode),
			attribute.Int64("http.duration_ms", duration.Milliseconds()))

		s.logger.Debug("HTTP request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrappedWriter.statusCode),
			zap.Duration("duration", duration))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the server and begins accepting requests.
func (s *Server) Start() error {
	if s.config.Observability.Metrics.Enabled {
		metricsCtx, cancel := context.WithCancel(context.Background())
		s.stopMetrics = cancel
		go func() {
			if err := s.metrics.StartMetricsServer(metricsCtx); err != nil {
				s.logger.Error("Failed to start metrics server", zap.Error(err))
			}
		}()
	}

	desc := s.dispatcher.Transport()
	s.logger.Info("Starting adaptroute server",
		zap.Int("port", s.config.Server.Port),
		zap.String("mode", string(desc.Mode)),
		zap.String("default_model", s.dispatcher.Config().Model))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.logger.Info("Shutting down server...")

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Error during server shutdown", zap.Error(err))
		return err
	}

	if s.stopMetrics != nil {
		s.stopMetrics()
	}
	if err := s.metrics.Shutdown(ctx); err != nil {
		s.logger.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := s.tracing.Shutdown(ctx); err != nil {
		s.logger.Error("Error shutting down tracer provider", zap.Error(err))
	}

	s.logger.Info("Server stopped")
	observability.SyncLogger(s.logger)
	return nil
}

// WaitForShutdown waits for shutdown signals and gracefully stops the server.
func (s *Server) WaitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	s.logger.Info("Received shutdown signal")
	_ = s.Stop()
}

// GetRouter returns the underlying chi router for testing purposes.
func (s *Server) GetRouter() *chi.Mux {
	return s.router
}

// GetDispatcher returns the dispatcher.
func (s *Server) GetDispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}
