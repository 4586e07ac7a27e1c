package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

// MetricsConfig holds configuration for metrics collection.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Metrics provides Prometheus metrics for the dispatcher and its HTTP surface.
type Metrics struct {
	config   MetricsConfig
	logger   *zap.Logger
	registry *prometheus.Registry
	exporter *otelprometheus.Exporter
	provider *sdkmetric.MeterProvider

	// Request metrics
	requestsTotal    *prometheus.CounterVec
	requestsDuration *prometheus.HistogramVec

	// Dispatch metrics
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	retriesTotal     *prometheus.CounterVec

	// Provider metrics
	providerHealth  *prometheus.GaugeVec
	providerLatency *prometheus.HistogramVec
	providerErrors  *prometheus.CounterVec

	// Exported through the same registry by the OTel bridge
	attempts metric.Int64Counter
}

// NewMetrics creates a new metrics instance with its own registry.
func NewMetrics(config MetricsConfig, logger *zap.Logger) (*Metrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()

	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	m := &Metrics{
		config:   config,
		logger:   logger,
		registry: registry,
		exporter: exporter,
		provider: provider,
	}

	if err := m.initMetrics(); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) initMetrics() error {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adaptroute_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	m.requestsDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adaptroute_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	m.dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adaptroute_dispatch_total",
			Help: "Total number of dispatch calls by outcome",
		},
		[]string{"provider", "source", "error_kind"},
	)

	m.dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adaptroute_dispatch_duration_seconds",
			Help:    "End-to-end dispatch duration in seconds, including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	m.retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adaptroute_retries_total",
			Help: "Total number of backoff sleeps before a retry",
		},
		[]string{"provider"},
	)

	m.providerHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adaptroute_provider_available",
			Help: "Provider availability (1 = available, 0 = unavailable)",
		},
		[]string{"provider"},
	)

	m.providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adaptroute_provider_latency_seconds",
			Help:    "Provider attempt latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "model"},
	)

	m.providerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adaptroute_provider_errors_total",
			Help: "Total number of failed provider attempts",
		},
		[]string{"provider", "error_kind"},
	)

	collectors := []prometheus.Collector{
		m.requestsTotal,
		m.requestsDuration,
		m.dispatchTotal,
		m.dispatchDuration,
		m.retriesTotal,
		m.providerHealth,
		m.providerLatency,
		m.providerErrors,
	}

	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}

	attempts, err := m.provider.Meter("github.com/semantrix/adaptroute").Int64Counter(
		"adaptroute.provider.attempts",
		metric.WithDescription("Provider attempts issued by the executor"),
	)
	if err != nil {
		return err
	}
	m.attempts = attempts

	return nil
}

// RecordRequest records metrics for an HTTP request.
func (m *Metrics) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	statusStr := strconv.Itoa(statusCode)

	m.requestsTotal.WithLabelValues(method, endpoint, statusStr).Inc()
	m.requestsDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordDispatch records the outcome of one dispatch call.
func (m *Metrics) RecordDispatch(provider, source, errorKind string, duration time.Duration) {
	m.dispatchTotal.WithLabelValues(provider, source, errorKind).Inc()
	m.dispatchDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordAttempt records one provider attempt and its latency.
func (m *Metrics) RecordAttempt(ctx context.Context, provider, model string, latency time.Duration) {
	m.providerLatency.WithLabelValues(provider, model).Observe(latency.Seconds())
	m.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
	))
}

// RecordRetry records a backoff sleep.
func (m *Metrics) RecordRetry(provider string) {
	m.retriesTotal.WithLabelValues(provider).Inc()
}

// RecordProviderHealth updates the availability gauge of a provider.
func (m *Metrics) RecordProviderHealth(provider string, available bool) {
	value := 0.0
	if available {
		value = 1.0
	}
	m.providerHealth.WithLabelValues(provider).Set(value)
}

// RecordProviderError records a failed attempt.
func (m *Metrics) RecordProviderError(provider, errorKind string) {
	m.providerErrors.WithLabelValues(provider, errorKind).Inc()
}

// GetRegistry returns the Prometheus registry.
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the OTel meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// StartMetricsServer serves metrics until ctx is cancelled.
func (m *Metrics) StartMetricsServer(ctx context.Context) error {
	if !m.config.Enabled {
		m.logger.Info("Metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(m.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	m.logger.Info("Metrics server started",
		zap.Int("port", m.config.Port),
		zap.String("path", m.config.Path))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		m.logger.Error("Error shutting down metrics server", zap.Error(err))
	}

	return nil
}
