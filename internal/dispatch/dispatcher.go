// Package dispatch turns a provider-agnostic GenerationRequest into a
// GenerationResult. It resolves the provider, translates the request, runs the
// retrying attempt loop over the selected transport and falls back to
// synthesized content when every attempt fails. Dispatch never fails for a
// reachable-but-failing provider.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/semantrix/adaptroute/internal/cost"
	"github.com/semantrix/adaptroute/internal/fallback"
	"github.com/semantrix/adaptroute/internal/models"
	"github.com/semantrix/adaptroute/internal/observability"
	"github.com/semantrix/adaptroute/internal/providers"
	"github.com/semantrix/adaptroute/internal/router"
	"github.com/semantrix/adaptroute/internal/router/health"
	"github.com/semantrix/adaptroute/internal/transport"
)

// Dispatcher is safe for concurrent use. Concurrent dispatches share only the
// health monitor.
type Dispatcher struct {
	config    Config
	transport transport.Strategy
	health    *health.Monitor
	logger    *zap.Logger
	metrics   *observability.Metrics
	tracing   *observability.Tracing
	onBackoff func(attempt int, delay time.Duration)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = metrics }
}

// WithTracing enables dispatch spans.
func WithTracing(tracing *observability.Tracing) Option {
	return func(d *Dispatcher) { d.tracing = tracing }
}

// WithHealthMonitor shares an existing health monitor.
func WithHealthMonitor(monitor *health.Monitor) Option {
	return func(d *Dispatcher) { d.health = monitor }
}

// WithBackoffHook observes every backoff sleep.
func WithBackoffHook(fn func(attempt int, delay time.Duration)) Option {
	return func(d *Dispatcher) { d.onBackoff = fn }
}

// New creates a dispatcher over strategy. The strategy is fixed for the
// lifetime of the dispatcher.
func New(strategy transport.Strategy, config Config, opts ...Option) (*Dispatcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		config:    config,
		transport: strategy,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.health == nil {
		d.health = health.NewMonitor(d.logger)
	}
	if d.tracing == nil {
		d.tracing = observability.NewTracing(observability.TracingConfig{}, d.logger)
	}

	return d, nil
}

// Dispatch generates content for req. The result always carries displayable
// content. The error is non-nil only when req is invalid or the provider is not
// configured; no network attempt is made in either case.
func (d *Dispatcher) Dispatch(ctx context.Context, req models.GenerationRequest, opts ...CallOption) (models.GenerationResult, error) {
	start := time.Now()
	cfg := d.config
	for _, opt := range opts {
		opt(&cfg)
	}

	req = cfg.apply(req)
	requestID := uuid.NewString()

	ctx, span := d.tracing.StartSpan(ctx, "dispatch.Dispatch",
		attribute.String("request_id", requestID),
		attribute.String("model", req.LogicalModel))

	result, err := d.dispatch(ctx, requestID, req, cfg)
	result.LatencyMs = time.Since(start).Milliseconds()

	d.tracing.EndSpan(span, err,
		attribute.String("provider", result.Provider.String()),
		attribute.Bool("success", result.Success),
		attribute.Int("attempts", result.Attempts),
		attribute.String("error_kind", string(result.ErrorKind)))

	if d.metrics != nil {
		d.metrics.RecordDispatch(result.Provider.String(), string(result.Source), string(result.ErrorKind), time.Since(start))
	}

	return result, err
}

func (d *Dispatcher) dispatch(ctx context.Context, requestID string, req models.GenerationRequest, cfg Config) (models.GenerationResult, error) {
	if err := req.Validate(); err != nil {
		d.logger.Warn("Rejected invalid generation request",
			zap.String("request_id", requestID),
			zap.Error(err))
		return d.fallbackResult(requestID, req, cfg, models.ProviderBinding{}, err), err
	}

	override, err := cfg.override()
	if err != nil {
		cerr := models.ConfigurationError("", "invalid provider override: %v", err)
		return d.fallbackResult(requestID, req, cfg, models.ProviderBinding{}, cerr), cerr
	}
	if err := cfg.Validate(); err != nil {
		cerr := models.ConfigurationError("", "invalid call options: %v", err)
		return d.fallbackResult(requestID, req, cfg, models.ProviderBinding{}, cerr), cerr
	}

	binding := router.ResolveWith(req.LogicalModel, override)

	if err := d.transport.Validate(binding.Provider); err != nil {
		d.logger.Error("Provider is not configured",
			zap.String("request_id", requestID),
			zap.String("provider", binding.Provider.String()),
			zap.String("mode", string(d.transport.Mode())),
			zap.Error(err))
		return d.fallbackResult(requestID, req, cfg, binding, err), err
	}

	result := d.execute(ctx, execution{
		requestID: requestID,
		request:   req,
		binding:   binding,
		payload:   providers.Translate(req, binding),
		config:    cfg,
	})

	if result.Success {
		d.logger.Info("Generation succeeded",
			zap.String("request_id", requestID),
			zap.String("provider", binding.Provider.String()),
			zap.String("model", binding.WireModelID),
			zap.Int("attempts", result.Attempts),
			zap.Int64("latency_ms", result.LatencyMs))
		return result, nil
	}

	result.Content = fallback.Synthesize(req, cfg.Platform)
	d.logger.Error("Serving fallback content",
		zap.String("request_id", requestID),
		zap.String("provider", binding.Provider.String()),
		zap.String("model", binding.WireModelID),
		zap.Int("attempts", result.Attempts),
		zap.String("error_kind", string(result.ErrorKind)),
		zap.String("last_error", result.Error))
	return result, nil
}

func (d *Dispatcher) fallbackResult(requestID string, req models.GenerationRequest, cfg Config, binding models.ProviderBinding, err error) models.GenerationResult {
	return models.GenerationResult{
		Content:   fallback.Synthesize(req, cfg.Platform),
		Success:   false,
		ErrorKind: models.KindOf(err),
		Source:    models.SourceFallback,
		RequestID: requestID,
		Provider:  binding.Provider,
		Model:     binding.WireModelID,
		Error:     err.Error(),
	}
}

// Batch dispatches reqs one after another with the same call options and
// returns one result per request, in order. Requests are never sent in
// parallel. Errors are reported through each result's ErrorKind.
func (d *Dispatcher) Batch(ctx context.Context, reqs []models.GenerationRequest, opts ...CallOption) []models.GenerationResult {
	results := make([]models.GenerationResult, 0, len(reqs))
	for i, req := range reqs {
		result, err := d.Dispatch(ctx, req, opts...)
		if err != nil {
			d.logger.Warn("Batch item failed before dispatch",
				zap.Int("index", i),
				zap.String("error_kind", string(result.ErrorKind)))
		}
		results = append(results, result)
	}
	return results
}

// CheckHealth returns the last-known health of provider.
func (d *Dispatcher) CheckHealth(provider models.Provider) models.ProviderHealth {
	return d.health.Query(provider)
}

// HealthStats returns aggregate attempt statistics for provider.
func (d *Dispatcher) HealthStats(provider models.Provider) health.ProviderMetrics {
	return d.health.Stats(provider)
}

// EstimateCost projects the cost of prompt on logicalModel. An empty model
// uses the configured default.
func (d *Dispatcher) EstimateCost(prompt, logicalModel string) cost.Estimate {
	if logicalModel == "" {
		logicalModel = d.config.Model
	}
	return cost.Project(prompt, logicalModel)
}

// Transport describes the transport strategy selected at startup.
func (d *Dispatcher) Transport() transport.Description {
	return d.transport.Describe()
}

// Config returns the base configuration.
func (d *Dispatcher) Config() Config {
	return d.config
}
