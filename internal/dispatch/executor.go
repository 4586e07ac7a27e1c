package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/semantrix/adaptroute/internal/models"
	"github.com/semantrix/adaptroute/internal/providers"
	"github.com/semantrix/adaptroute/internal/router/health"
	"github.com/semantrix/adaptroute/internal/transport"
)

// execution is everything one execute call needs.
type execution struct {
	requestID string
	request   models.GenerationRequest
	binding   models.ProviderBinding
	payload   providers.WirePayload
	config    Config
}

// execute runs the attempt loop for one dispatch and always returns a result.
// Content is empty on failure; the caller fills in fallback text.
func (d *Dispatcher) execute(ctx context.Context, ex execution) models.GenerationResult {
	start := time.Now()
	provider := ex.binding.Provider

	policy := Policy{
		MaxRetries: ex.config.MaxRetries,
		BaseDelay:  ex.config.RetryBaseDelay,
		OnBackoff: func(attempt int, delay time.Duration) {
			d.logger.Debug("Backing off before retry",
				zap.String("request_id", ex.requestID),
				zap.String("provider", provider.String()),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			d.tracing.AddEvent(ctx, "backoff",
				attribute.Int("attempt", attempt),
				attribute.Int64("delay_ms", delay.Milliseconds()))
			if d.metrics != nil {
				d.metrics.RecordRetry(provider.String())
			}
			if d.onBackoff != nil {
				d.onBackoff(attempt, delay)
			}
		},
	}

	extraction, state, err := WithRetry(ctx, policy, func(ctx context.Context, state *State) (providers.Extraction, error) {
		return d.attempt(ctx, ex, state, policy)
	})

	result := models.GenerationResult{
		RequestID: ex.requestID,
		Provider:  provider,
		Model:     ex.binding.WireModelID,
		Attempts:  state.Attempt + 1,
		LatencyMs: time.Since(start).Milliseconds(),
	}

	if err == nil {
		result.Content = extraction.Content
		result.Usage = extraction.Usage
		result.Success = true
		result.Source = models.SourceLive
		return result
	}

	result.Source = models.SourceFallback
	switch {
	case state.LastError != nil:
		result.ErrorKind = models.KindOf(state.LastError)
		result.Error = state.LastError.Error()
	default:
		// ctx was done before the first attempt
		result.ErrorKind = models.KindOf(err)
		if result.ErrorKind != models.KindTimeout {
			result.ErrorKind = models.KindCancelled
		}
		result.Error = err.Error()
	}

	if state.LastError != nil && result.Attempts > ex.config.MaxRetries {
		d.logger.Debug("Retries exhausted",
			zap.String("request_id", ex.requestID),
			zap.Error(fmt.Errorf("%w after %d attempts: %v", models.ErrExhaustedRetries, result.Attempts, state.LastError)))
	}
	return result
}

// attempt performs one provider call and classifies its outcome.
func (d *Dispatcher) attempt(ctx context.Context, ex execution, state *State, policy Policy) (providers.Extraction, error) {
	provider := ex.binding.Provider

	d.logger.Debug("Dispatching attempt",
		zap.String("request_id", ex.requestID),
		zap.String("provider", provider.String()),
		zap.String("model", ex.binding.WireModelID),
		zap.Int("attempt", state.Attempt))

	attemptCtx := ctx
	if ex.config.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, ex.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := d.transport.Do(attemptCtx, transport.Call{
		Binding:  ex.binding,
		Payload:  ex.payload,
		CallerID: ex.request.CallerID,
	})
	latency := time.Since(start)

	if d.metrics != nil {
		d.metrics.RecordAttempt(ctx, provider.String(), ex.binding.WireModelID, latency)
	}

	var extraction providers.Extraction
	if err != nil {
		err = classifyTransportError(ctx, provider, err)
	} else {
		extraction, err = interpret(provider, ex.payload.Stream, resp)
	}

	if err == nil {
		d.health.Record(provider, health.Terminal(true, latency, ""))
		if d.metrics != nil {
			d.metrics.RecordProviderHealth(provider.String(), true)
		}
		return extraction, nil
	}

	kind := models.KindOf(err)
	// A caller that gave up says nothing about the provider.
	cancelled := ctx.Err() != nil || kind == models.KindCancelled
	terminal := !cancelled && (state.Last(policy) || !retryable(err))
	if terminal {
		d.health.Record(provider, health.Terminal(false, latency, err.Error()))
		if d.metrics != nil {
			d.metrics.RecordProviderHealth(provider.String(), false)
		}
	} else {
		d.health.Record(provider, health.Interim(latency, err.Error()))
	}

	if d.metrics != nil {
		d.metrics.RecordProviderError(provider.String(), string(kind))
	}
	d.logger.Warn("Provider attempt failed",
		zap.String("request_id", ex.requestID),
		zap.String("provider", provider.String()),
		zap.Int("attempt", state.Attempt),
		zap.String("error_kind", string(kind)),
		zap.Duration("latency", latency),
		zap.Error(err))

	return extraction, err
}

// interpret validates a raw response and extracts its content.
func interpret(provider models.Provider, stream bool, resp *transport.Response) (providers.Extraction, error) {
	if !providers.IsStructured(resp.ContentType, stream) {
		msg := fmt.Sprintf("unexpected content type %q (HTTP %d)", resp.ContentType, resp.StatusCode)
		return providers.Extraction{}, models.NewDispatchError(models.KindMalformedResponse, provider, resp.StatusCode, msg, nil)
	}

	if !resp.Success() {
		msg := providers.ErrorMessage(resp.StatusCode, resp.ContentType, resp.Body)
		return providers.Extraction{}, models.NewDispatchError(models.KindForStatus(resp.StatusCode), provider, resp.StatusCode, msg, nil)
	}

	var (
		extraction providers.Extraction
		err        error
	)
	if stream && providers.IsEventStream(resp.ContentType) {
		extraction, err = providers.ExtractStream(provider, resp.Body)
	} else {
		extraction, err = providers.Extract(provider, resp.Body)
	}
	if err != nil {
		return providers.Extraction{}, models.NewDispatchError(models.KindMalformedResponse, provider, resp.StatusCode, "could not read generated content", err)
	}
	return extraction, nil
}

// classifyTransportError maps a request-level failure onto an ErrorKind.
func classifyTransportError(parent context.Context, provider models.Provider, err error) error {
	var de *models.DispatchError
	if errors.As(err, &de) {
		return de
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewDispatchError(models.KindTimeout, provider, 0, "request timed out", err)
	case errors.Is(err, context.Canceled) && parent.Err() != nil:
		return models.NewDispatchError(models.KindCancelled, provider, 0, "request cancelled", err)
	default:
		return models.NewDispatchError(models.KindTransientNetwork, provider, 0, "request failed", err)
	}
}
