package health

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/semantrix/adaptroute/internal/models"
)

// Outcome is the result of one provider attempt as seen by the monitor.
type Outcome struct {
	// Available is nil for interim attempts, which leave availability untouched.
	Available *bool
	Latency   time.Duration
	Error     string
}

// Terminal builds the outcome of the final attempt of a dispatch.
func Terminal(available bool, latency time.Duration, errMsg string) Outcome {
	return Outcome{Available: &available, Latency: latency, Error: errMsg}
}

// Interim builds the outcome of an attempt that will be retried.
func Interim(latency time.Duration, errMsg string) Outcome {
	return Outcome{Latency: latency, Error: errMsg}
}

// ProviderMetrics tracks aggregate attempt statistics for a provider.
type ProviderMetrics struct {
	TotalChecks      int64         `json:"total_checks"`
	SuccessfulChecks int64         `json:"successful_checks"`
	FailedChecks     int64         `json:"failed_checks"`
	LastCheck        time.Time     `json:"last_check"`
	LastLatency      time.Duration `json:"last_latency"`
	AverageLatency   time.Duration `json:"average_latency"`
	Uptime           float64       `json:"uptime"`
}

// Monitor tracks the last-known health of every provider the process has called.
// Records are replaced whole under the lock, so readers never see a torn update.
type Monitor struct {
	mu      sync.RWMutex
	records map[models.Provider]models.ProviderHealth
	metrics map[models.Provider]*ProviderMetrics
	now     func() time.Time
	logger  *zap.Logger
}

// NewMonitor creates an empty health monitor.
func NewMonitor(logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		records: make(map[models.Provider]models.ProviderHealth),
		metrics: make(map[models.Provider]*ProviderMetrics),
		now:     time.Now,
		logger:  logger,
	}
}

// Record stores the outcome of one attempt against provider.
func (m *Monitor) Record(provider models.Provider, outcome Outcome) models.ProviderHealth {
	latencyMs := outcome.Latency.Milliseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	prev, seen := m.records[provider]

	checkedAt := m.now()
	if !checkedAt.After(prev.LastCheckedAt) {
		checkedAt = prev.LastCheckedAt.Add(time.Nanosecond)
	}

	available := true
	if seen {
		available = prev.Available
	}
	if outcome.Available != nil {
		available = *outcome.Available
	}

	next := models.ProviderHealth{
		Provider:      provider,
		Available:     available,
		LastCheckedAt: checkedAt,
		LastLatencyMs: &latencyMs,
		LastError:     outcome.Error,
	}
	m.records[provider] = next

	m.updateMetrics(provider, outcome, checkedAt)

	if outcome.Available != nil && seen && prev.Available != available {
		m.logger.Info("Provider availability changed",
			zap.String("provider", provider.String()),
			zap.Bool("available", available),
			zap.String("last_error", outcome.Error))
	}

	return next
}

func (m *Monitor) updateMetrics(provider models.Provider, outcome Outcome, at time.Time) {
	metrics := m.metrics[provider]
	if metrics == nil {
		metrics = &ProviderMetrics{}
		m.metrics[provider] = metrics
	}

	metrics.TotalChecks++
	metrics.LastCheck = at
	metrics.LastLatency = outcome.Latency

	if outcome.Error == "" {
		metrics.SuccessfulChecks++
		if metrics.AverageLatency == 0 {
			metrics.AverageLatency = outcome.Latency
		} else {
			// Exponential moving average
			alpha := 0.1
			metrics.AverageLatency = time.Duration(
				float64(metrics.AverageLatency)*(1-alpha) + float64(outcome.Latency)*alpha,
			)
		}
	} else {
		metrics.FailedChecks++
	}

	metrics.Uptime = float64(metrics.SuccessfulChecks) / float64(metrics.TotalChecks) * 100
}

// Query returns the current record for provider. A provider that was never
// called is reported available with a zero LastCheckedAt.
func (m *Monitor) Query(provider models.Provider) models.ProviderHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rec, ok := m.records[provider]; ok {
		return rec
	}
	return models.ProviderHealth{Provider: provider, Available: true}
}

// Snapshot returns the record of every known provider.
func (m *Monitor) Snapshot() map[models.Provider]models.ProviderHealth {
	result := make(map[models.Provider]models.ProviderHealth, len(models.AllProviders))
	for _, p := range models.AllProviders {
		result[p] = m.Query(p)
	}
	return result
}

// Stats returns a copy of the aggregate statistics for provider.
func (m *Monitor) Stats(provider models.Provider) ProviderMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if metrics, ok := m.metrics[provider]; ok {
		return *metrics
	}
	return ProviderMetrics{}
}
