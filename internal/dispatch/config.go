package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/semantrix/adaptroute/internal/models"
	"github.com/semantrix/adaptroute/internal/providers"
)

// Defaults for Config.
const (
	DefaultModel          = "gpt-3.5-turbo"
	DefaultTimeout        = 30 * time.Second
	DefaultMaxRetries     = 2
	DefaultRetryBaseDelay = time.Second

	// MaxTimeout and MaxRetryBaseDelay bound what a single call may ask for.
	MaxTimeout        = 10 * time.Minute
	MaxRetryBaseDelay = time.Minute
)

// Config is the dispatch configuration. The dispatcher holds a base Config and
// every call works on its own copy, adjusted by CallOptions.
type Config struct {
	// Provider forces the provider instead of inferring it from the model name.
	Provider       string        `mapstructure:"provider"`
	Model          string        `mapstructure:"model"`
	Temperature    float64       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens      int           `mapstructure:"max_tokens" validate:"gte=0"`
	Stream         bool          `mapstructure:"stream"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gte=0"`
	MaxRetries     int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" validate:"gte=0"`
	// Platform is the fallback template hint.
	Platform string `mapstructure:"platform"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Model:          DefaultModel,
		Temperature:    providers.DefaultTemperature,
		MaxTokens:      providers.DefaultMaxTokens,
		Timeout:        DefaultTimeout,
		MaxRetries:     DefaultMaxRetries,
		RetryBaseDelay: DefaultRetryBaseDelay,
	}
}

var configValidator = validator.New()

// Validate checks value ranges and the provider override.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid dispatch config: %w", err)
	}
	if c.Timeout <= 0 || c.Timeout > MaxTimeout {
		return fmt.Errorf("invalid dispatch config: timeout %s must be in (0, %s]", c.Timeout, MaxTimeout)
	}
	if c.RetryBaseDelay > MaxRetryBaseDelay {
		return fmt.Errorf("invalid dispatch config: retry base delay %s exceeds %s", c.RetryBaseDelay, MaxRetryBaseDelay)
	}
	if _, err := c.override(); err != nil {
		return err
	}
	return nil
}

func (c Config) override() (models.Provider, error) {
	if strings.TrimSpace(c.Provider) == "" {
		return "", nil
	}
	return models.ParseProvider(c.Provider)
}

// apply fills the unset request fields from the configuration.
func (c Config) apply(req models.GenerationRequest) models.GenerationRequest {
	if strings.TrimSpace(req.LogicalModel) == "" {
		req.LogicalModel = c.Model
	}
	if req.Temperature == nil {
		req.Temperature = models.Float64(c.Temperature)
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.MaxTokens
	}
	if c.Stream {
		req.Stream = true
	}
	return req
}

// CallOption adjusts the configuration of a single call.
type CallOption func(*Config)

// WithProvider forces the provider for this call.
func WithProvider(provider string) CallOption {
	return func(c *Config) { c.Provider = provider }
}

// WithModel sets the logical model used when the request names none.
func WithModel(model string) CallOption {
	return func(c *Config) { c.Model = model }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) CallOption {
	return func(c *Config) { c.Timeout = d }
}

// WithMaxRetries sets how many retries follow the first attempt.
func WithMaxRetries(n int) CallOption {
	return func(c *Config) { c.MaxRetries = n }
}

// WithRetryBaseDelay sets the backoff base delay.
func WithRetryBaseDelay(d time.Duration) CallOption {
	return func(c *Config) { c.RetryBaseDelay = d }
}

// WithStream requests a streamed response, which is collapsed into one result.
func WithStream(stream bool) CallOption {
	return func(c *Config) { c.Stream = stream }
}

// WithPlatform sets the fallback template hint.
func WithPlatform(platform string) CallOption {
	return func(c *Config) { c.Platform = platform }
}
