package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/semantrix/adaptroute/internal/models"
)

// Default public endpoints for direct mode.
const (
	DefaultOpenAIBaseURL   = "https://api.openai.com/v1"
	DefaultGeminiBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	DefaultDeepSeekBaseURL = "https://api.deepseek.com/v1"
)

// DefaultBaseURL returns the public endpoint for provider.
func DefaultBaseURL(provider models.Provider) string {
	switch provider {
	case models.ProviderGemini:
		return DefaultGeminiBaseURL
	case models.ProviderDeepSeek:
		return DefaultDeepSeekBaseURL
	default:
		return DefaultOpenAIBaseURL
	}
}

// Direct calls providers on their public endpoints with locally configured
// credentials. Used in development mode.
type Direct struct {
	providers map[models.Provider]ProviderConfig
	client    *http.Client
}

// NewDirect creates a direct strategy. Providers without a base URL use the
// public default.
func NewDirect(configs map[models.Provider]ProviderConfig, client *http.Client) *Direct {
	resolved := make(map[models.Provider]ProviderConfig, len(models.AllProviders))
	for _, p := range models.AllProviders {
		cfg := configs[p]
		cfg.APIKey = strings.TrimSpace(cfg.APIKey)
		if cfg.BaseURL == "" {
			cfg.BaseURL = DefaultBaseURL(p)
		}
		cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		resolved[p] = cfg
	}

	return &Direct{providers: resolved, client: client}
}

func (d *Direct) Mode() Mode { return ModeDevelopment }

// Validate fails when the provider has no credential.
func (d *Direct) Validate(provider models.Provider) error {
	if d.providers[provider].APIKey == "" {
		return models.ConfigurationError(provider, "no API key configured for %s in development mode", provider)
	}
	return nil
}

// Do sends the payload to the provider's endpoint.
func (d *Direct) Do(ctx context.Context, call Call) (*Response, error) {
	provider := call.Binding.Provider
	if err := d.Validate(provider); err != nil {
		return nil, err
	}

	body, err := call.Payload.Marshal()
	if err != nil {
		return nil, err
	}

	cfg := d.providers[provider]
	endpoint := d.endpoint(provider, call.Binding.WireModelID, call.Payload.Stream)
	return doJSON(ctx, d.client, provider, endpoint, body, authHeaders(provider, cfg.APIKey))
}

// Describe lists the endpoint per provider and whether a credential is present.
func (d *Direct) Describe() Description {
	desc := Description{
		Mode:        ModeDevelopment,
		Strategy:    "direct",
		Endpoints:   make(map[models.Provider]string, len(d.providers)),
		Credentials: make(map[models.Provider]bool, len(d.providers)),
	}
	for p, cfg := range d.providers {
		desc.Endpoints[p] = cfg.BaseURL
		desc.Credentials[p] = cfg.APIKey != ""
	}
	return desc
}

func (d *Direct) endpoint(provider models.Provider, model string, stream bool) string {
	base := d.providers[provider].BaseURL
	if provider == models.ProviderGemini {
		if stream {
			return fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", base, url.PathEscape(model))
		}
		return fmt.Sprintf("%s/models/%s:generateContent", base, url.PathEscape(model))
	}
	return base + "/chat/completions"
}

func authHeaders(provider models.Provider, key string) map[string]string {
	if provider == models.ProviderGemini {
		return map[string]string{"x-goog-api-key": key}
	}
	return map[string]string{"Authorization": "Bearer " + key}
}
