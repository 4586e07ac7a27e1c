// Package transport decides how provider calls leave the process: straight to
// the provider with credentials attached, or through an internal proxy that
// holds the credentials itself. The choice is made once at startup.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/semantrix/adaptroute/internal/models"
	"github.com/semantrix/adaptroute/internal/providers"
)

// Mode is the deployment mode the process runs in.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// ParseMode converts a configured mode name into a Mode.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "development", "dev", "local":
		return ModeDevelopment, nil
	case "production", "prod":
		return ModeProduction, nil
	default:
		return "", fmt.Errorf("unknown deployment mode %q", name)
	}
}

// maxResponseBytes caps how much of a provider response is read into memory.
const maxResponseBytes = 8 << 20

// Call is one outbound provider call.
type Call struct {
	Binding  models.ProviderBinding
	Payload  providers.WirePayload
	CallerID string
}

// Response is a raw provider response.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Success reports whether the status code is 2xx.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Strategy issues provider calls for one deployment mode.
type Strategy interface {
	// Mode returns the deployment mode this strategy serves.
	Mode() Mode

	// Validate reports a configuration error that makes any call to the
	// provider pointless, without touching the network.
	Validate(provider models.Provider) error

	// Do performs a single attempt. Request-level failures are returned as errors;
	// any HTTP response, successful or not, is returned as a Response.
	Do(ctx context.Context, call Call) (*Response, error)

	// Describe returns an inspectable summary for diagnostics. It never
	// contains credentials.
	Describe() Description
}

// Description is the diagnostic view of the selected strategy.
type Description struct {
	Mode        Mode                       `json:"mode"`
	Strategy    string                     `json:"strategy"`
	Endpoints   map[models.Provider]string `json:"endpoints,omitempty"`
	ProxyURL    string                     `json:"proxy_url,omitempty"`
	Credentials map[models.Provider]bool   `json:"credentials,omitempty"`
}

// ProviderConfig holds the direct-mode settings for one provider.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// ProxyConfig holds the production-mode proxy settings.
type ProxyConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Settings is everything Select needs to build either strategy.
type Settings struct {
	Providers map[models.Provider]ProviderConfig
	Proxy     ProxyConfig
	Client    *http.Client
}

// Select builds the strategy for mode.
func Select(mode Mode, settings Settings) (Strategy, error) {
	client := settings.Client
	if client == nil {
		client = &http.Client{}
	}

	switch mode {
	case ModeDevelopment:
		return NewDirect(settings.Providers, client), nil
	case ModeProduction:
		return NewProxy(settings.Proxy, client), nil
	default:
		return nil, fmt.Errorf("unknown deployment mode %q", mode)
	}
}

func doJSON(ctx context.Context, client *http.Client, provider models.Provider, url string, body []byte, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) > maxResponseBytes {
		return nil, models.NewDispatchError(models.KindMalformedResponse, provider, resp.StatusCode,
			fmt.Sprintf("response exceeds %d bytes", maxResponseBytes), nil)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}
