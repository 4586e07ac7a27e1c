package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/semantrix/adaptroute/internal/models"
)

// CallerHeader carries the caller identity to the proxy.
const CallerHeader = "X-Caller-ID"

// ProxyEnvelope is the body posted to the internal proxy.
type ProxyEnvelope struct {
	Provider models.Provider `json:"provider"`
	Model    string          `json:"model"`
	Stream   bool            `json:"stream,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// Proxy forwards every call to an internal proxy that owns the provider
// credentials. Used in production mode; no credentials live in this process.
type Proxy struct {
	cfg    ProxyConfig
	client *http.Client
}

// NewProxy creates a proxied strategy.
func NewProxy(cfg ProxyConfig, client *http.Client) *Proxy {
	cfg.URL = strings.TrimSpace(cfg.URL)
	return &Proxy{cfg: cfg, client: client}
}

func (p *Proxy) Mode() Mode { return ModeProduction }

// Validate fails when no proxy endpoint is configured.
func (p *Proxy) Validate(provider models.Provider) error {
	if p.cfg.URL == "" {
		return models.ConfigurationError(provider, "no proxy endpoint configured in production mode")
	}
	return nil
}

// Do wraps the payload in an envelope and posts it to the proxy.
func (p *Proxy) Do(ctx context.Context, call Call) (*Response, error) {
	if err := p.Validate(call.Binding.Provider); err != nil {
		return nil, err
	}

	payload, err := call.Payload.Marshal()
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(ProxyEnvelope{
		Provider: call.Binding.Provider,
		Model:    call.Binding.WireModelID,
		Stream:   call.Payload.Stream,
		Payload:  payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal proxy envelope: %w", err)
	}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	headers := map[string]string{}
	if call.CallerID != "" {
		headers[CallerHeader] = call.CallerID
	}
	return doJSON(ctx, p.client, call.Binding.Provider, p.cfg.URL, body, headers)
}

// Describe reports the proxy endpoint.
func (p *Proxy) Describe() Description {
	return Description{
		Mode:     ModeProduction,
		Strategy: "proxy",
		ProxyURL: p.cfg.URL,
	}
}
