package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semantrix/adaptroute/internal/dispatch"
	"github.com/semantrix/adaptroute/internal/models"
	"github.com/semantrix/adaptroute/internal/transport"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func startMock(t *testing.T, opts options) (*mockProvider, *httptest.Server) {
	t.Helper()
	m := &mockProvider{opts: opts}
	srv := httptest.NewServer(m.router())
	t.Cleanup(srv.Close)
	return m, srv
}

func newDispatcher(t *testing.T, srv *httptest.Server, maxRetries int) *dispatch.Dispatcher {
	t.Helper()

	configs := map[models.Provider]transport.ProviderConfig{}
	for _, p := range models.AllProviders {
		configs[p] = transport.ProviderConfig{APIKey: "mock-key", BaseURL: srv.URL}
	}

	cfg := dispatch.DefaultConfig()
	cfg.MaxRetries = maxRetries
	cfg.RetryBaseDelay = time.Millisecond
	cfg.Timeout = 5 * time.Second

	d, err := dispatch.New(transport.NewDirect(configs, srv.Client()), cfg)
	require.NoError(t, err)
	return d
}

func TestMockChatThroughDispatcher(t *testing.T) {
	_, srv := startMock(t, options{})
	d := newDispatcher(t, srv, 0)

	result, err := d.Dispatch(context.Background(), models.GenerationRequest{Prompt: "ping"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Mock response to: ping", result.Content)
	require.NotNil(t, result.Usage)
	assert.Equal(t, 14, result.Usage.TotalTokens)
}

func TestMockGeminiThroughDispatcher(t *testing.T) {
	_, srv := startMock(t, options{})
	d := newDispatcher(t, srv, 0)

	result, err := d.Dispatch(context.Background(), models.GenerationRequest{Prompt: "ping", LogicalModel: "gemini-pro"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, models.ProviderGemini, result.Provider)
	assert.Equal(t, "Mock response to: ping", result.Content)
}

func TestMockStreamingThroughDispatcher(t *testing.T) {
	_, srv := startMock(t, options{})
	d := newDispatcher(t, srv, 0)

	result, err := d.Dispatch(context.Background(), models.GenerationRequest{Prompt: "ping", Stream: true})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Mock response to: ping", result.Content)
}

func TestMockGeminiStreamingThroughDispatcher(t *testing.T) {
	_, srv := startMock(t, options{})
	d := newDispatcher(t, srv, 0)

	result, err := d.Dispatch(context.Background(), models.GenerationRequest{Prompt: "ping", LogicalModel: "gemini-pro", Stream: true})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, models.ProviderGemini, result.Provider)
	assert.Equal(t, "Mock response to: ping", result.Content)
	require.NotNil(t, result.Usage)
	assert.Equal(t, 14, result.Usage.TotalTokens)
}

func TestMockFailFirstIsRetried(t *testing.T) {
	m, srv := startMock(t, options{failFirst: 2, failStatus: http.StatusBadGateway})
	d := newDispatcher(t, srv, 2)

	result, err := d.Dispatch(context.Background(), models.GenerationRequest{Prompt: "ping"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, int64(3), m.calls.Load())
}

func TestMockHTMLFailureFallsBack(t *testing.T) {
	_, srv := startMock(t, options{failFirst: 10, failHTML: true})
	d := newDispatcher(t, srv, 1)

	result, err := d.Dispatch(context.Background(), models.GenerationRequest{Prompt: "ping"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, models.SourceFallback, result.Source)
	assert.Equal(t, models.KindMalformedResponse, result.ErrorKind)
	assert.NotEmpty(t, result.Content)
}

func TestMockQueryFailures(t *testing.T) {
	m := &mockProvider{}
	r := m.router()

	tests := []struct {
		query  string
		status int
		ctype  string
	}{
		{"?fail=429", http.StatusTooManyRequests, "application/json"},
		{"?fail=500", http.StatusInternalServerError, "application/json"},
		{"?fail=bogus", http.StatusInternalServerError, "application/json"},
		{"?fail=html", http.StatusOK, "text/html"},
		{"", http.StatusOK, "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/chat/completions"+tt.query,
				strings.NewReader(`{"model":"gpt-4","messages":[{"role":"user","content":"hi"}]}`))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), tt.ctype)
		})
	}
}

func TestMockGeminiUnknownMethod(t *testing.T) {
	m := &mockProvider{}
	req := httptest.NewRequest(http.MethodPost, "/models/gemini-pro:countTokens", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	m.router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMockProxyEnvelope(t *testing.T) {
	_, srv := startMock(t, options{})

	strategy, err := transport.Select(transport.ModeProduction, transport.Settings{
		Proxy:  transport.ProxyConfig{URL: srv.URL + "/proxy"},
		Client: srv.Client(),
	})
	require.NoError(t, err)

	d, err := dispatch.New(strategy, dispatch.DefaultConfig())
	require.NoError(t, err)

	result, err := d.Dispatch(context.Background(), models.GenerationRequest{Prompt: "ping", CallerID: "tester"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Mock response to: ping", result.Content)
}
