package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semantrix/adaptroute/internal/models"
	"github.com/semantrix/adaptroute/internal/providers"
)

func chatCall(provider models.Provider, model string) Call {
	binding := models.ProviderBinding{Provider: provider, WireModelID: model}
	return Call{
		Binding:  binding,
		Payload:  providers.Translate(models.GenerationRequest{Prompt: "hello"}, binding),
		CallerID: "caller-1",
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"development", ModeDevelopment, false},
		{"DEV", ModeDevelopment, false},
		{"production", ModeProduction, false},
		{" prod ", ModeProduction, false},
		{"staging", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestSelect(t *testing.T) {
	dev, err := Select(ModeDevelopment, Settings{})
	require.NoError(t, err)
	assert.Equal(t, ModeDevelopment, dev.Mode())
	assert.IsType(t, &Direct{}, dev)

	prod, err := Select(ModeProduction, Settings{Proxy: ProxyConfig{URL: "http://proxy.internal"}})
	require.NoError(t, err)
	assert.Equal(t, ModeProduction, prod.Mode())
	assert.IsType(t, &Proxy{}, prod)

	_, err = Select(Mode("staging"), Settings{})
	assert.Error(t, err)
}

func TestDirectOpenAI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body providers.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4", body.Model)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi"}}]}`))
	}))
	defer server.Close()

	direct := NewDirect(map[models.Provider]ProviderConfig{
		models.ProviderOpenAI: {APIKey: "sk-test", BaseURL: server.URL + "/"},
	}, server.Client())

	resp, err := direct.Do(context.Background(), chatCall(models.ProviderOpenAI, "gpt-4"))
	require.NoError(t, err)
	assert.True(t, resp.Success())
	assert.Equal(t, "application/json", resp.ContentType)
	assert.JSONEq(t, `{"choices":[{"message":{"content":"hi"}}]}`, string(resp.Body))
}

func TestDirectGemini(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-pro:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	direct := NewDirect(map[models.Provider]ProviderConfig{
		models.ProviderGemini: {APIKey: "g-key", BaseURL: server.URL},
	}, server.Client())

	resp, err := direct.Do(context.Background(), chatCall(models.ProviderGemini, "gemini-pro"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDirectGeminiStreamEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-pro:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {}\n\n"))
	}))
	defer server.Close()

	direct := NewDirect(map[models.Provider]ProviderConfig{
		models.ProviderGemini: {APIKey: "g-key", BaseURL: server.URL},
	}, server.Client())

	binding := models.ProviderBinding{Provider: models.ProviderGemini, WireModelID: "gemini-pro"}
	resp, err := direct.Do(context.Background(), Call{
		Binding: binding,
		Payload: providers.Translate(models.GenerationRequest{Prompt: "hello", Stream: true}, binding),
	})
	require.NoError(t, err)
	assert.Equal(t, "text/event-stream", resp.ContentType)
}

func TestDirectRejectsOversizedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"`))
		_, _ = w.Write(bytes.Repeat([]byte("a"), maxResponseBytes))
		_, _ = w.Write([]byte(`"}}]}`))
	}))
	defer server.Close()

	direct := NewDirect(map[models.Provider]ProviderConfig{
		models.ProviderOpenAI: {APIKey: "sk", BaseURL: server.URL},
	}, server.Client())

	resp, err := direct.Do(context.Background(), chatCall(models.ProviderOpenAI, "gpt-4"))
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, models.KindMalformedResponse, models.KindOf(err))
	assert.Contains(t, err.Error(), "exceeds")
}

func TestDirectAcceptsBodyAtLimit(t *testing.T) {
	prefix := `{"choices":[{"message":{"content":"`
	suffix := `"}}]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(prefix))
		_, _ = w.Write(bytes.Repeat([]byte("a"), maxResponseBytes-len(prefix)-len(suffix)))
		_, _ = w.Write([]byte(suffix))
	}))
	defer server.Close()

	direct := NewDirect(map[models.Provider]ProviderConfig{
		models.ProviderOpenAI: {APIKey: "sk", BaseURL: server.URL},
	}, server.Client())

	resp, err := direct.Do(context.Background(), chatCall(models.ProviderOpenAI, "gpt-4"))
	require.NoError(t, err)
	assert.Len(t, resp.Body, maxResponseBytes)
}

func TestDirectMissingKey(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	direct := NewDirect(map[models.Provider]ProviderConfig{
		models.ProviderDeepSeek: {APIKey: "  ", BaseURL: server.URL},
	}, server.Client())

	err := direct.Validate(models.ProviderDeepSeek)
	require.Error(t, err)
	assert.Equal(t, models.KindConfiguration, models.KindOf(err))
	assert.True(t, errors.Is(err, models.ErrConfiguration))

	_, err = direct.Do(context.Background(), chatCall(models.ProviderDeepSeek, "deepseek-chat"))
	require.Error(t, err)
	assert.False(t, called)
}

func TestDirectNonSuccessIsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer server.Close()

	direct := NewDirect(map[models.Provider]ProviderConfig{
		models.ProviderOpenAI: {APIKey: "k", BaseURL: server.URL},
	}, server.Client())

	resp, err := direct.Do(context.Background(), chatCall(models.ProviderOpenAI, "gpt-4"))
	require.NoError(t, err)
	assert.False(t, resp.Success())
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "text/html", resp.ContentType)
}

func TestDirectDescribeHidesKeys(t *testing.T) {
	direct := NewDirect(map[models.Provider]ProviderConfig{
		models.ProviderOpenAI: {APIKey: "sk-secret"},
	}, http.DefaultClient)

	desc := direct.Describe()
	assert.Equal(t, "direct", desc.Strategy)
	assert.Equal(t, DefaultOpenAIBaseURL, desc.Endpoints[models.ProviderOpenAI])
	assert.Equal(t, DefaultGeminiBaseURL, desc.Endpoints[models.ProviderGemini])
	assert.True(t, desc.Credentials[models.ProviderOpenAI])
	assert.False(t, desc.Credentials[models.ProviderGemini])

	data, err := json.Marshal(desc)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret")
}

func TestProxyEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "caller-1", r.Header.Get(CallerHeader))
		assert.Empty(t, r.Header.Get("Authorization"))

		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var env ProxyEnvelope
		require.NoError(t, json.Unmarshal(data, &env))
		assert.Equal(t, models.ProviderDeepSeek, env.Provider)
		assert.Equal(t, "deepseek-chat", env.Model)
		assert.False(t, env.Stream)

		var payload providers.ChatCompletionRequest
		require.NoError(t, json.Unmarshal(env.Payload, &payload))
		assert.Equal(t, "deepseek-chat", payload.Model)
		assert.Equal(t, "hello", payload.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"proxied"}}]}`))
	}))
	defer server.Close()

	proxy := NewProxy(ProxyConfig{URL: server.URL}, server.Client())
	resp, err := proxy.Do(context.Background(), chatCall(models.ProviderDeepSeek, "deepseek-chat"))
	require.NoError(t, err)
	assert.True(t, resp.Success())
}

func TestProxyMissingEndpoint(t *testing.T) {
	proxy := NewProxy(ProxyConfig{}, http.DefaultClient)

	err := proxy.Validate(models.ProviderOpenAI)
	require.Error(t, err)
	assert.Equal(t, models.KindConfiguration, models.KindOf(err))

	assert.Equal(t, Description{Mode: ModeProduction, Strategy: "proxy"}, proxy.Describe())
}

func TestProxyTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	proxy := NewProxy(ProxyConfig{URL: server.URL, Timeout: 20 * time.Millisecond}, server.Client())
	_, err := proxy.Do(context.Background(), chatCall(models.ProviderOpenAI, "gpt-4"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, models.KindTimeout, models.KindOf(err))
}
