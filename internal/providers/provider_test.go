package providers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semantrix/adaptroute/internal/models"
)

func TestTranslateChat(t *testing.T) {
	req := models.GenerationRequest{
		Prompt:       "Rewrite this for LinkedIn",
		SystemPrompt: "You are a copywriter.",
		Temperature:  models.Float64(0.3),
		MaxTokens:    256,
		Stream:       true,
	}

	for _, provider := range []models.Provider{models.ProviderOpenAI, models.ProviderDeepSeek} {
		t.Run(provider.String(), func(t *testing.T) {
			payload := Translate(req, models.ProviderBinding{Provider: provider, WireModelID: "wire-model"})
			assert.Equal(t, provider, payload.Provider)
			assert.Equal(t, "wire-model", payload.Model)
			assert.True(t, payload.Stream)

			body, ok := payload.Body.(*ChatCompletionRequest)
			require.True(t, ok)
			assert.Equal(t, "wire-model", body.Model)
			assert.Equal(t, 256, body.MaxTokens)
			assert.Equal(t, 0.3, body.Temperature)
			assert.True(t, body.Stream)
			require.Len(t, body.Messages, 2)
			assert.Equal(t, ChatMessage{Role: RoleSystem, Content: "You are a copywriter."}, body.Messages[0])
			assert.Equal(t, ChatMessage{Role: RoleUser, Content: "Rewrite this for LinkedIn"}, body.Messages[1])
		})
	}
}

func TestTranslateChatWithoutSystemPrompt(t *testing.T) {
	payload := Translate(models.GenerationRequest{Prompt: "hi"}, models.ProviderBinding{Provider: models.ProviderOpenAI, WireModelID: "gpt-4"})

	body := payload.Body.(*ChatCompletionRequest)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, RoleUser, body.Messages[0].Role)
	assert.Equal(t, DefaultMaxTokens, body.MaxTokens)
	assert.Equal(t, DefaultTemperature, body.Temperature)
	assert.False(t, body.Stream)
}

func TestTranslateGemini(t *testing.T) {
	req := models.GenerationRequest{
		Prompt:       "Summarize the launch notes",
		SystemPrompt: "Be brief.",
		Temperature:  models.Float64(1.1),
		MaxTokens:    300,
		Stream:       true,
	}

	payload := Translate(req, models.ProviderBinding{Provider: models.ProviderGemini, WireModelID: "gemini-pro"})
	assert.True(t, payload.Stream)

	body, ok := payload.Body.(*GenerateContentRequest)
	require.True(t, ok)
	require.Len(t, body.Contents, 1)
	require.Len(t, body.Contents[0].Parts, 1)
	assert.Equal(t, "Be brief.\n\nSummarize the launch notes", body.Contents[0].Parts[0].Text)
	assert.Equal(t, GenerationConfig{
		Temperature:     1.1,
		TopK:            DefaultGeminiTopK,
		TopP:            DefaultGeminiTopP,
		MaxOutputTokens: 300,
	}, body.GenerationConfig)
}

func TestTranslateGeminiDefaults(t *testing.T) {
	payload := Translate(models.GenerationRequest{Prompt: "hi"}, models.ProviderBinding{Provider: models.ProviderGemini, WireModelID: "gemini-pro"})

	body := payload.Body.(*GenerateContentRequest)
	assert.Equal(t, "hi", body.Contents[0].Parts[0].Text)
	assert.Equal(t, DefaultGeminiMaxTokens, body.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, DefaultTemperature, body.GenerationConfig.Temperature)
}

func TestTranslateIsIdempotent(t *testing.T) {
	req := models.GenerationRequest{Prompt: "hi", SystemPrompt: "sys", MaxTokens: 10}

	for _, provider := range models.AllProviders {
		binding := models.ProviderBinding{Provider: provider, WireModelID: "m"}
		first, err := Translate(req, binding).Marshal()
		require.NoError(t, err)
		second, err := Translate(req, binding).Marshal()
		require.NoError(t, err)
		assert.JSONEq(t, string(first), string(second), provider.String())
	}
}

func TestChatPayloadWireShape(t *testing.T) {
	data, err := Translate(models.GenerationRequest{Prompt: "hi", Temperature: models.Float64(0)}, models.ProviderBinding{Provider: models.ProviderOpenAI, WireModelID: "gpt-4"}).Marshal()
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "gpt-4", raw["model"])
	assert.Equal(t, float64(0), raw["temperature"])
	assert.Equal(t, float64(DefaultMaxTokens), raw["max_tokens"])
	assert.Equal(t, false, raw["stream"])
}

func TestExtractChat(t *testing.T) {
	body := []byte(`{"id":"chatcmpl-1","choices":[{"index":0,"message":{"role":"assistant","content":"Hello there"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`)

	out, err := Extract(models.ProviderOpenAI, body)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", out.Content)
	require.NotNil(t, out.Usage)
	assert.Equal(t, models.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}, *out.Usage)
}

func TestExtractChatWithoutUsage(t *testing.T) {
	out, err := Extract(models.ProviderDeepSeek, []byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Content)
	assert.Nil(t, out.Usage)
}

func TestExtractGemini(t *testing.T) {
	body := []byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"First"},{"text":"Second"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":6,"totalTokenCount":10}}`)

	out, err := Extract(models.ProviderGemini, body)
	require.NoError(t, err)
	assert.Equal(t, "First", out.Content)
	require.NotNil(t, out.Usage)
	assert.Equal(t, 10, out.Usage.TotalTokens)
}

func TestExtractFailures(t *testing.T) {
	tests := []struct {
		name     string
		provider models.Provider
		body     string
	}{
		{"chat no choices", models.ProviderOpenAI, `{"choices":[]}`},
		{"chat empty content", models.ProviderOpenAI, `{"choices":[{"message":{"role":"assistant","content":""}}]}`},
		{"gemini no candidates", models.ProviderGemini, `{"candidates":[]}`},
		{"gemini blocked", models.ProviderGemini, `{"candidates":[{"finishReason":"SAFETY"}]}`},
		{"not json at all", models.ProviderDeepSeek, `upstream exploded`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.provider, []byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestExtractRepairsAlmostJSON(t *testing.T) {
	body := []byte(`{"choices":[{"message":{"role":"assistant","content":"repaired"}}],}`)

	out, err := Extract(models.ProviderOpenAI, body)
	require.NoError(t, err)
	assert.Equal(t, "repaired", out.Content)
}

func TestExtractStreamChat(t *testing.T) {
	body := []byte("data: {\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\"}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		": keep-alive\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"}}],\"usage\":{\"prompt_tokens\":1,\"completion_tokens\":2,\"total_tokens\":3}}\n\n" +
		"data: [DONE]\n\n")

	out, err := ExtractStream(models.ProviderOpenAI, body)
	require.NoError(t, err)
	assert.Equal(t, "Hello", out.Content)
	require.NotNil(t, out.Usage)
	assert.Equal(t, 3, out.Usage.TotalTokens)
}

func TestExtractStreamGemini(t *testing.T) {
	body := []byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"A\"}]}}]}\n\n" +
		"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"B\"}]}}]}\n\n")

	out, err := ExtractStream(models.ProviderGemini, body)
	require.NoError(t, err)
	assert.Equal(t, "AB", out.Content)
}

func TestExtractStreamEmpty(t *testing.T) {
	_, err := ExtractStream(models.ProviderOpenAI, []byte("data: [DONE]\n\n"))
	assert.Error(t, err)
}

func TestIsStructured(t *testing.T) {
	tests := []struct {
		contentType string
		stream      bool
		want        bool
	}{
		{"application/json", false, true},
		{"application/json; charset=utf-8", false, true},
		{"application/problem+json", false, true},
		{"text/html; charset=utf-8", false, false},
		{"text/plain", false, false},
		{"", false, false},
		{"text/event-stream", false, false},
		{"text/event-stream", true, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsStructured(tt.contentType, tt.stream), "%q stream=%v", tt.contentType, tt.stream)
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		want        string
	}{
		{"openai envelope", 429, "application/json", `{"error":{"message":"Rate limit exceeded","type":"rate_limit_error"}}`, "Rate limit exceeded"},
		{"string error", 400, "application/json", `{"error":"bad model"}`, "bad model"},
		{"top level message", 500, "application/json", `{"message":"boom"}`, "boom"},
		{"json without message", 503, "application/json", `{"status":"down"}`, "HTTP 503: Service Unavailable"},
		{"html body", 502, "text/html", `<html>Bad gateway</html>`, "HTTP 502: Bad Gateway"},
		{"unknown status", 599, "", ``, "HTTP 599"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorMessage(tt.status, tt.contentType, []byte(tt.body)))
		})
	}
}
