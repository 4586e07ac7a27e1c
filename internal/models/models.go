package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Provider identifies one of the supported upstream AI providers.
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderGemini   Provider = "gemini"
	ProviderDeepSeek Provider = "deepseek"
)

// AllProviders lists every provider in a stable order.
var AllProviders = []Provider{ProviderOpenAI, ProviderGemini, ProviderDeepSeek}

// ParseProvider converts a provider name into a Provider, ignoring case.
func ParseProvider(name string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(name))) {
	case ProviderOpenAI:
		return ProviderOpenAI, nil
	case ProviderGemini:
		return ProviderGemini, nil
	case ProviderDeepSeek:
		return ProviderDeepSeek, nil
	default:
		return "", fmt.Errorf("unknown provider %q", name)
	}
}

// String returns the provider name.
func (p Provider) String() string {
	return string(p)
}

// IsChat reports whether the provider speaks the chat-completions message format.
func (p Provider) IsChat() bool {
	return p == ProviderOpenAI || p == ProviderDeepSeek
}

// Source tells whether a result came from a live provider or was synthesized locally.
type Source string

const (
	SourceLive     Source = "live"
	SourceFallback Source = "fallback"
)

// GenerationRequest represents a provider-agnostic request for generated content.
type GenerationRequest struct {
	Prompt       string   `json:"prompt" validate:"required"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	LogicalModel string   `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens    int      `json:"max_tokens,omitempty" validate:"gte=0"`
	Stream       bool     `json:"stream,omitempty"`
	CallerID     string   `json:"caller_id,omitempty"`
}

var validate = validator.New()

// Validate checks the request invariants.
func (r GenerationRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return NewDispatchError(KindInvalidRequest, "", 0, describeValidation(err), ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return NewDispatchError(KindInvalidRequest, "", 0, "prompt is required", ErrInvalidRequest)
	}
	return nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param()))
		case "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be less than or equal to %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s validation failed on '%s' tag", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// Float64 returns a pointer to v, for optional request fields.
func Float64(v float64) *float64 {
	return &v
}

// ProviderBinding is the resolved provider and wire model id for one call.
type ProviderBinding struct {
	Provider    Provider `json:"provider"`
	WireModelID string   `json:"wire_model_id"`
}

// Usage represents token usage statistics.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerationResult is the uniform outcome of one dispatch call.
type GenerationResult struct {
	Content   string    `json:"content"`
	Usage     *Usage    `json:"usage,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	Success   bool      `json:"success"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Source    Source    `json:"source"`

	RequestID string   `json:"request_id,omitempty"`
	Provider  Provider `json:"provider,omitempty"`
	Model     string   `json:"model,omitempty"`
	Attempts  int      `json:"attempts"`
	Error     string   `json:"error,omitempty"`
}

// ProviderHealth is the last-known availability snapshot of one provider.
type ProviderHealth struct {
	Provider      Provider  `json:"provider"`
	Available     bool      `json:"available"`
	LastCheckedAt time.Time `json:"last_checked_at"`
	LastLatencyMs *int64    `json:"last_latency_ms,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// Checked reports whether the provider has been called at least once.
func (h ProviderHealth) Checked() bool {
	return !h.LastCheckedAt.IsZero()
}
