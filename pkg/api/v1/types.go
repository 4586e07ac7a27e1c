package v1

import (
	"time"
)

// DispatchOptions are per-call overrides of the server's dispatch configuration.
type DispatchOptions struct {
	Provider         string `json:"provider,omitempty" validate:"omitempty,oneof=openai gemini deepseek"`
	Platform         string `json:"platform,omitempty"`
	TimeoutMs        *int   `json:"timeout_ms,omitempty" validate:"omitempty,gt=0,lte=120000"`
	MaxRetries       *int   `json:"max_retries,omitempty" validate:"omitempty,gte=0,lte=10"`
	RetryBaseDelayMs *int   `json:"retry_base_delay_ms,omitempty" validate:"omitempty,gte=0,lte=10000"`
}

// GenerateRequest represents a content generation request from a client.
type GenerateRequest struct {
	Prompt       string   `json:"prompt" validate:"required"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Model        string   `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens    int      `json:"max_tokens,omitempty" validate:"gte=0"`
	Stream       bool     `json:"stream,omitempty"`
	CallerID     string   `json:"caller_id,omitempty"`
	DispatchOptions
}

// GenerateResponse represents the outcome of one generation. Content is always
// populated; Source tells whether it came from a provider or from fallback.
type GenerateResponse struct {
	RequestID string `json:"request_id"`
	Content   string `json:"content"`
	Success   bool   `json:"success"`
	Source    string `json:"source"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	Attempts  int    `json:"attempts"`
	LatencyMs int64  `json:"latency_ms"`
	Usage     *Usage `json:"usage,omitempty"`
}

// Usage represents token usage statistics.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// BatchRequest dispatches several prompts sequentially with one configuration.
type BatchRequest struct {
	Prompts      []string `json:"prompts" validate:"required,min=1,max=50,dive,required"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Model        string   `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens    int      `json:"max_tokens,omitempty" validate:"gte=0"`
	CallerID     string   `json:"caller_id,omitempty"`
	DispatchOptions
}

// BatchResponse holds one result per prompt, in request order.
type BatchResponse struct {
	Results   []GenerateResponse `json:"results"`
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Fallbacks int                `json:"fallbacks"`
}

// EstimateRequest asks for a cost projection.
type EstimateRequest struct {
	Prompt string `json:"prompt" validate:"required"`
	Model  string `json:"model,omitempty"`
}

// EstimateResponse is a heuristic cost projection.
type EstimateResponse struct {
	Model            string  `json:"model"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	PricePer1K       float64 `json:"price_per_1k"`
	EstimatedCost    float64 `json:"estimated_cost"`
}

// ErrorResponse represents an error response from the API.
// Result carries the fallback content when the dispatcher rejected the call.
type ErrorResponse struct {
	Error     ErrorDetails      `json:"error"`
	RequestID string            `json:"request_id,omitempty"`
	Result    *GenerateResponse `json:"result,omitempty"`
}

// ErrorDetails provides detailed error information.
type ErrorDetails struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
	Retryable  bool   `json:"retryable"`
}

// HealthResponse represents the health status of the service.
type HealthResponse struct {
	Status    string                    `json:"status"`
	Timestamp time.Time                 `json:"timestamp"`
	Uptime    string                    `json:"uptime"`
	Mode      string                    `json:"mode"`
	Providers map[string]ProviderHealth `json:"providers"`
	Version   string                    `json:"version"`
}

// ProviderHealth represents the last-known health of a provider.
type ProviderHealth struct {
	Name          string         `json:"name"`
	Available     bool           `json:"available"`
	Checked       bool           `json:"checked"`
	LastCheckedAt *time.Time     `json:"last_checked_at,omitempty"`
	LastLatencyMs *int64         `json:"last_latency_ms,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	Stats         *ProviderStats `json:"stats,omitempty"`
}

// ProviderStats aggregates every attempt made against a provider.
type ProviderStats struct {
	TotalAttempts    int64   `json:"total_attempts"`
	Successful       int64   `json:"successful"`
	Failed           int64   `json:"failed"`
	Uptime           float64 `json:"uptime"`
	AverageLatencyMs int64   `json:"average_latency_ms"`
}

// ModelsResponse lists the logical models with explicit routing entries.
type ModelsResponse struct {
	Models    []ModelInfo `json:"models"`
	Total     int         `json:"total"`
	Providers []string    `json:"providers"`
}

// ModelInfo represents information about a specific logical model.
type ModelInfo struct {
	ID          string  `json:"id"`
	Provider    string  `json:"provider"`
	WireModelID string  `json:"wire_model_id"`
	PricePer1K  float64 `json:"price_per_1k"`
}

// TransportResponse describes the transport strategy chosen at startup.
type TransportResponse struct {
	Mode        string            `json:"mode"`
	Strategy    string            `json:"strategy"`
	Endpoints   map[string]string `json:"endpoints,omitempty"`
	ProxyURL    string            `json:"proxy_url,omitempty"`
	Credentials map[string]bool   `json:"credentials,omitempty"`
}
