package providers

import (
	"encoding/json"
	"fmt"

	"github.com/semantrix/adaptroute/internal/models"
)

// Generation defaults applied when the request leaves a field unset.
const (
	DefaultTemperature     = 0.7
	DefaultMaxTokens       = 1000
	DefaultGeminiTopK      = 40
	DefaultGeminiTopP      = 0.95
	DefaultGeminiMaxTokens = 1024
)

// WirePayload is the provider-specific request body for one binding.
type WirePayload struct {
	Provider models.Provider
	Model    string
	Stream   bool
	Body     interface{}
}

// Marshal encodes the payload body as JSON.
func (p WirePayload) Marshal() ([]byte, error) {
	data, err := json.Marshal(p.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", p.Provider, err)
	}
	return data, nil
}

// Translate builds the wire payload for binding from a provider-agnostic request.
// It is pure: identical inputs always produce identical payloads.
func Translate(req models.GenerationRequest, binding models.ProviderBinding) WirePayload {
	switch binding.Provider {
	case models.ProviderGemini:
		// Gemini selects streaming by endpoint, not by a body field.
		return WirePayload{
			Provider: binding.Provider,
			Model:    binding.WireModelID,
			Stream:   req.Stream,
			Body:     convertToGeminiRequest(req),
		}
	default:
		body := convertToChatRequest(req, binding.WireModelID)
		return WirePayload{
			Provider: binding.Provider,
			Model:    binding.WireModelID,
			Stream:   body.Stream,
			Body:     body,
		}
	}
}

// Extraction is the content and usage read from a successful provider response.
type Extraction struct {
	Content string
	Usage   *models.Usage
}

// Extract reads the generated content from a successful, structured response body.
func Extract(provider models.Provider, body []byte) (Extraction, error) {
	switch provider {
	case models.ProviderGemini:
		return extractGemini(body)
	default:
		return extractChat(body)
	}
}

// ExtractStream aggregates a server-sent event body into a single extraction.
func ExtractStream(provider models.Provider, body []byte) (Extraction, error) {
	switch provider {
	case models.ProviderGemini:
		return aggregateStream(body, geminiChunk)
	default:
		return aggregateStream(body, chatChunk)
	}
}

func temperatureOrDefault(req models.GenerationRequest) float64 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	return DefaultTemperature
}
