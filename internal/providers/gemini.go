package providers

import (
	"fmt"
	"strings"

	"github.com/semantrix/adaptroute/internal/models"
)

// GenerateContentRequest is the body of Gemini's generateContent endpoint.
type GenerateContentRequest struct {
	Contents         []GeminiContent  `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

// GeminiContent is a content block with a role and its parts.
type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart is a single text part.
type GeminiPart struct {
	Text string `json:"text"`
}

// GenerationConfig holds Gemini sampling parameters.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// GenerateContentResponse is the subset of a generateContent response we read.
type GenerateContentResponse struct {
	Candidates    []GeminiCandidate `json:"candidates"`
	UsageMetadata *UsageMetadata    `json:"usageMetadata,omitempty"`
}

// GeminiCandidate is one response candidate.
type GeminiCandidate struct {
	Content      *GeminiContent `json:"content,omitempty"`
	FinishReason string         `json:"finishReason,omitempty"`
}

// UsageMetadata is Gemini's token accounting.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

func (u *UsageMetadata) toModel() *models.Usage {
	if u == nil {
		return nil
	}
	return &models.Usage{
		PromptTokens:     u.PromptTokenCount,
		CompletionTokens: u.CandidatesTokenCount,
		TotalTokens:      u.TotalTokenCount,
	}
}

// convertToGeminiRequest folds the system prompt into a single text block
// separated from the prompt by a blank line.
func convertToGeminiRequest(req models.GenerationRequest) *GenerateContentRequest {
	text := req.Prompt
	if req.SystemPrompt != "" {
		text = req.SystemPrompt + "\n\n" + req.Prompt
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultGeminiMaxTokens
	}

	return &GenerateContentRequest{
		Contents: []GeminiContent{
			{Role: RoleUser, Parts: []GeminiPart{{Text: text}}},
		},
		GenerationConfig: GenerationConfig{
			Temperature:     temperatureOrDefault(req),
			TopK:            DefaultGeminiTopK,
			TopP:            DefaultGeminiTopP,
			MaxOutputTokens: maxTokens,
		},
	}
}

func extractGemini(body []byte) (Extraction, error) {
	var resp GenerateContentResponse
	if err := decodeJSON(body, &resp); err != nil {
		return Extraction{}, err
	}
	if len(resp.Candidates) == 0 {
		return Extraction{}, fmt.Errorf("response contains no candidates")
	}

	first := resp.Candidates[0]
	if first.Content == nil || len(first.Content.Parts) == 0 {
		return Extraction{}, fmt.Errorf("first candidate has no content parts (finish reason %q)", first.FinishReason)
	}

	content := first.Content.Parts[0].Text
	if content == "" {
		return Extraction{}, fmt.Errorf("first candidate part has empty text")
	}

	return Extraction{Content: content, Usage: resp.UsageMetadata.toModel()}, nil
}

func geminiChunk(data []byte) (string, *models.Usage, error) {
	var chunk GenerateContentResponse
	if err := decodeJSON(data, &chunk); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	if len(chunk.Candidates) > 0 && chunk.Candidates[0].Content != nil {
		for _, p := range chunk.Candidates[0].Content.Parts {
			b.WriteString(p.Text)
		}
	}
	return b.String(), chunk.UsageMetadata.toModel(), nil
}
