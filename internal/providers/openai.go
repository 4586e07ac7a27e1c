package providers

import (
	"fmt"

	"github.com/semantrix/adaptroute/internal/models"
)

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatCompletionRequest is the chat-completions body shared by OpenAI and DeepSeek.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

// ChatMessage represents a single role-tagged message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse is the subset of a chat-completions response we read.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *ChatUsage   `json:"usage,omitempty"`
}

// ChatChoice represents a single completion choice, streamed or not.
type ChatChoice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	Delta        *ChatMessage `json:"delta,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

// ChatUsage represents token usage in chat-completions format.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *ChatUsage) toModel() *models.Usage {
	if u == nil {
		return nil
	}
	return &models.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// convertToChatRequest converts our unified request to chat-completions format.
func convertToChatRequest(req models.GenerationRequest, model string) *ChatCompletionRequest {
	messages := make([]ChatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, ChatMessage{Role: RoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, ChatMessage{Role: RoleUser, Content: req.Prompt})

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperatureOrDefault(req),
		Stream:      req.Stream,
	}
}

func extractChat(body []byte) (Extraction, error) {
	var resp ChatCompletionResponse
	if err := decodeJSON(body, &resp); err != nil {
		return Extraction{}, err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return Extraction{}, fmt.Errorf("response contains no choices")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return Extraction{}, fmt.Errorf("first choice has empty content")
	}

	return Extraction{Content: content, Usage: resp.Usage.toModel()}, nil
}

func chatChunk(data []byte) (string, *models.Usage, error) {
	var chunk ChatCompletionResponse
	if err := decodeJSON(data, &chunk); err != nil {
		return "", nil, err
	}

	var text string
	for _, choice := range chunk.Choices {
		if choice.Index != 0 {
			continue
		}
		switch {
		case choice.Delta != nil:
			text += choice.Delta.Content
		case choice.Message != nil:
			text += choice.Message.Content
		}
	}
	return text, chunk.Usage.toModel(), nil
}
