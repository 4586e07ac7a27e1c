// Package cost projects the price of a generation from prompt length alone.
// Estimates are informational and never gate a dispatch.
package cost

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Heuristic constants.
const (
	CharsPerToken   = 4
	CompletionRatio = 0.5
	DefaultPer1K    = 0.002
)

// PricePer1K holds USD prices per 1000 tokens, keyed by logical model.
var PricePer1K = map[string]float64{
	"gpt-4":            0.03,
	"gpt-4-turbo":      0.01,
	"gpt-4o":           0.005,
	"gpt-4o-mini":      0.00015,
	"gpt-3.5-turbo":    0.002,
	"gemini-pro":       0.0005,
	"gemini-1.5-pro":   0.0035,
	"gemini-1.5-flash": 0.00035,
	"deepseek-chat":    0.0014,
	"deepseek-coder":   0.0014,
}

// Estimate is a cost projection for one prompt.
type Estimate struct {
	Model            string  `json:"model"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	PricePer1K       float64 `json:"price_per_1k"`
	Cost             float64 `json:"cost"`
}

// Project estimates token counts and cost for prompt on logicalModel.
func Project(prompt, logicalModel string) Estimate {
	promptTokens := int(math.Ceil(float64(utf8.RuneCountInString(prompt)) / CharsPerToken))
	completionTokens := int(math.Ceil(float64(promptTokens) * CompletionRatio))
	price := Price(logicalModel)

	return Estimate{
		Model:            logicalModel,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		PricePer1K:       price,
		Cost:             float64(promptTokens+completionTokens) * price / 1000,
	}
}

// EstimateCost returns only the projected cost.
func EstimateCost(prompt, logicalModel string) float64 {
	return Project(prompt, logicalModel).Cost
}

// Price returns the per-1000-token price for logicalModel, or DefaultPer1K.
func Price(logicalModel string) float64 {
	if p, ok := PricePer1K[strings.ToLower(strings.TrimSpace(logicalModel))]; ok {
		return p
	}
	return DefaultPer1K
}
