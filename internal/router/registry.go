// Package router maps caller-facing logical model names onto a provider and
// the exact model identifier that provider expects on the wire.
package router

import (
	"sort"
	"strings"

	"github.com/semantrix/adaptroute/internal/models"
)

// family is a substring rule that routes a logical model to a provider.
type family struct {
	provider models.Provider
	markers  []string
}

// Checked in order; the first matching marker wins.
var families = []family{
	{provider: models.ProviderOpenAI, markers: []string{"gpt", "openai"}},
	{provider: models.ProviderDeepSeek, markers: []string{"deepseek"}},
	{provider: models.ProviderGemini, markers: []string{"gemini"}},
}

// wireModels holds the static logical -> wire model tables per provider.
var wireModels = map[models.Provider]map[string]string{
	models.ProviderOpenAI: {
		"openai":        "gpt-3.5-turbo",
		"gpt-3.5-turbo": "gpt-3.5-turbo-1106",
		"gpt-4":         "gpt-4",
		"gpt-4-turbo":   "gpt-4-1106-preview",
		"gpt-4o":        "gpt-4o",
		"gpt-4o-mini":   "gpt-4o-mini",
	},
	models.ProviderGemini: {
		"gemini":           "gemini-pro",
		"gemini-pro":       "gemini-pro",
		"gemini-1.5-pro":   "gemini-1.5-pro-latest",
		"gemini-1.5-flash": "gemini-1.5-flash-latest",
	},
	models.ProviderDeepSeek: {
		"deepseek":      "deepseek-chat",
		"deepseek-chat": "deepseek-chat",
	},
}

// DefaultProvider receives every logical model no family claims.
const DefaultProvider = models.ProviderOpenAI

// InferProvider returns the provider whose family markers appear in logicalModel.
func InferProvider(logicalModel string) models.Provider {
	name := strings.ToLower(logicalModel)
	for _, f := range families {
		for _, marker := range f.markers {
			if strings.Contains(name, marker) {
				return f.provider
			}
		}
	}
	return DefaultProvider
}

// WireModel maps logicalModel through the provider's table. Unknown names pass
// through unchanged so the provider can report its own error.
func WireModel(provider models.Provider, logicalModel string) string {
	if wire, ok := wireModels[provider][strings.ToLower(logicalModel)]; ok {
		return wire
	}
	return logicalModel
}

// Resolve binds logicalModel to a provider and wire model id. It never fails.
func Resolve(logicalModel string) models.ProviderBinding {
	return ResolveWith(logicalModel, "")
}

// ResolveWith is Resolve with an optional provider override. The override skips
// family inference; the wire id still comes from the overriding provider's table.
func ResolveWith(logicalModel string, override models.Provider) models.ProviderBinding {
	provider := override
	if provider == "" {
		provider = InferProvider(logicalModel)
	}
	return models.ProviderBinding{
		Provider:    provider,
		WireModelID: WireModel(provider, logicalModel),
	}
}

// ModelEntry describes one logical model the registry knows about.
type ModelEntry struct {
	LogicalModel string
	Provider     models.Provider
	WireModelID  string
}

// KnownModels lists every logical model with an explicit table entry, sorted
// by provider then name.
func KnownModels() []ModelEntry {
	var entries []ModelEntry
	for _, provider := range models.AllProviders {
		for logical, wire := range wireModels[provider] {
			entries = append(entries, ModelEntry{
				LogicalModel: logical,
				Provider:     provider,
				WireModelID:  wire,
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Provider != entries[j].Provider {
			return entries[i].Provider < entries[j].Provider
		}
		return entries[i].LogicalModel < entries[j].LogicalModel
	})
	return entries
}
