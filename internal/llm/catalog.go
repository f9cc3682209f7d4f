package llm

import (
	"fmt"
)

// Provider is an LLM provider family. Each family holds its own virtual
// credential set.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// ModelSpec describes one founding model: the routing key agents reference,
// mapped to a provider, wire model name, and call-shaping capabilities.
type ModelSpec struct {
	// Key is the founding-model routing string.
	Key      string
	Provider Provider
	// WireModel is the provider-side model identifier.
	WireModel string
	// ContextTokens is the model's max-token budget, used for history and
	// tool-output truncation.
	ContextTokens int

	SupportsVision bool
	// SupportsSystemRole is false for families whose API rejects a "system"
	// message role; the gateway rewrites system messages to user messages.
	SupportsSystemRole bool
	// SupportsTemperature is false for reasoning families that reject the
	// temperature parameter; it is then omitted entirely.
	SupportsTemperature bool

	// QueryCost is the usage-counter increment per answered query.
	QueryCost int
}

// catalog is the closed routing table of founding models. Unknown keys fail
// fast at startup validation and at call time.
var catalog = map[string]ModelSpec{
	"gpt_4o": {
		Key: "gpt_4o", Provider: ProviderOpenAI, WireModel: "gpt-4o",
		ContextTokens: 128000, SupportsVision: true, SupportsSystemRole: true,
		SupportsTemperature: true, QueryCost: 1,
	},
	"gpt_4o_mini": {
		Key: "gpt_4o_mini", Provider: ProviderOpenAI, WireModel: "gpt-4o-mini",
		ContextTokens: 128000, SupportsVision: true, SupportsSystemRole: true,
		SupportsTemperature: true, QueryCost: 1,
	},
	"gpt_4_turbo": {
		Key: "gpt_4_turbo", Provider: ProviderOpenAI, WireModel: "gpt-4-turbo",
		ContextTokens: 128000, SupportsVision: true, SupportsSystemRole: true,
		SupportsTemperature: true, QueryCost: 2,
	},
	"gpt_3_5_turbo": {
		Key: "gpt_3_5_turbo", Provider: ProviderOpenAI, WireModel: "gpt-3.5-turbo",
		ContextTokens: 16385, SupportsSystemRole: true,
		SupportsTemperature: true, QueryCost: 1,
	},
	"o1": {
		Key: "o1", Provider: ProviderOpenAI, WireModel: "o1",
		ContextTokens: 200000, QueryCost: 3,
	},
	"o1_mini": {
		Key: "o1_mini", Provider: ProviderOpenAI, WireModel: "o1-mini",
		ContextTokens: 128000, QueryCost: 2,
	},
	"claude_3_5_sonnet": {
		Key: "claude_3_5_sonnet", Provider: ProviderAnthropic,
		WireModel: "claude-3-5-sonnet-20241022", ContextTokens: 200000,
		SupportsTemperature: true, QueryCost: 2,
	},
	"claude_3_5_haiku": {
		Key: "claude_3_5_haiku", Provider: ProviderAnthropic,
		WireModel: "claude-3-5-haiku-20241022", ContextTokens: 200000,
		SupportsTemperature: true, QueryCost: 1,
	},
	"claude_3_opus": {
		Key: "claude_3_opus", Provider: ProviderAnthropic,
		WireModel: "claude-3-opus-20240229", ContextTokens: 200000,
		SupportsTemperature: true, QueryCost: 3,
	},
}

// ResolveModel looks up a founding model by routing key.
func ResolveModel(key string) (ModelSpec, error) {
	spec, ok := catalog[key]
	if !ok {
		return ModelSpec{}, fmt.Errorf("unsupported founding model %q", key)
	}
	return spec, nil
}

// Models returns the routing keys of all founding models.
func Models() []string {
	keys := make([]string, 0, len(catalog))
	for k := range catalog {
		keys = append(keys, k)
	}
	return keys
}
