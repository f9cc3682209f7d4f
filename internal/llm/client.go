// Package llm provides the model gateway: a uniform interface over the
// configured LLM providers, keyed by founding model.
package llm

import (
	"context"
)

// ContentPart is one block of a multimodal message.
type ContentPart struct {
	Type     string `json:"type"` // "text" or "image_url"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// ChatMessage is one entry of the ordered message list sent to a provider.
// When Parts is set the message is multimodal and Content is ignored.
type ChatMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	Parts      []ContentPart `json:"parts,omitempty"`
	Name       string        `json:"name,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// IsMultimodal reports whether the message carries multimodal parts.
func (m ChatMessage) IsMultimodal() bool {
	return len(m.Parts) > 0
}

// ToolSpec is a callable function schema handed to the provider run loop.
// Parse validates raw argument JSON; Call executes the side effect and
// returns the tool output fed back to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
	Parse       func(raw string) (map[string]any, error)
	Call        func(ctx context.Context, payload map[string]any) (string, error)
}

// ToolChoice is the tool-selection policy for a call.
type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = "auto"
	ToolChoiceNone ToolChoice = "none"
)

// ForcedTool builds a tool choice that forces one named function.
func ForcedTool(name string) ToolChoice {
	return ToolChoice(name)
}

// Forced reports whether the choice names a specific function.
func (tc ToolChoice) Forced() bool {
	return tc != "" && tc != ToolChoiceAuto && tc != ToolChoiceNone
}

// Usage is provider-reported token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CallRequest is a chat completion request routed by founding model.
type CallRequest struct {
	// Model is the founding-model routing key.
	Model    string
	Messages []ChatMessage

	// Temperature is omitted entirely when nil or when the model family
	// rejects it.
	Temperature *float64
	MaxTokens   int

	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32

	Tools      []ToolSpec
	ToolChoice ToolChoice
}

// CallResponse is the provider-neutral result of a completion.
type CallResponse struct {
	Answer     string
	Usage      Usage
	StopReason string
	LatencyMs  int64
}

// Client is the interface implemented by provider clients.
type Client interface {
	// Name returns the provider name.
	Name() string

	// Complete issues a single non-streaming completion request.
	Complete(ctx context.Context, spec ModelSpec, req *CallRequest) (*CallResponse, error)
}

// ToolCaller is implemented by providers that support the tool-calling run
// loop.
type ToolCaller interface {
	// CompleteTools drives the provider tool loop until a final assistant
	// message is produced, invoking the supplied Call implementations.
	CompleteTools(ctx context.Context, spec ModelSpec, req *CallRequest) (*CallResponse, error)
}

// Embedder is implemented by the provider that serves embedding creation.
type Embedder interface {
	CreateEmbedding(ctx context.Context, model string, input []string) ([][]float32, error)
}
