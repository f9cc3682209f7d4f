package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lumenhq/agent-platform/pkg/logger"
	"github.com/lumenhq/agent-platform/pkg/metrics"
)

// GatewayConfig holds provider credentials and fixed deployments.
type GatewayConfig struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string
	// EmbeddingModel is the fixed deployment used for embedding creation,
	// independent of founding-model routing.
	EmbeddingModel string
}

// Gateway routes calls to provider clients by founding model. The call gate
// admits one in-flight model invocation per gateway instance; callers mint a
// Session per turn so unrelated turns never queue behind each other.
type Gateway struct {
	clients map[Provider]Client
	// embedder is the fixed provider for embedding creation.
	embedder       Embedder
	embeddingModel string

	// gate admits at most one in-flight model invocation.
	gate chan struct{}

	logger *logger.Logger
}

// NewGateway builds the provider routing table and validates that every
// catalog entry has a usable client. Unknown or credential-less providers
// fail fast here rather than mid-turn.
func NewGateway(cfg GatewayConfig, log *logger.Logger) (*Gateway, error) {
	clients := make(map[Provider]Client)

	if cfg.OpenAIAPIKey != "" {
		c, err := NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, err
		}
		clients[ProviderOpenAI] = c
	}
	if cfg.AnthropicAPIKey != "" {
		c, err := NewAnthropicClient(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, err
		}
		clients[ProviderAnthropic] = c
	}

	for key, spec := range catalog {
		if _, ok := clients[spec.Provider]; !ok {
			return nil, fmt.Errorf("founding model %q requires %s credentials", key, spec.Provider)
		}
	}

	g := &Gateway{
		clients:        clients,
		embeddingModel: cfg.EmbeddingModel,
		gate:           make(chan struct{}, 1),
		logger:         log,
	}
	if e, ok := clients[ProviderOpenAI].(Embedder); ok {
		g.embedder = e
	}
	return g, nil
}

// Session returns a gateway that shares the provider clients but carries its
// own call gate, scoping the single-flight admission to the session's
// lifetime instead of the process.
func (g *Gateway) Session() *Gateway {
	return &Gateway{
		clients:        g.clients,
		embedder:       g.embedder,
		embeddingModel: g.embeddingModel,
		gate:           make(chan struct{}, 1),
		logger:         g.logger,
	}
}

// Call resolves the provider for the request's founding model, shapes the
// message list for it, and issues the completion. No retries: a single
// failed attempt propagates to the caller.
func (g *Gateway) Call(ctx context.Context, req *CallRequest) (*CallResponse, error) {
	spec, err := ResolveModel(req.Model)
	if err != nil {
		return nil, err
	}
	client := g.clients[spec.Provider]

	messages := SanitizeMessages(req.Messages)
	if !spec.SupportsSystemRole {
		messages = RewriteSystemRole(messages)
	}
	shaped := *req
	shaped.Messages = messages
	if !spec.SupportsTemperature {
		shaped.Temperature = nil
	}

	promptEstimate := EstimateMessageTokens(messages)

	select {
	case g.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-g.gate }()

	start := time.Now()
	var resp *CallResponse
	if len(shaped.Tools) > 0 {
		tc, ok := client.(ToolCaller)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support tool calling", client.Name())
		}
		resp, err = tc.CompleteTools(ctx, spec, &shaped)
	} else {
		resp, err = client.Complete(ctx, spec, &shaped)
	}

	if err != nil {
		g.logger.Warn("model call failed",
			zap.String("model", req.Model),
			zap.Int("attempt", 1),
			zap.Int("prompt_tokens_estimate", promptEstimate),
			zap.Error(err),
		)
		metrics.RecordLLMCall(req.Model, "error", time.Since(start).Seconds(), promptEstimate, 0)
		return nil, err
	}

	// Fill in an estimate when the provider omits completion usage.
	if resp.Usage.CompletionTokens == 0 && resp.Answer != "" {
		resp.Usage.CompletionTokens = EstimateTokens(resp.Answer)
	}
	if resp.Usage.PromptTokens == 0 {
		resp.Usage.PromptTokens = promptEstimate
	}
	if resp.Usage.TotalTokens == 0 {
		resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	}

	metrics.RecordLLMCall(req.Model, "success", time.Since(start).Seconds(),
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	return resp, nil
}

// CreateEmbedding creates embeddings through the fixed embedding provider,
// independent of founding-model routing.
func (g *Gateway) CreateEmbedding(ctx context.Context, input []string) ([][]float32, error) {
	if g.embedder == nil {
		return nil, fmt.Errorf("no embedding provider configured")
	}
	return g.embedder.CreateEmbedding(ctx, g.embeddingModel, input)
}

// SanitizeMessages drops empty-content entries and collapses consecutive
// exact-duplicate same-role messages. Multimodal content passes through
// unchanged.
func SanitizeMessages(messages []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if !msg.IsMultimodal() && msg.Content == "" {
			continue
		}
		if len(out) > 0 {
			prev := out[len(out)-1]
			if !prev.IsMultimodal() && !msg.IsMultimodal() &&
				prev.Role == msg.Role && prev.Content == msg.Content {
				continue
			}
		}
		out = append(out, msg)
	}
	return out
}

// RewriteSystemRole rewrites system messages to user messages and merges
// consecutive same-role plain-text messages, for providers that reject a
// "system" role. Multimodal messages are never merged.
func RewriteSystemRole(messages []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			msg.Role = "user"
		}
		if len(out) > 0 {
			prev := &out[len(out)-1]
			if !prev.IsMultimodal() && !msg.IsMultimodal() && prev.Role == msg.Role {
				prev.Content = prev.Content + "\n" + msg.Content
				continue
			}
		}
		out = append(out, msg)
	}
	return out
}
