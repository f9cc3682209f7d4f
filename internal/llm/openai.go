package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

// maxToolIterations bounds the tool-calling run loop.
const maxToolIterations = 5

// OpenAIClient is the OpenAI provider client.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	return &OpenAIClient{client: openai.NewClient(apiKey)}, nil
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return string(ProviderOpenAI)
}

func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		m := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		if msg.IsMultimodal() {
			for _, part := range msg.Parts {
				switch part.Type {
				case "image_url":
					m.MultiContent = append(m.MultiContent, openai.ChatMessagePart{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: part.ImageURL},
					})
				default:
					m.MultiContent = append(m.MultiContent, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeText,
						Text: part.Text,
					})
				}
			}
		} else {
			m.Content = msg.Content
		}
		out[i] = m
	}
	return out
}

func (c *OpenAIClient) buildRequest(spec ModelSpec, req *CallRequest) openai.ChatCompletionRequest {
	oreq := openai.ChatCompletionRequest{
		Model:            spec.WireModel,
		Messages:         toOpenAIMessages(req.Messages),
		MaxTokens:        req.MaxTokens,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
	}
	if req.Temperature != nil && spec.SupportsTemperature {
		oreq.Temperature = float32(*req.Temperature)
	}
	return oreq
}

// Complete sends a single non-streaming completion request.
func (c *OpenAIClient) Complete(ctx context.Context, spec ModelSpec, req *CallRequest) (*CallResponse, error) {
	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(spec, req))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty completion response")
	}

	return &CallResponse{
		Answer: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		StopReason: string(resp.Choices[0].FinishReason),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// CompleteTools drives the function-calling loop: the model may request tool
// calls, each is parsed and executed, and the outputs are appended as tool
// messages until a final assistant message is produced.
func (c *OpenAIClient) CompleteTools(ctx context.Context, spec ModelSpec, req *CallRequest) (*CallResponse, error) {
	start := time.Now()

	byName := make(map[string]ToolSpec, len(req.Tools))
	tools := make([]openai.Tool, 0, len(req.Tools))
	for _, ts := range req.Tools {
		byName[ts.Name] = ts
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ts.Name,
				Description: ts.Description,
				Parameters:  ts.Parameters,
			},
		})
	}

	oreq := c.buildRequest(spec, req)
	oreq.Tools = tools
	switch {
	case req.ToolChoice.Forced():
		oreq.ToolChoice = openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: string(req.ToolChoice)},
		}
	case req.ToolChoice == ToolChoiceNone:
		oreq.ToolChoice = "none"
	default:
		oreq.ToolChoice = "auto"
	}

	var usage Usage
	for iter := 0; iter < maxToolIterations; iter++ {
		resp, err := c.client.CreateChatCompletion(ctx, oreq)
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("empty completion response")
		}

		usage.PromptTokens += resp.Usage.PromptTokens
		usage.CompletionTokens += resp.Usage.CompletionTokens
		usage.TotalTokens += resp.Usage.TotalTokens

		choice := resp.Choices[0]
		if len(choice.Message.ToolCalls) == 0 {
			return &CallResponse{
				Answer:     choice.Message.Content,
				Usage:      usage,
				StopReason: string(choice.FinishReason),
				LatencyMs:  time.Since(start).Milliseconds(),
			}, nil
		}

		oreq.Messages = append(oreq.Messages, choice.Message)
		for _, tc := range choice.Message.ToolCalls {
			toolSpec, ok := byName[tc.Function.Name]
			if !ok {
				return nil, fmt.Errorf("model requested unknown tool %q", tc.Function.Name)
			}

			payload, err := toolSpec.Parse(tc.Function.Arguments)
			if err != nil {
				return nil, fmt.Errorf("parse %s arguments: %w", tc.Function.Name, err)
			}
			output, err := toolSpec.Call(ctx, payload)
			if err != nil {
				// Approval short-circuits and other control-flow signals
				// propagate; handlers absorb ordinary execution failures.
				return nil, err
			}

			oreq.Messages = append(oreq.Messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: tc.ID,
				Content:    output,
			})
		}

		// A forced function only applies to the first round.
		oreq.ToolChoice = "auto"
	}

	return nil, fmt.Errorf("tool loop exceeded %d iterations", maxToolIterations)
}

// CreateEmbedding creates embeddings for the given inputs.
func (c *OpenAIClient) CreateEmbedding(ctx context.Context, model string, input []string) ([][]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(model),
		Input: input,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
