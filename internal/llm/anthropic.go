package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient is the Anthropic provider client.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string {
	return string(ProviderAnthropic)
}

func toAnthropicMessages(messages []ChatMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, len(messages))
	for i, msg := range messages {
		out[i] = anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRole(msg.Role)),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(msg.Content),
				},
			}),
		}
	}
	return out
}

func (c *AnthropicClient) buildParams(spec ModelSpec, req *CallRequest) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.F(spec.WireModel),
		MaxTokens: anthropic.F(int64(maxTokens)),
		Messages:  anthropic.F(toAnthropicMessages(req.Messages)),
	}
	if req.Temperature != nil && spec.SupportsTemperature {
		params.Temperature = anthropic.F(*req.Temperature)
	}
	return params
}

// Complete sends a completion request. The gateway has already rewritten
// system-role messages for this provider family.
func (c *AnthropicClient) Complete(ctx context.Context, spec ModelSpec, req *CallRequest) (*CallResponse, error) {
	start := time.Now()

	resp, err := c.client.Messages.New(ctx, c.buildParams(spec, req))
	if err != nil {
		return nil, err
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content += block.Text
		}
	}

	tokensIn := int(resp.Usage.InputTokens)
	tokensOut := int(resp.Usage.OutputTokens)

	return &CallResponse{
		Answer: content,
		Usage: Usage{
			PromptTokens:     tokensIn,
			CompletionTokens: tokensOut,
			TotalTokens:      tokensIn + tokensOut,
		},
		StopReason: string(resp.StopReason),
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// CompleteTools drives the tool-use loop: the model may emit tool_use blocks,
// each is parsed and executed, and the outputs are appended as tool_result
// blocks until the model stops for a reason other than tool use.
func (c *AnthropicClient) CompleteTools(ctx context.Context, spec ModelSpec, req *CallRequest) (*CallResponse, error) {
	start := time.Now()

	byName := make(map[string]ToolSpec, len(req.Tools))
	tools := make([]anthropic.ToolUnionUnionParam, 0, len(req.Tools))
	for _, ts := range req.Tools {
		byName[ts.Name] = ts
		tools = append(tools, anthropic.ToolParam{
			Name:        anthropic.F(ts.Name),
			Description: anthropic.F(ts.Description),
			InputSchema: anthropic.F[interface{}](ts.Parameters),
		})
	}

	params := c.buildParams(spec, req)
	params.Tools = anthropic.F(tools)
	switch {
	case req.ToolChoice.Forced():
		params.ToolChoice = anthropic.F[anthropic.ToolChoiceUnionParam](anthropic.ToolChoiceToolParam{
			Type: anthropic.F(anthropic.ToolChoiceToolTypeTool),
			Name: anthropic.F(string(req.ToolChoice)),
		})
	case req.ToolChoice == ToolChoiceNone:
		// The API has no "none"; omitting tool_choice with tools present
		// defaults to auto, so leave the model free and rely on prompting.
	default:
		params.ToolChoice = anthropic.F[anthropic.ToolChoiceUnionParam](anthropic.ToolChoiceAutoParam{
			Type: anthropic.F(anthropic.ToolChoiceAutoTypeAuto),
		})
	}

	messages := params.Messages.Value
	var usage Usage
	for iter := 0; iter < maxToolIterations; iter++ {
		params.Messages = anthropic.F(messages)
		resp, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return nil, err
		}

		usage.PromptTokens += int(resp.Usage.InputTokens)
		usage.CompletionTokens += int(resp.Usage.OutputTokens)
		usage.TotalTokens += int(resp.Usage.InputTokens) + int(resp.Usage.OutputTokens)

		if resp.StopReason != anthropic.MessageStopReasonToolUse {
			var content string
			for _, block := range resp.Content {
				if block.Type == anthropic.ContentBlockTypeText {
					content += block.Text
				}
			}
			return &CallResponse{
				Answer:     content,
				Usage:      usage,
				StopReason: string(resp.StopReason),
				LatencyMs:  time.Since(start).Milliseconds(),
			}, nil
		}

		messages = append(messages, resp.ToParam())
		var results []anthropic.ContentBlockParamUnion
		for _, block := range resp.Content {
			if block.Type != anthropic.ContentBlockTypeToolUse {
				continue
			}
			toolSpec, ok := byName[block.Name]
			if !ok {
				return nil, fmt.Errorf("model requested unknown tool %q", block.Name)
			}

			payload, err := toolSpec.Parse(string(block.Input))
			if err != nil {
				return nil, fmt.Errorf("parse %s arguments: %w", block.Name, err)
			}
			output, err := toolSpec.Call(ctx, payload)
			if err != nil {
				// Approval short-circuits and other control-flow signals
				// propagate; handlers absorb ordinary execution failures.
				return nil, err
			}

			results = append(results, anthropic.NewToolResultBlock(block.ID, output, false))
		}
		messages = append(messages, anthropic.NewUserMessage(results...))

		// A forced tool only applies to the first round.
		params.ToolChoice = anthropic.F[anthropic.ToolChoiceUnionParam](anthropic.ToolChoiceAutoParam{
			Type: anthropic.F(anthropic.ToolChoiceAutoTypeAuto),
		})
	}

	return nil, fmt.Errorf("tool loop exceeded %d iterations", maxToolIterations)
}
