// Package splitter breaks a long agent answer into chat-sized fragments for
// channels that render short message bubbles.
package splitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/lumenhq/agent-platform/pkg/logger"
	"github.com/lumenhq/agent-platform/pkg/metrics"
)

const (
	// MaxPartsPrompt is the ceiling stated in the splitting instructions.
	MaxPartsPrompt = 6
	// MaxPartsSchema is the enforced ceiling: extra parts are dropped.
	MaxPartsSchema = 3

	splitFunctionName = "split_message"
)

var splitPrompt = fmt.Sprintf("You split a chat message into shorter, "+
	"self-contained parts for a messaging app. Preserve the wording and order "+
	"of the original text. Never split in the middle of a sentence, a list "+
	"item, or a code block. Use at most %d parts. If the message is already "+
	"short, return it as a single part.", MaxPartsPrompt)

var splitSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"parts": map[string]any{
			"type":        "array",
			"description": "The message parts, in order",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content": map[string]any{"type": "string"},
				},
				"required": []string{"content"},
			},
		},
	},
	"required": []string{"parts"},
}

type splitArguments struct {
	Parts []struct {
		Content string `json:"content"`
	} `json:"parts"`
}

// Splitter calls a fixed model deployment with a forced splitting function.
// It never fails a turn: any error degrades to a single part holding the
// original text.
type Splitter struct {
	client *openai.Client
	model  string
	logger *logger.Logger
}

// New creates a splitter on a fixed deployment, independent of the agent's
// founding model.
func New(apiKey, model string, log *logger.Logger) (*Splitter, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if model == "" {
		return nil, errors.New("splitter model is required")
	}
	return &Splitter{client: openai.NewClient(apiKey), model: model, logger: log}, nil
}

// Split returns the answer as ordered fragments. Short answers and any
// splitting failure come back as a single fragment.
func (s *Splitter) Split(ctx context.Context, answer string) []string {
	fallback := []string{answer}
	if strings.TrimSpace(answer) == "" {
		return fallback
	}

	parts, err := s.split(ctx, answer)
	if err != nil {
		s.logger.Warn("message splitting failed, returning single part", zap.Error(err))
		metrics.SplitterFragments.Observe(1)
		return fallback
	}

	metrics.SplitterFragments.Observe(float64(len(parts)))
	return parts
}

func (s *Splitter) split(ctx context.Context, answer string) ([]string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: splitPrompt},
			{Role: openai.ChatMessageRoleUser, Content: answer},
		},
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        splitFunctionName,
				Description: "Return the message split into ordered parts",
				Parameters:  splitSchema,
			},
		}},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: splitFunctionName},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return nil, errors.New("no split function call in response")
	}

	var args splitArguments
	raw := resp.Choices[0].Message.ToolCalls[0].Function.Arguments
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("decode split arguments: %w", err)
	}

	var parts []string
	for _, p := range args.Parts {
		if strings.TrimSpace(p.Content) == "" {
			continue
		}
		parts = append(parts, p.Content)
	}
	if len(parts) == 0 {
		return nil, errors.New("split returned no parts")
	}
	if len(parts) > MaxPartsSchema {
		parts = parts[:MaxPartsSchema]
	}
	return parts, nil
}
