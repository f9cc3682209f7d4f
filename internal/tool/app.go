package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lumenhq/agent-platform/internal/model"
)

// ActionsClient talks to the external action-execution service that hosts
// third-party app actions.
type ActionsClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewActionsClient creates an action-execution service client.
func NewActionsClient(baseURL, apiKey string) *ActionsClient {
	return &ActionsClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// ActionSchema is the remotely resolved schema of a third-party action.
type ActionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// GetActionSchema resolves an action schema by action id.
func (c *ActionsClient) GetActionSchema(ctx context.Context, actionID string) (*ActionSchema, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/actions/%s", c.baseURL, actionID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve action %s: %w", actionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("resolve action %s: status %d", actionID, resp.StatusCode)
	}

	var schema ActionSchema
	if err := json.NewDecoder(resp.Body).Decode(&schema); err != nil {
		return nil, fmt.Errorf("decode action schema: %w", err)
	}
	return &schema, nil
}

// Execute runs an action against an entity with the merged parameters.
func (c *ActionsClient) Execute(ctx context.Context, entityID, actionID string, params map[string]any) (string, error) {
	body, err := json.Marshal(map[string]any{
		"action_id": actionID,
		"params":    params,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/entities/%s/execute", c.baseURL, entityID), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute action %s: %w", actionID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read action response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("execute action %s: status %d", actionID, resp.StatusCode)
	}
	return string(raw), nil
}

// appRuntime executes a third-party app action through the action service.
type appRuntime struct {
	tool model.Tool
	cfg  model.AppToolConfig
	deps Deps
}

func (r *appRuntime) Schema() FunctionSchema {
	// The remote schema is resolved at execution time; the exposed contract
	// lists the user-provided parameters configured on the tool.
	properties := make(map[string]any)
	var required []string
	for _, p := range r.cfg.Params {
		if !p.IsUserProvided {
			continue
		}
		prop := map[string]any{"type": "string"}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[p.Key] = prop
		required = append(required, p.Key)
	}

	return FunctionSchema{
		Name:        functionName(r.tool, "action_"+r.cfg.ActionID),
		Description: fmt.Sprintf("Run the %s action", r.cfg.ActionID),
		Parameters:  ensureObjectSchema(properties, required),
	}
}

func (r *appRuntime) Parse(raw string) (map[string]any, error) {
	return parseArguments(raw, r.Schema().Parameters)
}

func (r *appRuntime) Execute(ctx context.Context, payload map[string]any, turn *Turn) (Result, error) {
	if r.deps.Actions == nil {
		r.deps.Logger.Warn("app action skipped, no action service configured",
			zap.String("tool_id", r.tool.ID),
			zap.String("action_id", r.cfg.ActionID))
		return Result{Data: "The call has failed, please try again later."}, nil
	}

	// Merge static and user-provided parameters; static values win.
	params := make(map[string]any, len(r.cfg.Params))
	for _, p := range r.cfg.Params {
		if v := mergedValue(p, payload); v != "" {
			params[p.Key] = v
		}
	}

	output, err := r.deps.Actions.Execute(ctx, r.cfg.EntityID, r.cfg.ActionID, params)
	if err != nil {
		r.deps.Logger.Warn("app action failed",
			zap.String("tool_id", r.tool.ID),
			zap.String("action_id", r.cfg.ActionID),
			zap.Error(err))
		return Result{Data: "The call has failed, please try again later."}, nil
	}

	return Result{Data: truncateToolOutput(output, r.deps.ModelContextTokens)}, nil
}
