package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/lumenhq/agent-platform/internal/llm"
	"github.com/lumenhq/agent-platform/internal/model"
)

// toolOutputBudgetShare caps serialized tool output at this fraction of the
// active model's max-token budget before truncation kicks in.
const toolOutputBudgetShare = 0.7

// httpRuntime executes configured webhook tools.
type httpRuntime struct {
	tool model.Tool
	cfg  model.HTTPToolConfig
	deps Deps
}

func (r *httpRuntime) Schema() FunctionSchema {
	properties := make(map[string]any)
	var required []string

	collect := func(params []model.ToolParameter) {
		for _, p := range params {
			if !p.IsUserProvided {
				continue
			}
			prop := map[string]any{"type": "string"}
			if p.Description != "" {
				prop["description"] = p.Description
			}
			if len(p.AcceptedValues) > 0 {
				prop["enum"] = p.AcceptedValues
			}
			properties[p.Key] = prop
			required = append(required, p.Key)
		}
	}
	collect(r.cfg.QueryParameters)
	collect(r.cfg.BodyParameters)
	collect(r.cfg.Headers)

	description := r.cfg.Description
	if description == "" {
		description = fmt.Sprintf("Call the %s endpoint", r.cfg.URL)
	}

	return FunctionSchema{
		Name:        functionName(r.tool, r.cfg.Name),
		Description: description,
		Parameters:  ensureObjectSchema(properties, required),
	}
}

func (r *httpRuntime) Parse(raw string) (map[string]any, error) {
	return parseArguments(raw, r.Schema().Parameters)
}

func (r *httpRuntime) Execute(ctx context.Context, payload map[string]any, turn *Turn) (Result, error) {
	if r.cfg.WithApproval {
		// Short-circuit before any network call.
		return Result{ApprovalRequired: true}, nil
	}

	req, err := r.buildRequest(ctx, payload)
	if err != nil {
		return Result{Data: fmt.Sprintf("The call could not be prepared: %s", err)}, nil
	}

	resp, err := r.deps.HTTP.Do(req)
	if err != nil {
		r.deps.Logger.Warn("http tool call failed",
			zap.String("tool_id", r.tool.ID), zap.Error(err))
		return Result{Data: "The http call has failed, please try again later."}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{Data: "The http call response could not be read."}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Data: fmt.Sprintf(
			"The http call failed with status %d: %s", resp.StatusCode,
			strings.TrimSpace(string(body)))}, nil
	}

	return Result{Data: truncateToolOutput(string(body), r.deps.ModelContextTokens)}, nil
}

func (r *httpRuntime) buildRequest(ctx context.Context, payload map[string]any) (*http.Request, error) {
	u, err := url.Parse(r.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", r.cfg.URL, err)
	}

	// Merge query parameters: a non-empty static value overrides whatever
	// the model supplied for the same key.
	query := u.Query()
	for _, p := range r.cfg.QueryParameters {
		if v := mergedValue(p, payload); v != "" {
			query.Set(p.Key, v)
		}
	}
	u.RawQuery = query.Encode()

	method := strings.ToUpper(r.cfg.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if method != http.MethodGet && len(r.cfg.BodyParameters) > 0 {
		bodyMap := make(map[string]any)
		for _, p := range r.cfg.BodyParameters {
			if v := mergedValue(p, payload); v != "" {
				bodyMap[p.Key] = v
			}
		}
		raw, err := json.Marshal(bodyMap)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, p := range r.cfg.Headers {
		if v := mergedValue(p, payload); v != "" {
			req.Header.Set(p.Key, v)
		}
	}
	return req, nil
}

// mergedValue resolves a parameter: a non-empty static value wins, otherwise
// the user-provided payload value is used.
func mergedValue(p model.ToolParameter, payload map[string]any) string {
	if p.Value != "" {
		return p.Value
	}
	if v, ok := payload[p.Key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// truncateToolOutput keeps tool output within 70% of the model budget by
// keeping only the first token-aware chunk.
func truncateToolOutput(output string, modelContextTokens int) string {
	budget := int(float64(modelContextTokens) * toolOutputBudgetShare)
	if budget <= 0 || llm.EstimateTokens(output) <= budget {
		return output
	}
	return llm.SplitByTokens(output, budget)[0]
}
