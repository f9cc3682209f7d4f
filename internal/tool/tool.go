// Package tool converts configured tool definitions into uniform callable
// function schemas and executes their side effects.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lumenhq/agent-platform/internal/llm"
	"github.com/lumenhq/agent-platform/internal/model"
	"github.com/lumenhq/agent-platform/internal/store"
	"github.com/lumenhq/agent-platform/pkg/logger"
	"github.com/lumenhq/agent-platform/pkg/metrics"
)

// ErrApprovalRequired signals that a tool is configured for human sign-off:
// the turn is truncated early and the pending approvals are returned to the
// caller. It is a control-flow signal, not a failure.
var ErrApprovalRequired = errors.New("tool approval required")

// FunctionSchema is the callable-function contract exposed to the model.
// Parameters is always an object schema with at least one property.
type FunctionSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Result is the outcome of executing one tool.
type Result struct {
	// Data is the tool output fed back to the model.
	Data string
	// ApprovalRequired short-circuits the turn before any side effect.
	ApprovalRequired bool
	// MessageID, when set, overrides the id of the produced agent message.
	MessageID string
	// Metadata is merged into the turn metadata, last write wins.
	Metadata map[string]any
}

// Turn is the turn-scoped accumulator shared by all handler invocations of
// one chat turn. Metadata and MessageID follow a last-write-wins merge.
type Turn struct {
	ConversationID string
	OrganizationID string

	Approvals []model.Approval
	Metadata  map[string]any
	MessageID string
}

// Merge folds a tool result into the turn state.
func (t *Turn) Merge(res Result) {
	if res.MessageID != "" {
		t.MessageID = res.MessageID
	}
	if len(res.Metadata) > 0 {
		if t.Metadata == nil {
			t.Metadata = make(map[string]any, len(res.Metadata))
		}
		for k, v := range res.Metadata {
			t.Metadata[k] = v
		}
	}
}

// Runtime is the uniform interface each tool variant implements.
type Runtime interface {
	// Schema returns the function-calling schema.
	Schema() FunctionSchema
	// Parse validates and coerces raw tool-call argument JSON.
	Parse(raw string) (map[string]any, error)
	// Execute performs the side effect. Ordinary execution failures are
	// reported in Result.Data so the model can verbalize them; errors are
	// reserved for infrastructure faults and control-flow signals.
	Execute(ctx context.Context, payload map[string]any, turn *Turn) (Result, error)
}

// Deps carries the collaborators tool runtimes need.
type Deps struct {
	Store   store.Store
	HTTP    *http.Client
	Actions *ActionsClient
	// FormBaseURL hosts the end-user form pages and submission endpoint.
	FormBaseURL string
	// ModelContextTokens is the active model's max-token budget, used for
	// tool-output truncation.
	ModelContextTokens int
	Logger             *logger.Logger
}

// Build constructs the runtime for a tool definition. Datastore tools are
// not callable functions in the default path; they are resolved by the
// conversation assembler.
func Build(t model.Tool, deps Deps) (Runtime, error) {
	switch t.Type {
	case model.ToolTypeHTTP:
		var cfg model.HTTPToolConfig
		if err := t.DecodeConfig(&cfg); err != nil {
			return nil, err
		}
		return &httpRuntime{tool: t, cfg: cfg, deps: deps}, nil
	case model.ToolTypeForm:
		var cfg model.FormToolConfig
		if err := t.DecodeConfig(&cfg); err != nil {
			return nil, err
		}
		return &formRuntime{tool: t, cfg: cfg, deps: deps}, nil
	case model.ToolTypeApp:
		var cfg model.AppToolConfig
		if err := t.DecodeConfig(&cfg); err != nil {
			return nil, err
		}
		return &appRuntime{tool: t, cfg: cfg, deps: deps}, nil
	case model.ToolTypeLeadCapture:
		var cfg model.LeadCaptureToolConfig
		if err := t.DecodeConfig(&cfg); err != nil {
			return nil, err
		}
		return &leadCaptureRuntime{tool: t, cfg: cfg, deps: deps}, nil
	case model.ToolTypeMarkAsResolved:
		return &markAsResolvedRuntime{tool: t, deps: deps}, nil
	case model.ToolTypeRequestHuman:
		return &requestHumanRuntime{tool: t, deps: deps}, nil
	case model.ToolTypeDatastore:
		return nil, fmt.Errorf("datastore tools are not callable functions")
	default:
		return nil, fmt.Errorf("unknown tool type %q", t.Type)
	}
}

// Dispatcher wraps runtimes into llm.ToolSpec entries bound to one turn.
type Dispatcher struct {
	deps Deps
	turn *Turn
}

// NewDispatcher creates a dispatcher bound to a turn accumulator.
func NewDispatcher(deps Deps, turn *Turn) *Dispatcher {
	return &Dispatcher{deps: deps, turn: turn}
}

// Bound pairs a tool definition with its callable spec.
type Bound struct {
	Tool model.Tool
	Spec llm.ToolSpec
}

// Specs builds the callable tool schemas for the given tools, skipping
// datastore tools.
func (d *Dispatcher) Specs(tools []model.Tool) ([]Bound, error) {
	var bound []Bound
	for _, t := range tools {
		if t.Type == model.ToolTypeDatastore {
			continue
		}
		rt, err := Build(t, d.deps)
		if err != nil {
			return nil, err
		}
		bound = append(bound, Bound{Tool: t, Spec: d.spec(t, rt)})
	}
	return bound, nil
}

func (d *Dispatcher) spec(t model.Tool, rt Runtime) llm.ToolSpec {
	schema := rt.Schema()
	return llm.ToolSpec{
		Name:        schema.Name,
		Description: schema.Description,
		Parameters:  schema.Parameters,
		Parse:       rt.Parse,
		Call: func(ctx context.Context, payload map[string]any) (string, error) {
			start := time.Now()
			res, err := rt.Execute(ctx, payload, d.turn)
			if err != nil {
				metrics.RecordToolExecution(string(t.Type), "error", time.Since(start).Seconds())
				return "", err
			}

			if res.ApprovalRequired {
				d.turn.Approvals = append(d.turn.Approvals, model.Approval{
					ID:             uuid.Must(uuid.NewV7()).String(),
					ConversationID: d.turn.ConversationID,
					ToolID:         t.ID,
					ToolType:       t.Type,
					Payload:        payload,
					CreatedAt:      time.Now(),
				})
				metrics.RecordToolExecution(string(t.Type), "approval_required", time.Since(start).Seconds())
				return "", ErrApprovalRequired
			}

			d.turn.Merge(res)
			metrics.RecordToolExecution(string(t.Type), "ok", time.Since(start).Seconds())
			return res.Data, nil
		},
	}
}

// ensureObjectSchema guarantees a well-formed function-calling contract:
// parameters.type is "object" and properties is non-empty, falling back to a
// single placeholder property.
func ensureObjectSchema(properties map[string]any, required []string) map[string]any {
	if len(properties) == 0 {
		properties = map[string]any{
			"input": map[string]any{
				"type":        "string",
				"description": "Free-form input for this tool",
			},
		}
		required = nil
	}
	params := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		params["required"] = required
	}
	return params
}

// parseArguments unmarshals raw tool-call argument JSON and coerces values
// against the schema: strings are coerced to booleans where the schema says
// boolean, and a non-object "attachment" field is stripped.
func parseArguments(raw string, parameters map[string]any) (map[string]any, error) {
	payload := make(map[string]any)
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("invalid tool arguments: %w", err)
		}
	}

	properties, _ := parameters["properties"].(map[string]any)
	for key, value := range payload {
		prop, ok := properties[key].(map[string]any)
		if !ok {
			continue
		}
		if prop["type"] == "boolean" {
			if s, ok := value.(string); ok {
				payload[key] = strings.EqualFold(s, "true")
			}
		}
	}

	if att, ok := payload["attachment"]; ok {
		if _, isObject := att.(map[string]any); !isObject {
			delete(payload, "attachment")
		}
	}

	return payload, nil
}

// functionName derives a stable function name for a tool from its display
// name, falling back to the tool type and id.
func functionName(t model.Tool, display string) string {
	name := strings.ToLower(strings.TrimSpace(display))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return '_'
		default:
			return -1
		}
	}, name)
	name = strings.Trim(name, "_")
	if name == "" {
		id := t.ID
		if len(id) > 8 {
			id = id[:8]
		}
		name = fmt.Sprintf("%s_%s", t.Type, id)
	}
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}
