package model

import (
	"encoding/json"
	"fmt"
)

// ToolType tags the closed set of tool variants.
type ToolType string

const (
	ToolTypeHTTP           ToolType = "http"
	ToolTypeForm           ToolType = "form"
	ToolTypeApp            ToolType = "app"
	ToolTypeDatastore      ToolType = "datastore"
	ToolTypeLeadCapture    ToolType = "lead_capture"
	ToolTypeMarkAsResolved ToolType = "mark_as_resolved"
	ToolTypeRequestHuman   ToolType = "request_human"
)

// Tool is a polymorphic capability attached to an agent. Config carries the
// variant-specific configuration and is decoded by type tag.
type Tool struct {
	ID      string          `json:"id"`
	AgentID string          `json:"agent_id"`
	Type    ToolType        `json:"type"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// ToolParameter is one templated parameter of an http or app tool. A
// user-provided parameter is exposed to the model; a static one is merged in
// at execution time and overrides whatever the model supplied.
type ToolParameter struct {
	Key            string   `json:"key"`
	Value          string   `json:"value,omitempty"`
	Description    string   `json:"description,omitempty"`
	AcceptedValues []string `json:"accepted_values,omitempty"`
	IsUserProvided bool     `json:"is_user_provided,omitempty"`
}

// HTTPToolConfig is the webhook spec for an http tool.
type HTTPToolConfig struct {
	Name            string          `json:"name,omitempty"`
	Description     string          `json:"description,omitempty"`
	URL             string          `json:"url"`
	Method          string          `json:"method"`
	Headers         []ToolParameter `json:"headers,omitempty"`
	QueryParameters []ToolParameter `json:"query_parameters,omitempty"`
	BodyParameters  []ToolParameter `json:"body_parameters,omitempty"`
	WithApproval    bool            `json:"with_approval,omitempty"`
}

// FormToolConfig links a form schema and its trigger condition.
type FormToolConfig struct {
	FormID string `json:"form_id"`
	// Trigger is the natural-language condition under which the model should
	// invoke the form.
	Trigger string `json:"trigger,omitempty"`
	// MessageCountTrigger forces the form after this many human messages.
	MessageCountTrigger int `json:"message_count_trigger,omitempty"`
	// UseLegacySubmission posts captured values to the submission endpoint
	// instead of directing the user to the hosted form.
	UseLegacySubmission bool `json:"use_legacy_submission,omitempty"`
}

// AppToolConfig is a third-party action executed via the action service.
type AppToolConfig struct {
	ActionID string          `json:"action_id"`
	EntityID string          `json:"entity_id,omitempty"`
	Params   []ToolParameter `json:"params,omitempty"`
}

// DatastoreToolConfig references a knowledge base.
type DatastoreToolConfig struct {
	DatastoreID string `json:"datastore_id"`
}

// LeadCaptureToolConfig selects which contact fields the agent collects.
type LeadCaptureToolConfig struct {
	CaptureEmail       bool `json:"capture_email,omitempty"`
	CapturePhoneNumber bool `json:"capture_phone_number,omitempty"`
	// IsRequired makes the agent insist on capture before continuing.
	IsRequired bool `json:"is_required,omitempty"`
}

// DecodeConfig unmarshals the tool config into dst, which must be a pointer
// to the variant struct matching the tool type.
func (t Tool) DecodeConfig(dst any) error {
	if len(t.Config) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Config, dst); err != nil {
		return fmt.Errorf("decode %s tool config: %w", t.Type, err)
	}
	return nil
}
