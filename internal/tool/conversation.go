package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lumenhq/agent-platform/internal/model"
)

// leadCaptureRuntime stores the visitor's contact details as a lead.
type leadCaptureRuntime struct {
	tool model.Tool
	cfg  model.LeadCaptureToolConfig
	deps Deps
}

func (r *leadCaptureRuntime) Schema() FunctionSchema {
	properties := make(map[string]any)
	var required []string
	if r.cfg.CaptureEmail {
		properties["email"] = map[string]any{
			"type":        "string",
			"description": "The user's email address",
		}
		required = append(required, "email")
	}
	if r.cfg.CapturePhoneNumber {
		properties["phone_number"] = map[string]any{
			"type":        "string",
			"description": "The user's phone number, including country code",
		}
		required = append(required, "phone_number")
	}
	properties["first_name"] = map[string]any{
		"type":        "string",
		"description": "The user's first name, if given",
	}
	properties["last_name"] = map[string]any{
		"type":        "string",
		"description": "The user's last name, if given",
	}

	return FunctionSchema{
		Name:        "capture_lead",
		Description: "Save the user's contact details once they have shared them.",
		Parameters:  ensureObjectSchema(properties, required),
	}
}

func (r *leadCaptureRuntime) Parse(raw string) (map[string]any, error) {
	return parseArguments(raw, r.Schema().Parameters)
}

func (r *leadCaptureRuntime) Execute(ctx context.Context, payload map[string]any, turn *Turn) (Result, error) {
	str := func(key string) string {
		v, _ := payload[key].(string)
		return v
	}

	contact := &model.Contact{
		ID:             uuid.Must(uuid.NewV7()).String(),
		OrganizationID: turn.OrganizationID,
		ConversationID: turn.ConversationID,
		Email:          str("email"),
		PhoneNumber:    str("phone_number"),
		FirstName:      str("first_name"),
		LastName:       str("last_name"),
		CreatedAt:      time.Now(),
	}
	if contact.Email == "" && contact.PhoneNumber == "" {
		return Result{Data: "No contact details were provided, ask the user for them."}, nil
	}

	if err := r.deps.Store.CreateContact(ctx, contact); err != nil {
		return Result{}, fmt.Errorf("save contact: %w", err)
	}

	return Result{
		Data:     "Contact details saved. Thank the user and continue.",
		Metadata: map[string]any{"contactId": contact.ID},
	}, nil
}

// markAsResolvedRuntime marks the conversation resolved.
type markAsResolvedRuntime struct {
	tool model.Tool
	deps Deps
}

func (r *markAsResolvedRuntime) Schema() FunctionSchema {
	return FunctionSchema{
		Name:        "mark_as_resolved",
		Description: "Mark the conversation as resolved when the user confirms their request is handled.",
		Parameters:  ensureObjectSchema(nil, nil),
	}
}

func (r *markAsResolvedRuntime) Parse(raw string) (map[string]any, error) {
	return parseArguments(raw, r.Schema().Parameters)
}

func (r *markAsResolvedRuntime) Execute(ctx context.Context, payload map[string]any, turn *Turn) (Result, error) {
	if err := r.deps.Store.UpdateConversationStatus(ctx, turn.ConversationID, model.StatusResolved); err != nil {
		return Result{}, fmt.Errorf("mark as resolved: %w", err)
	}
	return Result{Data: "Conversation marked as resolved."}, nil
}

// requestHumanRuntime flags the conversation for a human operator.
type requestHumanRuntime struct {
	tool model.Tool
	deps Deps
}

func (r *requestHumanRuntime) Schema() FunctionSchema {
	return FunctionSchema{
		Name:        "request_human",
		Description: "Request a human operator when the user asks for one or the conversation needs escalation.",
		Parameters:  ensureObjectSchema(nil, nil),
	}
}

func (r *requestHumanRuntime) Parse(raw string) (map[string]any, error) {
	return parseArguments(raw, r.Schema().Parameters)
}

func (r *requestHumanRuntime) Execute(ctx context.Context, payload map[string]any, turn *Turn) (Result, error) {
	if err := r.deps.Store.UpdateConversationStatus(ctx, turn.ConversationID, model.StatusHumanRequested); err != nil {
		return Result{}, fmt.Errorf("request human: %w", err)
	}
	return Result{
		Data:     "A human operator has been requested and will take over shortly.",
		Metadata: map[string]any{"humanRequested": true},
	}, nil
}
