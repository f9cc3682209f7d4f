package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/lumenhq/agent-platform/internal/model"
)

// formNamespace seeds the deterministic id of form-directing messages so
// the UI can correlate a later form-fill event back to the turn that
// produced it.
var formNamespace = uuid.MustParse("5ba41569-dd2f-4d3e-9f4f-975e9a16f7e0")

// formRuntime triggers a configured form: either directing the user to the
// hosted form page or posting captured values to the submission endpoint.
type formRuntime struct {
	tool model.Tool
	cfg  model.FormToolConfig
	deps Deps
}

func (r *formRuntime) Schema() FunctionSchema {
	description := "Trigger the form the user should fill in."
	if r.cfg.Trigger != "" {
		description = fmt.Sprintf("Trigger the form when: %s", r.cfg.Trigger)
	}

	var properties map[string]any
	if r.cfg.UseLegacySubmission {
		properties = map[string]any{
			"values": map[string]any{
				"type":        "object",
				"description": "Captured form field values keyed by field name",
			},
		}
	}

	return FunctionSchema{
		Name:        functionName(r.tool, "form_"+r.cfg.FormID),
		Description: description,
		Parameters:  ensureObjectSchema(properties, nil),
	}
}

func (r *formRuntime) Parse(raw string) (map[string]any, error) {
	return parseArguments(raw, r.Schema().Parameters)
}

func (r *formRuntime) Execute(ctx context.Context, payload map[string]any, turn *Turn) (Result, error) {
	if r.cfg.UseLegacySubmission {
		return r.submit(ctx, payload)
	}

	// Hosted-form path: the produced message gets a deterministic id so the
	// form-fill event can be linked back to this turn.
	messageID := uuid.NewSHA1(formNamespace, []byte(turn.ConversationID+":"+r.cfg.FormID)).String()
	formURL := fmt.Sprintf("%s/forms/%s?conversation_id=%s&message_id=%s",
		r.deps.FormBaseURL, r.cfg.FormID, turn.ConversationID, messageID)

	return Result{
		Data:      fmt.Sprintf("Ask the user to fill in the form at %s", formURL),
		MessageID: messageID,
		Metadata: map[string]any{
			"shouldDisplayForm": true,
			"formId":            r.cfg.FormID,
		},
	}, nil
}

func (r *formRuntime) submit(ctx context.Context, payload map[string]any) (Result, error) {
	values, _ := payload["values"].(map[string]any)
	body, err := json.Marshal(map[string]any{
		"form_id": r.cfg.FormID,
		"values":  values,
	})
	if err != nil {
		return Result{Data: "The form submission could not be prepared."}, nil
	}

	url := fmt.Sprintf("%s/api/forms/%s/submit", r.deps.FormBaseURL, r.cfg.FormID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Data: "The form submission could not be prepared."}, nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.deps.HTTP.Do(req)
	if err != nil {
		return Result{Data: "The form submission has failed, please try again later."}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Data: fmt.Sprintf("The form submission failed with status %d.", resp.StatusCode)}, nil
	}

	return Result{
		Data:     "Form submitted successfully.",
		Metadata: map[string]any{"formSubmitted": true, "formId": r.cfg.FormID},
	}, nil
}
