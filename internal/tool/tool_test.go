package tool

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/lumenhq/agent-platform/internal/model"
	"github.com/lumenhq/agent-platform/pkg/logger"
)

func TestEnsureObjectSchema(t *testing.T) {
	t.Run("empty properties get a placeholder", func(t *testing.T) {
		params := ensureObjectSchema(nil, nil)
		if params["type"] != "object" {
			t.Errorf("type = %v, want object", params["type"])
		}
		props := params["properties"].(map[string]any)
		if len(props) == 0 {
			t.Error("properties must never be empty")
		}
		if _, ok := params["required"]; ok {
			t.Error("placeholder property must not be required")
		}
	})

	t.Run("existing properties pass through", func(t *testing.T) {
		props := map[string]any{"city": map[string]any{"type": "string"}}
		params := ensureObjectSchema(props, []string{"city"})
		if got := params["properties"].(map[string]any); len(got) != 1 {
			t.Errorf("got %d properties, want 1", len(got))
		}
		if req := params["required"].([]string); len(req) != 1 || req[0] != "city" {
			t.Errorf("required = %v", req)
		}
	})
}

func TestParseArguments(t *testing.T) {
	schema := ensureObjectSchema(map[string]any{
		"confirmed": map[string]any{"type": "boolean"},
		"city":      map[string]any{"type": "string"},
	}, nil)

	t.Run("coerces string booleans", func(t *testing.T) {
		payload, err := parseArguments(`{"confirmed":"true","city":"Lyon"}`, schema)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if payload["confirmed"] != true {
			t.Errorf("confirmed = %v (%T), want true", payload["confirmed"], payload["confirmed"])
		}
		if payload["city"] != "Lyon" {
			t.Errorf("city = %v", payload["city"])
		}
	})

	t.Run("empty input yields empty payload", func(t *testing.T) {
		payload, err := parseArguments("", schema)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(payload) != 0 {
			t.Errorf("payload = %v, want empty", payload)
		}
	})

	t.Run("invalid JSON fails", func(t *testing.T) {
		if _, err := parseArguments("{broken", schema); err == nil {
			t.Error("expected error for invalid JSON")
		}
	})

	t.Run("strips non-object attachment", func(t *testing.T) {
		payload, err := parseArguments(`{"attachment":"oops"}`, schema)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := payload["attachment"]; ok {
			t.Error("scalar attachment should be stripped")
		}
	})

	t.Run("keeps object attachment", func(t *testing.T) {
		payload, err := parseArguments(`{"attachment":{"url":"x"}}`, schema)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := payload["attachment"]; !ok {
			t.Error("object attachment should survive")
		}
	})
}

func TestFunctionName(t *testing.T) {
	tests := []struct {
		name    string
		display string
		want    string
	}{
		{"lowercases and underscores", "Check Order Status", "check_order_status"},
		{"strips punctuation", "What's the weather?!", "whats_the_weather"},
		{"keeps digits", "lookup v2", "lookup_v2"},
	}

	tool := model.Tool{ID: "0123456789abcdef", Type: model.ToolTypeHTTP}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := functionName(tool, tt.display); got != tt.want {
				t.Errorf("functionName(%q) = %q, want %q", tt.display, got, tt.want)
			}
		})
	}

	t.Run("empty display falls back to type and id", func(t *testing.T) {
		got := functionName(tool, "???")
		if got != "http_01234567" {
			t.Errorf("got %q, want http_01234567", got)
		}
	})

	t.Run("caps at 64 characters", func(t *testing.T) {
		got := functionName(tool, strings.Repeat("a", 100))
		if len(got) != 64 {
			t.Errorf("length = %d, want 64", len(got))
		}
	})
}

func TestTurnMerge(t *testing.T) {
	turn := &Turn{}
	turn.Merge(Result{MessageID: "m1", Metadata: map[string]any{"a": 1, "b": 1}})
	turn.Merge(Result{Metadata: map[string]any{"b": 2}})

	if turn.MessageID != "m1" {
		t.Errorf("MessageID = %q, want m1 preserved", turn.MessageID)
	}
	if turn.Metadata["a"] != 1 {
		t.Errorf("a = %v, want 1", turn.Metadata["a"])
	}
	if turn.Metadata["b"] != 2 {
		t.Errorf("b = %v, want last write 2", turn.Metadata["b"])
	}
}

func TestBuildRejectsDatastore(t *testing.T) {
	_, err := Build(model.Tool{ID: "t1", Type: model.ToolTypeDatastore}, Deps{})
	if err == nil {
		t.Error("datastore tools must not build callable runtimes")
	}
}

func TestAppRuntimeWithoutActionService(t *testing.T) {
	cfg, _ := json.Marshal(model.AppToolConfig{ActionID: "send-invoice", EntityID: "acct-1"})
	rt, err := Build(model.Tool{ID: "t-app", Type: model.ToolTypeApp, Config: cfg},
		Deps{Logger: logger.NewNop()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := rt.Execute(context.Background(), map[string]any{}, &Turn{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Data != "The call has failed, please try again later." {
		t.Errorf("data = %q, want the failure fallback", res.Data)
	}
}

func TestLeadCaptureSchemaFields(t *testing.T) {
	cfg, _ := json.Marshal(model.LeadCaptureToolConfig{CaptureEmail: true})
	rt, err := Build(model.Tool{ID: "t-lead", Type: model.ToolTypeLeadCapture, Config: cfg}, Deps{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	params := rt.Schema().Parameters
	props := params["properties"].(map[string]any)
	for _, key := range []string{"email", "first_name", "last_name"} {
		if _, ok := props[key]; !ok {
			t.Errorf("schema must declare %q", key)
		}
	}
	if _, ok := props["phone_number"]; ok {
		t.Error("phone_number must not be declared unless configured")
	}
	if req := params["required"].([]string); len(req) != 1 || req[0] != "email" {
		t.Errorf("required = %v, want [email]", req)
	}
}

func TestDispatcherSpecsSkipsDatastore(t *testing.T) {
	cfg, _ := json.Marshal(model.DatastoreToolConfig{DatastoreID: "ds1"})
	tools := []model.Tool{
		{ID: "t1", Type: model.ToolTypeDatastore, Config: cfg},
		{ID: "t2", Type: model.ToolTypeMarkAsResolved},
	}

	d := NewDispatcher(Deps{}, &Turn{})
	bound, err := d.Specs(tools)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bound) != 1 {
		t.Fatalf("got %d specs, want 1", len(bound))
	}
	if bound[0].Spec.Name != "mark_as_resolved" {
		t.Errorf("spec name = %q", bound[0].Spec.Name)
	}
}
