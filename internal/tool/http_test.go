package tool

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lumenhq/agent-platform/internal/llm"
	"github.com/lumenhq/agent-platform/internal/model"
	"github.com/lumenhq/agent-platform/pkg/logger"
)

func httpTool(t *testing.T, cfg model.HTTPToolConfig) model.Tool {
	t.Helper()
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return model.Tool{ID: "tool-1", Type: model.ToolTypeHTTP, Config: raw}
}

func httpDeps() Deps {
	return Deps{
		HTTP:               http.DefaultClient,
		ModelContextTokens: 128000,
		Logger:             logger.NewNop(),
	}
}

func TestHTTPSchemaExposesUserProvidedOnly(t *testing.T) {
	tool := httpTool(t, model.HTTPToolConfig{
		Name:   "Check Order",
		URL:    "https://example.com/orders",
		Method: "GET",
		QueryParameters: []model.ToolParameter{
			{Key: "order_id", IsUserProvided: true, Description: "The order number"},
			{Key: "api_key", Value: "secret"},
			{Key: "status", IsUserProvided: true, AcceptedValues: []string{"open", "closed"}},
		},
	})

	rt, err := Build(tool, httpDeps())
	if err != nil {
		t.Fatal(err)
	}
	schema := rt.Schema()

	if schema.Name != "check_order" {
		t.Errorf("name = %q, want check_order", schema.Name)
	}
	props := schema.Parameters["properties"].(map[string]any)
	if _, ok := props["api_key"]; ok {
		t.Error("static parameter must not be exposed to the model")
	}
	if _, ok := props["order_id"]; !ok {
		t.Error("user-provided parameter missing from schema")
	}
	status := props["status"].(map[string]any)
	if enum, ok := status["enum"].([]string); !ok || len(enum) != 2 {
		t.Errorf("status enum = %v", status["enum"])
	}
}

func TestHTTPStaticValueOverridesPayload(t *testing.T) {
	var gotQuery string
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Encode()
		gotHeader = r.Header.Get("X-Api-Key")
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	tool := httpTool(t, model.HTTPToolConfig{
		URL:    srv.URL,
		Method: "GET",
		QueryParameters: []model.ToolParameter{
			{Key: "region", Value: "eu"},
			{Key: "order_id", IsUserProvided: true},
		},
		Headers: []model.ToolParameter{
			{Key: "X-Api-Key", Value: "static-key"},
		},
	})

	rt, err := Build(tool, httpDeps())
	if err != nil {
		t.Fatal(err)
	}

	res, err := rt.Execute(context.Background(), map[string]any{
		"region":   "us", // the model tries to override a static value
		"order_id": "42",
	}, &Turn{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(gotQuery, "region=eu") {
		t.Errorf("static value lost: query = %q", gotQuery)
	}
	if !strings.Contains(gotQuery, "order_id=42") {
		t.Errorf("payload value missing: query = %q", gotQuery)
	}
	if gotHeader != "static-key" {
		t.Errorf("header = %q", gotHeader)
	}
	if res.Data != `{"ok":true}` {
		t.Errorf("data = %q", res.Data)
	}
}

func TestHTTPApprovalShortCircuitsBeforeNetwork(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	tool := httpTool(t, model.HTTPToolConfig{
		URL:          srv.URL,
		Method:       "POST",
		WithApproval: true,
	})

	rt, err := Build(tool, httpDeps())
	if err != nil {
		t.Fatal(err)
	}

	res, err := rt.Execute(context.Background(), map[string]any{"input": "x"}, &Turn{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.ApprovalRequired {
		t.Error("expected ApprovalRequired")
	}
	if called {
		t.Error("approval-gated tool must not touch the network")
	}
}

func TestHTTPFailureIsReportedAsData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tool := httpTool(t, model.HTTPToolConfig{URL: srv.URL, Method: "GET"})
	rt, err := Build(tool, httpDeps())
	if err != nil {
		t.Fatal(err)
	}

	res, err := rt.Execute(context.Background(), nil, &Turn{})
	if err != nil {
		t.Fatalf("execution failures must not be errors, got %v", err)
	}
	if !strings.Contains(res.Data, "500") {
		t.Errorf("data should mention the status, got %q", res.Data)
	}
}

func TestTruncateToolOutput(t *testing.T) {
	contextTokens := 100 // 70 token output budget
	long := strings.Repeat("word ", 200)

	got := truncateToolOutput(long, contextTokens)
	if llm.EstimateTokens(got) > 70 {
		t.Errorf("output estimates %d tokens, want <= 70", llm.EstimateTokens(got))
	}

	short := "tiny output"
	if truncateToolOutput(short, contextTokens) != short {
		t.Error("short output must pass through unchanged")
	}
}
