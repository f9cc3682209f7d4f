package splitter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/lumenhq/agent-platform/pkg/logger"
)

func TestNewValidation(t *testing.T) {
	if _, err := New("", "gpt-4o-mini", logger.NewNop()); err == nil {
		t.Error("expected error for missing API key")
	}
	if _, err := New("sk-test", "", logger.NewNop()); err == nil {
		t.Error("expected error for missing model")
	}
	if _, err := New("sk-test", "gpt-4o-mini", logger.NewNop()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSplitEmptyAnswerSkipsNetwork(t *testing.T) {
	// No server behind this client: a network hit would fail loudly.
	s := &Splitter{client: openai.NewClient("sk-test"), model: "gpt-4o-mini", logger: logger.NewNop()}

	parts := s.Split(context.Background(), "   ")
	if len(parts) != 1 || parts[0] != "   " {
		t.Errorf("parts = %v, want the original as a single part", parts)
	}
}

// fakeSplitServer answers every chat completion with a fixed forced tool call.
func fakeSplitServer(t *testing.T, arguments string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"role": "assistant",
					"tool_calls": []map[string]any{{
						"id":   "call-1",
						"type": "function",
						"function": map[string]any{
							"name":      splitFunctionName,
							"arguments": arguments,
						},
					}},
				},
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func splitterFor(srv *httptest.Server) *Splitter {
	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"
	return &Splitter{client: openai.NewClientWithConfig(cfg), model: "gpt-4o-mini", logger: logger.NewNop()}
}

func TestSplitDropsBlankAndClampsParts(t *testing.T) {
	srv := fakeSplitServer(t, `{"parts":[{"content":"one"},{"content":"  "},{"content":"two"},{"content":"three"},{"content":"four"}]}`)
	defer srv.Close()

	parts := splitterFor(srv).Split(context.Background(), "a long answer")

	want := []string{"one", "two", "three"}
	if len(parts) != len(want) {
		t.Fatalf("parts = %v, want %v", parts, want)
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Errorf("part %d = %q, want %q", i, parts[i], want[i])
		}
	}
}

func TestSplitFailureFallsBackToSinglePart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	answer := "keep me intact"
	parts := splitterFor(srv).Split(context.Background(), answer)
	if len(parts) != 1 || parts[0] != answer {
		t.Errorf("parts = %v, want the original answer untouched", parts)
	}
}

func TestSplitAllBlankPartsFallsBack(t *testing.T) {
	srv := fakeSplitServer(t, `{"parts":[{"content":""},{"content":"  "}]}`)
	defer srv.Close()

	answer := "original"
	parts := splitterFor(srv).Split(context.Background(), answer)
	if len(parts) != 1 || parts[0] != answer {
		t.Errorf("parts = %v, want fallback to the original", parts)
	}
}
