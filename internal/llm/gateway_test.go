package llm

import (
	"testing"
)

func TestResolveModel(t *testing.T) {
	t.Run("known key", func(t *testing.T) {
		spec, err := ResolveModel("gpt_4o")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if spec.Provider != ProviderOpenAI || spec.WireModel != "gpt-4o" {
			t.Errorf("got %+v, want openai/gpt-4o", spec)
		}
	})

	t.Run("unknown key fails", func(t *testing.T) {
		if _, err := ResolveModel("gpt_9"); err == nil {
			t.Error("expected error for unknown model")
		}
	})

	t.Run("reasoning models reject temperature and system role", func(t *testing.T) {
		spec, err := ResolveModel("o1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if spec.SupportsTemperature || spec.SupportsSystemRole {
			t.Errorf("o1 should support neither temperature nor system role, got %+v", spec)
		}
	})
}

func TestSessionGatesAreIndependent(t *testing.T) {
	base := &Gateway{
		clients: map[Provider]Client{},
		gate:    make(chan struct{}, 1),
	}

	s1 := base.Session()
	s2 := base.Session()

	// Saturate one session's gate; the other must still admit a call.
	s1.gate <- struct{}{}
	select {
	case s2.gate <- struct{}{}:
	default:
		t.Fatal("sessions must not share a call gate")
	}
	select {
	case base.gate <- struct{}{}:
	default:
		t.Fatal("sessions must not saturate the source gateway's gate")
	}
}

func TestAnthropicClientSupportsToolCalling(t *testing.T) {
	c, err := NewAnthropicClient("test-key")
	if err != nil {
		t.Fatal(err)
	}
	var client Client = c
	if _, ok := client.(ToolCaller); !ok {
		t.Fatal("anthropic client must implement tool calling")
	}
}

func TestSanitizeMessages(t *testing.T) {
	tests := []struct {
		name string
		in   []ChatMessage
		want []string
	}{
		{
			name: "drops empty content",
			in: []ChatMessage{
				{Role: "user", Content: "hello"},
				{Role: "assistant", Content: ""},
				{Role: "user", Content: "again"},
			},
			want: []string{"hello", "again"},
		},
		{
			name: "collapses consecutive duplicates",
			in: []ChatMessage{
				{Role: "user", Content: "same"},
				{Role: "user", Content: "same"},
				{Role: "user", Content: "different"},
			},
			want: []string{"same", "different"},
		},
		{
			name: "same content different role survives",
			in: []ChatMessage{
				{Role: "user", Content: "echo"},
				{Role: "assistant", Content: "echo"},
			},
			want: []string{"echo", "echo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeMessages(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d messages, want %d", len(got), len(tt.want))
			}
			for i, want := range tt.want {
				if got[i].Content != want {
					t.Errorf("message %d = %q, want %q", i, got[i].Content, want)
				}
			}
		})
	}

	t.Run("keeps empty multimodal messages", func(t *testing.T) {
		in := []ChatMessage{{Role: "user", Parts: []ContentPart{{Type: "image_url", ImageURL: "data:..."}}}}
		if got := SanitizeMessages(in); len(got) != 1 {
			t.Errorf("multimodal message was dropped")
		}
	})
}

func TestRewriteSystemRole(t *testing.T) {
	t.Run("system becomes user and merges", func(t *testing.T) {
		in := []ChatMessage{
			{Role: "system", Content: "you are helpful"},
			{Role: "user", Content: "hi"},
		}
		got := RewriteSystemRole(in)
		if len(got) != 1 {
			t.Fatalf("got %d messages, want 1 merged", len(got))
		}
		if got[0].Role != "user" {
			t.Errorf("role = %q, want user", got[0].Role)
		}
		if got[0].Content != "you are helpful\nhi" {
			t.Errorf("content = %q", got[0].Content)
		}
	})

	t.Run("alternating roles stay separate", func(t *testing.T) {
		in := []ChatMessage{
			{Role: "user", Content: "q"},
			{Role: "assistant", Content: "a"},
			{Role: "user", Content: "q2"},
		}
		if got := RewriteSystemRole(in); len(got) != 3 {
			t.Errorf("got %d messages, want 3", len(got))
		}
	})

	t.Run("multimodal is never merged", func(t *testing.T) {
		in := []ChatMessage{
			{Role: "user", Content: "look at this"},
			{Role: "user", Parts: []ContentPart{{Type: "image_url", ImageURL: "data:..."}}},
		}
		if got := RewriteSystemRole(in); len(got) != 2 {
			t.Errorf("got %d messages, want 2", len(got))
		}
	})
}
