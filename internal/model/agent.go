// Package model defines data structures for the agent platform.
package model

import (
	"time"
)

// Visibility controls who can query an agent.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Agent is the configuration for one chatbot.
type Agent struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Visibility     Visibility `json:"visibility"`

	// ModelName is the founding-model routing key, resolved against the
	// model catalog at call time.
	ModelName    string  `json:"model_name"`
	SystemPrompt string  `json:"system_prompt"`
	UserPrompt   string  `json:"user_prompt,omitempty"`
	Temperature  float64 `json:"temperature"`

	// Behavior flags.
	UseMarkdown           bool `json:"use_markdown"`
	UseLanguageDetection  bool `json:"use_language_detection"`
	RestrictKnowledge     bool `json:"restrict_knowledge"`
	UseContextDataAgents  bool `json:"use_context_data_agents"`
	UseConversationalMode bool `json:"use_conversational_mode"`
	IncludeSources        bool `json:"include_sources"`

	Tools []Tool `json:"tools,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToolsByType returns the agent's tools of the given type.
func (a *Agent) ToolsByType(t ToolType) []Tool {
	var out []Tool
	for _, tool := range a.Tools {
		if tool.Type == t {
			out = append(out, tool)
		}
	}
	return out
}

// HasTool reports whether the agent has at least one tool of the given type.
func (a *Agent) HasTool(t ToolType) bool {
	for _, tool := range a.Tools {
		if tool.Type == t {
			return true
		}
	}
	return false
}
