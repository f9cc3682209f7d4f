package model

import (
	"time"
)

// EventType represents the type of pipeline event.
type EventType string

const (
	EventTypeToolApprovalRequested EventType = "tool-approval-requested"
	EventTypeConversationCreated   EventType = "conversation-created"
	EventTypeMessageCreated        EventType = "message-created"
	EventTypeHumanRequested        EventType = "human-requested"
)

// ConversationEvent is an event emitted by the orchestration pipeline.
type ConversationEvent struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	OrganizationID string         `json:"organization_id"`
	AgentID        string         `json:"agent_id,omitempty"`
	Type           EventType      `json:"type"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	Sequence       uint64         `json:"sequence,omitempty"`
}
