package model

import (
	"time"
)

// MessageFrom identifies the sender side of a message.
type MessageFrom string

const (
	FromHuman MessageFrom = "human"
	FromAgent MessageFrom = "agent"
)

// Attachment is a file attached to an inbound message.
type Attachment struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size,omitempty"`
}

// IsImage reports whether the attachment is an image.
func (a Attachment) IsImage() bool {
	return len(a.MimeType) > 6 && a.MimeType[:6] == "image/"
}

// IsAudio reports whether the attachment is an audio recording.
func (a Attachment) IsAudio() bool {
	return len(a.MimeType) > 6 && a.MimeType[:6] == "audio/"
}

// Source is a retrieval citation attached to an agent answer.
type Source struct {
	DatastoreID string  `json:"datastore_id,omitempty"`
	ChunkID     string  `json:"chunk_id,omitempty"`
	Name        string  `json:"name,omitempty"`
	URL         string  `json:"url,omitempty"`
	Score       float64 `json:"score,omitempty"`
}

// MessageUsage is the token/cost accounting for one model call.
type MessageUsage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost,omitempty"`
}

// Approval is a pending tool execution awaiting human sign-off. Approvals
// are stored as their own records; an approval-gated turn produces no agent
// message.
type Approval struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	ToolID         string         `json:"tool_id"`
	ToolType       ToolType       `json:"tool_type"`
	Payload        map[string]any `json:"payload,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Message is one immutable conversation turn.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	From           MessageFrom `json:"from"`
	Text           string      `json:"text"`

	Attachments []Attachment   `json:"attachments,omitempty"`
	Sources     []Source       `json:"sources,omitempty"`
	Usage       *MessageUsage  `json:"usage,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	// InputID links an agent reply back to the triggering human message.
	InputID string `json:"input_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
