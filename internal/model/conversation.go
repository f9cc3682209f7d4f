package model

import (
	"time"
)

// Channel identifies where a conversation takes place.
type Channel string

const (
	ChannelDashboard Channel = "dashboard"
	ChannelWebsite   Channel = "website"
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelMeta      Channel = "meta"
	ChannelCrisp     Channel = "crisp"
	ChannelSlack     Channel = "slack"
	ChannelMail      Channel = "mail"
	ChannelAPI       Channel = "api"
	ChannelForm      Channel = "form"
	ChannelZapier    Channel = "zapier"
)

// SupportsMarkdown reports whether the channel renders markdown. Plain-text
// channels get the markdown directive stripped from the system prompt.
func (c Channel) SupportsMarkdown() bool {
	switch c {
	case ChannelWhatsApp, ChannelSlack, ChannelCrisp, ChannelMail:
		return false
	default:
		return true
	}
}

// AllowsLeadCapture reports whether the lead-capture tool may run on this
// channel. Dashboard users are operators, not leads.
func (c Channel) AllowsLeadCapture() bool {
	return c != ChannelDashboard
}

// ConversationStatus is the resolution state of a conversation.
type ConversationStatus string

const (
	StatusUnresolved     ConversationStatus = "UNRESOLVED"
	StatusHumanRequested ConversationStatus = "HUMAN_REQUESTED"
	StatusResolved       ConversationStatus = "RESOLVED"
)

// Conversation is a channel-scoped thread between an end user and an agent.
type Conversation struct {
	ID             string             `json:"id"`
	OrganizationID string             `json:"organization_id"`
	AgentID        string             `json:"agent_id"`
	Channel        Channel            `json:"channel"`
	Status         ConversationStatus `json:"status"`

	// IsAIEnabled is toggled off when a human operator takes over.
	IsAIEnabled bool `json:"is_ai_enabled"`

	// ExternalID is the channel-side identifier (visitor id, phone number,
	// page-scoped user id). At most one open conversation is expected per
	// (agent, external id) pair; lookups reuse it.
	ExternalID string `json:"external_id,omitempty"`

	// ContactID links the captured lead/contact, when one exists.
	ContactID string `json:"contact_id,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Contact is a captured lead attached to a conversation.
type Contact struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	ConversationID string    `json:"conversation_id"`
	Email          string    `json:"email,omitempty"`
	PhoneNumber    string    `json:"phone_number,omitempty"`
	FirstName      string    `json:"first_name,omitempty"`
	LastName       string    `json:"last_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
	HasMore       bool           `json:"has_more"`
}
