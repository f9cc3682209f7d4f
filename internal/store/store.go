// Package store provides persistence for agents, conversations, messages
// and usage counters.
package store

import (
	"context"
	"errors"

	"github.com/lumenhq/agent-platform/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence collaborator consumed by the pipeline.
type Store interface {
	GetAgent(ctx context.Context, id string) (*model.Agent, error)
	GetOrganization(ctx context.Context, id string) (*model.Organization, error)

	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	// GetConversationByExternalID reuses the open conversation for a
	// channel-side identifier, if any.
	GetConversationByExternalID(ctx context.Context, agentID, externalID string) (*model.Conversation, error)
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	UpdateConversationStatus(ctx context.Context, id string, status model.ConversationStatus) error
	SetAIEnabled(ctx context.Context, id string, enabled bool) error
	ListConversations(ctx context.Context, organizationID string, limit, offset int) (*model.ListConversationsResponse, error)

	CreateMessage(ctx context.Context, msg *model.Message) error
	// ListRecentMessages returns at most limit of the newest messages in
	// chronological order.
	ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	// CreateApprovals stores approvals raised by an approval-gated turn.
	CreateApprovals(ctx context.Context, approvals []model.Approval) error
	// ListPendingApprovals returns approvals raised in a conversation.
	ListPendingApprovals(ctx context.Context, conversationID string) ([]model.Approval, error)

	// CreateContact stores a captured lead and links it to its conversation.
	CreateContact(ctx context.Context, contact *model.Contact) error

	GetUsage(ctx context.Context, organizationID string) (*model.Usage, error)
	IncrementAgentQueries(ctx context.Context, organizationID string, by int) error
	// SetQuotaNotified flips the sticky limit-notification flag.
	SetQuotaNotified(ctx context.Context, organizationID string) error

	Close() error
}
