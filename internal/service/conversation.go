package service

import (
	"context"
	"fmt"

	"github.com/lumenhq/agent-platform/internal/model"
	"github.com/lumenhq/agent-platform/internal/store"
	"github.com/lumenhq/agent-platform/pkg/logger"
)

// ConversationService serves the operator-facing conversation views.
type ConversationService struct {
	store  store.Store
	logger *logger.Logger
}

// NewConversationService creates a conversation service.
func NewConversationService(st store.Store, log *logger.Logger) *ConversationService {
	return &ConversationService{store: st, logger: log}
}

// List returns a page of the organization's conversations.
func (s *ConversationService) List(ctx context.Context, organizationID string, limit, offset int) (*model.ListConversationsResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListConversations(ctx, organizationID, limit, offset)
}

// Get returns one conversation, enforcing tenant ownership.
func (s *ConversationService) Get(ctx context.Context, organizationID, id string) (*model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.OrganizationID != organizationID {
		return nil, ErrForbidden
	}
	return conv, nil
}

// Messages returns the most recent messages of a conversation in
// chronological order.
func (s *ConversationService) Messages(ctx context.Context, organizationID, id string, limit int) ([]model.Message, error) {
	if _, err := s.Get(ctx, organizationID, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = historyWindow
	}
	return s.store.ListRecentMessages(ctx, id, limit)
}

// PendingApprovals returns the approvals raised in a conversation.
func (s *ConversationService) PendingApprovals(ctx context.Context, organizationID, id string) ([]model.Approval, error) {
	if _, err := s.Get(ctx, organizationID, id); err != nil {
		return nil, err
	}
	return s.store.ListPendingApprovals(ctx, id)
}

// SetAIEnabled toggles agent answering for a conversation, used when a human
// operator takes over or hands back.
func (s *ConversationService) SetAIEnabled(ctx context.Context, organizationID, id string, enabled bool) error {
	if _, err := s.Get(ctx, organizationID, id); err != nil {
		return err
	}
	if err := s.store.SetAIEnabled(ctx, id, enabled); err != nil {
		return fmt.Errorf("set ai enabled: %w", err)
	}
	return nil
}

// SetStatus updates the resolution state of a conversation.
func (s *ConversationService) SetStatus(ctx context.Context, organizationID, id string, status model.ConversationStatus) error {
	switch status {
	case model.StatusUnresolved, model.StatusHumanRequested, model.StatusResolved:
	default:
		return fmt.Errorf("invalid status %q", status)
	}
	if _, err := s.Get(ctx, organizationID, id); err != nil {
		return err
	}
	if err := s.store.UpdateConversationStatus(ctx, id, status); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}
