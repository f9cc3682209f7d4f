package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lumenhq/agent-platform/internal/model"
)

// MemoryStore is an in-memory Store used for development and tests.
type MemoryStore struct {
	mu sync.RWMutex

	agents        map[string]*model.Agent
	organizations map[string]*model.Organization
	conversations map[string]*model.Conversation
	messages      map[string][]model.Message  // keyed by conversation id
	approvals     map[string][]model.Approval // keyed by conversation id
	contacts      map[string]*model.Contact
	usage         map[string]*model.Usage
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:        make(map[string]*model.Agent),
		organizations: make(map[string]*model.Organization),
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]model.Message),
		approvals:     make(map[string][]model.Approval),
		contacts:      make(map[string]*model.Contact),
		usage:         make(map[string]*model.Usage),
	}
}

// PutAgent seeds an agent. Intended for tests and fixtures.
func (s *MemoryStore) PutAgent(agent *model.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agent.ID] = agent
}

// PutOrganization seeds an organization.
func (s *MemoryStore) PutOrganization(org *model.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.organizations[org.ID] = org
}

// PutUsage seeds a usage counter.
func (s *MemoryStore) PutUsage(usage *model.Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[usage.OrganizationID] = usage
}

func (s *MemoryStore) GetAgent(ctx context.Context, id string) (*model.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *agent
	return &cp, nil
}

func (s *MemoryStore) GetOrganization(ctx context.Context, id string) (*model.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.organizations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *conv
	return &cp, nil
}

func (s *MemoryStore) GetConversationByExternalID(ctx context.Context, agentID, externalID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, conv := range s.conversations {
		if conv.AgentID == agentID && conv.ExternalID == externalID {
			cp := *conv
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *conv
	s.conversations[conv.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateConversationStatus(ctx context.Context, id string, status model.ConversationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	conv.Status = status
	conv.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetAIEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	conv.IsAIEnabled = enabled
	conv.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ListConversations(ctx context.Context, organizationID string, limit, offset int) (*model.ListConversationsResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var convs []model.Conversation
	for _, conv := range s.conversations {
		if conv.OrganizationID == organizationID {
			convs = append(convs, *conv)
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})

	total := len(convs)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &model.ListConversationsResponse{
		Conversations: convs[start:end],
		Total:         total,
		HasMore:       end < total,
	}, nil
}

func (s *MemoryStore) CreateMessage(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	if conv, ok := s.conversations[msg.ConversationID]; ok {
		conv.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) CreateApprovals(ctx context.Context, approvals []model.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range approvals {
		s.approvals[a.ConversationID] = append(s.approvals[a.ConversationID], a)
	}
	return nil
}

func (s *MemoryStore) ListPendingApprovals(ctx context.Context, conversationID string) ([]model.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Approval, len(s.approvals[conversationID]))
	copy(out, s.approvals[conversationID])
	return out, nil
}

func (s *MemoryStore) CreateContact(ctx context.Context, contact *model.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *contact
	s.contacts[contact.ID] = &cp
	if conv, ok := s.conversations[contact.ConversationID]; ok {
		conv.ContactID = contact.ID
		conv.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) GetUsage(ctx context.Context, organizationID string) (*model.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	usage, ok := s.usage[organizationID]
	if !ok {
		return &model.Usage{OrganizationID: organizationID}, nil
	}
	cp := *usage
	return &cp, nil
}

func (s *MemoryStore) IncrementAgentQueries(ctx context.Context, organizationID string, by int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	usage, ok := s.usage[organizationID]
	if !ok {
		usage = &model.Usage{OrganizationID: organizationID}
		s.usage[organizationID] = usage
	}
	usage.NbAgentQueries += by
	return nil
}

func (s *MemoryStore) SetQuotaNotified(ctx context.Context, organizationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	usage, ok := s.usage[organizationID]
	if !ok {
		usage = &model.Usage{OrganizationID: organizationID}
		s.usage[organizationID] = usage
	}
	usage.NotifiedAgentQueriesLimitReached = true
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
