// Package service implements the chat orchestration pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumenhq/agent-platform/internal/assembler"
	"github.com/lumenhq/agent-platform/internal/attachments"
	"github.com/lumenhq/agent-platform/internal/llm"
	"github.com/lumenhq/agent-platform/internal/mailer"
	"github.com/lumenhq/agent-platform/internal/model"
	"github.com/lumenhq/agent-platform/internal/nats"
	"github.com/lumenhq/agent-platform/internal/store"
	"github.com/lumenhq/agent-platform/internal/tool"
	"github.com/lumenhq/agent-platform/pkg/logger"
	"github.com/lumenhq/agent-platform/pkg/metrics"
)

// historyWindow is how many recent messages are loaded as conversation
// history.
const historyWindow = 50

var (
	// ErrQuotaExceeded rejects a turn because the organization used up its
	// agent-query quota.
	ErrQuotaExceeded = errors.New("agent query quota exceeded")

	// ErrForbidden rejects access to a resource owned by another tenant.
	ErrForbidden = errors.New("resource belongs to another organization")

	// ErrEmptyQuery rejects a turn with no usable input.
	ErrEmptyQuery = errors.New("query is empty")
)

// ModelGateway is the completion collaborator. *llm.Gateway satisfies it.
type ModelGateway interface {
	Call(ctx context.Context, req *llm.CallRequest) (*llm.CallResponse, error)
}

// GatewayFactory mints the gateway for one turn, so the call gate lives and
// dies with the turn instead of serializing unrelated tenants.
type GatewayFactory func() ModelGateway

// AnswerSplitter breaks an answer into chat fragments. *splitter.Splitter
// satisfies it.
type AnswerSplitter interface {
	Split(ctx context.Context, answer string) []string
}

// ChatConfig carries the orchestrator tunables.
type ChatConfig struct {
	RetrievalTopK     int
	RetrievalMinScore float64
	// FormBaseURL hosts the end-user form pages.
	FormBaseURL string
}

// ChatService orchestrates one chat turn end to end: conversation resolution,
// gating, assembly, the model call, persistence, and event dispatch.
type ChatService struct {
	store     store.Store
	gateway   GatewayFactory
	assembler *assembler.Assembler
	splitter  AnswerSplitter
	resolver  *attachments.Resolver
	mailer    mailer.Mailer
	events    *nats.StreamManager
	actions   *tool.ActionsClient

	cfg    ChatConfig
	http   *http.Client
	logger *logger.Logger
}

// NewChatService creates the orchestrator. The mailer, events, actions and
// resolver collaborators may be nil; the matching features degrade silently.
func NewChatService(
	st store.Store,
	gateway GatewayFactory,
	asm *assembler.Assembler,
	split AnswerSplitter,
	resolver *attachments.Resolver,
	mail mailer.Mailer,
	events *nats.StreamManager,
	actions *tool.ActionsClient,
	cfg ChatConfig,
	log *logger.Logger,
) *ChatService {
	return &ChatService{
		store:     st,
		gateway:   gateway,
		assembler: asm,
		splitter:  split,
		resolver:  resolver,
		mailer:    mail,
		events:    events,
		actions:   actions,
		cfg:       cfg,
		http:      &http.Client{Timeout: 60 * time.Second},
		logger:    log,
	}
}

// HandleMessage runs one orchestrated turn for the authenticated
// organization.
func (s *ChatService) HandleMessage(ctx context.Context, organizationID string, req *model.ChatRequest) (*model.ChatResult, error) {
	agent, err := s.store.GetAgent(ctx, req.AgentID)
	if err != nil {
		return nil, fmt.Errorf("load agent: %w", err)
	}
	if agent.OrganizationID != organizationID {
		return nil, ErrForbidden
	}

	channel := req.Channel
	if channel == "" {
		channel = model.ChannelAPI
	}

	query := req.Query
	if len(req.Queries) > 0 {
		query = strings.Join(req.Queries, "\n\n")
	}
	if strings.TrimSpace(query) == "" && len(req.Attachments) == 0 {
		return nil, ErrEmptyQuery
	}

	conv, created, err := s.resolveConversation(ctx, agent, channel, req)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithTurn(organizationID, agent.ID, conv.ID)

	// A human operator has taken over: store the inbound message so they see
	// it, skip the model entirely.
	if !conv.IsAIEnabled && !req.Draft {
		inputMsg := s.humanMessage(conv.ID, query, req.Attachments)
		if err := s.store.CreateMessage(ctx, inputMsg); err != nil {
			return nil, fmt.Errorf("store message: %w", err)
		}
		metrics.AgentQueriesTotal.WithLabelValues(organizationID, string(channel), string(model.OutcomeAIDisabled)).Inc()
		return &model.ChatResult{
			Outcome:        model.OutcomeAIDisabled,
			ConversationID: conv.ID,
			InputMessageID: inputMsg.ID,
			IsAIEnabled:    false,
			Status:         conv.Status,
		}, nil
	}

	org, err := s.store.GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}
	if err := s.checkQuota(ctx, org, log); err != nil {
		metrics.QuotaRejectionsTotal.WithLabelValues(organizationID).Inc()
		return nil, err
	}

	modelName := agent.ModelName
	if req.ModelNameOverride != "" {
		modelName = req.ModelNameOverride
	}
	spec, err := llm.ResolveModel(modelName)
	if err != nil {
		return nil, err
	}

	if req.SystemPromptOverride != "" {
		agent.SystemPrompt = req.SystemPromptOverride
	}

	// Resolve attachments into model inputs. Transcribed audio joins the
	// query text.
	var imageURLs []string
	extraContext := req.Context
	if s.resolver != nil && len(req.Attachments) > 0 {
		resolved := s.resolver.Resolve(ctx, req.Attachments)
		imageURLs = resolved.ImageURLs
		if resolved.DocumentText != "" {
			if extraContext != "" {
				extraContext += "\n\n"
			}
			extraContext += resolved.DocumentText
		}
		if len(resolved.Transcripts) > 0 {
			transcript := strings.Join(resolved.Transcripts, "\n")
			if strings.TrimSpace(query) == "" {
				query = transcript
			} else {
				query = query + "\n" + transcript
			}
		}
	}

	var history []model.Message
	if !created {
		history, err = s.store.ListRecentMessages(ctx, conv.ID, historyWindow)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
	}
	humanCount := 1
	for _, m := range history {
		if m.From == model.FromHuman {
			humanCount++
		}
	}

	var inputMsg *model.Message
	if !req.Draft {
		inputMsg = s.humanMessage(conv.ID, query, req.Attachments)
		if err := s.store.CreateMessage(ctx, inputMsg); err != nil {
			return nil, fmt.Errorf("store message: %w", err)
		}
		metrics.MessagesTotal.WithLabelValues(organizationID, string(model.FromHuman)).Inc()
		s.publishEvent(conv, agent.ID, model.EventTypeMessageCreated, map[string]any{
			"message_id": inputMsg.ID,
			"from":       string(model.FromHuman),
		})
	}

	turn := &tool.Turn{ConversationID: conv.ID, OrganizationID: organizationID}
	dispatcher := tool.NewDispatcher(tool.Deps{
		Store:              s.store,
		HTTP:               s.http,
		Actions:            s.actions,
		FormBaseURL:        s.cfg.FormBaseURL,
		ModelContextTokens: spec.ContextTokens,
		Logger:             log,
	}, turn)

	bound, err := dispatcher.Specs(s.filterTools(agent, channel, conv))
	if err != nil {
		return nil, fmt.Errorf("build tools: %w", err)
	}

	useMarkdown := agent.UseMarkdown && channel.SupportsMarkdown()
	assembled, err := s.assembler.Assemble(ctx, assembler.Input{
		Agent:             agent,
		Spec:              spec,
		ConversationID:    conv.ID,
		History:           history,
		Query:             query,
		RetrievalQuery:    req.RetrievalQuery,
		ImageURLs:         imageURLs,
		ContextData:       req.ContextData,
		ExtraContext:      extraContext,
		Bound:             bound,
		UseMarkdown:       useMarkdown,
		HumanMessageCount: humanCount,
		RetrievalTopK:     s.cfg.RetrievalTopK,
		RetrievalMinScore: s.cfg.RetrievalMinScore,
	})
	if err != nil {
		return nil, fmt.Errorf("assemble turn: %w", err)
	}

	// The usage counter moves as soon as the model is invoked, concurrently
	// with the call itself. A failed increment is logged, never fatal.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.store.IncrementAgentQueries(context.WithoutCancel(ctx), organizationID, spec.QueryCost); err != nil {
			log.Error("usage increment failed", zap.Error(err))
		}
	}()

	temperature := agent.Temperature
	resp, callErr := s.gateway().Call(ctx, &llm.CallRequest{
		Model:       modelName,
		Messages:    assembled.Messages,
		Temperature: &temperature,
		Tools:       assembled.Tools,
		ToolChoice:  assembled.ToolChoice,
	})
	wg.Wait()

	if callErr != nil {
		if errors.Is(callErr, tool.ErrApprovalRequired) {
			return s.approvalResult(ctx, org, agent, conv, channel, inputMsg, turn)
		}
		return nil, callErr
	}

	result := &model.ChatResult{
		Outcome:        model.OutcomeCompleted,
		Answer:         resp.Answer,
		Sources:        assembled.Sources,
		ConversationID: conv.ID,
		IsAIEnabled:    true,
		Usage: &model.MessageUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			Cost:             float64(spec.QueryCost),
		},
		Metadata: turn.Metadata,
	}
	if inputMsg != nil {
		result.InputMessageID = inputMsg.ID
	}

	if !req.Draft {
		if err := s.persistAnswer(ctx, org, agent, conv, inputMsg, turn, result); err != nil {
			return nil, err
		}
	}

	if created && channel == model.ChannelWebsite && !req.Draft {
		s.notifyNewConversation(org, conv.ID, query, resp.Answer, log)
	}

	// Tools may have moved the conversation state during the turn.
	if fresh, err := s.store.GetConversation(ctx, conv.ID); err == nil {
		result.Status = fresh.Status
		result.IsAIEnabled = fresh.IsAIEnabled
	} else {
		result.Status = conv.Status
	}

	if result.Metadata != nil && result.Metadata["humanRequested"] == true {
		s.publishEvent(conv, agent.ID, model.EventTypeHumanRequested, nil)
	}

	metrics.AgentQueriesTotal.WithLabelValues(organizationID, string(channel), string(result.Outcome)).Inc()
	return result, nil
}

// resolveConversation finds or creates the conversation for the turn.
func (s *ChatService) resolveConversation(ctx context.Context, agent *model.Agent, channel model.Channel, req *model.ChatRequest) (*model.Conversation, bool, error) {
	if req.ConversationID != "" {
		conv, err := s.store.GetConversation(ctx, req.ConversationID)
		if err != nil {
			return nil, false, fmt.Errorf("load conversation: %w", err)
		}
		if conv.OrganizationID != agent.OrganizationID {
			return nil, false, ErrForbidden
		}
		return conv, false, nil
	}

	if req.ExternalID != "" {
		conv, err := s.store.GetConversationByExternalID(ctx, agent.ID, req.ExternalID)
		if err == nil {
			return conv, false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, fmt.Errorf("load conversation: %w", err)
		}
	}

	now := time.Now()
	conv := &model.Conversation{
		ID:             uuid.Must(uuid.NewV7()).String(),
		OrganizationID: agent.OrganizationID,
		AgentID:        agent.ID,
		Channel:        channel,
		Status:         model.StatusUnresolved,
		IsAIEnabled:    true,
		ExternalID:     req.ExternalID,
		ContactID:      req.ContactID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, false, fmt.Errorf("create conversation: %w", err)
	}
	s.publishEvent(conv, agent.ID, model.EventTypeConversationCreated, nil)
	return conv, true, nil
}

// checkQuota enforces the organization agent-query quota. The limit mail is
// sent exactly once per cycle via the sticky notified flag.
func (s *ChatService) checkQuota(ctx context.Context, org *model.Organization, log *logger.Logger) error {
	if org.AgentQueriesQuota <= 0 {
		return nil
	}
	usage, err := s.store.GetUsage(ctx, org.ID)
	if err != nil {
		return fmt.Errorf("load usage: %w", err)
	}
	if usage.NbAgentQueries < org.AgentQueriesQuota {
		return nil
	}

	if !usage.NotifiedAgentQueriesLimitReached {
		if err := s.store.SetQuotaNotified(ctx, org.ID); err != nil {
			log.Error("set quota notified failed", zap.Error(err))
		} else if s.mailer != nil {
			go func() {
				mailCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
				if err := s.mailer.SendQuotaReached(mailCtx, org); err != nil {
					log.Warn("quota mail failed", zap.Error(err))
				}
			}()
		}
	}
	return ErrQuotaExceeded
}

// filterTools removes the tools that must not run on this channel or in this
// conversation state.
func (s *ChatService) filterTools(agent *model.Agent, channel model.Channel, conv *model.Conversation) []model.Tool {
	var out []model.Tool
	for _, t := range agent.Tools {
		if t.Type == model.ToolTypeLeadCapture {
			if !channel.AllowsLeadCapture() || conv.ContactID != "" {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// persistAnswer stores the agent answer, splitting it into ordered fragments
// when conversational mode is on.
func (s *ChatService) persistAnswer(ctx context.Context, org *model.Organization, agent *model.Agent, conv *model.Conversation, inputMsg *model.Message, turn *tool.Turn, result *model.ChatResult) error {
	parts := []string{result.Answer}
	if agent.UseConversationalMode && s.splitter != nil {
		parts = s.splitter.Split(ctx, result.Answer)
	}

	inputID := ""
	if inputMsg != nil {
		inputID = inputMsg.ID
	}

	for i, part := range parts {
		msg := &model.Message{
			ID:             uuid.Must(uuid.NewV7()).String(),
			ConversationID: conv.ID,
			From:           model.FromAgent,
			Text:           part,
			InputID:        inputID,
			CreatedAt:      time.Now(),
		}
		// The turn state and citations ride on the last fragment.
		if i == len(parts)-1 {
			if turn.MessageID != "" {
				msg.ID = turn.MessageID
			}
			msg.Sources = result.Sources
			msg.Usage = result.Usage
			msg.Metadata = result.Metadata
		}
		if err := s.store.CreateMessage(ctx, msg); err != nil {
			return fmt.Errorf("store answer: %w", err)
		}
		metrics.MessagesTotal.WithLabelValues(org.ID, string(model.FromAgent)).Inc()
		s.publishEvent(conv, agent.ID, model.EventTypeMessageCreated, map[string]any{
			"message_id": msg.ID,
			"from":       string(model.FromAgent),
		})
		result.AnswerMessageID = msg.ID
	}
	return nil
}

// approvalResult records the pending approvals and surfaces them. No agent
// message is persisted; the turn resumes once a human signs off.
func (s *ChatService) approvalResult(ctx context.Context, org *model.Organization, agent *model.Agent, conv *model.Conversation, channel model.Channel, inputMsg *model.Message, turn *tool.Turn) (*model.ChatResult, error) {
	result := &model.ChatResult{
		Outcome:        model.OutcomeApprovalRequired,
		ConversationID: conv.ID,
		Approvals:      turn.Approvals,
		Metadata:       turn.Metadata,
		IsAIEnabled:    true,
		Status:         conv.Status,
	}

	if inputMsg != nil {
		result.InputMessageID = inputMsg.ID

		if err := s.store.CreateApprovals(ctx, turn.Approvals); err != nil {
			return nil, fmt.Errorf("store approvals: %w", err)
		}
	}

	s.publishEvent(conv, agent.ID, model.EventTypeToolApprovalRequested, map[string]any{
		"approvals": len(result.Approvals),
	})

	metrics.AgentQueriesTotal.WithLabelValues(org.ID, string(channel), string(result.Outcome)).Inc()
	return result, nil
}

// notifyNewConversation sends the best-effort first-conversation mail.
func (s *ChatService) notifyNewConversation(org *model.Organization, conversationID, question, answer string, log *logger.Logger) {
	if s.mailer == nil || org.OwnerEmail == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.mailer.SendNewConversation(ctx, org, conversationID, question, answer); err != nil {
			log.Warn("new conversation mail failed", zap.Error(err))
		}
	}()
}

// publishEvent publishes a pipeline event, best effort.
func (s *ChatService) publishEvent(conv *model.Conversation, agentID string, eventType model.EventType, metadata map[string]any) {
	if s.events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := s.events.PublishEvent(ctx, &model.ConversationEvent{
			ID:             uuid.Must(uuid.NewV7()).String(),
			ConversationID: conv.ID,
			OrganizationID: conv.OrganizationID,
			AgentID:        agentID,
			Type:           eventType,
			Metadata:       metadata,
			CreatedAt:      time.Now(),
		})
		if err != nil {
			s.logger.Warn("event publish failed",
				zap.String("type", string(eventType)),
				zap.Error(err))
		}
	}()
}

func (s *ChatService) humanMessage(conversationID, text string, atts []model.Attachment) *model.Message {
	return &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		From:           model.FromHuman,
		Text:           text,
		Attachments:    atts,
		CreatedAt:      time.Now(),
	}
}
