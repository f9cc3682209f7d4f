package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lumenhq/agent-platform/internal/assembler"
	"github.com/lumenhq/agent-platform/internal/llm"
	"github.com/lumenhq/agent-platform/internal/mailer"
	"github.com/lumenhq/agent-platform/internal/model"
	"github.com/lumenhq/agent-platform/internal/store"
	"github.com/lumenhq/agent-platform/pkg/logger"
)

type stubGateway struct {
	resp     *llm.CallResponse
	err      error
	calls    int
	lastReq  *llm.CallRequest
	runTools bool
}

func (g *stubGateway) Call(ctx context.Context, req *llm.CallRequest) (*llm.CallResponse, error) {
	g.calls++
	g.lastReq = req
	if g.runTools && len(req.Tools) > 0 {
		payload, err := req.Tools[0].Parse("{}")
		if err != nil {
			return nil, err
		}
		if _, err := req.Tools[0].Call(ctx, payload); err != nil {
			return nil, err
		}
	}
	return g.resp, g.err
}

type stubSplitter struct {
	parts []string
}

func (s *stubSplitter) Split(ctx context.Context, answer string) []string {
	if len(s.parts) == 0 {
		return []string{answer}
	}
	return s.parts
}

type stubMailer struct {
	quotaMails chan string
	convMails  chan string
}

func newStubMailer() *stubMailer {
	return &stubMailer{
		quotaMails: make(chan string, 4),
		convMails:  make(chan string, 4),
	}
}

func (m *stubMailer) SendQuotaReached(ctx context.Context, org *model.Organization) error {
	m.quotaMails <- org.ID
	return nil
}

func (m *stubMailer) SendNewConversation(ctx context.Context, org *model.Organization, conversationID, question, answer string) error {
	m.convMails <- conversationID
	return nil
}

func seedFixtures(st *store.MemoryStore, quota int) (*model.Organization, *model.Agent) {
	org := &model.Organization{
		ID:                "org-1",
		Name:              "Acme",
		OwnerEmail:        "owner@acme.test",
		Plan:              "starter",
		AgentQueriesQuota: quota,
	}
	agent := &model.Agent{
		ID:             "agent-1",
		OrganizationID: org.ID,
		Name:           "Support",
		ModelName:      "gpt_4o",
		SystemPrompt:   "You are a support agent.",
		Temperature:    0.4,
	}
	st.PutOrganization(org)
	st.PutAgent(agent)
	return org, agent
}

func newTestService(st *store.MemoryStore, gw ModelGateway, split AnswerSplitter, mail mailer.Mailer) *ChatService {
	return NewChatService(st, func() ModelGateway { return gw }, assembler.New(nil, logger.NewNop()), split, nil, mail, nil, nil, ChatConfig{
		RetrievalTopK:     5,
		RetrievalMinScore: 0.65,
	}, logger.NewNop())
}

func TestHandleMessageCompletedTurn(t *testing.T) {
	st := store.NewMemoryStore()
	seedFixtures(st, 0)
	gw := &stubGateway{resp: &llm.CallResponse{
		Answer: "Here is your answer.",
		Usage:  llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}}
	svc := newTestService(st, gw, nil, nil)

	result, err := svc.HandleMessage(context.Background(), "org-1", &model.ChatRequest{
		AgentID: "agent-1",
		Channel: model.ChannelWebsite,
		Query:   "How do refunds work?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Outcome != model.OutcomeCompleted {
		t.Errorf("outcome = %q", result.Outcome)
	}
	if result.Answer != "Here is your answer." {
		t.Errorf("answer = %q", result.Answer)
	}
	if result.ConversationID == "" || result.InputMessageID == "" || result.AnswerMessageID == "" {
		t.Error("result must carry conversation and message ids")
	}

	msgs, err := st.ListRecentMessages(context.Background(), result.ConversationID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want human + agent", len(msgs))
	}
	if msgs[0].From != model.FromHuman || msgs[1].From != model.FromAgent {
		t.Error("message order should be human then agent")
	}
	if msgs[1].InputID != msgs[0].ID {
		t.Error("agent answer must link back to the input message")
	}

	usage, _ := st.GetUsage(context.Background(), "org-1")
	if usage.NbAgentQueries != 1 {
		t.Errorf("usage = %d, want 1", usage.NbAgentQueries)
	}
}

func TestHandleMessageReusesConversationByExternalID(t *testing.T) {
	st := store.NewMemoryStore()
	seedFixtures(st, 0)
	gw := &stubGateway{resp: &llm.CallResponse{Answer: "ok"}}
	svc := newTestService(st, gw, nil, nil)

	first, err := svc.HandleMessage(context.Background(), "org-1", &model.ChatRequest{
		AgentID: "agent-1", Channel: model.ChannelWhatsApp, ExternalID: "+33600000000", Query: "hi",
	})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.HandleMessage(context.Background(), "org-1", &model.ChatRequest{
		AgentID: "agent-1", Channel: model.ChannelWhatsApp, ExternalID: "+33600000000", Query: "again",
	})
	if err != nil {
		t.Fatal(err)
	}

	if first.ConversationID != second.ConversationID {
		t.Error("same external id must reuse the conversation")
	}
}

func TestHandleMessageAIDisabledGate(t *testing.T) {
	st := store.NewMemoryStore()
	_, agent := seedFixtures(st, 0)
	conv := &model.Conversation{
		ID:             "conv-1",
		OrganizationID: "org-1",
		AgentID:        agent.ID,
		Channel:        model.ChannelWebsite,
		Status:         model.StatusHumanRequested,
		IsAIEnabled:    false,
	}
	st.CreateConversation(context.Background(), conv)

	gw := &stubGateway{resp: &llm.CallResponse{Answer: "should not happen"}}
	svc := newTestService(st, gw, nil, nil)

	result, err := svc.HandleMessage(context.Background(), "org-1", &model.ChatRequest{
		AgentID: "agent-1", ConversationID: "conv-1", Query: "anyone there?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Outcome != model.OutcomeAIDisabled {
		t.Errorf("outcome = %q", result.Outcome)
	}
	if gw.calls != 0 {
		t.Error("the model must not be called when AI is disabled")
	}

	// The human message is still stored for the operator.
	msgs, _ := st.ListRecentMessages(context.Background(), "conv-1", 10)
	if len(msgs) != 1 || msgs[0].From != model.FromHuman {
		t.Errorf("persisted %d messages, want the human message only", len(msgs))
	}

	usage, _ := st.GetUsage(context.Background(), "org-1")
	if usage.NbAgentQueries != 0 {
		t.Error("blocked turns must not consume quota")
	}
}

func TestHandleMessageQuotaGate(t *testing.T) {
	st := store.NewMemoryStore()
	seedFixtures(st, 5)
	st.PutUsage(&model.Usage{OrganizationID: "org-1", NbAgentQueries: 5})

	gw := &stubGateway{resp: &llm.CallResponse{Answer: "nope"}}
	mail := newStubMailer()
	svc := newTestService(st, gw, nil, mail)

	_, err := svc.HandleMessage(context.Background(), "org-1", &model.ChatRequest{
		AgentID: "agent-1", Query: "hello",
	})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	if gw.calls != 0 {
		t.Error("the model must not be called over quota")
	}

	select {
	case orgID := <-mail.quotaMails:
		if orgID != "org-1" {
			t.Errorf("quota mail for %q", orgID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("quota mail was not sent")
	}

	usage, _ := st.GetUsage(context.Background(), "org-1")
	if !usage.NotifiedAgentQueriesLimitReached {
		t.Error("notified flag must be sticky after the first rejection")
	}

	// A second rejected turn must not mail again.
	_, err = svc.HandleMessage(context.Background(), "org-1", &model.ChatRequest{
		AgentID: "agent-1", Query: "hello again",
	})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	select {
	case <-mail.quotaMails:
		t.Error("limit mail must only be sent once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleMessageApprovalShortCircuit(t *testing.T) {
	st := store.NewMemoryStore()
	_, agent := seedFixtures(st, 0)

	httpCfg, _ := json.Marshal(model.HTTPToolConfig{
		Name: "Create Ticket", URL: "https://example.com/tickets",
		Method: "POST", WithApproval: true,
	})
	agent.Tools = []model.Tool{{ID: "t-http", AgentID: agent.ID, Type: model.ToolTypeHTTP, Config: httpCfg}}
	st.PutAgent(agent)

	gw := &stubGateway{runTools: true, resp: &llm.CallResponse{Answer: "unreached"}}
	svc := newTestService(st, gw, nil, nil)

	result, err := svc.HandleMessage(context.Background(), "org-1", &model.ChatRequest{
		AgentID: "agent-1", Query: "open a ticket please",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Outcome != model.OutcomeApprovalRequired {
		t.Fatalf("outcome = %q", result.Outcome)
	}
	if len(result.Approvals) != 1 {
		t.Fatalf("approvals = %d, want 1", len(result.Approvals))
	}
	if result.Approvals[0].ToolID != "t-http" {
		t.Errorf("approval tool = %q", result.Approvals[0].ToolID)
	}
	if result.Approvals[0].ConversationID != result.ConversationID {
		t.Error("approval must reference its conversation")
	}
	if result.AnswerMessageID != "" {
		t.Error("an approval-gated turn must not produce an agent message")
	}

	// Only the human message is persisted; the approvals live in their own
	// records.
	msgs, _ := st.ListRecentMessages(context.Background(), result.ConversationID, 10)
	if len(msgs) != 1 || msgs[0].From != model.FromHuman {
		t.Fatalf("persisted %d messages, want the human message only", len(msgs))
	}

	pending, _ := st.ListPendingApprovals(context.Background(), result.ConversationID)
	if len(pending) != 1 {
		t.Fatalf("stored approvals = %d, want 1", len(pending))
	}
	if pending[0].ToolID != "t-http" {
		t.Errorf("stored approval tool = %q", pending[0].ToolID)
	}
}

func TestHandleMessageConversationalMode(t *testing.T) {
	st := store.NewMemoryStore()
	_, agent := seedFixtures(st, 0)
	agent.UseConversationalMode = true
	st.PutAgent(agent)

	gw := &stubGateway{resp: &llm.CallResponse{Answer: "one two three"}}
	split := &stubSplitter{parts: []string{"one", "two", "three"}}
	svc := newTestService(st, gw, split, nil)

	result, err := svc.HandleMessage(context.Background(), "org-1", &model.ChatRequest{
		AgentID: "agent-1", Query: "tell me everything",
	})
	if err != nil {
		t.Fatal(err)
	}

	msgs, _ := st.ListRecentMessages(context.Background(), result.ConversationID, 10)
	var agentMsgs []model.Message
	for _, m := range msgs {
		if m.From == model.FromAgent {
			agentMsgs = append(agentMsgs, m)
		}
	}
	if len(agentMsgs) != 3 {
		t.Fatalf("agent fragments = %d, want 3", len(agentMsgs))
	}
	for i, want := range []string{"one", "two", "three"} {
		if agentMsgs[i].Text != want {
			t.Errorf("fragment %d = %q, want %q", i, agentMsgs[i].Text, want)
		}
		if agentMsgs[i].InputID != result.InputMessageID {
			t.Error("every fragment must link to the input message")
		}
	}
	if result.AnswerMessageID != agentMsgs[2].ID {
		t.Error("answer id must be the last fragment")
	}
	if agentMsgs[2].Usage == nil {
		t.Error("usage rides on the last fragment")
	}
}

func TestHandleMessageLeadCaptureChannelFilter(t *testing.T) {
	st := store.NewMemoryStore()
	_, agent := seedFixtures(st, 0)
	leadCfg, _ := json.Marshal(model.LeadCaptureToolConfig{CaptureEmail: true})
	agent.Tools = []model.Tool{{ID: "t-lead", AgentID: agent.ID, Type: model.ToolTypeLeadCapture, Config: leadCfg}}
	st.PutAgent(agent)

	gw := &stubGateway{resp: &llm.CallResponse{Answer: "ok"}}
	svc := newTestService(st, gw, nil, nil)

	t.Run("website keeps the tool", func(t *testing.T) {
		_, err := svc.HandleMessage(context.Background(), "org-1", &model.ChatRequest{
			AgentID: "agent-1", Channel: model.ChannelWebsite, Query: "hi",
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(gw.lastReq.Tools) != 1 {
			t.Errorf("tools = %d, want 1", len(gw.lastReq.Tools))
		}
	})

	t.Run("dashboard drops the tool", func(t *testing.T) {
		_, err := svc.HandleMessage(context.Background(), "org-1", &model.ChatRequest{
			AgentID: "agent-1", Channel: model.ChannelDashboard, Query: "hi",
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(gw.lastReq.Tools) != 0 {
			t.Errorf("tools = %d, want 0 on dashboard", len(gw.lastReq.Tools))
		}
	})
}

func TestHandleMessageDraftSkipsPersistence(t *testing.T) {
	st := store.NewMemoryStore()
	seedFixtures(st, 0)
	gw := &stubGateway{resp: &llm.CallResponse{Answer: "suggested reply"}}
	svc := newTestService(st, gw, nil, nil)

	result, err := svc.HandleMessage(context.Background(), "org-1", &model.ChatRequest{
		AgentID: "agent-1", Query: "draft me a reply", Draft: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Answer != "suggested reply" {
		t.Errorf("answer = %q", result.Answer)
	}

	msgs, _ := st.ListRecentMessages(context.Background(), result.ConversationID, 10)
	if len(msgs) != 0 {
		t.Errorf("draft mode persisted %d messages, want 0", len(msgs))
	}
}

func TestHandleMessageTenantIsolation(t *testing.T) {
	st := store.NewMemoryStore()
	seedFixtures(st, 0)
	gw := &stubGateway{resp: &llm.CallResponse{Answer: "ok"}}
	svc := newTestService(st, gw, nil, nil)

	_, err := svc.HandleMessage(context.Background(), "other-org", &model.ChatRequest{
		AgentID: "agent-1", Query: "hi",
	})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
}

func TestHandleMessageEmptyQuery(t *testing.T) {
	st := store.NewMemoryStore()
	seedFixtures(st, 0)
	svc := newTestService(st, &stubGateway{}, nil, nil)

	_, err := svc.HandleMessage(context.Background(), "org-1", &model.ChatRequest{
		AgentID: "agent-1", Query: "   ",
	})
	if !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestHandleMessageGatewayPerTurn(t *testing.T) {
	st := store.NewMemoryStore()
	seedFixtures(st, 0)

	var minted int
	factory := func() ModelGateway {
		minted++
		return &stubGateway{resp: &llm.CallResponse{Answer: "ok"}}
	}
	svc := NewChatService(st, factory, assembler.New(nil, logger.NewNop()), nil, nil, nil, nil, nil, ChatConfig{}, logger.NewNop())

	for i := 0; i < 3; i++ {
		if _, err := svc.HandleMessage(context.Background(), "org-1", &model.ChatRequest{
			AgentID: "agent-1", Query: "hi",
		}); err != nil {
			t.Fatal(err)
		}
	}
	if minted != 3 {
		t.Errorf("gateways minted = %d, want one per turn", minted)
	}
}

func TestHandleMessageBatchedQueries(t *testing.T) {
	st := store.NewMemoryStore()
	seedFixtures(st, 0)
	gw := &stubGateway{resp: &llm.CallResponse{Answer: "ok"}}
	svc := newTestService(st, gw, nil, nil)

	result, err := svc.HandleMessage(context.Background(), "org-1", &model.ChatRequest{
		AgentID: "agent-1",
		Queries: []string{"first part", "second part"},
	})
	if err != nil {
		t.Fatal(err)
	}

	msgs, _ := st.ListRecentMessages(context.Background(), result.ConversationID, 10)
	if msgs[0].Text != "first part\n\nsecond part" {
		t.Errorf("batched query = %q", msgs[0].Text)
	}
}
