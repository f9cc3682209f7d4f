package store

import (
	"context"
	"errors"
	"testing"

	"github.com/lumenhq/agent-platform/internal/model"
)

func TestMemoryStoreConversationByExternalID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conv := &model.Conversation{
		ID: "c1", OrganizationID: "org-1", AgentID: "a1",
		Channel: model.ChannelWhatsApp, ExternalID: "+33600000000",
	}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetConversationByExternalID(ctx, "a1", "+33600000000")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "c1" {
		t.Errorf("got %q, want c1", got.ID)
	}

	// Same external id under another agent is a different thread.
	if _, err := s.GetConversationByExternalID(ctx, "a2", "+33600000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreApprovalRecords(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	approvals := []model.Approval{
		{ID: "ap1", ConversationID: "c1", ToolID: "t1", ToolType: model.ToolTypeHTTP},
		{ID: "ap2", ConversationID: "c2", ToolID: "t2", ToolType: model.ToolTypeHTTP},
	}
	if err := s.CreateApprovals(ctx, approvals); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListPendingApprovals(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "ap1" {
		t.Fatalf("approvals for c1 = %+v, want ap1 only", got)
	}

	// Approvals live on their own; no message is involved.
	msgs, _ := s.ListRecentMessages(ctx, "c1", 10)
	if len(msgs) != 0 {
		t.Errorf("messages = %d, want 0", len(msgs))
	}
}

func TestMemoryStoreUsageLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// Reads before any write return a zero counter, not an error.
	usage, err := s.GetUsage(ctx, "org-1")
	if err != nil {
		t.Fatal(err)
	}
	if usage.NbAgentQueries != 0 {
		t.Errorf("fresh usage = %d, want 0", usage.NbAgentQueries)
	}

	if err := s.IncrementAgentQueries(ctx, "org-1", 5); err != nil {
		t.Fatal(err)
	}
	if err := s.IncrementAgentQueries(ctx, "org-1", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.SetQuotaNotified(ctx, "org-1"); err != nil {
		t.Fatal(err)
	}

	usage, _ = s.GetUsage(ctx, "org-1")
	if usage.NbAgentQueries != 6 {
		t.Errorf("usage = %d, want 6", usage.NbAgentQueries)
	}
	if !usage.NotifiedAgentQueriesLimitReached {
		t.Error("notified flag should be set")
	}
}

func TestMemoryStoreContactLinksConversation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conv := &model.Conversation{ID: "c1", OrganizationID: "org-1", AgentID: "a1"}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}

	contact := &model.Contact{
		ID: "ct1", OrganizationID: "org-1", ConversationID: "c1",
		Email: "lead@example.com",
	}
	if err := s.CreateContact(ctx, contact); err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetConversation(ctx, "c1")
	if got.ContactID != "ct1" {
		t.Errorf("ContactID = %q, want ct1", got.ContactID)
	}
}

func TestMemoryStoreListRecentMessagesWindow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		msg := &model.Message{ID: string(rune('a' + i)), ConversationID: "c1", From: model.FromHuman}
		if err := s.CreateMessage(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := s.ListRecentMessages(ctx, "c1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != "d" || msgs[1].ID != "e" {
		t.Errorf("window = [%s %s], want the 2 newest in order", msgs[0].ID, msgs[1].ID)
	}
}

func TestMemoryStoreListConversationsPagination(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"c1", "c2", "c3"} {
		conv := &model.Conversation{ID: id, OrganizationID: "org-1", AgentID: "a1"}
		if err := s.CreateConversation(ctx, conv); err != nil {
			t.Fatal(err)
		}
	}
	other := &model.Conversation{ID: "x1", OrganizationID: "org-2", AgentID: "a2"}
	if err := s.CreateConversation(ctx, other); err != nil {
		t.Fatal(err)
	}

	page, err := s.ListConversations(ctx, "org-1", 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 3 {
		t.Errorf("total = %d, want 3 (tenant scoped)", page.Total)
	}
	if len(page.Conversations) != 2 || !page.HasMore {
		t.Errorf("page = %d items, HasMore = %v", len(page.Conversations), page.HasMore)
	}

	rest, _ := s.ListConversations(ctx, "org-1", 2, 2)
	if len(rest.Conversations) != 1 || rest.HasMore {
		t.Errorf("rest = %d items, HasMore = %v", len(rest.Conversations), rest.HasMore)
	}
}
