package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lumenhq/agent-platform/internal/middleware"
	"github.com/lumenhq/agent-platform/internal/model"
	"github.com/lumenhq/agent-platform/internal/service"
	"github.com/lumenhq/agent-platform/internal/store"
	"github.com/lumenhq/agent-platform/pkg/logger"
)

// OutboundSender pushes an agent answer back to a channel-side recipient.
// Implementations wrap the channel provider APIs.
type OutboundSender interface {
	Send(ctx context.Context, channel model.Channel, externalID, text string) error
}

// webhookChannels is the set of channels accepted on the webhook endpoint.
var webhookChannels = map[model.Channel]bool{
	model.ChannelWhatsApp: true,
	model.ChannelMeta:     true,
	model.ChannelCrisp:    true,
	model.ChannelSlack:    true,
	model.ChannelMail:     true,
	model.ChannelZapier:   true,
}

// WebhookRequest is the inbound payload of a channel webhook.
type WebhookRequest struct {
	AgentID     string             `json:"agent_id"`
	ExternalID  string             `json:"external_id"`
	Query       string             `json:"query"`
	Queries     []string           `json:"queries,omitempty"`
	Attachments []model.Attachment `json:"attachments,omitempty"`
}

// WebhookHandler adapts inbound channel webhooks to the chat pipeline.
type WebhookHandler struct {
	chat   *service.ChatService
	store  store.Store
	sender OutboundSender
	logger *logger.Logger
}

// NewWebhookHandler creates a webhook handler. The sender may be nil, in
// which case the answer is only returned in the response body.
func NewWebhookHandler(chat *service.ChatService, st store.Store, sender OutboundSender, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{chat: chat, store: st, sender: sender, logger: log}
}

// Receive handles POST /webhooks/{channel}
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	channel := model.Channel(chi.URLParam(r, "channel"))
	if !webhookChannels[channel] {
		writeError(w, http.StatusNotFound, "unknown channel")
		return
	}

	var req WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateAgentID(req.AgentID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ExternalID == "" {
		writeError(w, http.StatusBadRequest, "external_id is required")
		return
	}

	agent, err := h.store.GetAgent(ctx, req.AgentID)
	if err != nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}

	result, err := h.chat.HandleMessage(ctx, agent.OrganizationID, &model.ChatRequest{
		AgentID:     req.AgentID,
		Channel:     channel,
		ExternalID:  req.ExternalID,
		Query:       req.Query,
		Queries:     req.Queries,
		Attachments: req.Attachments,
	})
	if err != nil {
		h.logger.Error("webhook turn failed",
			zap.String("channel", string(channel)),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to handle message")
		return
	}

	if h.sender != nil && result.Outcome == model.OutcomeCompleted && result.Answer != "" {
		if err := h.sender.Send(ctx, channel, req.ExternalID, result.Answer); err != nil {
			h.logger.Warn("outbound delivery failed",
				zap.String("channel", string(channel)),
				zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, result)
}
