// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lumenhq/agent-platform/internal/middleware"
	"github.com/lumenhq/agent-platform/internal/model"
	"github.com/lumenhq/agent-platform/internal/service"
	"github.com/lumenhq/agent-platform/internal/store"
	"github.com/lumenhq/agent-platform/pkg/logger"
)

// ChatHandler handles agent query endpoints.
type ChatHandler struct {
	chat   *service.ChatService
	logger *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chat *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: log}
}

// Query handles POST /api/v1/chat
func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := middleware.GetOrganizationID(ctx)

	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateAgentID(req.AgentID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateQuery(req.Query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ConversationID != "" {
		if err := middleware.ValidateConversationID(req.ConversationID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := middleware.ValidateExternalID(req.ExternalID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.chat.HandleMessage(ctx, organizationID, &req)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *ChatHandler) writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrQuotaExceeded):
		writeError(w, http.StatusTooManyRequests, "agent query quota exceeded")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, service.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "query is empty")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		h.logger.Error("chat turn failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to handle message")
	}
}
