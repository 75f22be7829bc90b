package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ragdesk/ragdesk/internal/log"
)

// MessageBot handles one inbound conversation message and returns the reply
// text.
type MessageBot interface {
	HandleMessage(ctx context.Context, chatID, text string) string
}

// MessageHandler exposes the bot over HTTP for transport adapters.
type MessageHandler struct {
	bot    MessageBot
	logger log.Logger
}

// NewMessageHandler creates a message handler.
func NewMessageHandler(bot MessageBot, logger log.Logger) *MessageHandler {
	return &MessageHandler{bot: bot, logger: logger}
}

// RegisterRoutes registers message routes on the given mux.
func (h *MessageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/messages", h.handleMessage)
}

// MessageRequest is the inbound message payload.
type MessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// MessageResponse carries the reply text for the transport to deliver.
type MessageResponse struct {
	Reply string `json:"reply"`
}

func (h *MessageHandler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}

	req.ConversationID = strings.TrimSpace(req.ConversationID)
	if req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "missing_conversation_id", "conversation_id is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "missing_text", "text is required")
		return
	}

	reply := h.bot.HandleMessage(r.Context(), req.ConversationID, req.Text)
	writeJSON(w, http.StatusOK, MessageResponse{Reply: reply})
}
