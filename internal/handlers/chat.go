package handlers

import (
	"context"
	"net/http"

	"flashdeck-backend/internal/models"
	"flashdeck-backend/internal/services"
)

type chatModel interface {
	Chat(ctx context.Context, req models.ChatRequest) (string, error)
}

type ChatHandler struct {
	model chatModel
}

func NewChatHandler(model chatModel) *ChatHandler {
	return &ChatHandler{model: model}
}

// Chat answers a study question, optionally grounded in the given source text.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := services.ValidateStruct(req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	reply, err := h.model.Chat(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ChatResponse{Reply: reply})
}
