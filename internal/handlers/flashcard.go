package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"flashdeck-backend/internal/cardstream"
	"flashdeck-backend/internal/middleware"
	"flashdeck-backend/internal/models"
)

type cardService interface {
	SaveDrafts(ctx context.Context, userID uuid.UUID, req models.SaveFlashcardsRequest) ([]models.Card, error)
	ListCards(ctx context.Context, userID, deckID uuid.UUID) ([]models.Card, error)
	GetCard(ctx context.Context, userID, id uuid.UUID) (*models.Card, error)
	UpdateCard(ctx context.Context, userID, id uuid.UUID, req models.UpdateCardRequest) (*models.Card, error)
	DeleteCard(ctx context.Context, userID, id uuid.UUID) error
}

type generationService interface {
	CheckRequest(req models.GenerateFlashcardsRequest) error
	Stream(ctx context.Context, req models.GenerateFlashcardsRequest, onSnapshot func(cardstream.Snapshot)) ([]cardstream.FlashcardDraft, error)
	Enqueue(ctx context.Context, userID uuid.UUID, req models.GenerateFlashcardsAsyncRequest) (*models.Job, error)
}

type FlashcardHandler struct {
	cards      cardService
	generation generationService
}

func NewFlashcardHandler(cards cardService, generation generationService) *FlashcardHandler {
	return &FlashcardHandler{cards: cards, generation: generation}
}

// Generate streams generation progress as server-sent events. Each progress event
// carries the current snapshot; the stream ends with a done or error event.
func (h *FlashcardHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateFlashcardsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.generation.CheckRequest(req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	stream, ok := newSSEWriter(w)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Streaming is not supported", r))
		return
	}
	log := middleware.LoggerFrom(r.Context())

	drafts, err := h.generation.Stream(r.Context(), req, func(snap cardstream.Snapshot) {
		if err := stream.event("progress", snap); err != nil {
			log.Debug("progress event not delivered", "error", err)
		}
	})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		_, resp := serviceErrorStatus(err, r)
		if resp.Error.Code == "INTERNAL_ERROR" {
			log.Error("flashcard generation failed", "error", err)
		}
		if err := stream.event("error", resp.Error); err != nil {
			log.Warn("error event not delivered", "code", resp.Error.Code, "error", err)
		}
		return
	}
	if err := stream.event("done", map[string]interface{}{"flashcards": drafts}); err != nil {
		log.Warn("done event not delivered", "count", len(drafts), "error", err)
	}
}

func (h *FlashcardHandler) GenerateAsync(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateFlashcardsAsyncRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	job, err := h.generation.Enqueue(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":  job.ID,
		"deck_id": job.ReferenceID,
		"status":  job.Status,
	})
}

func (h *FlashcardHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req models.SaveFlashcardsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cards, err := h.cards.SaveDrafts(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"flashcards": cards, "count": len(cards)})
}

func (h *FlashcardHandler) List(w http.ResponseWriter, r *http.Request) {
	deckID, err := uuid.Parse(r.URL.Query().Get("deck_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "deck_id is required", r))
		return
	}
	cards, err := h.cards.ListCards(r.Context(), middleware.GetUserID(r.Context()), deckID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"flashcards": cards})
}

func (h *FlashcardHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "flashcard")
	if !ok {
		return
	}
	card, err := h.cards.GetCard(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (h *FlashcardHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "flashcard")
	if !ok {
		return
	}
	var req models.UpdateCardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	card, err := h.cards.UpdateCard(r.Context(), middleware.GetUserID(r.Context()), id, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (h *FlashcardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "flashcard")
	if !ok {
		return
	}
	if err := h.cards.DeleteCard(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Flashcard deleted"})
}
