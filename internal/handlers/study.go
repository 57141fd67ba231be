package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"flashdeck-backend/internal/middleware"
	"flashdeck-backend/internal/models"
)

type studyService interface {
	StartSession(ctx context.Context, userID uuid.UUID, req models.StartSessionRequest) (*models.StudySession, error)
	GetSession(ctx context.Context, userID, id uuid.UUID) (*models.StudySession, error)
	SessionCards(ctx context.Context, userID, sessionID uuid.UUID) ([]models.StudyCard, error)
	SubmitAnswer(ctx context.Context, userID uuid.UUID, req models.SubmitAnswerRequest) (*models.SubmitAnswerResponse, error)
	CompleteSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.CompleteSessionResponse, error)
	Result(ctx context.Context, userID, sessionID uuid.UUID) (*models.SessionResult, error)
	DueCards(ctx context.Context, userID, deckID uuid.UUID) ([]models.StudyCard, error)
}

type choiceService interface {
	MultipleChoice(ctx context.Context, userID uuid.UUID, req models.CardBatchRequest) ([]models.CardChoices, error)
	TrueFalse(ctx context.Context, userID uuid.UUID, req models.CardBatchRequest) ([]models.CardStatements, error)
}

type StudyHandler struct {
	study   studyService
	choices choiceService
}

func NewStudyHandler(study studyService, choices choiceService) *StudyHandler {
	return &StudyHandler{study: study, choices: choices}
}

// ─── Sessions ───

func (h *StudyHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req models.StartSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := h.study.StartSession(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *StudyHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "session")
	if !ok {
		return
	}
	session, err := h.study.GetSession(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *StudyHandler) SessionCards(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "session")
	if !ok {
		return
	}
	cards, err := h.study.SessionCards(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cards": cards})
}

func (h *StudyHandler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "session")
	if !ok {
		return
	}
	resp, err := h.study.CompleteSession(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StudyHandler) Result(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "session")
	if !ok {
		return
	}
	result, err := h.study.Result(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ─── Answers ───

func (h *StudyHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitAnswerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.study.SubmitAnswer(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ─── Cards ───

func (h *StudyHandler) DueCards(w http.ResponseWriter, r *http.Request) {
	deckID, err := uuid.Parse(r.URL.Query().Get("deck_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "deck_id is required", r))
		return
	}
	cards, err := h.study.DueCards(r.Context(), middleware.GetUserID(r.Context()), deckID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cards": cards})
}

func (h *StudyHandler) MultipleChoice(w http.ResponseWriter, r *http.Request) {
	var req models.CardBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cards, err := h.choices.MultipleChoice(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cards": cards})
}

func (h *StudyHandler) TrueFalse(w http.ResponseWriter, r *http.Request) {
	var req models.CardBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cards, err := h.choices.TrueFalse(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cards": cards})
}
