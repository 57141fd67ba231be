package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"flashdeck-backend/internal/cardstream"
	"flashdeck-backend/internal/middleware"
	"flashdeck-backend/internal/models"
	"flashdeck-backend/internal/services"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

// decodeJSON reads a JSON body into v, writing a 400 response on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return false
	}
	return true
}

// uuidParam parses a chi URL parameter, writing a 400 response on failure.
func uuidParam(w http.ResponseWriter, r *http.Request, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid "+label+" ID", r))
		return uuid.Nil, false
	}
	return id, true
}

// serviceErrorStatus maps a service error to its HTTP status and error envelope.
func serviceErrorStatus(err error, r *http.Request) (int, models.ErrorResponse) {
	var (
		validationErr   *services.ValidationError
		conflictErr     *services.ConflictError
		notFoundErr     *services.NotFoundError
		unauthorizedErr *services.UnauthorizedError
		forbiddenErr    *services.ForbiddenError
		rateLimitErr    *services.RateLimitError
		malformedErr    *cardstream.MalformedResponseError
		generationErr   *services.GenerationError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", validationErr.Fields, r)
	case errors.As(err, &conflictErr):
		return http.StatusConflict, errorResp("CONFLICT", conflictErr.Message, r)
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound, errorResp("NOT_FOUND", notFoundErr.Message, r)
	case errors.Is(err, pgx.ErrNoRows):
		return http.StatusNotFound, errorResp("NOT_FOUND", "Resource not found", r)
	case errors.As(err, &unauthorizedErr):
		return http.StatusUnauthorized, errorResp("UNAUTHORIZED", unauthorizedErr.Message, r)
	case errors.As(err, &forbiddenErr):
		return http.StatusForbidden, errorResp("FORBIDDEN", forbiddenErr.Message, r)
	case errors.As(err, &rateLimitErr):
		return http.StatusTooManyRequests, errorResp("RATE_LIMITED", rateLimitErr.Message, r)
	case errors.As(err, &malformedErr):
		return http.StatusBadGateway, errorResp("MALFORMED_RESPONSE", "Could not parse generated content", r)
	case errors.As(err, &generationErr):
		return http.StatusBadGateway, errorResp("GENERATION_FAILED", "Content generation failed", r)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorResp("TIMEOUT", "The request timed out", r)
	default:
		return http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r)
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := serviceErrorStatus(err, r)
	if status >= 500 {
		middleware.LoggerFrom(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, resp)
}
