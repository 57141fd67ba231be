package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"flashdeck-backend/internal/cardstream"
)

const (
	JobTypeSourceProcessing    = "source-processing"
	JobTypeFlashcardGeneration = "flashcard-generation"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

type Job struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	Type         string          `json:"type"`
	ReferenceID  uuid.UUID       `json:"reference_id"`
	ConfigJSON   json.RawMessage `json:"config"`
	Status       string          `json:"status"`
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	ErrorMessage *string         `json:"error_message"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
}

// JobQueueName is the redis list a job type is pushed to.
func JobQueueName(jobType string) string {
	return "queue:" + jobType
}

// WebSocket message types
const (
	WSTypeStatusUpdate       = "status_update"
	WSTypeGenerationProgress = "generation_progress"
	WSTypeCompleted          = "completed"
	WSTypeError              = "error"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatusUpdate struct {
	JobID    uuid.UUID `json:"job_id"`
	Step     int       `json:"step"`
	StepName string    `json:"step_name"`
}

// GenerationProgress is pushed while a background generation streams.
type GenerationProgress struct {
	JobID    uuid.UUID           `json:"job_id"`
	DeckID   uuid.UUID           `json:"deck_id"`
	Snapshot cardstream.Snapshot `json:"snapshot"`
}

type CompletedEvent struct {
	JobID      uuid.UUID `json:"job_id"`
	ResultID   uuid.UUID `json:"result_id"`
	ResultType string    `json:"result_type"`
	Count      int       `json:"count,omitempty"`
}

type ErrorEvent struct {
	JobID        uuid.UUID `json:"job_id"`
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
