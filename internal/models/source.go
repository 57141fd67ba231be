package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	SourceTypeDocument = "document"
	SourceTypeAudio    = "audio"
	SourceTypeImage    = "image"
	SourceTypeYouTube  = "youtube"
	SourceTypeWebsite  = "website"
)

const (
	SourceStatusPending    = "pending"
	SourceStatusProcessing = "processing"
	SourceStatusCompleted  = "completed"
	SourceStatusFailed     = "failed"
)

// Source is material cards are generated from, with the text extracted from it.
type Source struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	Title        string          `json:"title"`
	SourceURL    *string         `json:"source_url"`
	FilePath     *string         `json:"-"`
	Text         *string         `json:"text,omitempty"`
	MetadataJSON json.RawMessage `json:"metadata"`
	CreatedAt    time.Time       `json:"created_at"`
}

type SourceURLRequest struct {
	URL   string `json:"url" validate:"required,url,max=2048"`
	Async bool   `json:"async"`
}

type SourceResult struct {
	SourceID uuid.UUID  `json:"source_id"`
	Title    string     `json:"title"`
	Text     string     `json:"text,omitempty"`
	Status   string     `json:"status"`
	JobID    *uuid.UUID `json:"job_id,omitempty"`
}

type YouTubeMetadata struct {
	VideoID      string `json:"video_id"`
	Title        string `json:"title"`
	ChannelName  string `json:"channel_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}
