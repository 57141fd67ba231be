package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"flashdeck-backend/internal/logger"
	"flashdeck-backend/internal/models"
)

const maxUploadBytes = 100 * 1024 * 1024

type sourceStore interface {
	Create(ctx context.Context, s *models.Source) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Source, error)
	UpdateText(ctx context.Context, id uuid.UUID, title, text string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

type mediaReader interface {
	TranscribeAudio(ctx context.Context, audio []byte, mimeType string) (string, error)
	ExtractImageText(ctx context.Context, image []byte, mimeType string) (string, error)
}

type transcriptSource interface {
	GetTranscript(ctx context.Context, videoID string, languages ...string) (string, error)
	DownloadAudio(ctx context.Context, videoURL string) ([]byte, string, error)
	FetchMetadata(ctx context.Context, videoID string) models.YouTubeMetadata
}

type pageFetcher interface {
	FetchText(ctx context.Context, rawURL string) (title, text string, err error)
}

// SourceService turns uploads, videos and web pages into source text. Every source
// is stored first; extraction runs inline or on the worker pool.
type SourceService struct {
	sources     sourceStore
	media       mediaReader
	files       *FileExtractService
	youtube     transcriptSource
	website     pageFetcher
	jobs        JobEnqueuer
	storagePath string
	log         *logger.Logger
}

func NewSourceService(
	sources sourceStore,
	media mediaReader,
	files *FileExtractService,
	youtube transcriptSource,
	website pageFetcher,
	jobs JobEnqueuer,
	storagePath string,
	log *logger.Logger,
) *SourceService {
	return &SourceService{
		sources:     sources,
		media:       media,
		files:       files,
		youtube:     youtube,
		website:     website,
		jobs:        jobs,
		storagePath: storagePath,
		log:         log,
	}
}

// Upload stores an uploaded document, audio or image file and extracts its text.
// wantKind restricts the accepted kinds when set.
func (s *SourceService) Upload(ctx context.Context, userID uuid.UUID, filename string, body io.Reader, wantKind string, async bool) (*models.SourceResult, error) {
	kind, _, ok := ClassifyFile(filename)
	if !ok || (wantKind != "" && kind != wantKind) {
		return nil, &ValidationError{Fields: map[string]string{"file": "File type not supported"}}
	}

	relPath := filepath.Join("users", userID.String(), "uploads", uuid.New().String()+strings.ToLower(filepath.Ext(filename)))
	if err := s.saveFile(relPath, body); err != nil {
		return nil, err
	}

	src := &models.Source{
		UserID:   userID,
		Type:     sourceTypeForKind(kind),
		Status:   models.SourceStatusPending,
		Title:    filename,
		FilePath: &relPath,
	}
	return s.createAndProcess(ctx, src, async)
}

func (s *SourceService) FromYouTube(ctx context.Context, userID uuid.UUID, req models.SourceURLRequest) (*models.SourceResult, error) {
	if err := ValidateStruct(req); err != nil {
		return nil, err
	}
	videoID := ExtractVideoID(req.URL)
	if videoID == "" {
		return nil, &ValidationError{Fields: map[string]string{"url": "Invalid YouTube URL"}}
	}

	meta := s.youtube.FetchMetadata(ctx, videoID)
	metaBytes, _ := json.Marshal(meta)
	src := &models.Source{
		UserID:       userID,
		Type:         models.SourceTypeYouTube,
		Status:       models.SourceStatusPending,
		Title:        meta.Title,
		SourceURL:    &req.URL,
		MetadataJSON: metaBytes,
	}
	return s.createAndProcess(ctx, src, req.Async)
}

func (s *SourceService) FromWebsite(ctx context.Context, userID uuid.UUID, req models.SourceURLRequest) (*models.SourceResult, error) {
	if err := ValidateStruct(req); err != nil {
		return nil, err
	}
	src := &models.Source{
		UserID:    userID,
		Type:      models.SourceTypeWebsite,
		Status:    models.SourceStatusPending,
		Title:     req.URL,
		SourceURL: &req.URL,
	}
	return s.createAndProcess(ctx, src, req.Async)
}

// Get returns a source owned by userID.
func (s *SourceService) Get(ctx context.Context, userID, id uuid.UUID) (*models.Source, error) {
	src, err := s.sources.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Source not found"}
		}
		return nil, err
	}
	if src.UserID != userID {
		return nil, &NotFoundError{Message: "Source not found"}
	}
	return src, nil
}

func (s *SourceService) createAndProcess(ctx context.Context, src *models.Source, async bool) (*models.SourceResult, error) {
	if err := s.sources.Create(ctx, src); err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}

	if async {
		job := &models.Job{
			UserID:      src.UserID,
			Type:        models.JobTypeSourceProcessing,
			ReferenceID: src.ID,
		}
		if err := s.jobs.Enqueue(ctx, job); err != nil {
			return nil, err
		}
		return &models.SourceResult{SourceID: src.ID, Title: src.Title, Status: models.SourceStatusPending, JobID: &job.ID}, nil
	}

	title, text, err := s.extract(ctx, src)
	if err != nil {
		s.markFailed(ctx, src.ID)
		return nil, err
	}
	if err := s.sources.UpdateText(ctx, src.ID, title, text); err != nil {
		return nil, err
	}
	if title == "" {
		title = src.Title
	}
	return &models.SourceResult{SourceID: src.ID, Title: title, Text: text, Status: models.SourceStatusCompleted}, nil
}

// Process runs a source-processing job.
func (s *SourceService) Process(ctx context.Context, job *models.Job) (models.CompletedEvent, error) {
	src, err := s.sources.GetByID(ctx, job.ReferenceID)
	if err != nil {
		return models.CompletedEvent{}, fmt.Errorf("failed to get source: %w", err)
	}
	if err := s.sources.UpdateStatus(ctx, src.ID, models.SourceStatusProcessing); err != nil {
		return models.CompletedEvent{}, err
	}

	title, text, err := s.extract(ctx, src)
	if err != nil {
		return models.CompletedEvent{}, err
	}
	if err := s.sources.UpdateText(ctx, src.ID, title, text); err != nil {
		return models.CompletedEvent{}, fmt.Errorf("failed to save source text: %w", err)
	}
	s.log.Info("source processed", "source_id", src.ID, "type", src.Type, "chars", len(text))
	return models.CompletedEvent{ResultID: src.ID, ResultType: "source"}, nil
}

// OnFailure marks the job's source failed once retries are exhausted.
func (s *SourceService) OnFailure(ctx context.Context, job *models.Job) {
	s.markFailed(ctx, job.ReferenceID)
}

func (s *SourceService) markFailed(ctx context.Context, id uuid.UUID) {
	if err := s.sources.UpdateStatus(ctx, id, models.SourceStatusFailed); err != nil {
		s.log.Warn("failed to mark source failed", "source_id", id, "error", err)
	}
}

// extract returns the text of a source and, when the source provides one, a better title.
func (s *SourceService) extract(ctx context.Context, src *models.Source) (string, string, error) {
	switch src.Type {
	case models.SourceTypeDocument:
		text, err := s.files.ExtractDocument(s.fullPath(src))
		if err != nil {
			return "", "", &ValidationError{Fields: map[string]string{"file": err.Error()}}
		}
		return "", text, nil

	case models.SourceTypeAudio, models.SourceTypeImage:
		data, err := os.ReadFile(s.fullPath(src))
		if err != nil {
			return "", "", fmt.Errorf("failed to read uploaded file: %w", err)
		}
		_, mimeType, _ := ClassifyFile(s.fullPath(src))
		var text string
		if src.Type == models.SourceTypeAudio {
			text, err = s.media.TranscribeAudio(ctx, data, mimeType)
		} else {
			text, err = s.media.ExtractImageText(ctx, data, mimeType)
		}
		return "", text, err

	case models.SourceTypeYouTube:
		if src.SourceURL == nil {
			return "", "", fmt.Errorf("youtube source has no URL")
		}
		text, err := s.youtubeText(ctx, *src.SourceURL)
		return "", text, err

	case models.SourceTypeWebsite:
		if src.SourceURL == nil {
			return "", "", fmt.Errorf("website source has no URL")
		}
		return s.website.FetchText(ctx, *src.SourceURL)
	}
	return "", "", fmt.Errorf("unsupported source type: %s", src.Type)
}

// youtubeText prefers captions and falls back to transcribing the audio track.
func (s *SourceService) youtubeText(ctx context.Context, videoURL string) (string, error) {
	videoID := ExtractVideoID(videoURL)
	if videoID == "" {
		return "", &ValidationError{Fields: map[string]string{"url": "Invalid YouTube URL"}}
	}

	transcript, err := s.youtube.GetTranscript(ctx, videoID)
	if err == nil {
		return transcript, nil
	}
	s.log.Warn("caption extraction failed, transcribing audio", "video_id", videoID, "error", err)

	audio, mimeType, audioErr := s.youtube.DownloadAudio(ctx, videoURL)
	if audioErr != nil {
		return "", fmt.Errorf("transcript extraction failed for video %s: %v; audio download failed: %w", videoID, err, audioErr)
	}
	return s.media.TranscribeAudio(ctx, audio, mimeType)
}

func (s *SourceService) fullPath(src *models.Source) string {
	if src.FilePath == nil {
		return ""
	}
	return filepath.Join(s.storagePath, *src.FilePath)
}

func (s *SourceService) saveFile(relPath string, body io.Reader) error {
	full := filepath.Join(s.storagePath, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("failed to create upload file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(body, maxUploadBytes+1))
	if err != nil {
		return fmt.Errorf("failed to store upload: %w", err)
	}
	if n > maxUploadBytes {
		os.Remove(full)
		return &ValidationError{Fields: map[string]string{"file": "File size exceeds 100MB limit"}}
	}
	return nil
}

func sourceTypeForKind(kind string) string {
	switch kind {
	case FileKindAudio:
		return models.SourceTypeAudio
	case FileKindImage:
		return models.SourceTypeImage
	}
	return models.SourceTypeDocument
}
