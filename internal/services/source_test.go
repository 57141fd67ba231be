package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"flashdeck-backend/internal/logger"
	"flashdeck-backend/internal/models"
)

type memorySources struct {
	byID     map[uuid.UUID]*models.Source
	statuses []string
}

func newMemorySources() *memorySources {
	return &memorySources{byID: map[uuid.UUID]*models.Source{}}
}

func (m *memorySources) Create(_ context.Context, s *models.Source) error {
	s.ID = uuid.New()
	m.byID[s.ID] = s
	return nil
}

func (m *memorySources) GetByID(_ context.Context, id uuid.UUID) (*models.Source, error) {
	s, ok := m.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return s, nil
}

func (m *memorySources) UpdateText(_ context.Context, id uuid.UUID, title, text string) error {
	s := m.byID[id]
	if title != "" {
		s.Title = title
	}
	s.Text = &text
	s.Status = models.SourceStatusCompleted
	return nil
}

func (m *memorySources) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	m.byID[id].Status = status
	m.statuses = append(m.statuses, status)
	return nil
}

type stubMedia struct {
	transcribed []byte
	mimeType    string
}

func (s *stubMedia) TranscribeAudio(_ context.Context, audio []byte, mimeType string) (string, error) {
	s.transcribed, s.mimeType = audio, mimeType
	return "transcript of audio", nil
}

func (s *stubMedia) ExtractImageText(_ context.Context, _ []byte, mimeType string) (string, error) {
	s.mimeType = mimeType
	return "text in image", nil
}

type stubTranscripts struct {
	captionErr error
}

func (s *stubTranscripts) GetTranscript(context.Context, string, ...string) (string, error) {
	if s.captionErr != nil {
		return "", s.captionErr
	}
	return "caption text", nil
}

func (s *stubTranscripts) DownloadAudio(context.Context, string) ([]byte, string, error) {
	return []byte("audio"), "audio/mp4", nil
}

func (s *stubTranscripts) FetchMetadata(_ context.Context, videoID string) models.YouTubeMetadata {
	return models.YouTubeMetadata{VideoID: videoID, Title: "Cell biology"}
}

type stubPages struct{}

func (stubPages) FetchText(context.Context, string) (string, string, error) {
	return "Photosynthesis", "Plants turn light into energy.", nil
}

type sourceFixture struct {
	svc     *SourceService
	sources *memorySources
	media   *stubMedia
	yt      *stubTranscripts
	jobs    *stubEnqueuer
	dir     string
}

func newSourceFixture(t *testing.T) *sourceFixture {
	t.Helper()
	f := &sourceFixture{
		sources: newMemorySources(),
		media:   &stubMedia{},
		yt:      &stubTranscripts{},
		jobs:    &stubEnqueuer{},
		dir:     t.TempDir(),
	}
	f.svc = NewSourceService(f.sources, f.media, NewFileExtractService(), f.yt, stubPages{}, f.jobs, f.dir, logger.Nop())
	return f
}

// ─── Upload ───

func TestSourceService_UploadDocument(t *testing.T) {
	f := newSourceFixture(t)
	userID := uuid.New()

	res, err := f.svc.Upload(context.Background(), userID, "notes.txt", strings.NewReader("Mitochondria make ATP."), "", false)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Text != "Mitochondria make ATP." || res.Status != models.SourceStatusCompleted || res.Title != "notes.txt" {
		t.Fatalf("unexpected result: %+v", res)
	}

	src := f.sources.byID[res.SourceID]
	if src.Type != models.SourceTypeDocument || src.UserID != userID {
		t.Fatalf("unexpected source row: %+v", src)
	}
	if _, err := os.Stat(filepath.Join(f.dir, *src.FilePath)); err != nil {
		t.Fatalf("expected upload stored on disk: %v", err)
	}
	if !strings.HasPrefix(*src.FilePath, filepath.Join("users", userID.String(), "uploads")) {
		t.Fatalf("unexpected storage path %q", *src.FilePath)
	}
}

func TestSourceService_UploadAudio(t *testing.T) {
	f := newSourceFixture(t)

	res, err := f.svc.Upload(context.Background(), uuid.New(), "lecture.MP3", strings.NewReader("ID3"), "", false)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Text != "transcript of audio" || string(f.media.transcribed) != "ID3" || f.media.mimeType != "audio/mpeg" {
		t.Fatalf("unexpected transcription: %+v mime=%q", res, f.media.mimeType)
	}
}

func TestSourceService_UploadRejects(t *testing.T) {
	f := newSourceFixture(t)

	tests := []struct {
		name     string
		filename string
		kind     string
	}{
		{"unsupported", "malware.exe", ""},
		{"document on image endpoint", "notes.pdf", FileKindImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Upload(context.Background(), uuid.New(), tt.filename, strings.NewReader("x"), tt.kind, false)
			var vErr *ValidationError
			if !errors.As(err, &vErr) || vErr.Fields["file"] == "" {
				t.Fatalf("expected file validation error, got %v", err)
			}
		})
	}
	if len(f.sources.byID) != 0 {
		t.Fatalf("expected no sources stored")
	}
}

func TestSourceService_UploadAsync(t *testing.T) {
	f := newSourceFixture(t)

	res, err := f.svc.Upload(context.Background(), uuid.New(), "slide.png", strings.NewReader("png"), FileKindImage, true)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.JobID == nil || res.Status != models.SourceStatusPending || res.Text != "" {
		t.Fatalf("expected a pending result with a job, got %+v", res)
	}
	if len(f.jobs.jobs) != 1 || f.jobs.jobs[0].Type != models.JobTypeSourceProcessing || f.jobs.jobs[0].ReferenceID != res.SourceID {
		t.Fatalf("unexpected jobs: %+v", f.jobs.jobs)
	}

	done, err := f.svc.Process(context.Background(), f.jobs.jobs[0])
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if done.ResultID != res.SourceID || *f.sources.byID[res.SourceID].Text != "text in image" {
		t.Fatalf("unexpected processing result %+v", done)
	}
	if f.sources.statuses[0] != models.SourceStatusProcessing {
		t.Fatalf("expected processing status first, got %v", f.sources.statuses)
	}
}

// ─── URLs ───

func TestSourceService_FromYouTube(t *testing.T) {
	f := newSourceFixture(t)
	req := models.SourceURLRequest{URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"}

	res, err := f.svc.FromYouTube(context.Background(), uuid.New(), req)
	if err != nil {
		t.Fatalf("FromYouTube: %v", err)
	}
	if res.Text != "caption text" || res.Title != "Cell biology" {
		t.Fatalf("unexpected result: %+v", res)
	}

	f.yt.captionErr = errors.New("no captions")
	res, err = f.svc.FromYouTube(context.Background(), uuid.New(), req)
	if err != nil {
		t.Fatalf("FromYouTube fallback: %v", err)
	}
	if res.Text != "transcript of audio" || f.media.mimeType != "audio/mp4" {
		t.Fatalf("expected audio transcription fallback, got %+v", res)
	}

	_, err = f.svc.FromYouTube(context.Background(), uuid.New(), models.SourceURLRequest{URL: "https://example.com/video"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Fields["url"] == "" {
		t.Fatalf("expected url validation error, got %v", err)
	}
}

func TestSourceService_FromWebsite(t *testing.T) {
	f := newSourceFixture(t)

	res, err := f.svc.FromWebsite(context.Background(), uuid.New(), models.SourceURLRequest{URL: "https://example.com/photosynthesis"})
	if err != nil {
		t.Fatalf("FromWebsite: %v", err)
	}
	if res.Title != "Photosynthesis" || res.Text != "Plants turn light into energy." {
		t.Fatalf("unexpected result: %+v", res)
	}

	_, err = f.svc.FromWebsite(context.Background(), uuid.New(), models.SourceURLRequest{URL: "not a url"})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSourceService_GetOwnership(t *testing.T) {
	f := newSourceFixture(t)
	owner := uuid.New()
	res, err := f.svc.FromWebsite(context.Background(), owner, models.SourceURLRequest{URL: "https://example.com"})
	if err != nil {
		t.Fatalf("FromWebsite: %v", err)
	}

	if _, err := f.svc.Get(context.Background(), owner, res.SourceID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	_, err = f.svc.Get(context.Background(), uuid.New(), res.SourceID)
	var nfErr *NotFoundError
	if !errors.As(err, &nfErr) {
		t.Fatalf("expected NotFoundError for another user, got %v", err)
	}
}

func TestSourceService_OnFailure(t *testing.T) {
	f := newSourceFixture(t)
	res, _ := f.svc.Upload(context.Background(), uuid.New(), "a.txt", strings.NewReader("x"), "", true)

	f.svc.OnFailure(context.Background(), f.jobs.jobs[0])
	if f.sources.byID[res.SourceID].Status != models.SourceStatusFailed {
		t.Fatalf("expected failed status, got %q", f.sources.byID[res.SourceID].Status)
	}
}
