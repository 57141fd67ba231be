package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"flashdeck-backend/internal/middleware"
	"flashdeck-backend/internal/models"
	"flashdeck-backend/internal/services"
)

const maxUploadBytes = 100 * 1024 * 1024

type sourceService interface {
	Upload(ctx context.Context, userID uuid.UUID, filename string, body io.Reader, wantKind string, async bool) (*models.SourceResult, error)
	FromYouTube(ctx context.Context, userID uuid.UUID, req models.SourceURLRequest) (*models.SourceResult, error)
	FromWebsite(ctx context.Context, userID uuid.UUID, req models.SourceURLRequest) (*models.SourceResult, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*models.Source, error)
}

type SourceHandler struct {
	sources sourceService
}

func NewSourceHandler(sources sourceService) *SourceHandler {
	return &SourceHandler{sources: sources}
}

// Upload accepts a document or audio file in the "file" form field.
func (h *SourceHandler) Upload(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, "")
}

// UploadImage accepts an image whose text is read by the vision model.
func (h *SourceHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, services.FileKindImage)
}

func (h *SourceHandler) upload(w http.ResponseWriter, r *http.Request, kind string) {
	if r.ContentLength > maxUploadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "File size exceeds 100MB limit", r))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "No file provided", r))
		return
	}
	defer file.Close()

	if kind == "" {
		if k, _, ok := services.ClassifyFile(header.Filename); ok && k == services.FileKindImage {
			writeJSON(w, http.StatusUnsupportedMediaType, errorResp("UNSUPPORTED_FORMAT", "Use the image endpoint for images", r))
			return
		}
	}
	if _, _, ok := services.ClassifyFile(header.Filename); !ok {
		writeJSON(w, http.StatusUnsupportedMediaType, errorResp("UNSUPPORTED_FORMAT", "File type not supported", r))
		return
	}

	async, _ := strconv.ParseBool(r.FormValue("async"))
	res, err := h.sources.Upload(r.Context(), middleware.GetUserID(r.Context()), header.Filename, file, kind, async)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, sourceStatus(res), res)
}

func (h *SourceHandler) YouTube(w http.ResponseWriter, r *http.Request) {
	var req models.SourceURLRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.sources.FromYouTube(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, sourceStatus(res), res)
}

func (h *SourceHandler) Website(w http.ResponseWriter, r *http.Request) {
	var req models.SourceURLRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.sources.FromWebsite(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, sourceStatus(res), res)
}

func (h *SourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "source")
	if !ok {
		return
	}
	src, err := h.sources.Get(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (h *SourceHandler) SupportedFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"formats": []map[string]string{
			{"extension": ".pdf", "kind": services.FileKindDocument, "description": "PDF Document"},
			{"extension": ".docx", "kind": services.FileKindDocument, "description": "Word Document"},
			{"extension": ".txt", "kind": services.FileKindDocument, "description": "Plain Text"},
			{"extension": ".mp3", "kind": services.FileKindAudio, "description": "MP3 Audio"},
			{"extension": ".wav", "kind": services.FileKindAudio, "description": "WAV Audio"},
			{"extension": ".m4a", "kind": services.FileKindAudio, "description": "M4A Audio"},
			{"extension": ".mp4", "kind": services.FileKindAudio, "description": "MP4 Video"},
			{"extension": ".png", "kind": services.FileKindImage, "description": "PNG Image"},
			{"extension": ".jpg", "kind": services.FileKindImage, "description": "JPEG Image"},
			{"extension": ".webp", "kind": services.FileKindImage, "description": "WebP Image"},
		},
	})
}

func sourceStatus(res *models.SourceResult) int {
	if res.JobID != nil {
		return http.StatusAccepted
	}
	return http.StatusOK
}
