package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"flashdeck-backend/internal/cardstream"
	"flashdeck-backend/internal/logger"
	"flashdeck-backend/internal/middleware"
	"flashdeck-backend/internal/models"
	"flashdeck-backend/internal/review"
	"flashdeck-backend/internal/services"
)

func authedRequest(method, target string, body io.Reader, userID uuid.UUID, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	return req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, userID))
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(b)
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.APIError {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error
}

// ─── Error mapping ───

func TestServiceErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &services.ValidationError{Fields: map[string]string{"title": "required"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"conflict", &services.ConflictError{Message: "Session already completed"}, http.StatusConflict, "CONFLICT"},
		{"not found", &services.NotFoundError{Message: "Deck not found"}, http.StatusNotFound, "NOT_FOUND"},
		{"wrapped not found", fmt.Errorf("load deck: %w", &services.NotFoundError{Message: "Deck not found"}), http.StatusNotFound, "NOT_FOUND"},
		{"no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), http.StatusNotFound, "NOT_FOUND"},
		{"unauthorized", &services.UnauthorizedError{Message: "Invalid credentials"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", &services.ForbiddenError{Message: "Access denied"}, http.StatusForbidden, "FORBIDDEN"},
		{"rate limited", &services.RateLimitError{Message: "Too many attempts"}, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"malformed", &cardstream.MalformedResponseError{Err: cardstream.ErrNoFlashcards}, http.StatusBadGateway, "MALFORMED_RESPONSE"},
		{"generation", &services.GenerationError{Message: "Gemini API error"}, http.StatusBadGateway, "GENERATION_FAILED"},
		{"timeout", fmt.Errorf("generate: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "TIMEOUT"},
		{"other", errors.New("connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Request-ID", "req-1")

			status, resp := serviceErrorStatus(tc.err, req)
			if status != tc.status {
				t.Fatalf("status = %d, want %d", status, tc.status)
			}
			if resp.Error.Code != tc.code {
				t.Fatalf("code = %q, want %q", resp.Error.Code, tc.code)
			}
			if resp.Error.RequestID != "req-1" {
				t.Fatalf("request id = %q", resp.Error.RequestID)
			}
		})
	}
}

func TestServiceErrorStatus_ValidationFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, resp := serviceErrorStatus(&services.ValidationError{Fields: map[string]string{"question_count": "must be between 1 and 100"}}, req)
	if resp.Error.Fields["question_count"] == "" {
		t.Fatalf("fields = %v", resp.Error.Fields)
	}
}

func TestUUIDParam_Invalid(t *testing.T) {
	req := authedRequest(http.MethodGet, "/api/v1/decks/nope", nil, uuid.New(), map[string]string{"id": "nope"})
	rr := httptest.NewRecorder()

	if _, ok := uuidParam(rr, req, "id", "deck"); ok {
		t.Fatal("expected invalid id to be rejected")
	}
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if e := decodeError(t, rr); e.Message != "Invalid deck ID" {
		t.Fatalf("message = %q", e.Message)
	}
}

// ─── Flashcards ───

type stubGeneration struct {
	checkErr  error
	snapshots []cardstream.Snapshot
	drafts    []cardstream.FlashcardDraft
	streamErr error
	streamed  bool
	job       *models.Job
	enqueued  models.GenerateFlashcardsAsyncRequest
	userID    uuid.UUID
}

func (s *stubGeneration) CheckRequest(models.GenerateFlashcardsRequest) error { return s.checkErr }

func (s *stubGeneration) Stream(_ context.Context, _ models.GenerateFlashcardsRequest, onSnapshot func(cardstream.Snapshot)) ([]cardstream.FlashcardDraft, error) {
	s.streamed = true
	for _, snap := range s.snapshots {
		onSnapshot(snap)
	}
	return s.drafts, s.streamErr
}

func (s *stubGeneration) Enqueue(_ context.Context, userID uuid.UUID, req models.GenerateFlashcardsAsyncRequest) (*models.Job, error) {
	s.userID = userID
	s.enqueued = req
	return s.job, nil
}

type stubCards struct {
	saved  models.SaveFlashcardsRequest
	getErr error
}

func (s *stubCards) SaveDrafts(_ context.Context, _ uuid.UUID, req models.SaveFlashcardsRequest) ([]models.Card, error) {
	s.saved = req
	cards := make([]models.Card, len(req.Flashcards))
	for i, d := range req.Flashcards {
		cards[i] = models.Card{ID: uuid.New(), DeckID: req.DeckID, Front: d.Front, Back: d.Back}
	}
	return cards, nil
}

func (s *stubCards) ListCards(context.Context, uuid.UUID, uuid.UUID) ([]models.Card, error) {
	return []models.Card{}, nil
}

func (s *stubCards) GetCard(_ context.Context, _, id uuid.UUID) (*models.Card, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &models.Card{ID: id}, nil
}

func (s *stubCards) UpdateCard(_ context.Context, _, id uuid.UUID, _ models.UpdateCardRequest) (*models.Card, error) {
	return &models.Card{ID: id}, nil
}

func (s *stubCards) DeleteCard(context.Context, uuid.UUID, uuid.UUID) error { return nil }

type sseEvent struct {
	name string
	data string
}

func parseSSE(body string) []sseEvent {
	var events []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			}
		}
		if ev.name != "" {
			events = append(events, ev)
		}
	}
	return events
}

func TestFlashcardHandler_GenerateStreamsEvents(t *testing.T) {
	first := cardstream.Snapshot{
		Completed: []cardstream.FlashcardDraft{},
		Current:   cardstream.CurrentCard{FlashcardDraft: cardstream.FlashcardDraft{Front: "Q1"}, Status: cardstream.StatusBack},
	}
	second := cardstream.Snapshot{
		Completed: []cardstream.FlashcardDraft{{Front: "Q1", Back: "A1"}},
		Current:   cardstream.CurrentCard{FlashcardDraft: cardstream.FlashcardDraft{Front: "Q2", Back: "A2"}, Status: cardstream.StatusComplete},
	}
	gen := &stubGeneration{
		snapshots: []cardstream.Snapshot{first, second},
		drafts:    []cardstream.FlashcardDraft{{Front: "Q1", Back: "A1"}, {Front: "Q2", Back: "A2"}},
	}
	h := NewFlashcardHandler(&stubCards{}, gen)

	req := authedRequest(http.MethodPost, "/api/v1/flashcards/generate", jsonBody(t, map[string]interface{}{
		"text": "Noble gases are inert.", "question_count": 2,
	}), uuid.New(), nil)
	rr := httptest.NewRecorder()
	h.Generate(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	events := parseSSE(rr.Body.String())
	if len(events) != 3 {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	if events[0].name != "progress" || events[1].name != "progress" || events[2].name != "done" {
		t.Fatalf("event names = %+v", events)
	}

	var snap cardstream.Snapshot
	if err := json.Unmarshal([]byte(events[1].data), &snap); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if len(snap.Completed) != 1 || snap.Current.Status != cardstream.StatusComplete {
		t.Fatalf("progress snapshot = %+v", snap)
	}

	var done struct {
		Flashcards []cardstream.FlashcardDraft `json:"flashcards"`
	}
	if err := json.Unmarshal([]byte(events[2].data), &done); err != nil {
		t.Fatalf("decode done: %v", err)
	}
	if len(done.Flashcards) != 2 || done.Flashcards[1].Back != "A2" {
		t.Fatalf("done = %+v", done)
	}
}

func TestFlashcardHandler_GenerateRejectsBeforeStreaming(t *testing.T) {
	gen := &stubGeneration{checkErr: &services.ValidationError{Fields: map[string]string{"text": "required"}}}
	h := NewFlashcardHandler(&stubCards{}, gen)

	req := authedRequest(http.MethodPost, "/api/v1/flashcards/generate", jsonBody(t, map[string]string{}), uuid.New(), nil)
	rr := httptest.NewRecorder()
	h.Generate(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if gen.streamed {
		t.Fatal("generation should not start for an invalid request")
	}
	if e := decodeError(t, rr); e.Fields["text"] == "" {
		t.Fatalf("fields = %v", e.Fields)
	}
}

func TestFlashcardHandler_GenerateMalformedEvent(t *testing.T) {
	gen := &stubGeneration{streamErr: &cardstream.MalformedResponseError{Raw: "oops", Err: cardstream.ErrNoJSONObject}}
	h := NewFlashcardHandler(&stubCards{}, gen)

	req := authedRequest(http.MethodPost, "/api/v1/flashcards/generate", jsonBody(t, map[string]string{"text": "x"}), uuid.New(), nil)
	rr := httptest.NewRecorder()
	h.Generate(rr, req)

	events := parseSSE(rr.Body.String())
	if len(events) != 1 || events[0].name != "error" {
		t.Fatalf("events = %+v", events)
	}
	var apiErr models.APIError
	if err := json.Unmarshal([]byte(events[0].data), &apiErr); err != nil {
		t.Fatalf("decode error event: %v", err)
	}
	if apiErr.Code != "MALFORMED_RESPONSE" {
		t.Fatalf("code = %q", apiErr.Code)
	}
}

// brokenStream accepts the SSE headers and then fails every body write.
type brokenStream struct {
	header http.Header
}

func (b *brokenStream) Header() http.Header       { return b.header }
func (b *brokenStream) WriteHeader(int)           {}
func (b *brokenStream) Write([]byte) (int, error) { return 0, errors.New("client went away") }
func (b *brokenStream) Flush()                    {}

func TestFlashcardHandler_GenerateLogsUndeliveredEvents(t *testing.T) {
	tests := []struct {
		name    string
		gen     *stubGeneration
		wantMsg string
	}{
		{
			name:    "done",
			gen:     &stubGeneration{drafts: []cardstream.FlashcardDraft{{Front: "Q", Back: "A"}}},
			wantMsg: "done event not delivered",
		},
		{
			name:    "error",
			gen:     &stubGeneration{streamErr: &cardstream.MalformedResponseError{Raw: "oops", Err: cardstream.ErrNoJSONObject}},
			wantMsg: "error event not delivered",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			h := NewFlashcardHandler(&stubCards{}, tt.gen)

			req := authedRequest(http.MethodPost, "/api/v1/flashcards/generate", jsonBody(t, map[string]string{"text": "x"}), uuid.New(), nil)
			req = req.WithContext(middleware.WithLogger(req.Context(), logger.FromZap(zap.New(core))))
			h.Generate(&brokenStream{header: http.Header{}}, req)

			if n := logs.FilterMessage(tt.wantMsg).Len(); n != 1 {
				t.Fatalf("%q logged %d times, all logs: %+v", tt.wantMsg, n, logs.All())
			}
		})
	}
}

func TestFlashcardHandler_GenerateAsync(t *testing.T) {
	userID := uuid.New()
	job := &models.Job{ID: uuid.New(), ReferenceID: uuid.New(), Status: models.JobStatusPending}
	gen := &stubGeneration{job: job}
	h := NewFlashcardHandler(&stubCards{}, gen)

	sourceID := uuid.New()
	req := authedRequest(http.MethodPost, "/api/v1/flashcards/generate/async", jsonBody(t, map[string]interface{}{
		"source_id": sourceID, "question_count": "max",
	}), userID, nil)
	rr := httptest.NewRecorder()
	h.GenerateAsync(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}
	if gen.userID != userID || gen.enqueued.SourceID != sourceID || gen.enqueued.QuestionCount.Mode != models.QuestionCountMax {
		t.Fatalf("enqueued %+v for %s", gen.enqueued, gen.userID)
	}

	var payload map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["job_id"] != job.ID.String() || payload["deck_id"] != job.ReferenceID.String() {
		t.Fatalf("payload = %v", payload)
	}
}

func TestFlashcardHandler_Save(t *testing.T) {
	cards := &stubCards{}
	h := NewFlashcardHandler(cards, &stubGeneration{})
	deckID := uuid.New()

	req := authedRequest(http.MethodPost, "/api/v1/flashcards/save", jsonBody(t, map[string]interface{}{
		"deck_id":    deckID,
		"flashcards": []map[string]string{{"front": "Q1", "back": "A1", "backRich": "<p>A1</p>"}},
	}), uuid.New(), nil)
	rr := httptest.NewRecorder()
	h.Save(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rr.Code)
	}
	if cards.saved.DeckID != deckID || len(cards.saved.Flashcards) != 1 {
		t.Fatalf("saved = %+v", cards.saved)
	}
	if rich := cards.saved.Flashcards[0].BackRich; rich == nil || *rich != "<p>A1</p>" {
		t.Fatalf("backRich = %v", rich)
	}
}

func TestFlashcardHandler_ListRequiresDeck(t *testing.T) {
	h := NewFlashcardHandler(&stubCards{}, &stubGeneration{})
	rr := httptest.NewRecorder()
	h.List(rr, authedRequest(http.MethodGet, "/api/v1/flashcards", nil, uuid.New(), nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestFlashcardHandler_GetNotFound(t *testing.T) {
	h := NewFlashcardHandler(&stubCards{getErr: &services.NotFoundError{Message: "Flashcard not found"}}, &stubGeneration{})
	id := uuid.New()
	rr := httptest.NewRecorder()
	h.Get(rr, authedRequest(http.MethodGet, "/api/v1/flashcards/"+id.String(), nil, uuid.New(), map[string]string{"id": id.String()}))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	if e := decodeError(t, rr); e.Message != "Flashcard not found" {
		t.Fatalf("message = %q", e.Message)
	}
}

// ─── Sources ───

type stubSourceService struct {
	called   bool
	filename string
	body     string
	kind     string
	async    bool
	result   *models.SourceResult
}

func (s *stubSourceService) Upload(_ context.Context, _ uuid.UUID, filename string, body io.Reader, wantKind string, async bool) (*models.SourceResult, error) {
	s.called = true
	s.filename = filename
	b, _ := io.ReadAll(body)
	s.body = string(b)
	s.kind = wantKind
	s.async = async
	return s.result, nil
}

func (s *stubSourceService) FromYouTube(context.Context, uuid.UUID, models.SourceURLRequest) (*models.SourceResult, error) {
	return nil, &services.ValidationError{Fields: map[string]string{"url": "not a YouTube video URL"}}
}

func (s *stubSourceService) FromWebsite(context.Context, uuid.UUID, models.SourceURLRequest) (*models.SourceResult, error) {
	return s.result, nil
}

func (s *stubSourceService) Get(context.Context, uuid.UUID, uuid.UUID) (*models.Source, error) {
	return nil, &services.NotFoundError{Message: "Source not found"}
}

func multipartRequest(t *testing.T, target, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write([]byte(content))
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := authedRequest(http.MethodPost, target, &buf, uuid.New(), nil)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestSourceHandler_Upload(t *testing.T) {
	svc := &stubSourceService{result: &models.SourceResult{SourceID: uuid.New(), Title: "notes.txt", Text: "hello", Status: models.SourceStatusCompleted}}
	h := NewSourceHandler(svc)

	rr := httptest.NewRecorder()
	h.Upload(rr, multipartRequest(t, "/api/v1/sources/upload", "notes.txt", "hello", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if svc.filename != "notes.txt" || svc.body != "hello" || svc.kind != "" || svc.async {
		t.Fatalf("upload called with %+v", svc)
	}
}

func TestSourceHandler_UploadAsyncAccepted(t *testing.T) {
	jobID := uuid.New()
	svc := &stubSourceService{result: &models.SourceResult{SourceID: uuid.New(), Status: models.SourceStatusPending, JobID: &jobID}}
	h := NewSourceHandler(svc)

	rr := httptest.NewRecorder()
	h.Upload(rr, multipartRequest(t, "/api/v1/sources/upload", "lecture.mp3", "ID3", map[string]string{"async": "true"}))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}
	if !svc.async {
		t.Fatal("async flag not passed through")
	}
}

func TestSourceHandler_UploadRejectsFormats(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		image    bool
	}{
		{"image on document endpoint", "photo.png", false},
		{"unknown extension", "setup.exe", false},
		{"document on image endpoint", "notes.pdf", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubSourceService{result: &models.SourceResult{}}
			h := NewSourceHandler(svc)
			req := multipartRequest(t, "/api/v1/sources/upload", tc.filename, "data", nil)
			rr := httptest.NewRecorder()

			if tc.image {
				// Kind mismatches on the image endpoint are rejected by the service.
				h.UploadImage(rr, req)
				if svc.kind != services.FileKindImage {
					t.Fatalf("kind = %q, want image", svc.kind)
				}
				return
			}

			h.Upload(rr, req)
			if rr.Code != http.StatusUnsupportedMediaType {
				t.Fatalf("status = %d, want 415", rr.Code)
			}
			if svc.called {
				t.Fatal("service should not be called for a rejected format")
			}
		})
	}
}

func TestSourceHandler_UploadMissingFile(t *testing.T) {
	h := NewSourceHandler(&stubSourceService{})
	req := authedRequest(http.MethodPost, "/api/v1/sources/upload", strings.NewReader(""), uuid.New(), nil)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	rr := httptest.NewRecorder()
	h.Upload(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestSourceHandler_YouTubeValidation(t *testing.T) {
	h := NewSourceHandler(&stubSourceService{})
	rr := httptest.NewRecorder()
	h.YouTube(rr, authedRequest(http.MethodPost, "/api/v1/sources/youtube", jsonBody(t, map[string]string{"url": "https://example.com"}), uuid.New(), nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if e := decodeError(t, rr); e.Fields["url"] == "" {
		t.Fatalf("fields = %v", e.Fields)
	}
}

// ─── Study ───

type stubStudyService struct {
	answered models.SubmitAnswerRequest
	userID   uuid.UUID
}

func (s *stubStudyService) StartSession(_ context.Context, userID uuid.UUID, req models.StartSessionRequest) (*models.StudySession, error) {
	return &models.StudySession{ID: uuid.New(), UserID: userID, DeckIDs: req.DeckIDs, Mode: req.Mode, Status: models.SessionStatusActive}, nil
}

func (s *stubStudyService) GetSession(context.Context, uuid.UUID, uuid.UUID) (*models.StudySession, error) {
	return nil, fmt.Errorf("get session: %w", pgx.ErrNoRows)
}

func (s *stubStudyService) SessionCards(context.Context, uuid.UUID, uuid.UUID) ([]models.StudyCard, error) {
	return []models.StudyCard{}, nil
}

func (s *stubStudyService) SubmitAnswer(_ context.Context, userID uuid.UUID, req models.SubmitAnswerRequest) (*models.SubmitAnswerResponse, error) {
	s.userID = userID
	s.answered = req
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return &models.SubmitAnswerResponse{
		Log: models.StudyLog{CardID: req.CardID, Correct: *req.Correct},
		Stats: models.CardStats{
			UserID:          userID,
			CardID:          req.CardID,
			CardReviewStats: review.Apply(nil, *req.Correct, now),
		},
	}, nil
}

func (s *stubStudyService) CompleteSession(context.Context, uuid.UUID, uuid.UUID) (*models.CompleteSessionResponse, error) {
	return nil, &services.ConflictError{Message: "Session already completed"}
}

func (s *stubStudyService) Result(context.Context, uuid.UUID, uuid.UUID) (*models.SessionResult, error) {
	return &models.SessionResult{}, nil
}

func (s *stubStudyService) DueCards(context.Context, uuid.UUID, uuid.UUID) ([]models.StudyCard, error) {
	return []models.StudyCard{}, nil
}

type stubChoices struct{}

func (stubChoices) MultipleChoice(context.Context, uuid.UUID, models.CardBatchRequest) ([]models.CardChoices, error) {
	return nil, &services.GenerationError{Message: "Gemini API error"}
}

func (stubChoices) TrueFalse(_ context.Context, _ uuid.UUID, req models.CardBatchRequest) ([]models.CardStatements, error) {
	out := make([]models.CardStatements, len(req.CardIDs))
	for i, id := range req.CardIDs {
		out[i] = models.CardStatements{CardID: id, Statements: []models.TrueFalseStatement{{Text: "t", IsTrue: true}, {Text: "f"}}}
	}
	return out, nil
}

func TestStudyHandler_StartSession(t *testing.T) {
	h := NewStudyHandler(&stubStudyService{}, stubChoices{})
	deckID := uuid.New()
	rr := httptest.NewRecorder()
	h.StartSession(rr, authedRequest(http.MethodPost, "/api/v1/study/sessions", jsonBody(t, map[string]interface{}{
		"deck_ids": []uuid.UUID{deckID}, "mode": "quiz",
	}), uuid.New(), nil))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rr.Code)
	}
	var session models.StudySession
	if err := json.NewDecoder(rr.Body).Decode(&session); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if session.Mode != models.StudyModeQuiz || len(session.DeckIDs) != 1 || session.DeckIDs[0] != deckID {
		t.Fatalf("session = %+v", session)
	}
}

func TestStudyHandler_SubmitAnswer(t *testing.T) {
	study := &stubStudyService{}
	h := NewStudyHandler(study, stubChoices{})
	userID, cardID := uuid.New(), uuid.New()

	rr := httptest.NewRecorder()
	h.SubmitAnswer(rr, authedRequest(http.MethodPost, "/api/v1/study/answers", jsonBody(t, map[string]interface{}{
		"session_id": uuid.New(), "card_id": cardID, "correct": true, "time_taken": 1800,
	}), userID, nil))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rr.Code)
	}
	if study.userID != userID || study.answered.TimeTakenMs != 1800 {
		t.Fatalf("answer recorded as %+v for %s", study.answered, study.userID)
	}

	var resp models.SubmitAnswerResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Stats.Difficulty != 0.3 || resp.Stats.CorrectCount != 1 {
		t.Fatalf("stats = %+v", resp.Stats)
	}
}

func TestStudyHandler_ErrorStatuses(t *testing.T) {
	h := NewStudyHandler(&stubStudyService{}, stubChoices{})
	id := uuid.New()
	params := map[string]string{"id": id.String()}

	tests := []struct {
		name    string
		handler http.HandlerFunc
		req     *http.Request
		status  int
	}{
		{"missing session", h.GetSession, authedRequest(http.MethodGet, "/api/v1/study/sessions/"+id.String(), nil, uuid.New(), params), http.StatusNotFound},
		{"completed twice", h.CompleteSession, authedRequest(http.MethodPost, "/api/v1/study/sessions/"+id.String()+"/complete", nil, uuid.New(), params), http.StatusConflict},
		{"bad session id", h.Result, authedRequest(http.MethodGet, "/api/v1/study/sessions/x/result", nil, uuid.New(), map[string]string{"id": "x"}), http.StatusBadRequest},
		{"due without deck", h.DueCards, authedRequest(http.MethodGet, "/api/v1/study/cards/due", nil, uuid.New(), nil), http.StatusBadRequest},
		{"choices generation failed", h.MultipleChoice, authedRequest(http.MethodPost, "/api/v1/study/cards/multiple-choice", jsonBody(t, map[string]interface{}{"card_ids": []uuid.UUID{id}}), uuid.New(), nil), http.StatusBadGateway},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tc.handler(rr, tc.req)
			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d", rr.Code, tc.status)
			}
		})
	}
}

func TestStudyHandler_TrueFalse(t *testing.T) {
	h := NewStudyHandler(&stubStudyService{}, stubChoices{})
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	rr := httptest.NewRecorder()
	h.TrueFalse(rr, authedRequest(http.MethodPost, "/api/v1/study/cards/true-false", jsonBody(t, map[string]interface{}{"card_ids": ids}), uuid.New(), nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var payload struct {
		Cards []models.CardStatements `json:"cards"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Cards) != 2 || payload.Cards[1].CardID != ids[1] {
		t.Fatalf("cards = %+v", payload.Cards)
	}
}

// ─── Jobs ───

type stubJobRepo struct {
	job *models.Job
}

func (s *stubJobRepo) GetByID(context.Context, uuid.UUID) (*models.Job, error) {
	if s.job == nil {
		return nil, pgx.ErrNoRows
	}
	return s.job, nil
}

func TestJobHandler_GetJob(t *testing.T) {
	owner := uuid.New()
	job := &models.Job{ID: uuid.New(), UserID: owner, Type: models.JobTypeFlashcardGeneration, Status: models.JobStatusProcessing}
	h := NewJobHandler(&stubJobRepo{job: job})
	params := map[string]string{"id": job.ID.String()}

	rr := httptest.NewRecorder()
	h.GetJob(rr, authedRequest(http.MethodGet, "/api/v1/jobs/"+job.ID.String(), nil, owner, params))
	if rr.Code != http.StatusOK {
		t.Fatalf("owner status = %d, want 200", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.GetJob(rr, authedRequest(http.MethodGet, "/api/v1/jobs/"+job.ID.String(), nil, uuid.New(), params))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("other user status = %d, want 404", rr.Code)
	}
}

// ─── Chat ───

type stubChatModel struct {
	got models.ChatRequest
}

func (s *stubChatModel) Chat(_ context.Context, req models.ChatRequest) (string, error) {
	s.got = req
	return "Argon is a noble gas.", nil
}

func TestChatHandler(t *testing.T) {
	model := &stubChatModel{}
	h := NewChatHandler(model)

	rr := httptest.NewRecorder()
	h.Chat(rr, authedRequest(http.MethodPost, "/api/v1/chat", jsonBody(t, map[string]interface{}{
		"message": "Is argon reactive?",
		"history": []map[string]string{{"role": "user", "content": "hi"}, {"role": "assistant", "content": "hello"}},
	}), uuid.New(), nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if len(model.got.History) != 2 {
		t.Fatalf("history = %+v", model.got.History)
	}
	var resp models.ChatResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Reply != "Argon is a noble gas." {
		t.Fatalf("reply = %q", resp.Reply)
	}
}

func TestChatHandler_Validation(t *testing.T) {
	h := NewChatHandler(&stubChatModel{})

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"empty message", map[string]interface{}{"message": ""}},
		{"bad role", map[string]interface{}{"message": "hi", "history": []map[string]string{{"role": "system", "content": "x"}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.Chat(rr, authedRequest(http.MethodPost, "/api/v1/chat", jsonBody(t, tc.body), uuid.New(), nil))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
		})
	}
}

// ─── User ───

type stubUsers struct{}

func (stubUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return &models.User{ID: id, Email: "kana@example.com", FullName: "Kana"}, nil
}

func (stubUsers) GetStreak(context.Context, uuid.UUID) (review.Streak, error) {
	return review.Streak{Current: 4, Longest: 9}, nil
}

func TestUserHandler_GetMe(t *testing.T) {
	userID := uuid.New()
	h := NewUserHandler(stubUsers{})
	rr := httptest.NewRecorder()
	h.GetMe(rr, authedRequest(http.MethodGet, "/api/v1/user/me", nil, userID, nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var profile models.Profile
	if err := json.NewDecoder(rr.Body).Decode(&profile); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if profile.User.ID != userID || profile.Streak.Current != 4 || profile.Streak.Longest != 9 {
		t.Fatalf("profile = %+v", profile)
	}
}
