package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"flashdeck-backend/internal/logger"
	"flashdeck-backend/internal/models"
)

type GeminiService struct {
	client    *genai.Client
	modelName string
	log       *logger.Logger
	rateChan  chan struct{} // Token bucket
}

func NewGeminiService(apiKey, modelName string, concurrentReqs int, log *logger.Logger) (*GeminiService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if concurrentReqs < 1 {
		concurrentReqs = 1
	}
	// Token bucket for rate limiting
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiService{
		client:    client,
		modelName: modelName,
		log:       log,
		rateChan:  rateChan,
	}, nil
}

func (s *GeminiService) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *GeminiService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return &GenerationError{Message: "timeout waiting for Gemini rate slot"}
	}
}

func (s *GeminiService) releaseRate() {
	s.rateChan <- struct{}{}
}

// newModel returns a model handle with the given temperature. jsonOut asks Gemini
// for an application/json response.
func (s *GeminiService) newModel(temperature float32, jsonOut bool) *genai.GenerativeModel {
	model := s.client.GenerativeModel(s.modelName)
	model.SetTemperature(temperature)
	model.SetTopP(0.95)
	if jsonOut {
		model.ResponseMIMEType = "application/json"
	}
	return model
}

// generateText runs a single non-streaming request and returns its text.
func (s *GeminiService) generateText(ctx context.Context, model *genai.GenerativeModel, parts ...genai.Part) (string, error) {
	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", &GenerationError{Message: "Gemini API error", Err: err}
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			s.log.Warn("Gemini candidate did not stop normally", "candidate", i, "finish_reason", cand.FinishReason.String())
		}
	}

	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		return "", &GenerationError{Message: "Gemini returned empty text"}
	}
	return text, nil
}

// TranscribeAudio uses Gemini File API to transcribe uploaded audio bytes.
func (s *GeminiService) TranscribeAudio(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", &ValidationError{Fields: map[string]string{"file": "audio payload is empty"}}
	}

	file, err := s.client.UploadFile(ctx, "", bytes.NewReader(audio), &genai.UploadFileOptions{
		DisplayName: "source-audio",
		MIMEType:    mimeType,
	})
	if err != nil {
		return "", &GenerationError{Message: "failed to upload audio to Gemini", Err: err}
	}

	// Ensure remote file is cleaned up
	defer s.client.DeleteFile(context.Background(), file.Name)

	// Wait until file is active
	for i := 0; i < 20; i++ {
		current, getErr := s.client.GetFile(ctx, file.Name)
		if getErr != nil {
			return "", &GenerationError{Message: "failed to get uploaded file status", Err: getErr}
		}

		if current.State == genai.FileStateActive {
			file = current
			break
		}
		if current.State == genai.FileStateFailed {
			return "", &GenerationError{Message: "Gemini failed to process uploaded audio file"}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	if file.State != genai.FileStateActive {
		return "", &GenerationError{Message: "audio file did not become active in time"}
	}

	return s.generateText(ctx, s.newModel(0.1, false),
		genai.Text(audioTranscriptionPrompt),
		genai.FileData{MIMEType: mimeType, URI: file.URI},
	)
}

// ExtractImageText reads the text shown in an image, keeping tables and lists.
func (s *GeminiService) ExtractImageText(ctx context.Context, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", &ValidationError{Fields: map[string]string{"file": "image payload is empty"}}
	}
	return s.generateText(ctx, s.newModel(0.1, false),
		genai.Blob{MIMEType: mimeType, Data: image},
		genai.Text(imageExtractionPrompt),
	)
}

// Chat answers the last user message given the previous turns. When req.Context is
// set the answer is grounded in that material.
func (s *GeminiService) Chat(ctx context.Context, req models.ChatRequest) (string, error) {
	model := s.newModel(0.7, false)
	model.SetMaxOutputTokens(1024)
	if strings.TrimSpace(req.Context) != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(buildChatSystemPrompt(req.Context))},
		}
	}

	cs := model.StartChat()
	for _, m := range req.History {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}

	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	resp, err := cs.SendMessage(ctx, genai.Text(req.Message))
	if err != nil {
		return "", &GenerationError{Message: "Gemini chat error", Err: err}
	}
	reply := strings.TrimSpace(extractText(resp))
	if reply == "" {
		return "", &GenerationError{Message: "Gemini returned an empty reply"}
	}
	return reply, nil
}

// Helper functions

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}

// stripCodeFences removes a leading ```json / ``` fence and a trailing ``` fence.
func stripCodeFences(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	return strings.TrimSpace(raw)
}
