package models

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	Role    string `json:"role" validate:"oneof=user assistant"`
	Content string `json:"content"`
}

// ChatRequest is the payload sent to the chat endpoint. Context is optional study
// material the answer should be grounded in.
type ChatRequest struct {
	Message string        `json:"message" validate:"required,max=4000"`
	History []ChatMessage `json:"history" validate:"max=50,dive"`
	Context string        `json:"context" validate:"max=100000"`
}

// ChatResponse is the reply from the AI chat.
type ChatResponse struct {
	Reply string `json:"reply"`
}
