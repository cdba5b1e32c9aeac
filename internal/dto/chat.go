package dto

import (
	"time"

	"github.com/noah-isme/surgitrack-api/internal/lookup"
)

// ChatRequest is a free-text visitor message.
type ChatRequest struct {
	Message string `json:"message" validate:"required,max=1000"`
}

// ChatResponse carries generated prose next to the machine-checkable lookup envelope.
type ChatResponse struct {
	Reply string `json:"reply"`
	lookup.Envelope
	Timestamp time.Time `json:"timestamp"`
	MessageID string    `json:"messageId"`
}
