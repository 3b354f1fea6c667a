package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single turn in a user's conversation. Messages are immutable
// once created; the store assigns ID and CreatedAt.
type Message struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	Content         string    `json:"content"`
	IsFromAssistant bool      `json:"is_ai"`
	ImageURL        *string   `json:"image_url"`
	CreatedAt       time.Time `json:"created_at"`
}

// SendMessageRequest is the payload of POST /api/v1/messages. Both fields are
// optional; present fields overwrite the session draft before submitting.
type SendMessageRequest struct {
	Message  *string `json:"message"`
	ImageURL *string `json:"imageUrl"`
}

// TurnResponse carries both sides of a completed turn.
type TurnResponse struct {
	UserMessage      *Message `json:"user_message"`
	AssistantMessage *Message `json:"assistant_message"`
}

type DraftTextRequest struct {
	Text string `json:"text"`
}

type StageImageRequest struct {
	ImageURL string `json:"imageUrl"`
}

type DraftResponse struct {
	Text     string  `json:"text"`
	ImageURL *string `json:"image_url"`
	Owner    string  `json:"owner"`
}

type ChatStatus struct {
	InFlight        bool `json:"in_flight"`
	Listening       bool `json:"listening"`
	SpeechSupported bool `json:"speech_supported"`
}
