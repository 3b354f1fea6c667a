package models

import "github.com/google/uuid"

const (
	EventMessageCreated  = "message_created"
	EventMessagesCleared = "messages_cleared"
	EventTurnState       = "turn_state"
	EventNotification    = "notification"
	EventTranscript      = "transcript"
	EventDraft           = "draft"
)

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type TurnState struct {
	InFlight bool `json:"in_flight"`
}

// Notification is the toast surface for user-visible errors.
type Notification struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Variant     string `json:"variant"` // "default" | "destructive"
}

type TranscriptEvent struct {
	Text      string `json:"text"`
	Listening bool   `json:"listening"`
}

type ClearedEvent struct {
	UserID uuid.UUID `json:"user_id"`
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
