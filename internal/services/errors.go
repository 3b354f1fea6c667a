package services

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyTurn      = errors.New("nothing to send")
	ErrTurnInFlight   = errors.New("a message is already being sent")
	ErrImageTooLarge  = errors.New("image exceeds the size limit")
	ErrInvalidDataURI = errors.New("invalid data URI")
	ErrMissingAPIKey  = errors.New("GEMINI_API_KEY not configured")
)

// UpstreamError is a non-success HTTP status from the Gemini API.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("Gemini API error: %d", e.StatusCode)
}

// PersistError wraps a message store failure during a turn.
type PersistError struct{ Err error }

func (e *PersistError) Error() string { return "failed to save message: " + e.Err.Error() }
func (e *PersistError) Unwrap() error { return e.Err }

// RelayError wraps a model relay failure during a turn.
type RelayError struct{ Err error }

func (e *RelayError) Error() string { return e.Err.Error() }
func (e *RelayError) Unwrap() error { return e.Err }
