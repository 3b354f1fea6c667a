package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"gemchat-backend/internal/models"
	"gemchat-backend/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var persistErr *services.PersistError
	var relayErr *services.RelayError

	switch {
	case errors.Is(err, services.ErrEmptyTurn):
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Message or image is required", r))
	case errors.Is(err, services.ErrInvalidDataURI):
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Image must be a base64 data URI", r))
	case errors.Is(err, services.ErrImageTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("IMAGE_TOO_LARGE", "Image is too large", r))
	case errors.Is(err, services.ErrTurnInFlight):
		writeJSON(w, http.StatusConflict, errorResp("TURN_IN_FLIGHT", "A message is already being sent", r))
	case errors.As(err, &persistErr):
		writeJSON(w, http.StatusInternalServerError, errorResp("SEND_FAILED", "Failed to send message", r))
	case errors.As(err, &relayErr):
		writeJSON(w, http.StatusBadGateway, errorResp("AI_ERROR", relayErr.Err.Error(), r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
