package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"go.uber.org/zap"

	"gemchat-backend/internal/models"
	"gemchat-backend/internal/services"
)

const relayAllowHeaders = "authorization, x-client-info, apikey, content-type"

// ContentGenerator is the upstream model call behind the relay function.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, apiKey string, req models.GeminiRequest) (*models.GeminiResponse, error)
}

// RelayHandler is the server side of the model relay: it holds the API
// credential and forwards one utterance to Gemini.
type RelayHandler struct {
	generator ContentGenerator
	apiKey    func() string
	log       *zap.Logger
}

// NewRelayHandler builds the relay. apiKey is consulted on every request; nil
// reads GEMINI_API_KEY from the process environment.
func NewRelayHandler(generator ContentGenerator, apiKey func() string, log *zap.Logger) *RelayHandler {
	if apiKey == nil {
		apiKey = func() string { return os.Getenv("GEMINI_API_KEY") }
	}
	return &RelayHandler{generator: generator, apiKey: apiKey, log: log}
}

func (h *RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", relayAllowHeaders)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
		return
	}

	reply, err := h.relay(r)
	if err != nil {
		h.log.Error("Error in gemini-chat function", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, models.RelayError{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, models.RelayResponse{Response: reply})
}

func (h *RelayHandler) relay(r *http.Request) (string, error) {
	apiKey := h.apiKey()
	if apiKey == "" {
		return "", services.ErrMissingAPIKey
	}

	var req models.RelayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", errors.New("Invalid request body")
	}

	body, err := services.BuildGeminiRequest(req.Message, req.ImageURL)
	if err != nil {
		return "", err
	}

	resp, err := h.generator.GenerateContent(r.Context(), apiKey, body)
	if err != nil {
		var upstream *services.UpstreamError
		if errors.As(err, &upstream) {
			h.log.Error("Gemini API error",
				zap.Int("status", upstream.StatusCode),
				zap.String("body", upstream.Body),
			)
		}
		return "", err
	}

	return services.ExtractReply(resp), nil
}
