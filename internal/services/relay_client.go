package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"go.uber.org/zap"

	"gemchat-backend/internal/models"
)

const relayFailureMessage = "Failed to get response from AI"

// RelayClient sends a single utterance to the relay function. It never
// forwards history and never retries.
type RelayClient struct {
	endpoint   string
	anonKey    string
	httpClient *http.Client
	log        *zap.Logger
	inFlight   atomic.Int32
}

func NewRelayClient(endpoint, anonKey string, httpClient *http.Client, log *zap.Logger) *RelayClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RelayClient{
		endpoint:   endpoint,
		anonKey:    anonKey,
		httpClient: httpClient,
		log:        log,
	}
}

// InFlight reports whether a Send is outstanding.
func (c *RelayClient) InFlight() bool {
	return c.inFlight.Load() > 0
}

func (c *RelayClient) Send(ctx context.Context, text string, imageURL *string) (string, error) {
	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)

	reply, err := c.send(ctx, text, imageURL)
	if err != nil {
		c.log.Error("Error calling Gemini API", zap.Error(err))
		return "", err
	}
	return reply, nil
}

func (c *RelayClient) send(ctx context.Context, text string, imageURL *string) (string, error) {
	body := models.RelayRequest{Message: text}
	if imageURL != nil {
		body.ImageURL = *imageURL
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding relay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.anonKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.anonKey)
		req.Header.Set("apikey", c.anonKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", relayFailureMessage, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var relayErr models.RelayError
		if err := json.NewDecoder(resp.Body).Decode(&relayErr); err == nil && relayErr.Error != "" {
			return "", errors.New(relayErr.Error)
		}
		return "", fmt.Errorf("%s (status %d)", relayFailureMessage, resp.StatusCode)
	}

	var out models.RelayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%s: %w", relayFailureMessage, err)
	}
	return out.Response, nil
}
