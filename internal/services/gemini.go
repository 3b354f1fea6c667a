package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"gemchat-backend/internal/models"
	"gemchat-backend/internal/transcription"
)

const transcribePrompt = "Transcribe the provided audio verbatim in English (en-US). Return plain text only, without markdown, headers, or explanations. Return nothing if there is no speech."

// GeminiService talks to the Gemini API through the genai SDK. The API key
// is supplied per call so the relay can resolve it at request time; the
// client for the most recent key is reused.
type GeminiService struct {
	modelName string
	log       *zap.Logger
	opts      []option.ClientOption

	mu     sync.Mutex
	apiKey string
	client *genai.Client
}

func NewGeminiService(modelName string, log *zap.Logger, opts ...option.ClientOption) *GeminiService {
	return &GeminiService{
		modelName: modelName,
		log:       log,
		opts:      opts,
	}
}

func (s *GeminiService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	s.apiKey = ""
	return err
}

func (s *GeminiService) clientFor(ctx context.Context, apiKey string) (*genai.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil && s.apiKey == apiKey {
		return s.client, nil
	}

	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, s.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if s.client != nil {
		s.client.Close()
	}
	s.client = client
	s.apiKey = apiKey
	return client, nil
}

// GenerateContent sends one composed request and maps the SDK response back
// onto the generateContent wire shape.
func (s *GeminiService) GenerateContent(ctx context.Context, apiKey string, req models.GeminiRequest) (*models.GeminiResponse, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	parts, err := toGenaiParts(req)
	if err != nil {
		return nil, err
	}

	client, err := s.clientFor(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	model := client.GenerativeModel(s.modelName)
	model.SetTemperature(req.GenerationConfig.Temperature)
	model.SetMaxOutputTokens(req.GenerationConfig.MaxOutputTokens)

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		// A safety block is a successful answer without text.
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			s.log.Warn("Gemini blocked the request", zap.String("reason", blocked.Error()))
			return blockedResponse(blocked), nil
		}
		return nil, upstreamError(err)
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			s.log.Warn("Gemini candidate did not finish normally",
				zap.Int("candidate", i),
				zap.String("finish_reason", cand.FinishReason.String()),
			)
		}
	}

	return fromGenaiResponse(resp), nil
}

// Transcribe returns the spoken text of a short inline audio clip.
func (s *GeminiService) Transcribe(ctx context.Context, apiKey string, audio []byte, mimeType string) (string, error) {
	if apiKey == "" {
		return "", ErrMissingAPIKey
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("audio payload is empty")
	}

	client, err := s.clientFor(ctx, apiKey)
	if err != nil {
		return "", err
	}

	model := client.GenerativeModel(s.modelName)
	model.SetTemperature(0)

	resp, err := model.GenerateContent(ctx,
		genai.Text(transcribePrompt),
		genai.Blob{MIMEType: mimeType, Data: audio},
	)
	if err != nil {
		return "", fmt.Errorf("Gemini transcription error: %w", upstreamError(err))
	}

	return strings.TrimSpace(extractText(resp)), nil
}

// upstreamError surfaces HTTP failures as *UpstreamError, logging nothing;
// the relay decides what to log.
func upstreamError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		body := apiErr.Body
		if body == "" {
			body = apiErr.Message
		}
		return &UpstreamError{StatusCode: apiErr.Code, Body: body}
	}
	return fmt.Errorf("Gemini API error: %w", err)
}

// blockedResponse keeps the blocked candidate, if any, with its text stripped.
func blockedResponse(blocked *genai.BlockedError) *models.GeminiResponse {
	out := &models.GeminiResponse{}
	if blocked.Candidate != nil {
		out.Candidates = []models.GeminiCandidate{{}}
	}
	return out
}

func toGenaiParts(req models.GeminiRequest) ([]genai.Part, error) {
	var parts []genai.Part
	for _, content := range req.Contents {
		for _, p := range content.Parts {
			switch {
			case p.InlineData != nil:
				data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
				}
				parts = append(parts, genai.Blob{MIMEType: p.InlineData.MimeType, Data: data})
			case p.Text != nil:
				parts = append(parts, genai.Text(*p.Text))
			}
		}
	}
	return parts, nil
}

func fromGenaiResponse(resp *genai.GenerateContentResponse) *models.GeminiResponse {
	out := &models.GeminiResponse{}
	if resp == nil {
		return out
	}
	for _, cand := range resp.Candidates {
		c := models.GeminiCandidate{}
		if cand.Content != nil {
			c.Content = &models.GeminiResponseContent{}
			for _, part := range cand.Content.Parts {
				rp := models.GeminiResponsePart{}
				if t, ok := part.(genai.Text); ok {
					rp.Text = string(t)
				}
				c.Content.Parts = append(c.Content.Parts, rp)
			}
		}
		out.Candidates = append(out.Candidates, c)
	}
	return out
}

func extractText(resp *genai.GenerateContentResponse) string {
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

// GeminiSpeechEngine adapts Transcribe to the transcription.Engine contract.
// Every clip is one final segment; a clip with no speech ends the run.
type GeminiSpeechEngine struct {
	gemini *GeminiService
	apiKey string
}

func NewGeminiSpeechEngine(gemini *GeminiService, apiKey string) *GeminiSpeechEngine {
	return &GeminiSpeechEngine{gemini: gemini, apiKey: apiKey}
}

func (e *GeminiSpeechEngine) Recognize(ctx context.Context, audio []byte, mimeType string) (transcription.Result, error) {
	text, err := e.gemini.Transcribe(ctx, e.apiKey, audio, mimeType)
	if err != nil {
		return transcription.Result{}, err
	}
	if text == "" {
		return transcription.Result{EndOfSpeech: true}, nil
	}
	return transcription.Result{
		Segments: []transcription.Segment{{Text: text, Final: true}},
	}, nil
}
