package services

import (
	"encoding/base64"
	"fmt"
	"strings"

	"gemchat-backend/internal/models"
)

const (
	GenerationTemperature float32 = 0.7
	MaxOutputTokens       int32   = 1000

	// NoResponseFallback is returned as the reply when Gemini answers
	// without any text.
	NoResponseFallback = "No response from AI"
)

// ParseDataURI splits "data:<mime>;base64,<payload>" into its MIME type and
// the still-encoded payload.
func ParseDataURI(uri string) (mimeType, data string, err error) {
	header, data, ok := strings.Cut(uri, ",")
	if !ok {
		return "", "", fmt.Errorf("%w: missing ','", ErrInvalidDataURI)
	}

	meta, _, _ := strings.Cut(header, ";")
	_, mimeType, ok = strings.Cut(meta, ":")
	if !ok || mimeType == "" {
		return "", "", fmt.Errorf("%w: missing MIME type", ErrInvalidDataURI)
	}
	if data == "" {
		return "", "", fmt.Errorf("%w: empty payload", ErrInvalidDataURI)
	}

	return mimeType, data, nil
}

// DecodedImageSize returns the number of bytes the data URI encodes.
func DecodedImageSize(uri string) (int, error) {
	_, data, err := ParseDataURI(uri)
	if err != nil {
		return 0, err
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return len(raw), nil
}

// BuildGeminiRequest composes a single-turn generateContent body: an optional
// inline image part followed by the text part.
func BuildGeminiRequest(message, imageURL string) (models.GeminiRequest, error) {
	parts := make([]models.GeminiPart, 0, 2)

	if imageURL != "" {
		mimeType, data, err := ParseDataURI(imageURL)
		if err != nil {
			return models.GeminiRequest{}, err
		}
		parts = append(parts, models.GeminiPart{
			InlineData: &models.GeminiInlineData{MimeType: mimeType, Data: data},
		})
	}

	text := message
	parts = append(parts, models.GeminiPart{Text: &text})

	return models.GeminiRequest{
		Contents: []models.GeminiContent{{Parts: parts}},
		GenerationConfig: models.GeminiGenerationConfig{
			Temperature:     GenerationTemperature,
			MaxOutputTokens: MaxOutputTokens,
		},
	}, nil
}

// ExtractReply takes the first candidate's first part. A missing or empty
// text yields NoResponseFallback instead of an error.
func ExtractReply(resp *models.GeminiResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return NoResponseFallback
	}
	content := resp.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 || content.Parts[0].Text == "" {
		return NoResponseFallback
	}
	return content.Parts[0].Text
}
