package models

// RelayRequest is the body accepted by the relay function.
type RelayRequest struct {
	Message  string `json:"message"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type RelayResponse struct {
	Response string `json:"response"`
}

type RelayError struct {
	Error string `json:"error"`
}

// Gemini generateContent wire shapes.

type GeminiRequest struct {
	Contents         []GeminiContent        `json:"contents"`
	GenerationConfig GeminiGenerationConfig `json:"generationConfig"`
}

type GeminiContent struct {
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart holds exactly one of InlineData or Text.
type GeminiPart struct {
	InlineData *GeminiInlineData `json:"inlineData,omitempty"`
	Text       *string           `json:"text,omitempty"`
}

type GeminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type GeminiGenerationConfig struct {
	Temperature     float32 `json:"temperature"`
	MaxOutputTokens int32   `json:"maxOutputTokens"`
}

type GeminiResponse struct {
	Candidates []GeminiCandidate `json:"candidates"`
}

type GeminiCandidate struct {
	Content *GeminiResponseContent `json:"content"`
}

type GeminiResponseContent struct {
	Parts []GeminiResponsePart `json:"parts"`
}

type GeminiResponsePart struct {
	Text string `json:"text,omitempty"`
}
