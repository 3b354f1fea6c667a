package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"gemchat-backend/internal/models"
	"gemchat-backend/internal/services"
)

type fakeGenerator struct {
	resp   *models.GeminiResponse
	err    error
	calls  int
	apiKey string
	req    models.GeminiRequest
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, apiKey string, req models.GeminiRequest) (*models.GeminiResponse, error) {
	f.calls++
	f.apiKey = apiKey
	f.req = req
	return f.resp, f.err
}

func textResponse(text string) *models.GeminiResponse {
	return &models.GeminiResponse{Candidates: []models.GeminiCandidate{{
		Content: &models.GeminiResponseContent{Parts: []models.GeminiResponsePart{{Text: text}}},
	}}}
}

func staticKey(key string) func() string {
	return func() string { return key }
}

func postRelay(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/functions/v1/gemini-chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func assertRelayCORS(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected allow-all origin, got %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Headers"); got != relayAllowHeaders {
		t.Errorf("Expected allow-headers %q, got %q", relayAllowHeaders, got)
	}
}

func TestRelayHandler_Preflight(t *testing.T) {
	gen := &fakeGenerator{}
	h := NewRelayHandler(gen, staticKey("key"), zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodOptions, "/functions/v1/gemini-chat", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != "ok" {
		t.Errorf("Expected body 'ok', got %q", rr.Body.String())
	}
	assertRelayCORS(t, rr)
	if gen.calls != 0 {
		t.Error("Preflight must not call the model")
	}
}

func TestRelayHandler_MissingAPIKey(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("unused")}
	h := NewRelayHandler(gen, staticKey(""), zaptest.NewLogger(t))

	rr := postRelay(t, h, `{"message":"Hello"}`)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rr.Code)
	}
	var body models.RelayError
	json.NewDecoder(rr.Body).Decode(&body)
	if body.Error != "GEMINI_API_KEY not configured" {
		t.Errorf("Unexpected error %q", body.Error)
	}
	assertRelayCORS(t, rr)
	if gen.calls != 0 {
		t.Error("A missing credential must not reach the model")
	}
}

func TestRelayHandler_TextOnly(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("Hi there")}
	h := NewRelayHandler(gen, staticKey("secret"), zaptest.NewLogger(t))

	rr := postRelay(t, h, `{"message":"Hello"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body models.RelayResponse
	json.NewDecoder(rr.Body).Decode(&body)
	if body.Response != "Hi there" {
		t.Errorf("Expected 'Hi there', got %q", body.Response)
	}
	assertRelayCORS(t, rr)

	if gen.apiKey != "secret" {
		t.Errorf("Expected credential to be forwarded, got %q", gen.apiKey)
	}

	raw, _ := json.Marshal(gen.req.Contents[0].Parts)
	if string(raw) != `[{"text":"Hello"}]` {
		t.Errorf("Expected a single text part, got %s", raw)
	}
}

func TestRelayHandler_WithImage(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("a pixel")}
	h := NewRelayHandler(gen, staticKey("secret"), zaptest.NewLogger(t))

	rr := postRelay(t, h, `{"message":"what is this","imageUrl":"data:image/png;base64,AAAA"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	parts := gen.req.Contents[0].Parts
	if len(parts) != 2 {
		t.Fatalf("Expected inline and text parts, got %d", len(parts))
	}
	if parts[0].InlineData == nil || parts[0].InlineData.MimeType != "image/png" || parts[0].InlineData.Data != "AAAA" {
		t.Errorf("Unexpected inline part %+v", parts[0].InlineData)
	}
	if parts[1].Text == nil || *parts[1].Text != "what is this" {
		t.Errorf("Unexpected text part %+v", parts[1])
	}
}

func TestRelayHandler_UpstreamFailure(t *testing.T) {
	gen := &fakeGenerator{err: &services.UpstreamError{StatusCode: 429, Body: `{"error":{"code":429}}`}}
	h := NewRelayHandler(gen, staticKey("secret"), zaptest.NewLogger(t))

	rr := postRelay(t, h, `{"message":"Hello"}`)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rr.Code)
	}
	var body models.RelayError
	json.NewDecoder(rr.Body).Decode(&body)
	if !strings.Contains(body.Error, "429") {
		t.Errorf("Expected the upstream status in the error, got %q", body.Error)
	}
	assertRelayCORS(t, rr)
}

func TestRelayHandler_NoTextFallsBack(t *testing.T) {
	gen := &fakeGenerator{resp: &models.GeminiResponse{}}
	h := NewRelayHandler(gen, staticKey("secret"), zaptest.NewLogger(t))

	rr := postRelay(t, h, `{"message":"Hello"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var body models.RelayResponse
	json.NewDecoder(rr.Body).Decode(&body)
	if body.Response != "No response from AI" {
		t.Errorf("Expected fallback, got %q", body.Response)
	}
}

func TestRelayHandler_BadBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"bad image", `{"message":"x","imageUrl":"not-a-data-uri"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gen := &fakeGenerator{resp: textResponse("unused")}
			h := NewRelayHandler(gen, staticKey("secret"), zaptest.NewLogger(t))

			rr := postRelay(t, h, tc.body)

			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("Expected 500, got %d", rr.Code)
			}
			if gen.calls != 0 {
				t.Error("Malformed input must not reach the model")
			}
		})
	}
}

func TestRelayHandler_EndToEndWithClient(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("pong")}
	srv := httptest.NewServer(NewRelayHandler(gen, staticKey("secret"), zaptest.NewLogger(t)))
	defer srv.Close()

	client := services.NewRelayClient(srv.URL, "", srv.Client(), zaptest.NewLogger(t))

	reply, err := client.Send(context.Background(), "ping", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if reply != "pong" {
		t.Errorf("Expected 'pong', got %q", reply)
	}

	gen.err = &services.UpstreamError{StatusCode: 503}
	_, err = client.Send(context.Background(), "ping", nil)
	if err == nil || err.Error() != "Gemini API error: 503" {
		t.Fatalf("Expected relay error to reach the client, got %v", err)
	}

	// the body is the exact relay contract
	resp, err := srv.Client().Post(srv.URL, "application/json", bytes.NewBufferString(`{"message":"x"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var raw map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&raw)
	if _, ok := raw["error"].(string); !ok || len(raw) != 1 {
		t.Errorf("Expected {error: string}, got %v", raw)
	}
}
