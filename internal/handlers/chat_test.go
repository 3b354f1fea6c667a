package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"gemchat-backend/internal/middleware"
	"gemchat-backend/internal/models"
	"gemchat-backend/internal/repository"
	"gemchat-backend/internal/services"
)

type stubRelay struct {
	reply string
	err   error
	calls int
}

func (s *stubRelay) Send(ctx context.Context, text string, imageURL *string) (string, error) {
	s.calls++
	return s.reply, s.err
}

type failingStore struct{ *repository.MemoryMessageRepo }

func (failingStore) Append(ctx context.Context, userID uuid.UUID, content string, isFromAssistant bool, imageURL *string) (*models.Message, error) {
	return nil, errors.New("connection refused")
}

func newChatHandler(t *testing.T, store services.MessageStore, relay *stubRelay, maxImage int) *ChatHandler {
	t.Helper()
	log := zaptest.NewLogger(t)
	chat := services.NewChatService(store, relay, nil, nil, maxImage, log)
	return NewChatHandler(chat, log)
}

func authed(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, userID))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.APIError {
	t.Helper()
	var body models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	return body.Error
}

func TestChatHandler_SendMessage(t *testing.T) {
	store := repository.NewMemoryMessageRepo()
	relay := &stubRelay{reply: "Hello back"}
	h := newChatHandler(t, store, relay, 5*1024*1024)
	userID := uuid.New()

	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(`{"message":"Hello"}`)), userID)
	rr := httptest.NewRecorder()
	h.SendMessage(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var turn models.TurnResponse
	json.NewDecoder(rr.Body).Decode(&turn)
	if turn.UserMessage == nil || turn.UserMessage.Content != "Hello" {
		t.Errorf("Unexpected user message %+v", turn.UserMessage)
	}
	if turn.AssistantMessage == nil || !turn.AssistantMessage.IsFromAssistant || turn.AssistantMessage.Content != "Hello back" {
		t.Errorf("Unexpected assistant message %+v", turn.AssistantMessage)
	}

	msgs, _ := store.List(context.Background(), userID)
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 stored messages, got %d", len(msgs))
	}
}

func TestChatHandler_SendMessage_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		store      services.MessageStore
		relay      *stubRelay
		wantStatus int
		wantCode   string
		wantRelay  int
	}{
		{
			name:       "empty",
			body:       `{"message":"   "}`,
			store:      repository.NewMemoryMessageRepo(),
			relay:      &stubRelay{},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "image too large",
			body:       `{"message":"look","imageUrl":"data:image/png;base64,AAAAAAAA"}`,
			store:      repository.NewMemoryMessageRepo(),
			relay:      &stubRelay{},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   "IMAGE_TOO_LARGE",
		},
		{
			name:       "invalid image",
			body:       `{"imageUrl":"nope"}`,
			store:      repository.NewMemoryMessageRepo(),
			relay:      &stubRelay{},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "store down",
			body:       `{"message":"hi"}`,
			store:      failingStore{repository.NewMemoryMessageRepo()},
			relay:      &stubRelay{},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "SEND_FAILED",
		},
		{
			name:       "relay down",
			body:       `{"message":"hi"}`,
			store:      repository.NewMemoryMessageRepo(),
			relay:      &stubRelay{err: errors.New("Gemini API error: 500")},
			wantStatus: http.StatusBadGateway,
			wantCode:   "AI_ERROR",
			wantRelay:  1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newChatHandler(t, tc.store, tc.relay, 4)

			req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(tc.body)), uuid.New())
			req.Header.Set("X-Request-ID", "req-1")
			rr := httptest.NewRecorder()
			h.SendMessage(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("Expected %d, got %d: %s", tc.wantStatus, rr.Code, rr.Body.String())
			}
			apiErr := decodeError(t, rr)
			if apiErr.Code != tc.wantCode {
				t.Errorf("Expected code %s, got %s", tc.wantCode, apiErr.Code)
			}
			if apiErr.RequestID != "req-1" {
				t.Errorf("Expected request id to be echoed, got %q", apiErr.RequestID)
			}
			if tc.relay.calls != tc.wantRelay {
				t.Errorf("Expected %d relay calls, got %d", tc.wantRelay, tc.relay.calls)
			}
		})
	}
}

func TestChatHandler_ListAndClear(t *testing.T) {
	store := repository.NewMemoryMessageRepo()
	h := newChatHandler(t, store, &stubRelay{reply: "pong"}, 0)
	userID := uuid.New()
	other := uuid.New()

	store.Append(context.Background(), other, "not mine", false, nil)

	send := authed(httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(`{"message":"ping"}`)), userID)
	h.SendMessage(httptest.NewRecorder(), send)

	rr := httptest.NewRecorder()
	h.ListMessages(rr, authed(httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil), userID))

	var listed struct {
		Messages []*models.Message `json:"messages"`
	}
	json.NewDecoder(rr.Body).Decode(&listed)
	if len(listed.Messages) != 2 || listed.Messages[0].Content != "ping" || listed.Messages[1].Content != "pong" {
		t.Fatalf("Unexpected history %+v", listed.Messages)
	}

	rr = httptest.NewRecorder()
	h.ClearMessages(rr, authed(httptest.NewRequest(http.MethodDelete, "/api/v1/messages", nil), userID))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rr.Code)
	}

	if msgs, _ := store.List(context.Background(), userID); len(msgs) != 0 {
		t.Errorf("Expected empty history, got %d", len(msgs))
	}
	if msgs, _ := store.List(context.Background(), other); len(msgs) != 1 {
		t.Errorf("Clear must not touch other users, got %d", len(msgs))
	}
}

func TestChatHandler_Draft(t *testing.T) {
	h := newChatHandler(t, repository.NewMemoryMessageRepo(), &stubRelay{}, 1024)
	userID := uuid.New()

	rr := httptest.NewRecorder()
	h.SetDraftText(rr, authed(httptest.NewRequest(http.MethodPut, "/api/v1/draft", strings.NewReader(`{"text":"half typed"}`)), userID))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.StageImage(rr, authed(httptest.NewRequest(http.MethodPost, "/api/v1/draft/image", strings.NewReader(`{"imageUrl":"data:image/png;base64,AAAA"}`)), userID))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.GetDraft(rr, authed(httptest.NewRequest(http.MethodGet, "/api/v1/draft", nil), userID))
	var draft models.DraftResponse
	json.NewDecoder(rr.Body).Decode(&draft)
	if draft.Text != "half typed" || draft.ImageURL == nil || draft.Owner != "keyboard" {
		t.Fatalf("Unexpected draft %+v", draft)
	}

	rr = httptest.NewRecorder()
	h.RemoveImage(rr, authed(httptest.NewRequest(http.MethodDelete, "/api/v1/draft/image", nil), userID))
	json.NewDecoder(rr.Body).Decode(&draft)
	if draft.ImageURL != nil {
		t.Errorf("Expected image to be removed")
	}
}

func TestChatHandler_Status(t *testing.T) {
	h := newChatHandler(t, repository.NewMemoryMessageRepo(), &stubRelay{}, 0)

	rr := httptest.NewRecorder()
	h.Status(rr, authed(httptest.NewRequest(http.MethodGet, "/api/v1/chat/status", nil), uuid.New()))

	var status models.ChatStatus
	json.NewDecoder(rr.Body).Decode(&status)
	if status.InFlight || status.Listening || status.SpeechSupported {
		t.Errorf("Expected idle status without speech, got %+v", status)
	}
}
