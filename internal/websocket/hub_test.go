package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gemchat-backend/internal/middleware"
	"gemchat-backend/internal/middleware/jwttest"
	"gemchat-backend/internal/models"
)

func TestHub_PublishWithoutRedisReachesLocalSockets(t *testing.T) {
	auth := middleware.NewJWTAuth("secret")
	hub := NewHub(nil, nil, auth, zap.NewNop())
	defer hub.Close()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	userID := uuid.New()
	token := jwttest.Token(t, "secret", userID, time.Minute)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Connections(userID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection was never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Publish(context.Background(), userID, models.WSMessage{
		Type:    models.EventTurnState,
		Payload: models.TurnState{InFlight: true},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got struct {
		Type    string           `json:"type"`
		Payload models.TurnState `json:"payload"`
	}
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != models.EventTurnState || !got.Payload.InFlight {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestHub_RejectsMissingToken(t *testing.T) {
	hub := NewHub(nil, nil, middleware.NewJWTAuth("secret"), zap.NewNop())

	rr := httptest.NewRecorder()
	hub.HandleWebSocket(rr, httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", rr.Code)
	}
}
