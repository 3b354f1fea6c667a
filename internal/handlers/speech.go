package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gemchat-backend/internal/middleware"
	"gemchat-backend/internal/models"
	"gemchat-backend/internal/services"
	"gemchat-backend/internal/transcription"
)

const defaultAudioMime = "audio/webm"

var speechUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// speechCommand is a text frame on the speech socket.
type speechCommand struct {
	Type string `json:"type"` // "start" | "stop" | "reset"
}

type speechError struct {
	Error string `json:"error"`
}

// SpeechHandler streams captured utterances into a user's transcription
// source. Binary frames are audio, text frames are commands. Every frame is
// answered with the current transcript state.
type SpeechHandler struct {
	chat    *services.ChatService
	jwtAuth *middleware.JWTAuth
	log     *zap.Logger
}

func NewSpeechHandler(chat *services.ChatService, jwtAuth *middleware.JWTAuth, log *zap.Logger) *SpeechHandler {
	return &SpeechHandler{chat: chat, jwtAuth: jwtAuth, log: log}
}

func (h *SpeechHandler) HandleSpeech(w http.ResponseWriter, r *http.Request) {
	userID, err := h.jwtAuth.ParseToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	mimeType := r.URL.Query().Get("mime")
	if mimeType == "" {
		mimeType = defaultAudioMime
	}

	conn, err := speechUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("speech socket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sess := h.chat.Session(userID)
	release := sess.Attach()
	defer release()

	src := sess.Speech()
	if !src.Supported() {
		conn.WriteJSON(models.WSMessage{Type: "error", Payload: speechError{Error: transcription.ErrUnsupported.Error()}})
		return
	}
	// A dropped socket ends recognition.
	defer src.Stop()

	log := h.log.With(zap.String("user_id", userID.String()))
	ctx := r.Context()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.TextMessage:
			var cmd speechCommand
			if err := json.Unmarshal(data, &cmd); err != nil {
				h.writeError(conn, "invalid command")
				continue
			}
			switch cmd.Type {
			case "start":
				src.Start()
			case "stop":
				src.Stop()
			case "reset":
				src.Reset()
			default:
				h.writeError(conn, "unknown command: "+cmd.Type)
				continue
			}

		case websocket.BinaryMessage:
			if err := src.Feed(ctx, data, mimeType); err != nil {
				if !errors.Is(err, transcription.ErrNotListening) {
					log.Warn("speech recognition failed", zap.Error(err))
				}
				h.writeError(conn, err.Error())
				continue
			}
		}

		if err := conn.WriteJSON(models.WSMessage{
			Type:    models.EventTranscript,
			Payload: models.TranscriptEvent{Text: src.Transcript(), Listening: src.Listening()},
		}); err != nil {
			return
		}
	}
}

func (h *SpeechHandler) writeError(conn *websocket.Conn, msg string) {
	conn.WriteJSON(models.WSMessage{Type: "error", Payload: speechError{Error: msg}})
}
