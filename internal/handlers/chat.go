package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"gemchat-backend/internal/middleware"
	"gemchat-backend/internal/models"
	"gemchat-backend/internal/services"
)

type ChatHandler struct {
	chat *services.ChatService
	log  *zap.Logger
}

func NewChatHandler(chat *services.ChatService, log *zap.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, log: log}
}

func (h *ChatHandler) session(r *http.Request) *services.Session {
	return h.chat.Session(middleware.GetUserID(r.Context()))
}

// ListMessages returns the conversation in ascending order.
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.session(r).History(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load messages", r))
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

// SendMessage overwrites the draft with whatever the body carries and runs a
// turn from it. A request rejected because a turn is running leaves the
// draft alone.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	turn, err := h.session(r).SubmitWith(r.Context(), req.Message, req.ImageURL)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, turn)
}

func (h *ChatHandler) ClearMessages(w http.ResponseWriter, r *http.Request) {
	if err := h.session(r).ClearHistory(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to clear history", r))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session(r).Status())
}

func (h *ChatHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, draftResponse(h.session(r).Draft()))
}

func (h *ChatHandler) SetDraftText(w http.ResponseWriter, r *http.Request) {
	var req models.DraftTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	sess := h.session(r)
	sess.SetText(req.Text)
	writeJSON(w, http.StatusOK, draftResponse(sess.Draft()))
}

func (h *ChatHandler) StageImage(w http.ResponseWriter, r *http.Request) {
	var req models.StageImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	sess := h.session(r)
	if err := sess.StageImage(r.Context(), req.ImageURL); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draftResponse(sess.Draft()))
}

func (h *ChatHandler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	sess.RemoveImage()
	writeJSON(w, http.StatusOK, draftResponse(sess.Draft()))
}

func draftResponse(d services.DraftSnapshot) models.DraftResponse {
	return models.DraftResponse{
		Text:     d.Text,
		ImageURL: d.Image,
		Owner:    string(d.Owner),
	}
}
