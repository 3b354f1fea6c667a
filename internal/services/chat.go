package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gemchat-backend/internal/models"
	"gemchat-backend/internal/transcription"
)

// MessageStore persists messages per user. A nil user id makes every call a
// no-op.
type MessageStore interface {
	List(ctx context.Context, userID uuid.UUID) ([]*models.Message, error)
	Append(ctx context.Context, userID uuid.UUID, content string, isFromAssistant bool, imageURL *string) (*models.Message, error)
	ClearAll(ctx context.Context, userID uuid.UUID) error
}

// ModelRelay returns the model's reply to a single utterance.
type ModelRelay interface {
	Send(ctx context.Context, text string, imageURL *string) (string, error)
}

// EventPublisher pushes UI events to a user's open sockets. Delivery is
// best effort.
type EventPublisher interface {
	Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage)
}

type ChatService struct {
	store         MessageStore
	relay         ModelRelay
	events        EventPublisher
	speech        transcription.Engine
	maxImageBytes int
	log           *zap.Logger
	now           func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewChatService wires the turn flow. speech may be nil when no recognition
// engine is available.
func NewChatService(store MessageStore, relay ModelRelay, events EventPublisher, speech transcription.Engine, maxImageBytes int, log *zap.Logger) *ChatService {
	return &ChatService{
		store:         store,
		relay:         relay,
		events:        events,
		speech:        speech,
		maxImageBytes: maxImageBytes,
		log:           log,
		now:           time.Now,
		sessions:      make(map[uuid.UUID]*Session),
	}
}

// Session returns the user's conversation session, creating it on first use.
func (s *ChatService) Session(userID uuid.UUID) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		sess.touch()
		return sess
	}

	sess := &Session{
		userID: userID,
		svc:    s,
		log:    s.log.With(zap.String("user_id", userID.String())),
		speech: transcription.NewSource(s.speech, s.log),
	}
	sess.speech.OnTranscript(sess.applyTranscript)
	sess.speech.OnStateChange(sess.publishListening)
	sess.touch()
	s.sessions[userID] = sess
	return sess
}

// EvictIdle drops sessions unused for longer than maxIdle, together with
// their draft and cached history. Sessions with a turn in flight, an
// attached socket or an active recognition run are kept.
func (s *ChatService) EvictIdle(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle).UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for userID, sess := range s.sessions {
		if sess.lastUsed.Load() > cutoff || sess.InFlight() || sess.refs.Load() > 0 || sess.speech.Listening() {
			continue
		}
		delete(s.sessions, userID)
		evicted++
	}
	return evicted
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (s *ChatService) RunEviction(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(maxIdle); n > 0 {
				s.log.Debug("evicted idle chat sessions", zap.Int("count", n))
			}
		}
	}
}

// Session is one user's conversation: the draft, the transcription source,
// the cached history and the in-flight permit. At most one turn runs at a
// time.
type Session struct {
	userID uuid.UUID
	svc    *ChatService
	log    *zap.Logger

	draft    Draft
	speech   *transcription.Source
	inFlight atomic.Bool
	lastUsed atomic.Int64
	refs     atomic.Int32

	historyMu sync.Mutex
	history   []*models.Message
	loaded    bool
}

func (s *Session) UserID() uuid.UUID { return s.userID }

// Attach pins the session for a long-lived connection until the returned
// release func is called.
func (s *Session) Attach() (release func()) {
	s.refs.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			s.refs.Add(-1)
			s.touch()
		})
	}
}

func (s *Session) touch() { s.lastUsed.Store(s.svc.now().UnixNano()) }

func (s *Session) Speech() *transcription.Source { return s.speech }

func (s *Session) InFlight() bool { return s.inFlight.Load() }

func (s *Session) Status() models.ChatStatus {
	return models.ChatStatus{
		InFlight:        s.InFlight(),
		Listening:       s.speech.Listening(),
		SpeechSupported: s.speech.Supported(),
	}
}

func (s *Session) Draft() DraftSnapshot { return s.draft.Snapshot() }

// SetText records keyboard input.
func (s *Session) SetText(text string) {
	s.draft.SetText(text)
	s.publishDraft(context.Background())
}

// StageImage validates and stages an image data URI. Oversized images are
// refused with their own notification and never reach the store or relay.
func (s *Session) StageImage(ctx context.Context, dataURI string) error {
	size, err := DecodedImageSize(dataURI)
	if err != nil {
		return err
	}
	if s.svc.maxImageBytes > 0 && size > s.svc.maxImageBytes {
		s.notify(ctx, models.Notification{
			Title:       "File too large",
			Description: fmt.Sprintf("Please select an image smaller than %s", formatMiB(s.svc.maxImageBytes)),
			Variant:     "destructive",
		})
		return ErrImageTooLarge
	}
	s.draft.SetImage(dataURI)
	s.publishDraft(ctx)
	return nil
}

func (s *Session) RemoveImage() {
	s.draft.RemoveImage()
	s.publishDraft(context.Background())
}

// Submit runs one turn from the current draft:
//
//  1. refuse when a turn is already running or the draft is empty
//  2. persist the user message
//  3. clear the draft and transcript
//  4. ask the relay for a reply
//  5. persist the assistant message
//
// Any failure in 2, 4 or 5 produces exactly one notification. The in-flight
// permit is always released. On a step 2 failure the draft is left intact.
func (s *Session) Submit(ctx context.Context) (*models.TurnResponse, error) {
	return s.SubmitWith(ctx, nil, nil)
}

// SubmitWith takes the in-flight permit, then overwrites the draft with the
// non-nil arguments and runs the turn. An empty imageURL removes the staged
// image. A rejected call leaves the draft untouched.
func (s *Session) SubmitWith(ctx context.Context, text, imageURL *string) (*models.TurnResponse, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrTurnInFlight
	}

	if text != nil {
		s.SetText(*text)
	}
	if imageURL != nil {
		if *imageURL == "" {
			s.RemoveImage()
		} else if err := s.StageImage(ctx, *imageURL); err != nil {
			s.inFlight.Store(false)
			return nil, err
		}
	}

	return s.runTurn(ctx)
}

// runTurn expects the caller to hold the in-flight permit.
func (s *Session) runTurn(ctx context.Context) (*models.TurnResponse, error) {
	snap := s.draft.Snapshot()
	text := strings.TrimSpace(snap.Text)
	if text == "" && snap.Image == nil {
		s.inFlight.Store(false)
		return nil, ErrEmptyTurn
	}

	s.publishTurnState(ctx, true)
	defer func() {
		s.inFlight.Store(false)
		s.publishTurnState(context.WithoutCancel(ctx), false)
	}()

	userMsg, err := s.svc.store.Append(ctx, s.userID, text, false, snap.Image)
	if err != nil {
		s.log.Error("Error saving message", zap.Error(err))
		s.notifyError(ctx, "Failed to send message")
		return nil, &PersistError{Err: err}
	}
	s.record(ctx, userMsg)

	if s.draft.ClearSubmitted(snap.Revision) {
		s.publishDraft(ctx)
	}
	s.speech.Reset()

	reply, err := s.svc.relay.Send(ctx, text, snap.Image)
	if err != nil {
		s.notifyError(ctx, errorDescription(err))
		return &models.TurnResponse{UserMessage: userMsg}, &RelayError{Err: err}
	}

	aiMsg, err := s.svc.store.Append(ctx, s.userID, reply, true, nil)
	if err != nil {
		s.log.Error("Error saving message", zap.Error(err))
		s.notifyError(ctx, "Failed to send message")
		return &models.TurnResponse{UserMessage: userMsg}, &PersistError{Err: err}
	}
	s.record(ctx, aiMsg)

	return &models.TurnResponse{UserMessage: userMsg, AssistantMessage: aiMsg}, nil
}

// History returns the conversation, loading it from the store on first use.
func (s *Session) History(ctx context.Context) ([]*models.Message, error) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	if !s.loaded {
		msgs, err := s.svc.store.List(ctx, s.userID)
		if err != nil {
			s.log.Error("Error loading messages", zap.Error(err))
			return nil, err
		}
		s.history = msgs
		s.loaded = true
	}

	out := make([]*models.Message, len(s.history))
	copy(out, s.history)
	return out, nil
}

// ClearHistory deletes every message of the user.
func (s *Session) ClearHistory(ctx context.Context) error {
	if err := s.svc.store.ClearAll(ctx, s.userID); err != nil {
		s.log.Error("Error clearing history", zap.Error(err))
		s.notifyError(ctx, "Failed to clear history")
		return err
	}

	s.historyMu.Lock()
	s.history = []*models.Message{}
	s.loaded = true
	s.historyMu.Unlock()

	s.publish(ctx, models.WSMessage{
		Type:    models.EventMessagesCleared,
		Payload: models.ClearedEvent{UserID: s.userID},
	})
	return nil
}

func (s *Session) record(ctx context.Context, m *models.Message) {
	if m == nil {
		return
	}

	s.historyMu.Lock()
	if s.loaded {
		s.history = append(s.history, m)
	}
	s.historyMu.Unlock()

	s.publish(ctx, models.WSMessage{Type: models.EventMessageCreated, Payload: m})
}

func (s *Session) applyTranscript(text string) {
	s.draft.ApplyTranscript(text)
	s.publishDraft(context.Background())
	s.publish(context.Background(), models.WSMessage{
		Type:    models.EventTranscript,
		Payload: models.TranscriptEvent{Text: text, Listening: s.speech.Listening()},
	})
}

func (s *Session) publishListening(listening bool) {
	s.publish(context.Background(), models.WSMessage{
		Type:    models.EventTranscript,
		Payload: models.TranscriptEvent{Text: s.speech.Transcript(), Listening: listening},
	})
}

func (s *Session) publishDraft(ctx context.Context) {
	d := s.draft.Snapshot()
	s.publish(ctx, models.WSMessage{
		Type:    models.EventDraft,
		Payload: models.DraftResponse{Text: d.Text, ImageURL: d.Image, Owner: string(d.Owner)},
	})
}

func (s *Session) publishTurnState(ctx context.Context, inFlight bool) {
	s.publish(ctx, models.WSMessage{
		Type:    models.EventTurnState,
		Payload: models.TurnState{InFlight: inFlight},
	})
}

func (s *Session) notifyError(ctx context.Context, description string) {
	s.notify(ctx, models.Notification{
		Title:       "Error",
		Description: description,
		Variant:     "destructive",
	})
}

func (s *Session) notify(ctx context.Context, n models.Notification) {
	s.publish(ctx, models.WSMessage{Type: models.EventNotification, Payload: n})
}

func (s *Session) publish(ctx context.Context, msg models.WSMessage) {
	if s.svc.events == nil {
		return
	}
	s.svc.events.Publish(ctx, s.userID, msg)
}

func errorDescription(err error) string {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Error()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Failed to send message"
}

func formatMiB(n int) string {
	const mib = 1024 * 1024
	if n%mib == 0 {
		return fmt.Sprintf("%dMB", n/mib)
	}
	return fmt.Sprintf("%.1fMB", float64(n)/mib)
}
