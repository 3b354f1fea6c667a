package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"gemchat-backend/internal/models"
)

// MemoryMessageRepo keeps messages in process memory. Used for local runs
// and tests.
type MemoryMessageRepo struct {
	mu       sync.RWMutex
	messages map[uuid.UUID][]*models.Message
	now      func() time.Time
}

func NewMemoryMessageRepo() *MemoryMessageRepo {
	return &MemoryMessageRepo{
		messages: make(map[uuid.UUID][]*models.Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryMessageRepo) List(_ context.Context, userID uuid.UUID) ([]*models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.messages[userID]
	out := make([]*models.Message, len(stored))
	for i, m := range stored {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

func (r *MemoryMessageRepo) Append(_ context.Context, userID uuid.UUID, content string, isFromAssistant bool, imageURL *string) (*models.Message, error) {
	if userID == uuid.Nil {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	createdAt := r.now()
	if existing := r.messages[userID]; len(existing) > 0 {
		if last := existing[len(existing)-1].CreatedAt; createdAt.Before(last) {
			createdAt = last
		}
	}

	m := &models.Message{
		ID:              uuid.New(),
		UserID:          userID,
		Content:         content,
		IsFromAssistant: isFromAssistant,
		ImageURL:        imageURL,
		CreatedAt:       createdAt,
	}
	r.messages[userID] = append(r.messages[userID], m)

	cp := *m
	return &cp, nil
}

func (r *MemoryMessageRepo) ClearAll(_ context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return nil
	}

	r.mu.Lock()
	delete(r.messages, userID)
	r.mu.Unlock()
	return nil
}
