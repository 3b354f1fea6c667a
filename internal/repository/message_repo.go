package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"gemchat-backend/internal/models"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// List returns the user's messages oldest first. seq breaks created_at ties
// so the result always matches append order.
func (r *MessageRepo) List(ctx context.Context, userID uuid.UUID) ([]*models.Message, error) {
	if userID == uuid.Nil {
		return []*models.Message{}, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT id, user_id, content, is_ai, image_url, created_at
		FROM messages WHERE user_id = $1 ORDER BY created_at ASC, seq ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &m.IsFromAssistant, &m.ImageURL, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// Append inserts a message. created_at never goes backwards for a user even
// if the database clock does.
func (r *MessageRepo) Append(ctx context.Context, userID uuid.UUID, content string, isFromAssistant bool, imageURL *string) (*models.Message, error) {
	if userID == uuid.Nil {
		return nil, nil
	}

	m := &models.Message{
		ID:              uuid.New(),
		UserID:          userID,
		Content:         content,
		IsFromAssistant: isFromAssistant,
		ImageURL:        imageURL,
	}

	query := `INSERT INTO messages (id, user_id, content, is_ai, image_url, created_at)
		VALUES ($1, $2, $3, $4, $5,
			GREATEST(NOW(), COALESCE((SELECT MAX(created_at) FROM messages WHERE user_id = $2), NOW())))
		RETURNING created_at`

	if err := r.pool.QueryRow(ctx, query, m.ID, m.UserID, m.Content, m.IsFromAssistant, m.ImageURL).Scan(&m.CreatedAt); err != nil {
		return nil, err
	}

	return m, nil
}

func (r *MessageRepo) ClearAll(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return nil
	}
	_, err := r.pool.Exec(ctx, "DELETE FROM messages WHERE user_id = $1", userID)
	return err
}
