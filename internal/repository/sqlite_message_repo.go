package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"gemchat-backend/internal/models"
)

// MessageRecord is the gorm row for the local sqlite store.
type MessageRecord struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"index:idx_messages_user_created,priority:1;size:36;not null"`
	Content   string    `gorm:"type:text;not null"`
	IsAI      bool      `gorm:"column:is_ai;not null;default:false"`
	ImageURL  *string   `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index:idx_messages_user_created,priority:2"`
}

func (MessageRecord) TableName() string {
	return "messages"
}

type SQLiteMessageRepo struct {
	db *gorm.DB
}

func NewSQLiteMessageRepo(db *gorm.DB) *SQLiteMessageRepo {
	return &SQLiteMessageRepo{db: db}
}

func (r *SQLiteMessageRepo) List(ctx context.Context, userID uuid.UUID) ([]*models.Message, error) {
	if userID == uuid.Nil {
		return []*models.Message{}, nil
	}

	var records []MessageRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at asc").
		Order("rowid asc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	messages := make([]*models.Message, 0, len(records))
	for i := range records {
		m, err := records[i].toModel()
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (r *SQLiteMessageRepo) Append(ctx context.Context, userID uuid.UUID, content string, isFromAssistant bool, imageURL *string) (*models.Message, error) {
	if userID == uuid.Nil {
		return nil, nil
	}

	record := MessageRecord{
		ID:        uuid.NewString(),
		UserID:    userID.String(),
		Content:   content,
		IsAI:      isFromAssistant,
		ImageURL:  imageURL,
		CreatedAt: time.Now().UTC(),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last MessageRecord
		err := tx.Where("user_id = ?", record.UserID).Order("created_at desc").Take(&last).Error
		switch {
		case err == nil:
			if record.CreatedAt.Before(last.CreatedAt) {
				record.CreatedAt = last.CreatedAt
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, err
	}

	return record.toModel()
}

func (r *SQLiteMessageRepo) ClearAll(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return nil
	}
	return r.db.WithContext(ctx).Where("user_id = ?", userID.String()).Delete(&MessageRecord{}).Error
}

func (rec *MessageRecord) toModel() (*models.Message, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(rec.UserID)
	if err != nil {
		return nil, err
	}
	return &models.Message{
		ID:              id,
		UserID:          userID,
		Content:         rec.Content,
		IsFromAssistant: rec.IsAI,
		ImageURL:        rec.ImageURL,
		CreatedAt:       rec.CreatedAt,
	}, nil
}
