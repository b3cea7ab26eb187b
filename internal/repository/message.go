package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/verbalearn/tutorcore/internal/types"
)

// messageModel maps to the messages table. The ledger is append-only.
type messageModel struct {
	ID        string `gorm:"primaryKey"`
	ChatID    string `gorm:"index"`
	Role      string
	Content   string
	Metadata  []byte `gorm:"type:jsonb"`
	CreatedAt time.Time
}

func (messageModel) TableName() string {
	return "messages"
}

// MessageRepo accesses the message ledger.
type MessageRepo struct {
	db *gorm.DB
}

// NewMessageRepo returns a MessageRepo.
func NewMessageRepo(db *gorm.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Add appends a message. Assistant messages must carry a non-negative cost.
func (r *MessageRepo) Add(ctx context.Context, msg *types.Message) error {
	if msg.Role == types.RoleAssistant && msg.Metadata.Cost < 0 {
		return fmt.Errorf("assistant message cost must be non-negative, got %f", msg.Metadata.Cost)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal message metadata: %w", err)
	}
	record := messageModel{
		ID:       msg.ID,
		ChatID:   msg.ChatID,
		Role:     msg.Role,
		Content:  msg.Content,
		Metadata: metadata,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	msg.CreatedAt = record.CreatedAt
	return nil
}

// ListByChat returns messages oldest first.
func (r *MessageRepo) ListByChat(ctx context.Context, chatID string, limit int) ([]types.Message, error) {
	var records []messageModel
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	results := make([]types.Message, 0, len(records))
	for _, record := range records {
		msg, err := messageFromModel(record)
		if err != nil {
			return nil, err
		}
		results = append(results, msg)
	}

	// Oldest -> newest
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}

// CountByChat reports the ledger size for phase heuristics.
func (r *MessageRepo) CountByChat(ctx context.Context, chatID string) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("chat_id = ?", chatID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return int(count), nil
}

func messageFromModel(record messageModel) (types.Message, error) {
	msg := types.Message{
		ID:        record.ID,
		ChatID:    record.ChatID,
		Role:      record.Role,
		Content:   record.Content,
		CreatedAt: record.CreatedAt,
	}
	if len(record.Metadata) > 0 {
		if err := json.Unmarshal(record.Metadata, &msg.Metadata); err != nil {
			return types.Message{}, fmt.Errorf("failed to unmarshal message metadata: %w", err)
		}
	}
	return msg, nil
}
