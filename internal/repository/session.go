package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/verbalearn/tutorcore/internal/types"
)

// tutorSessionModel maps to the tutor_sessions table.
type tutorSessionModel struct {
	ID        string `gorm:"primaryKey"`
	ChatID    string `gorm:"uniqueIndex"`
	UserID    string
	Phase     string
	Progress  int
	PersonaID string
	Level     string
	Subject   string
	Topic     string
	Metrics   []byte `gorm:"type:jsonb"`
	Profile   []byte `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (tutorSessionModel) TableName() string {
	return "tutor_sessions"
}

// SessionRepo accesses tutor session rows.
type SessionRepo struct {
	db *gorm.DB
}

// NewSessionRepo returns a SessionRepo.
func NewSessionRepo(db *gorm.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// GetByChat returns the session for the chat, or nil when none exists.
func (r *SessionRepo) GetByChat(ctx context.Context, chatID string) (*types.TutorSession, error) {
	var record tutorSessionModel
	err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tutor session: %w", err)
	}
	return sessionFromModel(record)
}

// Create inserts a new session.
func (r *SessionRepo) Create(ctx context.Context, sess *types.TutorSession) error {
	record, err := sessionToModel(sess)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to insert tutor session: %w", err)
	}
	sess.CreatedAt = record.CreatedAt
	sess.UpdatedAt = record.UpdatedAt
	return nil
}

// Update persists phase, progress, and metrics changes.
func (r *SessionRepo) Update(ctx context.Context, sess *types.TutorSession) error {
	record, err := sessionToModel(sess)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Model(&tutorSessionModel{}).
		Where("id = ?", sess.ID).
		Updates(map[string]any{
			"phase":    record.Phase,
			"progress": record.Progress,
			"subject":  record.Subject,
			"topic":    record.Topic,
			"metrics":  record.Metrics,
		}).Error; err != nil {
		return fmt.Errorf("failed to update tutor session: %w", err)
	}
	return nil
}

func sessionToModel(sess *types.TutorSession) (*tutorSessionModel, error) {
	metrics, err := json.Marshal(sess.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metrics: %w", err)
	}
	profile, err := json.Marshal(sess.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile: %w", err)
	}
	return &tutorSessionModel{
		ID:        sess.ID,
		ChatID:    sess.ChatID,
		UserID:    sess.UserID,
		Phase:     string(sess.Phase),
		Progress:  sess.Progress,
		PersonaID: sess.PersonaID,
		Level:     sess.Level,
		Subject:   sess.Subject,
		Topic:     sess.Topic,
		Metrics:   metrics,
		Profile:   profile,
	}, nil
}

func sessionFromModel(record tutorSessionModel) (*types.TutorSession, error) {
	sess := &types.TutorSession{
		ID:        record.ID,
		ChatID:    record.ChatID,
		UserID:    record.UserID,
		Phase:     types.LessonPhase(record.Phase),
		Progress:  record.Progress,
		PersonaID: record.PersonaID,
		Level:     record.Level,
		Subject:   record.Subject,
		Topic:     record.Topic,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	if len(record.Metrics) > 0 {
		if err := json.Unmarshal(record.Metrics, &sess.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
	}
	if len(record.Profile) > 0 {
		if err := json.Unmarshal(record.Profile, &sess.Profile); err != nil {
			return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
		}
	}
	return sess, nil
}
