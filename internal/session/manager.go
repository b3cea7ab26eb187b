package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/verbalearn/tutorcore/internal/types"
)

// ErrNotFound is returned by explicit status lookups for unknown chats.
var ErrNotFound = errors.New("tutor session not found")

// Repo persists tutor sessions. One active session per chat.
type Repo interface {
	GetByChat(ctx context.Context, chatID string) (*types.TutorSession, error)
	Create(ctx context.Context, sess *types.TutorSession) error
	Update(ctx context.Context, sess *types.TutorSession) error
}

// Manager owns session lifecycle around the state machine.
type Manager struct {
	repo    Repo
	machine *StateMachine
}

// NewManager returns a Manager.
func NewManager(repo Repo, machine *StateMachine) *Manager {
	return &Manager{repo: repo, machine: machine}
}

// GetOrCreate returns the active session for the chat, initializing a new
// one at greeting when none exists.
func (m *Manager) GetOrCreate(ctx context.Context, chatID, userID string, profile types.ProfileSnapshot) (*types.TutorSession, error) {
	sess, err := m.repo.GetByChat(ctx, chatID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess != nil {
		return sess, nil
	}

	sess = &types.TutorSession{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		UserID:    userID,
		Phase:     types.PhaseGreeting,
		Progress:  0,
		PersonaID: "maya",
		Level:     profile.Level,
		Profile:   profile,
	}
	if err := m.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	slog.Info("tutor session created", "chat_id", chatID, "user_id", userID)
	return sess, nil
}

// Lookup returns the session for a status query. Missing sessions are a hard
// ErrNotFound here, unlike GetOrCreate.
func (m *Manager) Lookup(ctx context.Context, chatID string) (*types.TutorSession, error) {
	sess, err := m.repo.GetByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	return sess, nil
}

// MaybeAdvance advances the session when the turn count crosses the current
// phase threshold. Returns the new phase and whether a transition happened.
func (m *Manager) MaybeAdvance(ctx context.Context, sess *types.TutorSession, messageCount int) (types.LessonPhase, bool, error) {
	if !m.machine.ShouldAutoAdvance(sess.Phase, messageCount) {
		return sess.Phase, false, nil
	}
	prev := sess.Phase
	next := m.machine.AdvancePhase(sess)
	if next == prev {
		return next, false, nil
	}
	if err := m.repo.Update(ctx, sess); err != nil {
		return next, true, fmt.Errorf("failed to persist phase change: %w", err)
	}
	slog.Info("lesson phase advanced", "chat_id", sess.ChatID, "from", prev, "to", next)
	return next, true, nil
}

// RecordCheckpoint marks a checkpoint pass and persists the metrics.
func (m *Manager) RecordCheckpoint(ctx context.Context, sess *types.TutorSession, concept string) error {
	sess.Metrics.CheckpointsPassed++
	if concept != "" {
		sess.Metrics.StrongConcepts = appendUnique(sess.Metrics.StrongConcepts, concept)
	}
	if err := m.repo.Update(ctx, sess); err != nil {
		return fmt.Errorf("failed to persist checkpoint: %w", err)
	}
	return nil
}

// RecordMisconception tags a topic the learner is struggling with.
func (m *Manager) RecordMisconception(ctx context.Context, sess *types.TutorSession, topic string) error {
	if topic == "" {
		return nil
	}
	sess.Metrics.Misconceptions = appendUnique(sess.Metrics.Misconceptions, topic)
	if err := m.repo.Update(ctx, sess); err != nil {
		return fmt.Errorf("failed to persist misconception: %w", err)
	}
	return nil
}

func appendUnique(list []string, item string) []string {
	for _, v := range list {
		if v == item {
			return list
		}
	}
	return append(list, item)
}
