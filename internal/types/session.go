package types

import "time"

// LessonPhase is one of the seven ordered lesson stages.
type LessonPhase string

const (
	PhaseGreeting   LessonPhase = "greeting"
	PhaseRapport    LessonPhase = "rapport"
	PhaseAssessment LessonPhase = "assessment"
	PhaseTeaching   LessonPhase = "teaching"
	PhasePractice   LessonPhase = "practice"
	PhaseFeedback   LessonPhase = "feedback"
	PhaseClosure    LessonPhase = "closure"
)

// PhaseOrder lists phases in lesson order. Closure is terminal.
var PhaseOrder = []LessonPhase{
	PhaseGreeting,
	PhaseRapport,
	PhaseAssessment,
	PhaseTeaching,
	PhasePractice,
	PhaseFeedback,
	PhaseClosure,
}

// Index returns the position of the phase in PhaseOrder, or -1.
func (p LessonPhase) Index() int {
	for i, phase := range PhaseOrder {
		if phase == p {
			return i
		}
	}
	return -1
}

// AdaptiveMetrics tracks what the learner struggles with and masters.
type AdaptiveMetrics struct {
	Misconceptions    []string `json:"misconceptions"`
	StrongConcepts    []string `json:"strong_concepts"`
	CheckpointsPassed int      `json:"checkpoints_passed"`
}

// ProfileSnapshot is the learner profile captured at session creation.
type ProfileSnapshot struct {
	Name              string `json:"name"`
	Level             string `json:"level"`
	PreferredLanguage string `json:"preferred_language"`
	LearningStyle     string `json:"learning_style"`
}

// TutorSession is the persisted lesson state for one chat.
// Created on the first turn, mutated by advance/checkpoint, never deleted.
type TutorSession struct {
	ID        string          `json:"id"`
	ChatID    string          `json:"chat_id"`
	UserID    string          `json:"user_id"`
	Phase     LessonPhase     `json:"phase"`
	Progress  int             `json:"progress"`
	PersonaID string          `json:"persona_id"`
	Level     string          `json:"level"`
	Subject   string          `json:"subject"`
	Topic     string          `json:"topic"`
	Metrics   AdaptiveMetrics `json:"metrics"`
	Profile   ProfileSnapshot `json:"profile"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SessionContext is the rolling per-(user,chat) detection history.
// Ephemeral: reconstructable from the session and message ledger.
type SessionContext struct {
	UserID           string    `json:"user_id"`
	ChatID           string    `json:"chat_id"`
	LanguageHistory  []string  `json:"language_history"`
	EmotionalHistory []string  `json:"emotional_history"`
	MessageCount     int       `json:"message_count"`
	AvgResponseTime  float64   `json:"avg_response_time"`
	Phase            string    `json:"phase"`
	Subject          string    `json:"subject"`
	Topic            string    `json:"topic"`
	UpdatedAt        time.Time `json:"updated_at"`
}
