// Package session tracks the seven-phase lesson lifecycle.
package session

import "github.com/verbalearn/tutorcore/internal/types"

// AdvanceThresholds holds the minimum message counts for auto-advance out of
// each non-terminal phase.
type AdvanceThresholds struct {
	Greeting   int
	Rapport    int
	Assessment int
	Teaching   int
	Practice   int
	Feedback   int
}

// DefaultThresholds returns the standard auto-advance thresholds.
func DefaultThresholds() AdvanceThresholds {
	return AdvanceThresholds{
		Greeting:   2,
		Rapport:    4,
		Assessment: 6,
		Teaching:   8,
		Practice:   12,
		Feedback:   15,
	}
}

// StateMachine advances lesson phases. Transitions are monotonic forward
// only; closure absorbs further advances.
type StateMachine struct {
	thresholds AdvanceThresholds
}

// NewStateMachine returns a StateMachine with the given thresholds.
func NewStateMachine(thresholds AdvanceThresholds) *StateMachine {
	return &StateMachine{thresholds: thresholds}
}

// NextPhase returns the phase after p. Closure returns itself.
func NextPhase(p types.LessonPhase) types.LessonPhase {
	idx := p.Index()
	if idx < 0 || idx >= len(types.PhaseOrder)-1 {
		return types.PhaseClosure
	}
	return types.PhaseOrder[idx+1]
}

// AdvancePhase moves the session one phase forward and recomputes progress.
// Idempotent once the session reaches closure.
func (s *StateMachine) AdvancePhase(sess *types.TutorSession) types.LessonPhase {
	if sess.Phase == types.PhaseClosure {
		return sess.Phase
	}
	sess.Phase = NextPhase(sess.Phase)
	sess.Progress = ProgressFor(sess.Phase)
	return sess.Phase
}

// ShouldAutoAdvance reports whether the session has accumulated enough turns
// to move past its current phase. Pure over phase and messageCount.
func (s *StateMachine) ShouldAutoAdvance(phase types.LessonPhase, messageCount int) bool {
	switch phase {
	case types.PhaseGreeting:
		return messageCount >= s.thresholds.Greeting
	case types.PhaseRapport:
		return messageCount >= s.thresholds.Rapport
	case types.PhaseAssessment:
		return messageCount >= s.thresholds.Assessment
	case types.PhaseTeaching:
		return messageCount >= s.thresholds.Teaching
	case types.PhasePractice:
		return messageCount >= s.thresholds.Practice
	case types.PhaseFeedback:
		return messageCount >= s.thresholds.Feedback
	default:
		return false
	}
}

// ProgressFor maps a phase to lesson progress in percent.
func ProgressFor(phase types.LessonPhase) int {
	idx := phase.Index()
	if idx < 0 {
		return 0
	}
	return idx * 100 / (len(types.PhaseOrder) - 1)
}
