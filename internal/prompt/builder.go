// Package prompt assembles the layered system prompt for each turn.
package prompt

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/verbalearn/tutorcore/internal/types"
)

// BuildContext contains all inputs for prompt assembly.
type BuildContext struct {
	Session  *types.TutorSession
	Persona  *types.Persona
	Language types.LanguageDetection
	Emotion  types.EmotionDetection
	Intent   types.IntentDetection
}

// Builder merges phase, persona, profile, and extractor outputs into one
// system prompt.
type Builder struct{}

// NewBuilder creates a prompt Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build renders the system prompt.
func (b *Builder) Build(ctx BuildContext) (string, error) {
	if ctx.Session == nil {
		return "", fmt.Errorf("session is required")
	}
	if ctx.Persona == nil {
		return "", fmt.Errorf("persona is required")
	}

	phase := string(ctx.Session.Phase)
	data := struct {
		Persona         *types.Persona
		Profile         types.ProfileSnapshot
		Phase           string
		PhaseDirective  string
		Subject         string
		Topic           string
		Progress        int
		Language        string
		Emotion         string
		EmotionGuidance string
		Intent          string
		IntentGuidance  string
		Misconceptions  []string
		StrongConcepts  []string
	}{
		Persona:         ctx.Persona,
		Profile:         ctx.Session.Profile,
		Phase:           phase,
		PhaseDirective:  phaseDirectives[phase],
		Subject:         ctx.Session.Subject,
		Topic:           ctx.Session.Topic,
		Progress:        ctx.Session.Progress,
		Language:        languageName(ctx.Language.Language),
		Emotion:         ctx.Emotion.Emotion,
		EmotionGuidance: emotionGuidance[ctx.Emotion.Emotion],
		Intent:          ctx.Intent.Intent,
		IntentGuidance:  intentGuidance[ctx.Intent.Intent],
		Misconceptions:  ctx.Session.Metrics.Misconceptions,
		StrongConcepts:  ctx.Session.Metrics.StrongConcepts,
	}

	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to build prompt: %w", err)
	}
	return buf.String(), nil
}

func languageName(code string) string {
	switch code {
	case "hi":
		return "Hindi (match the learner's script: Devanagari or romanized)"
	case "es":
		return "Spanish"
	case "fr":
		return "French"
	default:
		return "English"
	}
}

func joinStrings(items []string, sep string) string {
	return strings.Join(items, sep)
}
