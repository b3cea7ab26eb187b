// Package validate scores generated responses after the fact. Scores are
// logged and attached to the message metadata; they never block delivery.
package validate

import (
	"log/slog"
	"strings"
	"unicode"

	"github.com/verbalearn/tutorcore/internal/types"
)

// Scores are rubric results in [0,1].
type Scores struct {
	Language float64
	Tone     float64
	Safety   float64
	Quality  float64
}

// Overall averages the rubrics.
func (s Scores) Overall() float64 {
	return (s.Language + s.Tone + s.Safety + s.Quality) / 4
}

// Map flattens scores for message metadata.
func (s Scores) Map() map[string]float64 {
	return map[string]float64{
		"language": s.Language,
		"tone":     s.Tone,
		"safety":   s.Safety,
		"quality":  s.Quality,
		"overall":  s.Overall(),
	}
}

// Validator scores responses against language/tone/safety/quality rubrics.
type Validator struct{}

// NewValidator returns a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

var unsafeTerms = []string{
	"kill yourself", "hurt yourself", "you are stupid", "you're stupid",
	"worthless", "hopeless case", "give up on",
}

var acknowledgingTerms = []string{
	"i understand", "i hear you", "that's okay", "no worries", "let's slow down",
	"good question", "that's a common", "don't worry", "totally normal",
}

var dismissiveTerms = []string{
	"obviously", "as i said", "just do it", "it's easy", "trivial",
}

// Validate scores the response for the turn and logs the result.
func (v *Validator) Validate(response, expectedLanguage, learnerEmotion string) Scores {
	scores := Scores{
		Language: v.languageScore(response, expectedLanguage),
		Tone:     v.toneScore(response, learnerEmotion),
		Safety:   v.safetyScore(response),
		Quality:  v.qualityScore(response),
	}

	slog.Info("response validated",
		"language", scores.Language,
		"tone", scores.Tone,
		"safety", scores.Safety,
		"quality", scores.Quality,
		"overall", scores.Overall())
	return scores
}

// languageScore checks the response script against the expected language.
// Romanized replies to a Hindi learner still pass at reduced confidence.
func (v *Validator) languageScore(response, expectedLanguage string) float64 {
	devanagari, total := 0, 0
	for _, r := range response {
		if !unicode.IsLetter(r) {
			continue
		}
		total++
		if unicode.Is(unicode.Devanagari, r) {
			devanagari++
		}
	}
	if total == 0 {
		return 0
	}
	ratio := float64(devanagari) / float64(total)

	switch expectedLanguage {
	case "hi":
		if ratio > 0.3 {
			return 1
		}
		return 0.6 // romanized or mixed reply
	default:
		if ratio > 0.3 {
			return 0.2
		}
		return 1
	}
}

func (v *Validator) toneScore(response, learnerEmotion string) float64 {
	lowered := strings.ToLower(response)

	score := 0.8
	for _, term := range dismissiveTerms {
		if strings.Contains(lowered, term) {
			score -= 0.3
			break
		}
	}

	switch learnerEmotion {
	case types.EmotionFrustrated, types.EmotionAnxious, types.EmotionConfused:
		for _, term := range acknowledgingTerms {
			if strings.Contains(lowered, term) {
				score += 0.2
				break
			}
		}
	default:
		score += 0.1
	}

	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}

func (v *Validator) safetyScore(response string) float64 {
	lowered := strings.ToLower(response)
	for _, term := range unsafeTerms {
		if strings.Contains(lowered, term) {
			return 0
		}
	}
	return 1
}

// qualityScore is a cheap structural heuristic: a spoken-friendly tutoring
// answer is neither one word nor a wall of text.
func (v *Validator) qualityScore(response string) float64 {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return 0
	}
	words := len(strings.Fields(trimmed))
	switch {
	case words < 3:
		return 0.3
	case words > 250:
		return 0.5
	default:
		return 1
	}
}
