package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/verbalearn/tutorcore/internal/types"
)

// IntentClassifier maps learner text onto the closed intent taxonomy and
// extracts submitted-answer entities.
type IntentClassifier struct{}

// NewIntentClassifier returns an IntentClassifier.
func NewIntentClassifier() *IntentClassifier {
	return &IntentClassifier{}
}

var intentKeywords = []struct {
	intent   string
	keywords []string
}{
	{types.IntentFrustration, []string{"give up", "i quit", "this is stupid", "i can't do this", "so frustrating"}},
	{types.IntentCelebration, []string{"i did it", "finally", "yes!", "nailed it", "solved it"}},
	{types.IntentSimplify, []string{"simpler", "simplify", "easier way", "too complicated", "in simple words", "like i'm five"}},
	{types.IntentHint, []string{"hint", "clue", "nudge", "don't tell me the answer", "small tip"}},
	{types.IntentSubmitAnswer, []string{"the answer is", "my answer", "i got", "is it", "it equals", "i think it's"}},
	{types.IntentExplain, []string{"explain", "what is", "what are", "how does", "why does", "tell me about", "describe"}},
}

// answerPattern captures a numeric answer with an optional unit,
// e.g. "42", "9.8 m/s^2", "15 kg".
var answerPattern = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*([a-zA-Z/^0-9]*)`)

// Classify returns the intent label plus free-form entities.
func (c *IntentClassifier) Classify(ctx context.Context, text string, sctx *types.SessionContext) types.IntentDetection {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return types.IntentDetection{Intent: types.IntentGeneral, Confidence: 0.3}
	}

	for _, entry := range intentKeywords {
		for _, kw := range entry.keywords {
			if !strings.Contains(lowered, kw) {
				continue
			}
			det := types.IntentDetection{Intent: entry.intent, Confidence: 0.8}
			if entry.intent == types.IntentSubmitAnswer {
				det.Entities = extractAnswer(lowered, kw)
			}
			return det
		}
	}

	return types.IntentDetection{Intent: types.IntentGeneral, Confidence: 0.5}
}

func extractAnswer(text, trigger string) map[string]string {
	idx := strings.Index(text, trigger)
	if idx < 0 {
		return nil
	}
	rest := text[idx+len(trigger):]
	match := answerPattern.FindStringSubmatch(rest)
	if match == nil {
		return nil
	}
	entities := map[string]string{"answer_value": match[1]}
	if match[2] != "" {
		entities["answer_unit"] = match[2]
	}
	return entities
}
