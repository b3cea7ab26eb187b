package extract

import (
	"context"
	"strings"

	"github.com/verbalearn/tutorcore/internal/types"
)

// Detection method tags on EmotionDetection.
const (
	MethodKeyword     = "keyword"
	MethodPunctuation = "punctuation"
	MethodHistory     = "history"
	MethodDefault     = "default"
)

// EmotionDetector classifies the learner's emotional state from lexical and
// punctuation cues, smoothed by recent history.
type EmotionDetector struct{}

// NewEmotionDetector returns an EmotionDetector.
func NewEmotionDetector() *EmotionDetector {
	return &EmotionDetector{}
}

var emotionKeywords = map[string][]string{
	types.EmotionFrustrated: {"frustrated", "annoying", "stuck", "give up", "hate this", "ugh", "impossible"},
	types.EmotionConfused:   {"confused", "don't understand", "dont understand", "lost", "makes no sense", "samajh nahi", "what do you mean"},
	types.EmotionEngaged:    {"interesting", "cool", "tell me more", "what about", "and then", "awesome"},
	types.EmotionBored:      {"boring", "whatever", "fine", "can we move on", "this again"},
	types.EmotionConfident:  {"got it", "easy", "i know", "makes sense", "understood", "samajh gaya"},
	types.EmotionAnxious:    {"worried", "nervous", "exam", "scared", "afraid", "test tomorrow"},
}

// Classify returns one label from the closed emotion set plus the method that
// produced it. Falls back to neutral, never blocks the turn.
func (d *EmotionDetector) Classify(ctx context.Context, text string, sctx *types.SessionContext) types.EmotionDetection {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return types.EmotionDetection{Emotion: types.EmotionNeutral, Confidence: 0.3, DetectionMethod: MethodDefault}
	}

	for _, emotion := range []string{
		types.EmotionFrustrated,
		types.EmotionConfused,
		types.EmotionAnxious,
		types.EmotionConfident,
		types.EmotionBored,
		types.EmotionEngaged,
	} {
		for _, kw := range emotionKeywords[emotion] {
			if strings.Contains(lowered, kw) {
				return types.EmotionDetection{Emotion: emotion, Confidence: 0.85, DetectionMethod: MethodKeyword}
			}
		}
	}

	if strings.Count(lowered, "?") >= 2 {
		return types.EmotionDetection{Emotion: types.EmotionConfused, Confidence: 0.6, DetectionMethod: MethodPunctuation}
	}
	if strings.Contains(lowered, "!") {
		return types.EmotionDetection{Emotion: types.EmotionEngaged, Confidence: 0.55, DetectionMethod: MethodPunctuation}
	}

	// A short reply during a frustrated streak usually stays frustrated.
	if sctx != nil && len(sctx.EmotionalHistory) >= 2 {
		last := sctx.EmotionalHistory[len(sctx.EmotionalHistory)-1]
		prev := sctx.EmotionalHistory[len(sctx.EmotionalHistory)-2]
		if last == prev && last != types.EmotionNeutral && len(lowered) < 20 {
			return types.EmotionDetection{Emotion: last, Confidence: 0.5, DetectionMethod: MethodHistory}
		}
	}

	return types.EmotionDetection{Emotion: types.EmotionNeutral, Confidence: 0.4, DetectionMethod: MethodDefault}
}
