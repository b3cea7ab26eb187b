// Package extract holds the stateless classifiers that run ahead of
// generation: language, emotion, and intent.
package extract

import (
	"context"
	"strings"
	"unicode"

	"github.com/verbalearn/tutorcore/internal/types"
)

// Supported language labels.
const (
	LangEnglish = "en"
	LangHindi   = "hi"
	LangSpanish = "es"
	LangFrench  = "fr"
)

// LanguageDetector fuses script, word-order, statistical, and history
// signals into one detection. Degrades to statistical-only without history.
type LanguageDetector struct{}

// NewLanguageDetector returns a LanguageDetector.
func NewLanguageDetector() *LanguageDetector {
	return &LanguageDetector{}
}

var hindiStopwords = map[string]bool{
	"hai": true, "hain": true, "kya": true, "aur": true, "nahi": true,
	"mujhe": true, "kaise": true, "karo": true, "samajh": true, "matlab": true,
	"accha": true, "theek": true, "bata": true, "batao": true, "mera": true,
}

var spanishStopwords = map[string]bool{
	"el": true, "la": true, "los": true, "las": true, "una": true, "uno": true,
	"que": true, "como": true, "por": true, "para": true, "esta": true,
	"pero": true, "cuando": true, "donde": true, "puedes": true, "explicar": true,
}

var frenchStopwords = map[string]bool{
	"le": true, "la": true, "les": true, "une": true, "des": true, "est": true,
	"que": true, "pourquoi": true, "comment": true, "avec": true, "dans": true,
	"pas": true, "vous": true, "je": true, "expliquer": true,
}

var englishStopwords = map[string]bool{
	"the": true, "is": true, "are": true, "what": true, "how": true, "why": true,
	"can": true, "you": true, "me": true, "this": true, "that": true, "please": true,
	"explain": true, "help": true, "understand": true, "do": true, "it": true,
}

// Hindi SOV word order leaves verb-like particles at the sentence tail.
var hindiTailMarkers = []string{"hai", "hain", "tha", "thi", "karo", "do", "batao"}

// Classify detects the message language. The context's language history, when
// present, contributes a consistency signal.
func (d *LanguageDetector) Classify(ctx context.Context, text string, sctx *types.SessionContext) types.LanguageDetection {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return neutralLanguage()
	}

	signals := types.LanguageSignals{}

	devanagari, latin, total := scriptCounts(trimmed)
	if total > 0 {
		signals.ScriptRatio = float64(devanagari) / float64(total)
	}
	if signals.ScriptRatio > 0.3 {
		// Native Devanagari text is unambiguous.
		return types.LanguageDetection{
			Language:        LangHindi,
			Confidence:      0.95,
			ConfidenceLevel: types.ConfidenceHigh,
			Signals:         signals,
		}
	}
	if latin == 0 {
		return neutralLanguage()
	}

	words := tokenize(trimmed)
	signals.WordOrderScore = wordOrderScore(words)
	scores := map[string]float64{
		LangEnglish: stopwordRatio(words, englishStopwords),
		LangHindi:   stopwordRatio(words, hindiStopwords),
		LangSpanish: stopwordRatio(words, spanishStopwords),
		LangFrench:  stopwordRatio(words, frenchStopwords),
	}
	scores[LangHindi] += signals.WordOrderScore * 0.5

	best, bestScore := LangEnglish, 0.0
	for lang, score := range scores {
		if score > bestScore {
			best, bestScore = lang, score
		}
	}
	signals.StatisticalScore = bestScore

	confidence := 0.4 + bestScore
	if sctx != nil && len(sctx.LanguageHistory) > 0 {
		signals.HistoryConsistency = historyConsistency(sctx.LanguageHistory, best)
		confidence += signals.HistoryConsistency * 0.2
	}
	if confidence > 1 {
		confidence = 1
	}

	return types.LanguageDetection{
		Language:        best,
		Confidence:      confidence,
		ConfidenceLevel: confidenceLevel(confidence),
		Signals:         signals,
	}
}

func neutralLanguage() types.LanguageDetection {
	return types.LanguageDetection{
		Language:        LangEnglish,
		Confidence:      0.3,
		ConfidenceLevel: types.ConfidenceLow,
	}
}

func scriptCounts(text string) (devanagari, latin, total int) {
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		total++
		switch {
		case unicode.Is(unicode.Devanagari, r):
			devanagari++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	return devanagari, latin, total
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func stopwordRatio(words []string, stopwords map[string]bool) float64 {
	if len(words) == 0 {
		return 0
	}
	hits := 0
	for _, w := range words {
		if stopwords[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}

func wordOrderScore(words []string) float64 {
	if len(words) < 3 {
		return 0
	}
	tail := words[len(words)-1]
	for _, marker := range hindiTailMarkers {
		if tail == marker {
			return 1
		}
	}
	return 0
}

func historyConsistency(history []string, lang string) float64 {
	recent := history
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	matches := 0
	for _, h := range recent {
		if h == lang {
			matches++
		}
	}
	return float64(matches) / float64(len(recent))
}

func confidenceLevel(confidence float64) types.ConfidenceLevel {
	switch {
	case confidence >= 0.75:
		return types.ConfidenceHigh
	case confidence >= 0.5:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}
