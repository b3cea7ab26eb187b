package types

// ConfidenceLevel buckets a detector's confidence score.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// LanguageSignals is the multi-signal breakdown behind a language detection.
type LanguageSignals struct {
	ScriptRatio        float64 `json:"script_ratio"`
	WordOrderScore     float64 `json:"word_order_score"`
	StatisticalScore   float64 `json:"statistical_score"`
	HistoryConsistency float64 `json:"history_consistency"`
}

// LanguageDetection is the language extractor output.
type LanguageDetection struct {
	Language        string          `json:"language"`
	Confidence      float64         `json:"confidence"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
	Signals         LanguageSignals `json:"signals"`
}

// Learner emotion labels, a closed set.
const (
	EmotionFrustrated = "frustrated"
	EmotionConfused   = "confused"
	EmotionEngaged    = "engaged"
	EmotionBored      = "bored"
	EmotionConfident  = "confident"
	EmotionAnxious    = "anxious"
	EmotionNeutral    = "neutral"
)

// EmotionDetection is the emotion extractor output.
type EmotionDetection struct {
	Emotion         string  `json:"emotion"`
	Confidence      float64 `json:"confidence"`
	DetectionMethod string  `json:"detection_method"`
}

// Intent labels, a closed taxonomy.
const (
	IntentExplain      = "explain"
	IntentHint         = "hint"
	IntentSubmitAnswer = "submit_answer"
	IntentSimplify     = "simplify"
	IntentFrustration  = "frustration"
	IntentCelebration  = "celebration"
	IntentGeneral      = "general"
)

// IntentDetection is the intent classifier output.
type IntentDetection struct {
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities,omitempty"`
}
