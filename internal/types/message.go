package types

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageMetadata is per-message classification and billing detail.
type MessageMetadata struct {
	Intent           string             `json:"intent,omitempty"`
	Emotion          string             `json:"emotion,omitempty"`
	DetectedLanguage string             `json:"detected_language,omitempty"`
	Model            string             `json:"model,omitempty"`
	Tier             string             `json:"tier,omitempty"`
	Cost             float64            `json:"cost,omitempty"`
	CacheHit         bool               `json:"cache_hit,omitempty"`
	Validation       map[string]float64 `json:"validation,omitempty"`
}

// Message is one entry in the append-only chat ledger.
type Message struct {
	ID        string          `json:"id"`
	ChatID    string          `json:"chat_id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Metadata  MessageMetadata `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}
