// Package handler exposes the pipeline over the bidirectional voice
// websocket and the plain text chat channel.
package handler

// Voice protocol message types.
const (
	// Client -> server
	TypeAudioChunk = "AUDIO_CHUNK"
	TypeInterrupt  = "INTERRUPT"
	TypePing       = "PING"

	// Server -> client
	TypeTranscription   = "TRANSCRIPTION"
	TypeTTSStart        = "TTS_START"
	TypeTTSChunk        = "TTS_CHUNK"
	TypeTTSEnd          = "TTS_END"
	TypePhaseChange     = "PHASE_CHANGE"
	TypeEmotionDetected = "EMOTION_DETECTED"
	TypeSessionState    = "SESSION_STATE"
	TypeError           = "ERROR"
	TypePong            = "PONG"

	// Text stream frames, shared with the chat channel
	TypeChunk    = "chunk"
	TypeComplete = "complete"
	TypeErrorLC  = "error"
)

// wsMessage is the wire envelope for both directions. Unused fields are
// omitted per message type.
type wsMessage struct {
	Type string `json:"type"`

	// AUDIO_CHUNK / TTS_CHUNK. Seq, Total and Sent are pointers so a
	// zero label still reaches the wire: the first chunk is seq 0 and an
	// immediately interrupted turn reports sent 0.
	Audio      string `json:"audio,omitempty"` // base64
	IsLast     bool   `json:"is_last,omitempty"`
	Seq        *int   `json:"seq,omitempty"`
	Total      *int   `json:"total,omitempty"` // final chunk and TTS_END only
	Compressed bool   `json:"compressed,omitempty"`
	Cached     bool   `json:"cached,omitempty"`
	Sent       *int   `json:"sent,omitempty"` // TTS_END only

	// TRANSCRIPTION / chunk
	Text       string  `json:"text,omitempty"`
	Content    string  `json:"content,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	IsFinal    bool    `json:"is_final,omitempty"`

	// PHASE_CHANGE / SESSION_STATE
	Phase    string  `json:"phase,omitempty"`
	Progress int     `json:"progress,omitempty"`
	Model    string  `json:"model,omitempty"`
	Tier     string  `json:"tier,omitempty"`
	Cost     float64 `json:"cost,omitempty"`
	CacheHit bool    `json:"cache_hit,omitempty"`

	// EMOTION_DETECTED
	Emotion string `json:"emotion,omitempty"`
	Method  string `json:"method,omitempty"`

	// ERROR
	Code        string `json:"code,omitempty"`
	Message     string `json:"message,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`
}
