package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/verbalearn/tutorcore/internal/pipeline"
	"github.com/verbalearn/tutorcore/internal/session"
	"github.com/verbalearn/tutorcore/internal/speech"
	"github.com/verbalearn/tutorcore/internal/types"
)

// ChatHandler streams text-only turns as newline-delimited JSON.
type ChatHandler struct {
	pipeline *pipeline.Pipeline
	sessions *session.Manager
}

func NewChatHandler(p *pipeline.Pipeline, m *session.Manager) *ChatHandler {
	return &ChatHandler{pipeline: p, sessions: m}
}

type chatRequest struct {
	ChatID  string                `json:"chat_id"`
	UserID  string                `json:"user_id"`
	Text    string                `json:"text"`
	Profile types.ProfileSnapshot `json:"profile"`
}

// Stream handles POST /chat/stream.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ChatID == "" || req.UserID == "" || strings.TrimSpace(req.Text) == "" {
		http.Error(w, "chat_id, user_id and text are required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	flusher, _ := w.(http.Flusher)

	sink := &ndjsonSink{w: w, flusher: flusher}
	err := h.pipeline.ProcessTurn(r.Context(), pipeline.TurnInput{
		ChatID:  req.ChatID,
		UserID:  req.UserID,
		Text:    req.Text,
		Profile: req.Profile,
	}, sink)
	_ = err // already reported through the stream
}

// Status handles GET /sessions/{chatID}.
func (h *ChatHandler) Status(w http.ResponseWriter, r *http.Request) {
	chatID := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if chatID == "" {
		http.Error(w, "chat id is required", http.StatusBadRequest)
		return
	}
	sess, err := h.sessions.Lookup(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sess)
}

// ndjsonSink writes one JSON object per line as the turn progresses.
type ndjsonSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

func (s *ndjsonSink) write(msg wsMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.w.Write(append(data, '\n'))
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func (s *ndjsonSink) TextChunk(chunk string) {
	s.write(wsMessage{Type: TypeChunk, Content: chunk})
}

func (s *ndjsonSink) TextComplete(meta pipeline.TurnMeta) {
	s.write(wsMessage{
		Type:     TypeComplete,
		Model:    meta.Model,
		Tier:     meta.Tier,
		Cost:     meta.Cost,
		CacheHit: meta.CacheHit,
		Phase:    string(meta.Phase),
	})
}

func (s *ndjsonSink) TextError(err error, recoverable bool) {
	s.write(wsMessage{Type: TypeErrorLC, Message: err.Error(), Recoverable: recoverable})
}

func (s *ndjsonSink) SpeechEvent(speech.Event) {}

func (s *ndjsonSink) PhaseChange(phase types.LessonPhase, progress int) {
	s.write(wsMessage{Type: TypePhaseChange, Phase: string(phase), Progress: progress})
}

func (s *ndjsonSink) EmotionDetected(det types.EmotionDetection) {
	s.write(wsMessage{
		Type:       TypeEmotionDetected,
		Emotion:    det.Emotion,
		Confidence: det.Confidence,
		Method:     det.DetectionMethod,
	})
}
