package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/verbalearn/tutorcore/internal/models"
	"github.com/verbalearn/tutorcore/internal/pipeline"
	"github.com/verbalearn/tutorcore/internal/session"
	"github.com/verbalearn/tutorcore/internal/speech"
	"github.com/verbalearn/tutorcore/internal/types"
)

// WSHandler runs the bidirectional voice protocol over one websocket
// connection per learner.
type WSHandler struct {
	pipeline    *pipeline.Pipeline
	sessions    *session.Manager
	transcriber models.Transcriber
	upgrader    websocket.Upgrader
}

func NewWSHandler(p *pipeline.Pipeline, m *session.Manager, t models.Transcriber) *WSHandler {
	return &WSHandler{
		pipeline:    p,
		sessions:    m,
		transcriber: t,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chat_id")
	userID := r.URL.Query().Get("user_id")
	if chatID == "" || userID == "" {
		http.Error(w, "chat_id and user_id are required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	c := &wsConn{conn: conn}
	if existing, err := h.sessions.Lookup(r.Context(), chatID); err == nil {
		c.send(wsMessage{
			Type:     TypeSessionState,
			Phase:    string(existing.Phase),
			Progress: existing.Progress,
		})
	}
	sess := &voiceSession{
		handler: h,
		conn:    c,
		chatID:  chatID,
		userID:  userID,
	}
	sess.readLoop(r.Context())
}

// wsConn serializes writes; the turn goroutine and the read loop both
// write frames.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msg wsMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		slog.Debug("websocket write failed", "error", err.Error())
	}
}

// voiceSession is the per-connection state: the audio buffer being
// accumulated and the interrupt flag of the turn in flight.
type voiceSession struct {
	handler *WSHandler
	conn    *wsConn
	chatID  string
	userID  string

	audioBuf  []byte
	mu        sync.Mutex
	interrupt *speech.Interrupt
	turnDone  chan struct{}
}

func (s *voiceSession) readLoop(ctx context.Context) {
	for {
		_, data, err := s.conn.conn.ReadMessage()
		if err != nil {
			s.awaitTurn()
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.conn.send(wsMessage{Type: TypeError, Code: "BAD_MESSAGE", Message: "malformed message", Recoverable: true})
			continue
		}
		switch msg.Type {
		case TypeAudioChunk:
			s.handleAudio(ctx, msg)
		case TypeInterrupt:
			s.handleInterrupt()
		case TypePing:
			s.conn.send(wsMessage{Type: TypePong})
		default:
			s.conn.send(wsMessage{Type: TypeError, Code: "UNKNOWN_TYPE", Message: "unknown message type " + msg.Type, Recoverable: true})
		}
	}
}

func (s *voiceSession) handleAudio(ctx context.Context, msg wsMessage) {
	chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
	if err != nil {
		s.conn.send(wsMessage{Type: TypeError, Code: "BAD_AUDIO", Message: "invalid base64 audio", Recoverable: true})
		return
	}
	s.audioBuf = append(s.audioBuf, chunk...)
	if !msg.IsLast {
		return
	}

	audio := s.audioBuf
	s.audioBuf = nil

	tr, err := s.handler.transcriber.Transcribe(ctx, audio, "")
	if err != nil {
		s.conn.send(wsMessage{Type: TypeError, Code: "TRANSCRIPTION_FAILED", Message: err.Error(), Recoverable: true})
		return
	}
	s.conn.send(wsMessage{
		Type:       TypeTranscription,
		Text:       tr.Text,
		Confidence: tr.Confidence,
		IsFinal:    true,
	})
	if tr.Text == "" {
		return
	}

	// One turn at a time per connection. A new final utterance while a
	// turn is running interrupts the old speech first.
	s.handleInterrupt()
	s.awaitTurn()

	interrupt := &speech.Interrupt{}
	done := make(chan struct{})
	s.mu.Lock()
	s.interrupt = interrupt
	s.turnDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		sink := &wsSink{conn: s.conn}
		sink.start()
		err := s.handler.pipeline.ProcessTurn(ctx, pipeline.TurnInput{
			ChatID:    s.chatID,
			UserID:    s.userID,
			Text:      tr.Text,
			Voice:     true,
			Interrupt: interrupt,
		}, sink)
		if err != nil {
			slog.Warn("voice turn failed", "chat_id", s.chatID, "error", err.Error())
		}
	}()
}

func (s *voiceSession) handleInterrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interrupt != nil {
		s.interrupt.Trigger()
	}
}

func (s *voiceSession) awaitTurn() {
	s.mu.Lock()
	done := s.turnDone
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// wsSink translates pipeline output into protocol frames.
type wsSink struct {
	conn *wsConn
}

func (s *wsSink) start() {
	s.conn.send(wsMessage{Type: TypeTTSStart})
}

func (s *wsSink) TextChunk(chunk string) {
	s.conn.send(wsMessage{Type: TypeChunk, Content: chunk})
}

func (s *wsSink) TextComplete(meta pipeline.TurnMeta) {
	s.conn.send(wsMessage{
		Type:     TypeComplete,
		Model:    meta.Model,
		Tier:     meta.Tier,
		Cost:     meta.Cost,
		CacheHit: meta.CacheHit,
		Phase:    string(meta.Phase),
	})
}

func (s *wsSink) TextError(err error, recoverable bool) {
	s.conn.send(wsMessage{
		Type:        TypeError,
		Code:        "GENERATION_FAILED",
		Message:     err.Error(),
		Recoverable: recoverable,
	})
}

func (s *wsSink) SpeechEvent(ev speech.Event) {
	if msg, ok := speechFrame(ev); ok {
		s.conn.send(msg)
	}
}

func intPtr(v int) *int { return &v }

// speechFrame maps a dispatcher event onto its protocol frame. Zero-valued
// sequence labels are still carried.
func speechFrame(ev speech.Event) (wsMessage, bool) {
	switch ev.Type {
	case speech.EventChunk:
		msg := wsMessage{
			Type:       TypeTTSChunk,
			Seq:        intPtr(ev.Seq),
			Audio:      base64.StdEncoding.EncodeToString(ev.Audio),
			Compressed: ev.Compressed,
			Cached:     ev.Cached,
		}
		if ev.Total > 0 {
			msg.Total = intPtr(ev.Total)
		}
		return msg, true
	case speech.EventError:
		return wsMessage{
			Type:        TypeError,
			Code:        "TTS_FAILED",
			Seq:         intPtr(ev.Seq),
			Message:     ev.Err.Error(),
			Recoverable: true,
		}, true
	case speech.EventEnd:
		return wsMessage{Type: TypeTTSEnd, Total: intPtr(ev.Total), Sent: intPtr(ev.Sent)}, true
	}
	return wsMessage{}, false
}

func (s *wsSink) PhaseChange(phase types.LessonPhase, progress int) {
	s.conn.send(wsMessage{Type: TypePhaseChange, Phase: string(phase), Progress: progress})
}

func (s *wsSink) EmotionDetected(det types.EmotionDetection) {
	s.conn.send(wsMessage{
		Type:       TypeEmotionDetected,
		Emotion:    det.Emotion,
		Confidence: det.Confidence,
		Method:     det.DetectionMethod,
	})
}
