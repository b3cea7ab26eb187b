package handler

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/verbalearn/tutorcore/internal/models"
	"github.com/verbalearn/tutorcore/internal/pipeline"
	"github.com/verbalearn/tutorcore/internal/router"
	"github.com/verbalearn/tutorcore/internal/semcache"
	"github.com/verbalearn/tutorcore/internal/session"
	"github.com/verbalearn/tutorcore/internal/speech"
	"github.com/verbalearn/tutorcore/internal/types"
)

type fakeSessionRepo struct {
	sessions map[string]*types.TutorSession
}

func (r *fakeSessionRepo) GetByChat(ctx context.Context, chatID string) (*types.TutorSession, error) {
	return r.sessions[chatID], nil
}

func (r *fakeSessionRepo) Create(ctx context.Context, sess *types.TutorSession) error {
	r.sessions[sess.ChatID] = sess
	return nil
}

func (r *fakeSessionRepo) Update(ctx context.Context, sess *types.TutorSession) error {
	r.sessions[sess.ChatID] = sess
	return nil
}

type memLedger struct {
	messages []*types.Message
}

func (l *memLedger) Add(ctx context.Context, msg *types.Message) error {
	l.messages = append(l.messages, msg)
	return nil
}

func (l *memLedger) CountByChat(ctx context.Context, chatID string) (int, error) {
	n := 0
	for _, m := range l.messages {
		if m.ChatID == chatID {
			n++
		}
	}
	return n, nil
}

type scriptedLLM struct {
	deltas []string
	usage  models.Usage
}

func (f *scriptedLLM) Name() string { return "economy-model" }

func (f *scriptedLLM) CompleteStream(ctx context.Context, system, user string, fn models.StreamHandler) (models.Usage, error) {
	for _, d := range f.deltas {
		if err := fn(d); err != nil {
			return f.usage, err
		}
	}
	return f.usage, nil
}

type hashEmbedder struct{}

func (hashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 8)
	for i, r := range text {
		vec[(i+int(r))%8] += 1
	}
	return vec, nil
}

type fakeSynth struct{}

func (fakeSynth) Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error) {
	return []byte("audio:" + text), nil
}

type fakeTranscriber struct {
	text string
}

func (t *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, language string) (models.Transcription, error) {
	return models.Transcription{Text: t.text, Confidence: 0.9}, nil
}

func testManager() (*session.Manager, *fakeSessionRepo) {
	repo := &fakeSessionRepo{sessions: make(map[string]*types.TutorSession)}
	return session.NewManager(repo, session.NewStateMachine(session.DefaultThresholds())), repo
}

func testPipeline(t *testing.T, mgr *session.Manager, llm models.LLM) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(pipeline.Config{
		Sessions: mgr,
		Cache:    semcache.New(hashEmbedder{}, semcache.DefaultOptions()),
		Router: router.New(
			router.TierConfig{Model: "economy-model", CostPerMillionTokens: 0.15},
			router.TierConfig{Model: "standard-model", CostPerMillionTokens: 2.5},
			router.TierConfig{Model: "premium-model", CostPerMillionTokens: 15},
		),
		LLMs: map[router.Tier]models.LLM{
			router.TierEconomy:  llm,
			router.TierStandard: llm,
			router.TierPremium:  llm,
		},
		Dispatcher: speech.NewDispatcher(fakeSynth{}, speech.NewTTSCache(16, nil), 1<<20),
		Ledger:     &memLedger{},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return p
}

func TestSessionStatusNotFound(t *testing.T) {
	mgr, _ := testManager()
	h := NewChatHandler(nil, mgr)

	req := httptest.NewRequest(http.MethodGet, "/sessions/missing-chat", nil)
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown chat should return 404, got %d", rec.Code)
	}
}

func TestSessionStatusFound(t *testing.T) {
	mgr, repo := testManager()
	repo.sessions["chat-1"] = &types.TutorSession{
		ChatID: "chat-1",
		UserID: "user-1",
		Phase:  types.PhaseTeaching,
	}
	h := NewChatHandler(nil, mgr)

	req := httptest.NewRequest(http.MethodGet, "/sessions/chat-1", nil)
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var sess types.TutorSession
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("expected session JSON, got %v", err)
	}
	if sess.Phase != types.PhaseTeaching {
		t.Fatalf("expected teaching phase, got %s", sess.Phase)
	}
}

func TestChatStreamNDJSON(t *testing.T) {
	mgr, _ := testManager()
	llm := &scriptedLLM{
		deltas: []string{"Force equals mass times acceleration. ", "Want an example?"},
		usage:  models.Usage{PromptTokens: 100, CompletionTokens: 30},
	}
	h := NewChatHandler(testPipeline(t, mgr, llm), mgr)

	body := `{"chat_id":"chat-1","user_id":"user-1","text":"Explain Newton's second law"}`
	req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Stream(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("expected ndjson content type, got %s", ct)
	}

	var frames []wsMessage
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		var msg wsMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			t.Fatalf("each line must be valid JSON: %v", err)
		}
		frames = append(frames, msg)
	}

	var chunks []string
	var completes int
	for _, f := range frames {
		switch f.Type {
		case TypeChunk:
			chunks = append(chunks, f.Content)
		case TypeComplete:
			completes++
			if f.Tier != string(router.TierEconomy) {
				t.Fatalf("explanatory query should route economy, got %s", f.Tier)
			}
			if f.Cost <= 0 {
				t.Fatalf("completion frame should carry cost, got %f", f.Cost)
			}
		}
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunk frames, got %d", len(chunks))
	}
	if completes != 1 {
		t.Fatalf("expected 1 complete frame, got %d", completes)
	}
}

func TestChatStreamRejectsEmptyText(t *testing.T) {
	mgr, _ := testManager()
	h := NewChatHandler(nil, mgr)

	body := `{"chat_id":"chat-1","user_id":"user-1","text":"   "}`
	req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Stream(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank text should be rejected, got %d", rec.Code)
	}
}

func dialWS(t *testing.T, h *WSHandler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?chat_id=chat-1&user_id=user-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return msg
}

func TestWSPingPong(t *testing.T) {
	mgr, _ := testManager()
	llm := &scriptedLLM{deltas: []string{"ok."}}
	h := NewWSHandler(testPipeline(t, mgr, llm), mgr, &fakeTranscriber{text: "hi"})
	conn := dialWS(t, h)

	if err := conn.WriteJSON(wsMessage{Type: TypePing}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if msg := readFrame(t, conn); msg.Type != TypePong {
		t.Fatalf("expected PONG, got %s", msg.Type)
	}
}

func TestWSVoiceTurn(t *testing.T) {
	mgr, _ := testManager()
	llm := &scriptedLLM{
		deltas: []string{"Force equals mass times acceleration. ", "Shall we try one?"},
		usage:  models.Usage{PromptTokens: 100, CompletionTokens: 30},
	}
	h := NewWSHandler(testPipeline(t, mgr, llm), mgr, &fakeTranscriber{text: "Explain Newton's second law"})
	conn := dialWS(t, h)

	audio := base64.StdEncoding.EncodeToString([]byte("webm-bytes"))
	if err := conn.WriteJSON(wsMessage{Type: TypeAudioChunk, Audio: audio, IsLast: true}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var sawTranscription, sawStart, sawEnd, sawComplete bool
	var ttsChunks int
	var ttsEnd wsMessage
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && !(sawEnd && sawComplete) {
		msg := readFrame(t, conn)
		switch msg.Type {
		case TypeTranscription:
			sawTranscription = true
			if msg.Text != "Explain Newton's second law" {
				t.Fatalf("unexpected transcription %q", msg.Text)
			}
		case TypeTTSStart:
			sawStart = true
		case TypeTTSChunk:
			ttsChunks++
			if msg.Seq == nil {
				t.Fatal("every TTS chunk must carry its sequence number")
			}
			if _, err := base64.StdEncoding.DecodeString(msg.Audio); err != nil {
				t.Fatalf("tts chunk audio must be base64: %v", err)
			}
		case TypeTTSEnd:
			sawEnd = true
			ttsEnd = msg
		case TypeComplete:
			sawComplete = true
		case TypeError:
			t.Fatalf("unexpected error frame: %s", msg.Message)
		}
	}

	if !sawTranscription {
		t.Fatal("expected a TRANSCRIPTION frame")
	}
	if !sawStart {
		t.Fatal("expected a TTS_START frame")
	}
	if ttsChunks != 2 {
		t.Fatalf("expected 2 TTS chunks, got %d", ttsChunks)
	}
	if !sawEnd {
		t.Fatal("expected a TTS_END frame")
	}
	if ttsEnd.Total == nil || ttsEnd.Sent == nil {
		t.Fatal("TTS_END must carry both total and sent")
	}
	if *ttsEnd.Total != 2 || *ttsEnd.Sent != 2 {
		t.Fatalf("TTS_END should report total=2 sent=2, got total=%d sent=%d", *ttsEnd.Total, *ttsEnd.Sent)
	}
	if !sawComplete {
		t.Fatal("expected a complete frame")
	}
}

func TestSpeechFramesKeepZeroLabels(t *testing.T) {
	chunk, ok := speechFrame(speech.Event{Type: speech.EventChunk, Seq: 0, Audio: []byte("a")})
	if !ok {
		t.Fatal("chunk event must map to a frame")
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"seq":0`) {
		t.Fatalf("first chunk must carry seq 0 on the wire, got %s", data)
	}

	end, ok := speechFrame(speech.Event{Type: speech.EventEnd, Total: 0, Sent: 0})
	if !ok {
		t.Fatal("end event must map to a frame")
	}
	data, err = json.Marshal(end)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	for _, label := range []string{`"total":0`, `"sent":0`} {
		if !strings.Contains(string(data), label) {
			t.Fatalf("interrupted-turn end frame must carry %s, got %s", label, data)
		}
	}
}

func TestWSAudioAccumulation(t *testing.T) {
	mgr, _ := testManager()
	llm := &scriptedLLM{deltas: []string{"Sure."}}
	tr := &fakeTranscriber{text: ""}
	h := NewWSHandler(testPipeline(t, mgr, llm), mgr, tr)
	conn := dialWS(t, h)

	// Chunks before is_last must not trigger a turn.
	part := base64.StdEncoding.EncodeToString([]byte("part"))
	if err := conn.WriteJSON(wsMessage{Type: TypeAudioChunk, Audio: part}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := conn.WriteJSON(wsMessage{Type: TypePing}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if msg := readFrame(t, conn); msg.Type != TypePong {
		t.Fatalf("partial audio should produce no frame before PONG, got %s", msg.Type)
	}
}
