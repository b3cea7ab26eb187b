package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/verbalearn/tutorcore/internal/models"
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

type fakeLedger struct {
	mu       sync.Mutex
	messages []*types.Message
}

func (l *fakeLedger) Add(ctx context.Context, msg *types.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if msg.Role == types.RoleAssistant && msg.Metadata.Cost < 0 {
		return fmt.Errorf("negative cost")
	}
	l.messages = append(l.messages, msg)
	return nil
}

func (l *fakeLedger) CountByChat(ctx context.Context, chatID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.messages {
		if m.ChatID == chatID {
			n++
		}
	}
	return n, nil
}

func (l *fakeLedger) byRole(role string) []*types.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*types.Message
	for _, m := range l.messages {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

type fakePersister struct {
	entries int
}

func (p *fakePersister) Add(ctx context.Context, query, response string, embedding []float32) error {
	p.entries++
	return nil
}

type scriptedLLM struct {
	name   string
	deltas []string
	usage  models.Usage
	calls  int
	err    error
}

func (f *scriptedLLM) Name() string { return f.name }

func (f *scriptedLLM) CompleteStream(ctx context.Context, system, user string, fn models.StreamHandler) (models.Usage, error) {
	f.calls++
	for _, d := range f.deltas {
		if err := fn(d); err != nil {
			return f.usage, err
		}
	}
	return f.usage, f.err
}

type hashEmbedder struct{}

// EmbedQuery maps equal strings to equal unit vectors, distinct strings to
// near-orthogonal ones, which is all the cache tests need.
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

type recordingSink struct {
	mu        sync.Mutex
	chunks    []string
	completes []TurnMeta
	errors    []error
	speech    []speech.Event
	phases    []types.LessonPhase
	emotions  []types.EmotionDetection
}

func (s *recordingSink) TextChunk(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
}

func (s *recordingSink) TextComplete(meta TurnMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completes = append(s.completes, meta)
}

func (s *recordingSink) TextError(err error, recoverable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, err)
}

func (s *recordingSink) SpeechEvent(ev speech.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speech = append(s.speech, ev)
}

func (s *recordingSink) PhaseChange(phase types.LessonPhase, progress int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phases = append(s.phases, phase)
}

func (s *recordingSink) EmotionDetected(det types.EmotionDetection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emotions = append(s.emotions, det)
}

func testPipeline(t *testing.T, llm models.LLM) (*Pipeline, *fakeLedger, *fakePersister) {
	t.Helper()

	mgr := session.NewManager(
		&fakeSessionRepo{sessions: make(map[string]*types.TutorSession)},
		session.NewStateMachine(session.DefaultThresholds()),
	)
	ledger := &fakeLedger{}
	persister := &fakePersister{}

	p, err := New(Config{
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
		Dispatcher: speech.NewDispatcher(fakeSynth{}, speech.NewTTSCache(16, nil), 0),
		Ledger:     ledger,
		Persister:  persister,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return p, ledger, persister
}

func TestProcessTurnTextMode(t *testing.T) {
	llm := &scriptedLLM{
		name:   "economy-model",
		deltas: []string{"Newton's second law links force and mass. ", "Try doubling the mass!"},
		usage:  models.Usage{PromptTokens: 200, CompletionTokens: 40},
	}
	p, ledger, persister := testPipeline(t, llm)
	sink := &recordingSink{}

	err := p.ProcessTurn(context.Background(), TurnInput{
		ChatID: "chat-1",
		UserID: "user-1",
		Text:   "Explain Newton's second law",
	}, sink)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(sink.chunks) != 2 {
		t.Fatalf("expected 2 forwarded chunks, got %d", len(sink.chunks))
	}
	if len(sink.completes) != 1 {
		t.Fatalf("expected 1 completion, got %d", len(sink.completes))
	}
	meta := sink.completes[0]
	if meta.Tier != string(router.TierEconomy) {
		t.Fatalf("explanatory query should route economy, got %s", meta.Tier)
	}
	if meta.Cost <= 0 {
		t.Fatalf("completion should carry cost, got %f", meta.Cost)
	}
	if len(sink.emotions) != 1 {
		t.Fatal("emotion event missing")
	}

	userMsgs := ledger.byRole(types.RoleUser)
	aiMsgs := ledger.byRole(types.RoleAssistant)
	if len(userMsgs) != 1 || len(aiMsgs) != 1 {
		t.Fatalf("ledger should hold both turns: %d user, %d ai", len(userMsgs), len(aiMsgs))
	}
	if aiMsgs[0].Metadata.Cost < 0 {
		t.Fatal("assistant cost must be non-negative")
	}
	if aiMsgs[0].Metadata.Validation["overall"] == 0 {
		t.Fatal("validation scores missing from metadata")
	}
	if persister.entries != 1 {
		t.Fatalf("completed generation should persist a cache entry, got %d", persister.entries)
	}
}

func TestProcessTurnRepeatServedFromCache(t *testing.T) {
	llm := &scriptedLLM{
		name:   "economy-model",
		deltas: []string{"Gravity pulls masses together."},
		usage:  models.Usage{PromptTokens: 100, CompletionTokens: 20},
	}
	p, _, _ := testPipeline(t, llm)

	first := &recordingSink{}
	if err := p.ProcessTurn(context.Background(), TurnInput{ChatID: "c", UserID: "u", Text: "what is gravity"}, first); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if first.completes[0].CacheHit {
		t.Fatal("first turn cannot be a cache hit")
	}

	second := &recordingSink{}
	if err := p.ProcessTurn(context.Background(), TurnInput{ChatID: "c", UserID: "u", Text: "what is gravity"}, second); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if llm.calls != 1 {
		t.Fatalf("repeat query must not reach the provider, got %d calls", llm.calls)
	}
	meta := second.completes[0]
	if !meta.CacheHit {
		t.Fatal("repeat turn should be a cache hit")
	}
	if meta.Cost != 0 {
		t.Fatalf("cache replay must cost zero, got %f", meta.Cost)
	}
	if len(second.chunks) == 0 {
		t.Fatal("replay must stream chunks for UX parity")
	}
}

func TestProcessTurnVoiceModeEmitsOrderedAudio(t *testing.T) {
	llm := &scriptedLLM{
		name:   "economy-model",
		deltas: []string{"First point. Second point. Third"},
		usage:  models.Usage{PromptTokens: 50, CompletionTokens: 30},
	}
	p, _, _ := testPipeline(t, llm)
	sink := &recordingSink{}

	err := p.ProcessTurn(context.Background(), TurnInput{
		ChatID:    "chat-v",
		UserID:    "u",
		Text:      "tell me about inertia",
		Voice:     true,
		Interrupt: &speech.Interrupt{},
	}, sink)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var seqs []int
	ends := 0
	for _, ev := range sink.speech {
		switch ev.Type {
		case speech.EventChunk:
			seqs = append(seqs, ev.Seq)
		case speech.EventEnd:
			ends = ends + 1
			if ev.Total != 3 || ev.Sent != 3 {
				t.Fatalf("end event total/sent = %d/%d, want 3/3", ev.Total, ev.Sent)
			}
		}
	}
	sort.Ints(seqs)
	if len(seqs) != 3 || seqs[0] != 0 || seqs[2] != 2 {
		t.Fatalf("expected sequence numbers 0..2, got %v", seqs)
	}
	if ends != 1 {
		t.Fatalf("expected one end event, got %d", ends)
	}
}

func TestProcessTurnCompletesWhenInterruptedEarly(t *testing.T) {
	// A long response interrupted before any audio is sent must still
	// finish the turn: the dispatcher has to keep draining sentences.
	deltas := make([]string, 40)
	for i := range deltas {
		deltas[i] = fmt.Sprintf("Point number %d. ", i)
	}
	llm := &scriptedLLM{
		name:   "economy-model",
		deltas: deltas,
		usage:  models.Usage{PromptTokens: 50, CompletionTokens: 400},
	}
	p, ledger, _ := testPipeline(t, llm)
	sink := &recordingSink{}

	interrupt := &speech.Interrupt{}
	interrupt.Trigger()

	done := make(chan error, 1)
	go func() {
		done <- p.ProcessTurn(context.Background(), TurnInput{
			ChatID:    "chat-int",
			UserID:    "u",
			Text:      "tell me everything about motion",
			Voice:     true,
			Interrupt: interrupt,
		}, sink)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("turn never completed after early interrupt")
	}

	for _, ev := range sink.speech {
		if ev.Type == speech.EventChunk {
			t.Fatalf("no audio should be sent after a pre-triggered interrupt, got seq %d", ev.Seq)
		}
		if ev.Type == speech.EventEnd && ev.Sent != 0 {
			t.Fatalf("end event reports %d sent, want 0", ev.Sent)
		}
	}
	if len(ledger.byRole(types.RoleAssistant)) != 1 {
		t.Fatal("assistant message should be persisted despite the interrupt")
	}
	if len(sink.completes) != 1 {
		t.Fatalf("expected 1 completion, got %d", len(sink.completes))
	}
}

func TestProcessTurnProviderFailureKeepsPartialText(t *testing.T) {
	llm := &scriptedLLM{
		name:   "economy-model",
		deltas: []string{"A usable partial sentence. "},
		err:    fmt.Errorf("provider disconnected"),
	}
	p, ledger, _ := testPipeline(t, llm)
	sink := &recordingSink{}

	err := p.ProcessTurn(context.Background(), TurnInput{ChatID: "c", UserID: "u", Text: "hello there friend"}, sink)
	if err != nil {
		t.Fatalf("partial output exists, turn should not fail: %v", err)
	}

	if len(sink.chunks) != 1 {
		t.Fatal("partial chunk must reach the learner")
	}
	if len(sink.errors) != 0 {
		t.Fatal("no terminal error when usable output exists")
	}
	aiMsgs := ledger.byRole(types.RoleAssistant)
	if len(aiMsgs) != 1 || aiMsgs[0].Content == "" {
		t.Fatal("partial response must be persisted")
	}
}

func TestProcessTurnTotalFailureSendsError(t *testing.T) {
	llm := &scriptedLLM{
		name: "economy-model",
		err:  fmt.Errorf("provider down"),
	}
	p, _, _ := testPipeline(t, llm)
	sink := &recordingSink{}

	err := p.ProcessTurn(context.Background(), TurnInput{ChatID: "c", UserID: "u", Text: "unique failing question"}, sink)
	if err == nil {
		t.Fatal("expected error when nothing usable was produced")
	}
	if len(sink.errors) != 1 {
		t.Fatalf("expected one terminal error event, got %d", len(sink.errors))
	}
}
