// Package pipeline orchestrates one tutoring turn: extraction, context
// update, prompt build, cache check, routed generation, sentence speech
// dispatch, and lesson phase advance.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/verbalearn/tutorcore/internal/contextstore"
	"github.com/verbalearn/tutorcore/internal/extract"
	"github.com/verbalearn/tutorcore/internal/models"
	"github.com/verbalearn/tutorcore/internal/prompt"
	"github.com/verbalearn/tutorcore/internal/router"
	"github.com/verbalearn/tutorcore/internal/semcache"
	"github.com/verbalearn/tutorcore/internal/session"
	"github.com/verbalearn/tutorcore/internal/speech"
	"github.com/verbalearn/tutorcore/internal/stream"
	"github.com/verbalearn/tutorcore/internal/types"
	"github.com/verbalearn/tutorcore/internal/validate"
)

// MessageLedger is the append/read contract over persisted messages.
type MessageLedger interface {
	Add(ctx context.Context, msg *types.Message) error
	CountByChat(ctx context.Context, chatID string) (int, error)
}

// CachePersister stores completed cache entries for warmup after restart.
type CachePersister interface {
	Add(ctx context.Context, query, response string, embedding []float32) error
}

// TurnMeta summarizes a finished generation.
type TurnMeta struct {
	Model    string
	Tier     string
	Cost     float64
	CacheHit bool
	Phase    types.LessonPhase
}

// Sink receives turn output. Implementations are the websocket voice
// handler and the text chat channel.
type Sink interface {
	TextChunk(chunk string)
	TextComplete(meta TurnMeta)
	TextError(err error, recoverable bool)
	SpeechEvent(ev speech.Event)
	PhaseChange(phase types.LessonPhase, progress int)
	EmotionDetected(det types.EmotionDetection)
}

// TurnInput is one learner message.
type TurnInput struct {
	ChatID    string
	UserID    string
	Text      string
	Profile   types.ProfileSnapshot
	Voice     bool
	Interrupt *speech.Interrupt
}

// Pipeline wires the response-generation core together. All collaborators
// are injected; provider boundaries take test doubles.
type Pipeline struct {
	sessions   *session.Manager
	language   *extract.LanguageDetector
	emotion    *extract.EmotionDetector
	intent     *extract.IntentClassifier
	contexts   *contextstore.Store
	prompts    *prompt.Builder
	cache      *semcache.Cache
	router     *router.Router
	llms       map[router.Tier]models.LLM
	dispatcher *speech.Dispatcher
	validator  *validate.Validator
	ledger     MessageLedger
	persister  CachePersister
}

// Config collects pipeline collaborators.
type Config struct {
	Sessions   *session.Manager
	Contexts   *contextstore.Store
	Cache      *semcache.Cache
	Router     *router.Router
	LLMs       map[router.Tier]models.LLM
	Dispatcher *speech.Dispatcher
	Ledger     MessageLedger
	Persister  CachePersister
}

// New validates the wiring and returns a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.Router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if len(cfg.LLMs) == 0 {
		return nil, fmt.Errorf("at least one llm tier is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("message ledger is required")
	}
	return &Pipeline{
		sessions:   cfg.Sessions,
		language:   extract.NewLanguageDetector(),
		emotion:    extract.NewEmotionDetector(),
		intent:     extract.NewIntentClassifier(),
		contexts:   cfg.Contexts,
		prompts:    prompt.NewBuilder(),
		cache:      cfg.Cache,
		router:     cfg.Router,
		llms:       cfg.LLMs,
		dispatcher: cfg.Dispatcher,
		validator:  validate.NewValidator(),
		ledger:     cfg.Ledger,
		persister:  cfg.Persister,
	}, nil
}

// ProcessTurn runs the full turn flow. Partial output already delivered to
// the sink is never retracted; a terminal error is sent only when nothing
// usable was produced.
func (p *Pipeline) ProcessTurn(ctx context.Context, in TurnInput, sink Sink) error {
	started := time.Now()

	sess, err := p.sessions.GetOrCreate(ctx, in.ChatID, in.UserID, in.Profile)
	if err != nil {
		sink.TextError(err, false)
		return err
	}

	sctx := p.contexts.Get(ctx, in.UserID, in.ChatID)

	// Language runs first; emotion and intent run concurrently and both
	// finish before prompt construction.
	langDet := p.language.Classify(ctx, in.Text, sctx)
	var emotionDet types.EmotionDetection
	var intentDet types.IntentDetection
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		emotionDet = p.emotion.Classify(gctx, in.Text, sctx)
		return nil
	})
	g.Go(func() error {
		intentDet = p.intent.Classify(gctx, in.Text, sctx)
		return nil
	})
	_ = g.Wait()

	sink.EmotionDetected(emotionDet)
	p.applyIntent(ctx, sess, intentDet)

	sctx = p.contexts.Update(ctx, in.UserID, in.ChatID, langDet.Language, emotionDet.Emotion, sess, time.Since(started))

	userMsg := &types.Message{
		ChatID:  in.ChatID,
		Role:    types.RoleUser,
		Content: in.Text,
		Metadata: types.MessageMetadata{
			Intent:           intentDet.Intent,
			Emotion:          emotionDet.Emotion,
			DetectedLanguage: langDet.Language,
		},
	}
	if err := p.ledger.Add(ctx, userMsg); err != nil {
		slog.Warn("failed to persist user message", "chat_id", in.ChatID, "error", err.Error())
	}

	persona := prompt.PersonaByID(sess.PersonaID)
	systemPrompt, err := p.prompts.Build(prompt.BuildContext{
		Session:  sess,
		Persona:  persona,
		Language: langDet,
		Emotion:  emotionDet,
		Intent:   intentDet,
	})
	if err != nil {
		sink.TextError(err, false)
		return err
	}

	decision := p.router.Route(in.Text)

	var events <-chan stream.Event
	cacheHit := false
	if p.cache != nil {
		if hit := p.cache.Check(ctx, in.Text); hit != nil {
			cacheHit = true
			events = stream.Replay(ctx, hit.Response, "cache")
		}
	}
	if events == nil {
		llm, ok := p.llms[decision.Tier]
		if !ok {
			err := fmt.Errorf("no model configured for tier %s", decision.Tier)
			sink.TextError(err, false)
			return err
		}
		gen := stream.NewGenerator(llm, decision.CostPerMillionTokens)
		events = gen.Run(ctx, systemPrompt, in.Text)
	}

	outcome := p.consume(ctx, events, in, persona, langDet, emotionDet, sink)

	if outcome.response != "" {
		p.finishTurn(ctx, in, sess, decision, langDet, emotionDet, intentDet, cacheHit, outcome, sink)
	} else if outcome.err != nil {
		// Nothing usable was produced.
		sink.TextError(outcome.err, true)
		return outcome.err
	}
	return nil
}

type turnOutcome struct {
	response string
	model    string
	cost     float64
	err      error
}

// consume forwards generator events to the sink, bridging sentences into
// the speech dispatcher in voice mode.
func (p *Pipeline) consume(ctx context.Context, events <-chan stream.Event, in TurnInput, persona *types.Persona, langDet types.LanguageDetection, emotionDet types.EmotionDetection, sink Sink) turnOutcome {
	var outcome turnOutcome

	var sentences chan stream.Sentence
	speechDone := make(chan struct{})
	if in.Voice && p.dispatcher != nil {
		sentences = make(chan stream.Sentence, 16)
		params := speech.Params{
			Language: langDet.Language,
			Emotion:  emotionDet.Emotion,
			Persona:  persona.ID,
			Voice:    persona.Voice.Voice,
			Speed:    persona.Voice.Speed,
		}
		speechEvents := p.dispatcher.Dispatch(ctx, sentences, params, in.Interrupt)
		go func() {
			defer close(speechDone)
			for ev := range speechEvents {
				sink.SpeechEvent(ev)
			}
		}()
	} else {
		close(speechDone)
	}

	for ev := range events {
		switch ev.Type {
		case stream.EventChunk:
			sink.TextChunk(ev.Chunk)
		case stream.EventSentence:
			if sentences != nil {
				sentences <- ev.Sentence
			}
		case stream.EventComplete:
			outcome.response = ev.Response
			outcome.model = ev.Model
			outcome.cost = ev.Cost
		case stream.EventError:
			// Partial text was already forwarded; keep it and its cost.
			outcome.response = ev.Response
			outcome.model = ev.Model
			outcome.cost = ev.Cost
			outcome.err = ev.Err
		}
	}
	if sentences != nil {
		close(sentences)
	}
	<-speechDone

	return outcome
}

// finishTurn persists the assistant message, feeds the caches, validates,
// and advances the lesson phase.
func (p *Pipeline) finishTurn(ctx context.Context, in TurnInput, sess *types.TutorSession, decision router.Decision, langDet types.LanguageDetection, emotionDet types.EmotionDetection, intentDet types.IntentDetection, cacheHit bool, outcome turnOutcome, sink Sink) {
	scores := p.validator.Validate(outcome.response, langDet.Language, emotionDet.Emotion)

	aiMsg := &types.Message{
		ChatID:  in.ChatID,
		Role:    types.RoleAssistant,
		Content: outcome.response,
		Metadata: types.MessageMetadata{
			Intent:           intentDet.Intent,
			Emotion:          emotionDet.Emotion,
			DetectedLanguage: langDet.Language,
			Model:            outcome.model,
			Tier:             string(decision.Tier),
			Cost:             outcome.cost,
			CacheHit:         cacheHit,
			Validation:       scores.Map(),
		},
	}
	if err := p.ledger.Add(ctx, aiMsg); err != nil {
		slog.Warn("failed to persist assistant message", "chat_id", in.ChatID, "error", err.Error())
	}

	// Only completed fresh generations feed the semantic cache.
	if !cacheHit && outcome.err == nil && p.cache != nil {
		if embedding := p.cache.Store(ctx, in.Text, outcome.response); embedding != nil && p.persister != nil {
			if err := p.persister.Add(ctx, in.Text, outcome.response, embedding); err != nil {
				slog.Debug("failed to persist cache entry", "error", err.Error())
			}
		}
	}

	count, err := p.ledger.CountByChat(ctx, in.ChatID)
	if err != nil {
		slog.Warn("failed to count messages", "chat_id", in.ChatID, "error", err.Error())
	} else {
		phase, changed, aerr := p.sessions.MaybeAdvance(ctx, sess, count)
		if aerr != nil {
			slog.Warn("failed to advance phase", "chat_id", in.ChatID, "error", aerr.Error())
		}
		if changed {
			sink.PhaseChange(phase, sess.Progress)
		}
	}

	sink.TextComplete(TurnMeta{
		Model:    outcome.model,
		Tier:     string(decision.Tier),
		Cost:     outcome.cost,
		CacheHit: cacheHit,
		Phase:    sess.Phase,
	})
}

// applyIntent folds intent entities into the adaptive metrics.
func (p *Pipeline) applyIntent(ctx context.Context, sess *types.TutorSession, det types.IntentDetection) {
	switch det.Intent {
	case types.IntentSubmitAnswer:
		if _, ok := det.Entities["answer_value"]; ok {
			if err := p.sessions.RecordCheckpoint(ctx, sess, sess.Topic); err != nil {
				slog.Warn("failed to record checkpoint", "chat_id", sess.ChatID, "error", err.Error())
			}
		}
	case types.IntentFrustration:
		if err := p.sessions.RecordMisconception(ctx, sess, sess.Topic); err != nil {
			slog.Warn("failed to record misconception", "chat_id", sess.ChatID, "error", err.Error())
		}
	}
}
