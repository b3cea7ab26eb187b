package stream

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/verbalearn/tutorcore/internal/models"
)

// EventType tags generator events.
type EventType string

const (
	// EventChunk is one raw token delta, for the text channel.
	EventChunk EventType = "chunk"
	// EventSentence is a completed sentence, for speech dispatch.
	EventSentence EventType = "sentence"
	// EventComplete carries final cost/model metadata.
	EventComplete EventType = "complete"
	// EventError is terminal and still carries accrued partial cost.
	EventError EventType = "error"
)

// Event is one generator output.
type Event struct {
	Type     EventType
	Chunk    string
	Sentence Sentence
	Response string
	Model    string
	Cost     float64
	Usage    models.Usage
	Err      error
}

// Generator turns an LLM token stream into ordered chunk/sentence events.
type Generator struct {
	llm            models.LLM
	costPerMillion float64
}

// NewGenerator returns a Generator over the routed model.
func NewGenerator(llm models.LLM, costPerMillionTokens float64) *Generator {
	return &Generator{llm: llm, costPerMillion: costPerMillionTokens}
}

// Run streams the completion, emitting events on the returned channel. The
// channel closes after the terminal Complete or Error event.
func (g *Generator) Run(ctx context.Context, systemPrompt, userText string) <-chan Event {
	events := make(chan Event, 16)

	go func() {
		defer close(events)

		seg := NewSegmenter()
		var full strings.Builder

		usage, err := g.llm.CompleteStream(ctx, systemPrompt, userText, func(delta string) error {
			full.WriteString(delta)
			events <- Event{Type: EventChunk, Chunk: delta}
			for _, sent := range seg.Push(delta) {
				events <- Event{Type: EventSentence, Sentence: sent}
			}
			return nil
		})
		if err != nil {
			// Accrued partial cost still travels with the error.
			cost := g.cost(usage, full.Len())
			slog.Warn("generation stream failed", "model", g.llm.Name(), "partial_cost", cost, "error", err.Error())
			events <- Event{Type: EventError, Err: err, Model: g.llm.Name(), Cost: cost, Usage: usage, Response: full.String()}
			return
		}

		if sent := seg.Flush(); sent != nil {
			events <- Event{Type: EventSentence, Sentence: *sent}
		}
		events <- Event{
			Type:     EventComplete,
			Response: full.String(),
			Model:    g.llm.Name(),
			Cost:     g.cost(usage, full.Len()),
			Usage:    usage,
		}
	}()

	return events
}

// cost converts usage to dollars; when the provider reported nothing, a
// 4-chars-per-token estimate covers the partial output.
func (g *Generator) cost(usage models.Usage, responseBytes int) float64 {
	tokens := usage.PromptTokens + usage.CompletionTokens
	if tokens == 0 && responseBytes > 0 {
		tokens = int64(responseBytes / 4)
	}
	return float64(tokens) / 1_000_000 * g.costPerMillion
}

// Replay converts a cached response into the same event shape as a live
// generation: word-sized chunks, segmented sentences, zero cost.
func Replay(ctx context.Context, response, model string) <-chan Event {
	events := make(chan Event, 16)

	go func() {
		defer close(events)

		seg := NewSegmenter()
		words := strings.Fields(response)
		for i, word := range words {
			chunk := word
			if i < len(words)-1 {
				chunk += " "
			}
			if !utf8.ValidString(chunk) {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			events <- Event{Type: EventChunk, Chunk: chunk}
			for _, sent := range seg.Push(chunk) {
				events <- Event{Type: EventSentence, Sentence: sent}
			}
		}
		if sent := seg.Flush(); sent != nil {
			events <- Event{Type: EventSentence, Sentence: *sent}
		}
		events <- Event{Type: EventComplete, Response: response, Model: model, Cost: 0}
	}()

	return events
}
