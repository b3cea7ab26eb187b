// Package models provides the provider adapters behind the pipeline: chat
// completion, embedding, speech synthesis, and transcription.
package models

import "context"

// Usage is token accounting reported by a completion.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// StreamHandler receives each token delta as it arrives.
type StreamHandler func(delta string) error

// LLM is the completion boundary. Implementations stream token deltas to the
// handler and return final usage.
type LLM interface {
	Name() string
	CompleteStream(ctx context.Context, systemPrompt, userText string, fn StreamHandler) (Usage, error)
}

// Embedder converts text to a fixed-length vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Synthesizer converts one sentence of text to audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice string, speed float64) ([]byte, error)
}

// Transcription is the speech-to-text result.
type Transcription struct {
	Text       string
	Confidence float64
}

// Transcriber converts learner audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language string) (Transcription, error)
}
