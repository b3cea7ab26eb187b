package models

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go/v3"
)

// OpenAISynthesizer renders text to audio via the speech endpoint.
type OpenAISynthesizer struct {
	client *openai.Client
	model  string
}

// NewOpenAISynthesizer returns a Synthesizer bound to modelName.
func NewOpenAISynthesizer(client *openai.Client, modelName string) (*OpenAISynthesizer, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}
	return &OpenAISynthesizer{client: client, model: modelName}, nil
}

// Synthesize returns MP3 audio bytes for one sentence.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string, voice string, speed float64) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	if voice == "" {
		voice = "alloy"
	}
	if speed <= 0 {
		speed = 1.0
	}

	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
		Speed:          openai.Float(speed),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesized audio: %w", err)
	}
	return audio, nil
}

// OpenAITranscriber converts learner audio to text.
type OpenAITranscriber struct {
	client *openai.Client
	model  string
}

// NewOpenAITranscriber returns a Transcriber bound to modelName.
func NewOpenAITranscriber(client *openai.Client, modelName string) (*OpenAITranscriber, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}
	return &OpenAITranscriber{client: client, model: modelName}, nil
}

// Transcribe runs speech-to-text over the uploaded audio. The provider does
// not report word confidence on this endpoint, so a fixed estimate is used.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio []byte, language string) (Transcription, error) {
	if len(audio) == 0 {
		return Transcription{}, fmt.Errorf("audio cannot be empty")
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), "audio.webm", "audio/webm"),
		Model: openai.AudioModel(t.model),
	}
	if language != "" {
		params.Language = openai.String(language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return Transcription{}, fmt.Errorf("failed to transcribe audio: %w", err)
	}
	return Transcription{Text: resp.Text, Confidence: 0.9}, nil
}
