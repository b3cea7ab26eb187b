package models

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// openaiLLM wraps an OpenAI-compatible chat client for one model.
type openaiLLM struct {
	client *openai.Client
	name   string
}

// NewOpenAIClient builds the shared API client.
func NewOpenAIClient(apiKey string) (*openai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &client, nil
}

// NewOpenAILLM returns an LLM bound to modelName.
func NewOpenAILLM(client *openai.Client, modelName string) (LLM, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}
	return &openaiLLM{client: client, name: modelName}, nil
}

func (m *openaiLLM) Name() string {
	return m.name
}

// CompleteStream streams token deltas to fn and returns final usage. Chunks
// that carry no usable delta are skipped, the stream continues.
func (m *openaiLLM) CompleteStream(ctx context.Context, systemPrompt, userText string, fn StreamHandler) (Usage, error) {
	if fn == nil {
		return Usage{}, fmt.Errorf("stream handler is required")
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(m.name),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userText),
		},
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	defer func() {
		if err := stream.Close(); err != nil {
			slog.Error("failed to close completion stream", "error", err.Error())
		}
	}()

	var usage Usage
	for stream.Next() {
		chunk := stream.Current()

		if chunk.Usage.TotalTokens > 0 {
			usage.PromptTokens = chunk.Usage.PromptTokens
			usage.CompletionTokens = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := fn(delta); err != nil {
			return usage, err
		}
	}
	if err := stream.Err(); err != nil {
		return usage, fmt.Errorf("completion stream failed: %w", err)
	}
	return usage, nil
}
