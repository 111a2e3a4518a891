package services

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"retrochat-backend/internal/models"
)

const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider streams chat completions from OpenAI or any endpoint that
// speaks the same API.
type OpenAIProvider struct {
	baseURL string
}

// NewOpenAIProvider returns a provider for baseURL. An empty baseURL uses the
// public OpenAI endpoint.
func NewOpenAIProvider(baseURL string) *OpenAIProvider {
	return &OpenAIProvider{baseURL: baseURL}
}

func (p *OpenAIProvider) OpenStream(ctx context.Context, apiKey string, req models.CompletionRequest) (FragmentStream, error) {
	cfg := openai.DefaultConfig(apiKey)
	if p.baseURL != "" {
		cfg.BaseURL = p.baseURL
	}
	client := openai.NewClientWithConfig(cfg)

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	stream, err := client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages:    messages,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("create chat completion stream: %w", err)
	}

	return &openAIStream{stream: stream}, nil
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

// Recv returns io.EOF unwrapped once the provider sends [DONE].
func (s *openAIStream) Recv() (string, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Delta.Content, nil
}

func (s *openAIStream) Close() error {
	s.stream.Close()
	return nil
}
