// internal/ai/openai.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"jarvis-bot/internal/apperr"

	"github.com/sashabaranov/go-openai"
)

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Message is one prompt turn.
type Message struct {
	Role    string
	Content string
}

type AIService struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewAIService returns a service whose calls fail with ErrNotConfigured when
// apiKey is empty.
func NewAIService(apiKey, baseURL, model string) *AIService {
	if model == "" {
		model = openai.GPT4oMini
	}
	svc := &AIService{model: model, maxTokens: 500}
	if apiKey == "" {
		return svc
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	svc.client = openai.NewClientWithConfig(config)
	return svc
}

func (ai *AIService) Configured() bool {
	return ai.client != nil
}

func (ai *AIService) request(messages []Message) openai.ChatCompletionRequest {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return openai.ChatCompletionRequest{
		Model:       ai.model,
		Messages:    out,
		MaxTokens:   ai.maxTokens,
		Temperature: 0.7,
	}
}

// Complete returns the whole reply in one piece.
func (ai *AIService) Complete(ctx context.Context, messages []Message) (string, error) {
	if ai.client == nil {
		return "", fmt.Errorf("completion: %w", apperr.ErrNotConfigured)
	}
	resp, err := ai.client.CreateChatCompletion(ctx, ai.request(messages))
	if err != nil {
		return "", apperr.Transient("completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.Transient("completion", errors.New("no choices returned"))
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream delivers the reply as it is generated, one delta per call to onDelta.
func (ai *AIService) Stream(ctx context.Context, messages []Message, onDelta func(string) error) error {
	if ai.client == nil {
		return fmt.Errorf("completion stream: %w", apperr.ErrNotConfigured)
	}
	req := ai.request(messages)
	req.Stream = true

	stream, err := ai.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return apperr.Transient("completion stream", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return apperr.Transient("completion stream", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		if err := onDelta(resp.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
}
