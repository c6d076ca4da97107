// internal/ai/embeddings.go
package ai

import (
	"context"
	"errors"
	"fmt"

	"jarvis-bot/internal/apperr"

	"github.com/sashabaranov/go-openai"
)

// Embed creates a vector embedding for semantic recall.
func (ai *AIService) Embed(ctx context.Context, text string) ([]float32, error) {
	if ai.client == nil {
		return nil, fmt.Errorf("embedding: %w", apperr.ErrNotConfigured)
	}
	if text == "" {
		return nil, fmt.Errorf("no text provided for embedding")
	}

	resp, err := ai.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.AdaEmbeddingV2,
	})
	if err != nil {
		return nil, apperr.Transient("embedding", err)
	}
	if len(resp.Data) == 0 {
		return nil, apperr.Transient("embedding", errors.New("no embedding returned"))
	}
	return resp.Data[0].Embedding, nil
}
