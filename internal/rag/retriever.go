// internal/rag/retriever.go
package rag

import (
	"context"
	"fmt"
	"strings"

	"jarvis-bot/internal/memory"
)

// Retriever builds a prompt note from semantically related older memory.
type Retriever struct {
	recaller memory.Recaller
	limit    int
}

// NewRetriever returns nil when the store cannot recall, so callers can skip it.
func NewRetriever(store memory.Store, limit int) *Retriever {
	r, ok := store.(memory.Recaller)
	if !ok {
		return nil
	}
	return &Retriever{recaller: r, limit: limit}
}

// RelevantContext returns older channel lines related to query, skipping any
// already present in the window.
func (r *Retriever) RelevantContext(ctx context.Context, channelID, query string, window []memory.Entry) (string, error) {
	entries, err := r.recaller.Recall(ctx, channelID, query, r.limit+len(window))
	if err != nil {
		return "", fmt.Errorf("failed to recall context: %w", err)
	}

	seen := make(map[string]struct{}, len(window))
	for _, e := range window {
		seen[e.ID] = struct{}{}
	}

	var contextParts []string
	for _, e := range entries {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		contextParts = append(contextParts, fmt.Sprintf("[%s] %s", e.Timestamp.Format("2006-01-02"), e.Content))
		if len(contextParts) == r.limit {
			break
		}
	}
	if len(contextParts) == 0 {
		return "", nil
	}
	return "Related earlier notes from this channel:\n" + strings.Join(contextParts, "\n"), nil
}
