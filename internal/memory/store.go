// Package memory provides the durable conversation log, user preferences and
// guild settings.
package memory

import (
	"context"
	"time"
)

// Entry is one persisted chat line. Entries are append-only.
type Entry struct {
	ID        string
	UserID    string
	ChannelID string
	Timestamp time.Time
	Content   string
}

// SettingPrimaryGuild holds the guild the owner marked as home.
const SettingPrimaryGuild = "primary_guild"

// Store is the persistent memory surface. Each call is atomic on its own;
// calls are not linked transactionally.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// LastN returns at most n entries of the channel, oldest first.
	LastN(ctx context.Context, channelID string, n int) ([]Entry, error)
	Title(ctx context.Context, userID string) (string, bool, error)
	SetTitle(ctx context.Context, userID, title string) error
	Setting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	Close() error
}

// Recaller is implemented by stores that can search older entries by meaning.
type Recaller interface {
	Recall(ctx context.Context, channelID, query string, limit int) ([]Entry, error)
}

// Embedder turns text into a vector for semantic recall.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
