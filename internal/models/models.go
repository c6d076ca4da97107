// internal/models/models.go
package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// MemoryEntry is one line of the conversation log. Seq gives insertion order.
type MemoryEntry struct {
	Seq       uint             `gorm:"primaryKey;autoIncrement"`
	EntryID   string           `gorm:"uniqueIndex;not null"`
	UserID    string           `gorm:"not null"`
	ChannelID string           `gorm:"not null;index"`
	Content   string           `gorm:"type:text;not null"`
	Timestamp time.Time        `gorm:"not null"`
	Embedding *pgvector.Vector `gorm:"type:vector(1536)"` // OpenAI embedding size
}

type UserPreference struct {
	UserID    string `gorm:"primaryKey"`
	Title     string `gorm:"not null"`
	UpdatedAt time.Time
}

type GuildSetting struct {
	Key       string `gorm:"primaryKey"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// All lists every model for migration and probing.
func All() []any {
	return []any{&MemoryEntry{}, &UserPreference{}, &GuildSetting{}}
}
