// internal/database/db.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jarvis-bot/internal/memory"
	"jarvis-bot/internal/models"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// DB is the postgres-backed memory store.
type DB struct {
	*gorm.DB
	embedder memory.Embedder
	log      *zap.Logger
}

var (
	_ memory.Store    = (*DB)(nil)
	_ memory.Recaller = (*DB)(nil)
)

func NewDB(host, user, password, dbname string, port int, log *zap.Logger) (*DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		host, user, password, dbname, port)

	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}

	// Enable pgvector extension
	if err := gormDB.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, err
	}

	db := &DB{DB: gormDB, log: log}
	if err := db.migrate(); err != nil {
		return nil, err
	}
	if err := db.Probe(context.Background()); err != nil {
		log.Warn("Memory tables failed integrity probe, rebuilding empty", zap.Error(err))
		if err := db.Migrator().DropTable(models.All()...); err != nil {
			return nil, fmt.Errorf("drop corrupt tables: %w", err)
		}
		if err := db.migrate(); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func (db *DB) migrate() error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// SetEmbedder turns on embedding generation for appended entries.
func (db *DB) SetEmbedder(e memory.Embedder) {
	db.embedder = e
}

// Probe reads one row of every table.
func (db *DB) Probe(ctx context.Context) error {
	for _, m := range models.All() {
		if !db.Migrator().HasTable(m) {
			return fmt.Errorf("missing table for %T", m)
		}
		var n int64
		if err := db.WithContext(ctx).Model(m).Limit(1).Count(&n).Error; err != nil {
			return fmt.Errorf("read %T: %w", m, err)
		}
	}
	return nil
}

func (db *DB) Append(ctx context.Context, e memory.Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	row := &models.MemoryEntry{
		EntryID:   e.ID,
		UserID:    e.UserID,
		ChannelID: e.ChannelID,
		Content:   e.Content,
		Timestamp: e.Timestamp,
	}

	if db.embedder != nil && e.Content != "" {
		embedding, err := db.embedder.Embed(ctx, e.Content)
		if err != nil {
			db.log.Debug("Storing entry without embedding", zap.Error(err))
		} else {
			v := pgvector.NewVector(embedding)
			row.Embedding = &v
		}
	}

	return db.WithContext(ctx).Create(row).Error
}

func (db *DB) LastN(ctx context.Context, channelID string, n int) ([]memory.Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	var rows []models.MemoryEntry
	err := db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("seq DESC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]memory.Entry, len(rows))
	for i, r := range rows {
		entries[len(rows)-1-i] = toEntry(r)
	}
	return entries, nil
}

// Recall returns the entries of a channel closest in meaning to query.
func (db *DB) Recall(ctx context.Context, channelID, query string, limit int) ([]memory.Entry, error) {
	if db.embedder == nil {
		return nil, nil
	}
	embedding, err := db.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	var rows []models.MemoryEntry
	err = db.WithContext(ctx).
		Where("channel_id = ? AND embedding IS NOT NULL", channelID).
		Clauses(clause.OrderBy{
			Expression: clause.Expr{SQL: "embedding <-> ?", Vars: []any{pgvector.NewVector(embedding)}},
		}).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search similar entries: %w", err)
	}

	entries := make([]memory.Entry, len(rows))
	for i, r := range rows {
		entries[i] = toEntry(r)
	}
	return entries, nil
}

func (db *DB) Title(ctx context.Context, userID string) (string, bool, error) {
	var pref models.UserPreference
	err := db.WithContext(ctx).First(&pref, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return pref.Title, true, nil
}

func (db *DB) SetTitle(ctx context.Context, userID, title string) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&models.UserPreference{UserID: userID, Title: title}).Error
}

func (db *DB) Setting(ctx context.Context, key string) (string, bool, error) {
	var s models.GuildSetting
	err := db.WithContext(ctx).First(&s, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s.Value, true, nil
}

func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&models.GuildSetting{Key: key, Value: value}).Error
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toEntry(r models.MemoryEntry) memory.Entry {
	return memory.Entry{
		ID:        r.EntryID,
		UserID:    r.UserID,
		ChannelID: r.ChannelID,
		Timestamp: r.Timestamp,
		Content:   r.Content,
	}
}
