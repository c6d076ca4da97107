package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"jarvis-bot/internal/apperr"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var tables = []string{"memory_entries", "user_preferences", "guild_settings"}

const schema = `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS memory_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		content TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memory_channel ON memory_entries(channel_id, seq);

	CREATE TABLE IF NOT EXISTS user_preferences (
		user_id TEXT PRIMARY KEY,
		title TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS guild_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
`

// OpenSQLite opens the store at dbPath. A file that fails the integrity probe
// is moved aside and replaced by an empty store; the loss is logged.
func OpenSQLite(dbPath string, log *zap.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	store, err := openSQLite(dbPath)
	if err == nil {
		return store, nil
	}
	if !errors.Is(err, apperr.ErrStorageCorrupt) {
		return nil, err
	}

	aside := fmt.Sprintf("%s.corrupt-%d", dbPath, time.Now().Unix())
	log.Warn("Memory store failed integrity probe, starting empty",
		zap.String("path", dbPath),
		zap.String("moved_to", aside),
		zap.Error(err))
	if rerr := os.Rename(dbPath, aside); rerr != nil {
		return nil, fmt.Errorf("move corrupt store aside: %w", rerr)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(dbPath + suffix)
	}
	return openSQLite(dbPath)
}

func openSQLite(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: dbPath}
	if err := s.Probe(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Probe checks that the file is a readable SQLite database with the expected
// tables. Any failure is reported as ErrStorageCorrupt.
func (s *SQLiteStore) Probe(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", apperr.ErrStorageCorrupt, err)
	}
	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: integrity check: %v", apperr.ErrStorageCorrupt, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: integrity check: %s", apperr.ErrStorageCorrupt, result)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: create schema: %v", apperr.ErrStorageCorrupt, err)
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "SELECT 1 FROM "+table+" LIMIT 1"); err != nil {
			return fmt.Errorf("%w: table %s: %v", apperr.ErrStorageCorrupt, table, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_entries (id, user_id, channel_id, created_at, content) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.ChannelID, e.Timestamp.UnixMilli(), e.Content)
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LastN(ctx context.Context, channelID string, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, channel_id, created_at, content
		FROM memory_entries WHERE channel_id = ?
		ORDER BY seq DESC LIMIT ?`, channelID, n)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.ChannelID, &ms, &e.Content); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Timestamp = time.UnixMilli(ms)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (s *SQLiteStore) Title(ctx context.Context, userID string) (string, bool, error) {
	return s.lookup(ctx, `SELECT title FROM user_preferences WHERE user_id = ?`, userID)
}

func (s *SQLiteStore) SetTitle(ctx context.Context, userID, title string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, title) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET title = excluded.title`, userID, title)
	if err != nil {
		return fmt.Errorf("set title: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Setting(ctx context.Context, key string) (string, bool, error) {
	return s.lookup(ctx, `SELECT value FROM guild_settings WHERE key = ?`, key)
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guild_settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

func (s *SQLiteStore) lookup(ctx context.Context, query, arg string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup: %w", err)
	}
	return v, true, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
