// Package state holds the restart-volatile process state shared by all handlers.
package state

import (
	"maps"
	"sync"
	"time"
)

// BotReply records the last reply the bot sent in a channel.
type BotReply struct {
	At     time.Time
	UserID string
}

// Snapshot is a read-only copy of the store for classification.
type Snapshot struct {
	KillSwitch    bool
	Sleeping      map[string]struct{}
	CooldownUntil time.Time
	LastBotReply  map[string]BotReply
}

func (s Snapshot) IsSleeping(channelID string) bool {
	_, ok := s.Sleeping[channelID]
	return ok
}

// Store is the in-memory process state. Each call is atomic; sequences of
// calls are not, so two handlers can still act on the same stale value.
type Store struct {
	mu            sync.RWMutex
	killSwitch    bool
	sleeping      map[string]struct{}
	cooldownUntil time.Time
	lastBotReply  map[string]BotReply
	invites       map[string]map[string]int
}

func NewStore() *Store {
	return &Store{
		sleeping:     make(map[string]struct{}),
		lastBotReply: make(map[string]BotReply),
		invites:      make(map[string]map[string]int),
	}
}

func (s *Store) KillSwitch() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.killSwitch
}

func (s *Store) SetKillSwitch(on bool) {
	s.mu.Lock()
	s.killSwitch = on
	s.mu.Unlock()
}

func (s *Store) Sleep(channelID string) {
	s.mu.Lock()
	s.sleeping[channelID] = struct{}{}
	s.mu.Unlock()
}

func (s *Store) Wake(channelID string) {
	s.mu.Lock()
	delete(s.sleeping, channelID)
	s.mu.Unlock()
}

func (s *Store) IsSleeping(channelID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sleeping[channelID]
	return ok
}

func (s *Store) CooldownUntil() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cooldownUntil
}

func (s *Store) SetCooldownUntil(t time.Time) {
	s.mu.Lock()
	s.cooldownUntil = t
	s.mu.Unlock()
}

func (s *Store) RecordBotReply(channelID, userID string, at time.Time) {
	s.mu.Lock()
	s.lastBotReply[channelID] = BotReply{At: at, UserID: userID}
	s.mu.Unlock()
}

func (s *Store) LastBotReply(channelID string) (BotReply, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.lastBotReply[channelID]
	return r, ok
}

// InviteSnapshot returns a copy of the known invite use counts for a guild.
// ok is false when the guild was never primed.
func (s *Store) InviteSnapshot(guildID string) (map[string]int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.invites[guildID]
	if !ok {
		return map[string]int{}, false
	}
	return maps.Clone(snap), true
}

// SetInviteSnapshot replaces the snapshot for a guild. A code's count never
// goes down: a lower value than the one held is ignored.
func (s *Store) SetInviteSnapshot(guildID string, counts map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.invites[guildID]
	next := make(map[string]int, len(counts))
	for code, uses := range counts {
		if old, ok := prev[code]; ok && old > uses {
			uses = old
		}
		next[code] = uses
	}
	s.invites[guildID] = next
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		KillSwitch:    s.killSwitch,
		Sleeping:      maps.Clone(s.sleeping),
		CooldownUntil: s.cooldownUntil,
		LastBotReply:  maps.Clone(s.lastBotReply),
	}
}
