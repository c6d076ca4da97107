// Package bot adapts gateway events and REST calls to the engine.
package bot

import (
	"context"
	"regexp"
	"time"

	"jarvis-bot/internal/engine"
	"jarvis-bot/internal/intent"
	"jarvis-bot/internal/invites"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Handlers run one goroutine per gateway event; each gets its own deadline.
const eventTimeout = 2 * time.Minute

type BotHandler struct {
	ctx        context.Context
	dispatcher *engine.Dispatcher
	tracker    *invites.Tracker
	log        *zap.Logger
}

// NewBotHandler ties event handling to ctx; once it is cancelled new events
// are ignored.
func NewBotHandler(ctx context.Context, dispatcher *engine.Dispatcher, tracker *invites.Tracker, log *zap.Logger) *BotHandler {
	return &BotHandler{ctx: ctx, dispatcher: dispatcher, tracker: tracker, log: log}
}

// Register attaches the gateway handlers to the session.
func (h *BotHandler) Register(s *discordgo.Session) {
	s.AddHandler(h.OnMessageCreate)
	s.AddHandler(h.OnGuildMemberAdd)
	s.AddHandler(h.OnGuildCreate)
}

func (h *BotHandler) OnMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if h.ctx.Err() != nil || m.Author == nil {
		return
	}
	ctx, cancel := context.WithTimeout(h.ctx, eventTimeout)
	defer cancel()
	defer h.recoverPanic("message")

	h.dispatcher.Handle(ctx, toEvent(m.Message, channelName(s, m.ChannelID)))
}

func (h *BotHandler) OnGuildMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if h.ctx.Err() != nil || m.Member == nil || m.User == nil {
		return
	}
	ctx, cancel := context.WithTimeout(h.ctx, eventTimeout)
	defer cancel()
	defer h.recoverPanic("member add")

	created, err := discordgo.SnowflakeTimestamp(m.User.ID)
	if err != nil {
		h.log.Warn("Unreadable user id", zap.String("user", m.User.ID), zap.Error(err))
		created = time.Now()
	}
	h.tracker.OnJoin(ctx, m.GuildID, m.User.ID, created)
}

// OnGuildCreate fires when a guild becomes available; it primes the invite
// snapshot so the first join can be attributed.
func (h *BotHandler) OnGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if h.ctx.Err() != nil || g.Guild == nil || g.Unavailable {
		return
	}
	ctx, cancel := context.WithTimeout(h.ctx, eventTimeout)
	defer cancel()

	if err := h.tracker.Prime(ctx, g.ID); err != nil {
		h.log.Warn("Priming invite snapshot failed", zap.String("guild", g.ID), zap.Error(err))
	}
}

func (h *BotHandler) recoverPanic(event string) {
	if r := recover(); r != nil {
		h.log.Error("Event handler panicked", zap.String("event", event), zap.Any("panic", r))
	}
}

var mentionToken = regexp.MustCompile(`<@!?(\d+)>`)

// toEvent converts a gateway message. Mentions keep the order they appear in
// the text; the gateway list is unordered.
func toEvent(m *discordgo.Message, channel string) intent.Event {
	ev := intent.Event{
		MessageID:   m.ID,
		AuthorID:    m.Author.ID,
		AuthorName:  displayName(m.Author, m.Member),
		AuthorBot:   m.Author.Bot,
		ChannelID:   m.ChannelID,
		ChannelName: channel,
		GuildID:     m.GuildID,
		Content:     m.Content,
		Timestamp:   m.Timestamp,
	}
	if m.ReferencedMessage != nil && m.ReferencedMessage.Author != nil {
		ev.ReplyToAuthorID = m.ReferencedMessage.Author.ID
	}

	seen := make(map[string]bool)
	for _, match := range mentionToken.FindAllStringSubmatch(m.Content, -1) {
		if id := match[1]; !seen[id] {
			seen[id] = true
			ev.Mentions = append(ev.Mentions, id)
		}
	}
	for _, u := range m.Mentions {
		if u != nil && !seen[u.ID] {
			seen[u.ID] = true
			ev.Mentions = append(ev.Mentions, u.ID)
		}
	}
	return ev
}

func channelName(s *discordgo.Session, channelID string) string {
	if s.State != nil {
		if ch, err := s.State.Channel(channelID); err == nil {
			return ch.Name
		}
	}
	ch, err := s.Channel(channelID)
	if err != nil {
		return ""
	}
	return ch.Name
}
