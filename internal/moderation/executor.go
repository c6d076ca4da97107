// Package moderation executes owner-issued moderation directives against a guild.
package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"jarvis-bot/internal/apperr"

	"go.uber.org/zap"
)

// Channel is a guild channel as seen by the executor.
type Channel struct {
	ID   string
	Name string
}

// Guild is the guild-management capability the executor drives.
type Guild interface {
	Ban(ctx context.Context, guildID, userID, reason string, deleteDays int) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	Timeout(ctx context.Context, guildID, userID string, until time.Time) error
	Unban(ctx context.Context, guildID, userID string) error
	SetSendPermission(ctx context.Context, guildID, channelID string, allow bool) error
	TextChannels(ctx context.Context, guildID string) ([]Channel, error)
	VoiceChannels(ctx context.Context, guildID string) ([]Channel, error)
	PurgeMessages(ctx context.Context, channelID string, limit int) (int, error)
	MoveMember(ctx context.Context, guildID, userID, channelID string) error
}

// Notifier posts a short notice in a channel.
type Notifier interface {
	Notify(ctx context.Context, channelID, text string) error
}

// AuditEntry is the record emitted for every successful action.
type AuditEntry struct {
	Action    Kind
	Target    string
	Moderator string
	Reason    string
	Detail    string
	Timestamp time.Time
}

// AuditSink receives audit entries. Implementations skip silently when no
// destination is configured.
type AuditSink interface {
	Audit(ctx context.Context, entry AuditEntry) error
}

type Config struct {
	BanDeleteDays int
	DefaultMute   time.Duration
}

// Outcome describes what a directive did.
type Outcome struct {
	Notice  string
	Audited bool
	Err     error
}

type Executor struct {
	guild  Guild
	notify Notifier
	audit  AuditSink
	cfg    Config
	log    *zap.Logger
	now    func() time.Time
}

func NewExecutor(guild Guild, notify Notifier, audit AuditSink, cfg Config, log *zap.Logger) *Executor {
	if cfg.DefaultMute <= 0 {
		cfg.DefaultMute = 10 * time.Minute
	}
	return &Executor{
		guild:  guild,
		notify: notify,
		audit:  audit,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// Execute runs a directive. It never returns an error: failures become a
// notice in the invoking channel and no audit entry is written.
func (e *Executor) Execute(ctx context.Context, d Directive) Outcome {
	entry, notice, err := e.run(ctx, d)
	out := Outcome{Notice: notice, Err: err}
	if err != nil {
		e.log.Warn("Moderation directive failed",
			zap.String("kind", string(d.Kind)),
			zap.String("target", d.TargetID),
			zap.Error(err))
		out.Notice = apperr.Notice(err)
	} else if entry != nil {
		entry.Moderator = d.ModeratorID
		entry.Timestamp = e.now()
		if aerr := e.audit.Audit(ctx, *entry); aerr != nil {
			e.log.Warn("Audit entry not delivered", zap.String("kind", string(d.Kind)), zap.Error(aerr))
		} else {
			out.Audited = true
		}
	}

	if out.Notice != "" {
		if nerr := e.notify.Notify(ctx, d.ChannelID, out.Notice); nerr != nil {
			e.log.Warn("Moderation notice not delivered", zap.Error(nerr))
		}
	}
	return out
}

func (e *Executor) run(ctx context.Context, d Directive) (*AuditEntry, string, error) {
	switch d.Kind {
	case KindBan, KindKick, KindWarn, KindMute:
		if d.TargetID == "" {
			return nil, "", apperr.Validation("%s needs a mentioned member", d.Kind)
		}
	}

	switch d.Kind {
	case KindBan:
		if err := e.guild.Ban(ctx, d.GuildID, d.TargetID, d.Reason, e.cfg.BanDeleteDays); err != nil {
			return nil, "", err
		}
		return entryFor(d, ""), fmt.Sprintf("🔨 <@%s> has been banned. Reason: %s", d.TargetID, d.Reason), nil

	case KindKick:
		if err := e.guild.Kick(ctx, d.GuildID, d.TargetID, d.Reason); err != nil {
			return nil, "", err
		}
		return entryFor(d, ""), fmt.Sprintf("👢 <@%s> has been kicked. Reason: %s", d.TargetID, d.Reason), nil

	case KindWarn:
		return entryFor(d, ""), fmt.Sprintf("⚠️ <@%s>, you have been warned. Reason: %s", d.TargetID, d.Reason), nil

	case KindMute:
		dur := d.Duration
		if dur <= 0 {
			dur = e.cfg.DefaultMute
		}
		if err := e.guild.Timeout(ctx, d.GuildID, d.TargetID, e.now().Add(dur)); err != nil {
			return nil, "", err
		}
		return entryFor(d, "for "+dur.String()),
			fmt.Sprintf("🔇 <@%s> has been muted for %s. Reason: %s", d.TargetID, dur, d.Reason), nil

	case KindPurge:
		deleted, err := e.guild.PurgeMessages(ctx, d.ChannelID, d.Count)
		if err != nil {
			return nil, "", err
		}
		entry := entryFor(d, fmt.Sprintf("requested %d, deleted %d in <#%s>", d.Count, deleted, d.ChannelID))
		entry.Target = d.ChannelID
		return entry, fmt.Sprintf("🧹 Deleted %d of %d requested messages.", deleted, d.Count), nil

	case KindLockdown, KindUnlock:
		return e.lock(ctx, d)

	case KindMove:
		return e.move(ctx, d)

	case KindUnban:
		if !isDigits(d.RawID) {
			return nil, "", apperr.Validation("unban needs a numeric user id, got %q", d.RawID)
		}
		if err := e.guild.Unban(ctx, d.GuildID, d.RawID); err != nil {
			return nil, "", err
		}
		entry := entryFor(d, "")
		entry.Target = d.RawID
		return entry, fmt.Sprintf("🕊️ User %s has been unbanned.", d.RawID), nil
	}
	return nil, "", apperr.Validation("unknown directive %q", d.Kind)
}

func (e *Executor) lock(ctx context.Context, d Directive) (*AuditEntry, string, error) {
	allow := d.Kind == KindUnlock
	channels := []string{d.ChannelID}
	if d.AllChannels {
		list, err := e.guild.TextChannels(ctx, d.GuildID)
		if err != nil {
			return nil, "", err
		}
		channels = channels[:0]
		for _, c := range list {
			channels = append(channels, c.ID)
		}
	}
	// A channel that refuses the change does not stop the rest.
	var changed []string
	var firstErr error
	for _, id := range channels {
		if err := e.guild.SetSendPermission(ctx, d.GuildID, id, allow); err != nil {
			e.log.Warn("Changing send permission failed",
				zap.String("kind", string(d.Kind)),
				zap.String("channel", id),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		changed = append(changed, id)
	}
	if len(changed) == 0 {
		if firstErr == nil {
			return nil, "", apperr.Validation("no text channels to change")
		}
		return nil, "", firstErr
	}

	scope := "this channel"
	if d.AllChannels {
		scope = fmt.Sprintf("%d channels", len(changed))
		if len(changed) < len(channels) {
			scope = fmt.Sprintf("%d of %d channels", len(changed), len(channels))
		}
	}
	entry := entryFor(d, scope+": "+strings.Join(changed, ","))
	entry.Target = d.ChannelID
	if allow {
		return entry, "🔓 Unlocked " + scope + ".", nil
	}
	return entry, "🔒 Locked down " + scope + ".", nil
}

func (e *Executor) move(ctx context.Context, d Directive) (*AuditEntry, string, error) {
	if d.TargetID == "" {
		return nil, "", apperr.Validation("move needs a mentioned member")
	}
	channels, err := e.guild.VoiceChannels(ctx, d.GuildID)
	if err != nil {
		return nil, "", err
	}
	dest, ok := matchChannel(channels, d.Destination)
	if !ok {
		e.log.Info("No voice channel matches move destination",
			zap.String("destination", d.Destination),
			zap.String("target", d.TargetID))
		return nil, fmt.Sprintf("I couldn't find a voice channel matching %q.", d.Destination), nil
	}
	if err := e.guild.MoveMember(ctx, d.GuildID, d.TargetID, dest.ID); err != nil {
		return nil, "", err
	}
	return entryFor(d, "to "+dest.Name), fmt.Sprintf("🚚 Moved <@%s> to %s.", d.TargetID, dest.Name), nil
}

func matchChannel(channels []Channel, query string) (Channel, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Channel{}, false
	}
	for _, c := range channels {
		if strings.Contains(strings.ToLower(c.Name), q) {
			return c, true
		}
	}
	return Channel{}, false
}

func entryFor(d Directive, detail string) *AuditEntry {
	return &AuditEntry{
		Action: d.Kind,
		Target: d.TargetID,
		Reason: d.Reason,
		Detail: detail,
	}
}
