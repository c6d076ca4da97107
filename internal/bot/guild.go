package bot

import (
	"context"
	"errors"
	"net/http"
	"time"

	"jarvis-bot/internal/apperr"
	"jarvis-bot/internal/invites"
	"jarvis-bot/internal/moderation"
	"jarvis-bot/internal/roles"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
)

const (
	maxPurge         = 100
	bulkDeleteMaxAge = 14 * 24 * time.Hour
)

// Guild drives guild management through the REST API.
type Guild struct {
	session *discordgo.Session
	now     func() time.Time
}

func NewGuild(s *discordgo.Session) *Guild {
	return &Guild{session: s, now: time.Now}
}

func (g *Guild) Ban(ctx context.Context, guildID, userID, reason string, deleteDays int) error {
	return classify("ban", g.session.GuildBanCreateWithReason(guildID, userID, reason, deleteDays, discordgo.WithContext(ctx)))
}

func (g *Guild) Kick(ctx context.Context, guildID, userID, reason string) error {
	return classify("kick", g.session.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx)))
}

func (g *Guild) Timeout(ctx context.Context, guildID, userID string, until time.Time) error {
	return classify("timeout", g.session.GuildMemberTimeout(guildID, userID, &until, discordgo.WithContext(ctx)))
}

func (g *Guild) Unban(ctx context.Context, guildID, userID string) error {
	return classify("unban", g.session.GuildBanDelete(guildID, userID, discordgo.WithContext(ctx)))
}

// SetSendPermission toggles Send Messages for @everyone, whose role id equals
// the guild id, and keeps the rest of the overwrite intact.
func (g *Guild) SetSendPermission(ctx context.Context, guildID, channelID string, allow bool) error {
	ch, err := g.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return classify("read channel", err)
	}
	var allowBits, denyBits int64
	for _, o := range ch.PermissionOverwrites {
		if o.ID == guildID && o.Type == discordgo.PermissionOverwriteTypeRole {
			allowBits, denyBits = o.Allow, o.Deny
		}
	}
	allowBits, denyBits = toggleSend(allowBits, denyBits, allow)
	return classify("set permission", g.session.ChannelPermissionSet(
		channelID, guildID, discordgo.PermissionOverwriteTypeRole, allowBits, denyBits, discordgo.WithContext(ctx)))
}

// toggleSend clears the explicit grant when unlocking so the channel falls
// back to its category and role defaults.
func toggleSend(allowBits, denyBits int64, allow bool) (int64, int64) {
	allowBits &^= discordgo.PermissionSendMessages
	if allow {
		denyBits &^= discordgo.PermissionSendMessages
	} else {
		denyBits |= discordgo.PermissionSendMessages
	}
	return allowBits, denyBits
}

func (g *Guild) TextChannels(ctx context.Context, guildID string) ([]moderation.Channel, error) {
	return g.channels(ctx, guildID, discordgo.ChannelTypeGuildText)
}

func (g *Guild) VoiceChannels(ctx context.Context, guildID string) ([]moderation.Channel, error) {
	return g.channels(ctx, guildID, discordgo.ChannelTypeGuildVoice)
}

func (g *Guild) channels(ctx context.Context, guildID string, kind discordgo.ChannelType) ([]moderation.Channel, error) {
	list, err := g.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("list channels", err)
	}
	return lo.FilterMap(list, func(c *discordgo.Channel, _ int) (moderation.Channel, bool) {
		return moderation.Channel{ID: c.ID, Name: c.Name}, c.Type == kind
	}), nil
}

// PurgeMessages deletes up to limit recent messages. Messages older than the
// bulk-delete horizon are left alone.
func (g *Guild) PurgeMessages(ctx context.Context, channelID string, limit int) (int, error) {
	limit = min(max(limit, 1), maxPurge)
	msgs, err := g.session.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return 0, classify("read messages", err)
	}
	ids := deletable(msgs, g.now())
	switch len(ids) {
	case 0:
		return 0, nil
	case 1:
		err = g.session.ChannelMessageDelete(channelID, ids[0], discordgo.WithContext(ctx))
	default:
		err = g.session.ChannelMessagesBulkDelete(channelID, ids, discordgo.WithContext(ctx))
	}
	if err != nil {
		return 0, classify("delete messages", err)
	}
	return len(ids), nil
}

func deletable(msgs []*discordgo.Message, now time.Time) []string {
	return lo.FilterMap(msgs, func(m *discordgo.Message, _ int) (string, bool) {
		return m.ID, now.Sub(m.Timestamp) < bulkDeleteMaxAge
	})
}

func (g *Guild) MoveMember(ctx context.Context, guildID, userID, channelID string) error {
	return classify("move member", g.session.GuildMemberMove(guildID, userID, &channelID, discordgo.WithContext(ctx)))
}

func (g *Guild) Invites(ctx context.Context, guildID string) ([]invites.Invite, error) {
	list, err := g.session.GuildInvites(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("list invites", err)
	}
	return lo.Map(list, func(inv *discordgo.Invite, _ int) invites.Invite {
		out := invites.Invite{Code: inv.Code, Uses: inv.Uses}
		if inv.Inviter != nil {
			out.InviterID = inv.Inviter.ID
		}
		return out
	}), nil
}

func (g *Guild) Roles(ctx context.Context, guildID string) ([]roles.Role, error) {
	list, err := g.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("list roles", err)
	}
	return lo.Map(list, func(r *discordgo.Role, _ int) roles.Role {
		return roles.Role{ID: r.ID, Name: r.Name, Position: r.Position, Managed: r.Managed}
	}), nil
}

// classify maps REST failures onto the error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		switch code := rest.Response.StatusCode; {
		case code == http.StatusForbidden:
			return apperr.Permission(op, err)
		case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
			return apperr.Transient(op, err)
		case code == http.StatusNotFound || code == http.StatusBadRequest:
			return apperr.Validation("%s: %v", op, err)
		}
	}
	return apperr.Transient(op, err)
}
