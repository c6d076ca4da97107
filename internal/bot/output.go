package bot

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"jarvis-bot/internal/invites"
	"jarvis-bot/internal/moderation"
	"jarvis-bot/internal/responder"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
)

var (
	// Generated text never pings anyone.
	noMentions = &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}}
	// Notices may ping the member they are about, never roles or everyone.
	userMentions = &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers}}
)

// Output sends and edits messages on behalf of the engine.
type Output struct {
	session *discordgo.Session
}

func NewOutput(s *discordgo.Session) *Output {
	return &Output{session: s}
}

func (o *Output) Send(ctx context.Context, channelID, text string) (string, error) {
	msg, err := o.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:         text,
		AllowedMentions: noMentions,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify("send message", err)
	}
	return msg.ID, nil
}

func (o *Output) Edit(ctx context.Context, channelID, messageID, text string) error {
	edit := discordgo.NewMessageEdit(channelID, messageID).SetContent(text)
	edit.AllowedMentions = noMentions
	_, err := o.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	return classify("edit message", err)
}

// Recent returns the latest messages of a channel, oldest first.
func (o *Output) Recent(ctx context.Context, channelID string, limit int) ([]responder.ChannelMessage, error) {
	msgs, err := o.session.ChannelMessages(channelID, min(limit, 100), "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("read messages", err)
	}
	out := lo.FilterMap(msgs, func(m *discordgo.Message, _ int) (responder.ChannelMessage, bool) {
		if m.Author == nil {
			return responder.ChannelMessage{}, false
		}
		return responder.ChannelMessage{
			ID:         m.ID,
			AuthorID:   m.Author.ID,
			AuthorName: displayName(m.Author, m.Member),
			Bot:        m.Author.Bot,
			Content:    m.Content,
		}, true
	})
	// The API returns newest first.
	slices.Reverse(out)
	return out, nil
}

func (o *Output) Notify(ctx context.Context, channelID, text string) error {
	_, err := o.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:         text,
		AllowedMentions: userMentions,
	}, discordgo.WithContext(ctx))
	return classify("send notice", err)
}

// LogChannels posts audit and join records to their configured channels. An
// unset channel drops the record.
type LogChannels struct {
	out         *Output
	modLogID    string
	inviteLogID string
}

func NewLogChannels(out *Output, modLogID, inviteLogID string) *LogChannels {
	return &LogChannels{out: out, modLogID: modLogID, inviteLogID: inviteLogID}
}

func (l *LogChannels) Audit(ctx context.Context, e moderation.AuditEntry) error {
	if l.modLogID == "" {
		return nil
	}
	_, err := l.out.Send(ctx, l.modLogID, formatAudit(e))
	return err
}

func (l *LogChannels) RecordJoin(ctx context.Context, rec invites.JoinRecord) error {
	if l.inviteLogID == "" {
		return nil
	}
	_, err := l.out.Send(ctx, l.inviteLogID, formatJoin(rec))
	return err
}

func formatAudit(e moderation.AuditEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** by <@%s>", strings.ToUpper(string(e.Action)), e.Moderator)
	if e.Target != "" {
		fmt.Fprintf(&b, "\nTarget: %s", e.Target)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, "\nReason: %s", e.Reason)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, "\nDetail: %s", e.Detail)
	}
	fmt.Fprintf(&b, "\n<t:%d:f>", e.Timestamp.Unix())
	return b.String()
}

func formatJoin(rec invites.JoinRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📥 <@%s> joined", rec.UserID)
	if rec.Code != "" {
		fmt.Fprintf(&b, " with invite `%s`", rec.Code)
		if rec.InviterID != "" {
			fmt.Fprintf(&b, " from <@%s>", rec.InviterID)
		}
		fmt.Fprintf(&b, " (%d uses)", rec.Uses)
	} else {
		b.WriteString(" with an unknown invite")
	}
	fmt.Fprintf(&b, "\nAccount age: %s (%s)", humanAge(rec.AccountAge), rec.Risk)
	return b.String()
}

func humanAge(d time.Duration) string {
	hours := int(d.Hours())
	switch {
	case hours < 1:
		return "under an hour"
	case hours < 48:
		return fmt.Sprintf("%d hours", hours)
	default:
		return fmt.Sprintf("%d days", hours/24)
	}
}

func displayName(u *discordgo.User, m *discordgo.Member) string {
	if m != nil && m.Nick != "" {
		return m.Nick
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}
