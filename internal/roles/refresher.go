// Package roles keeps a plain role list of the primary guild posted in a channel.
package roles

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"jarvis-bot/internal/memory"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// SettingRoleListMessage remembers the posted list so later runs edit it.
const SettingRoleListMessage = "role_list_message"

const maxListLength = 1900

type Role struct {
	ID       string
	Name     string
	Position int
	Managed  bool
}

type Lister interface {
	Roles(ctx context.Context, guildID string) ([]Role, error)
}

type Publisher interface {
	Send(ctx context.Context, channelID, text string) (string, error)
	Edit(ctx context.Context, channelID, messageID, text string) error
}

type Refresher struct {
	store     memory.Store
	lister    Lister
	publisher Publisher
	channelID string
	log       *zap.Logger
}

func NewRefresher(store memory.Store, lister Lister, publisher Publisher, channelID string, log *zap.Logger) *Refresher {
	return &Refresher{store: store, lister: lister, publisher: publisher, channelID: channelID, log: log}
}

// Refresh posts or updates the list. It does nothing when no destination or
// primary guild is configured.
func (r *Refresher) Refresh(ctx context.Context) error {
	if r.channelID == "" {
		return nil
	}
	guildID, ok, err := r.store.Setting(ctx, memory.SettingPrimaryGuild)
	if err != nil {
		return fmt.Errorf("read primary guild: %w", err)
	}
	if !ok || guildID == "" {
		return nil
	}

	roles, err := r.lister.Roles(ctx, guildID)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}
	text := Render(guildID, roles)

	msgID, ok, err := r.store.Setting(ctx, SettingRoleListMessage)
	if err != nil {
		return fmt.Errorf("read role list message: %w", err)
	}
	if ok && msgID != "" {
		if err := r.publisher.Edit(ctx, r.channelID, msgID, text); err == nil {
			return nil
		}
		r.log.Info("Role list message gone, posting a new one", zap.String("message", msgID))
	}

	msgID, err = r.publisher.Send(ctx, r.channelID, text)
	if err != nil {
		return fmt.Errorf("post role list: %w", err)
	}
	return r.store.SetSetting(ctx, SettingRoleListMessage, msgID)
}

// Run is the scheduler entry point.
func (r *Refresher) Run(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		r.log.Warn("Role list refresh failed", zap.Error(err))
	}
}

// Render lists roles highest first, leaving out @everyone and integration roles.
func Render(guildID string, roles []Role) string {
	visible := lo.Filter(roles, func(role Role, _ int) bool {
		return role.ID != guildID && !role.Managed
	})
	slices.SortStableFunc(visible, func(a, b Role) int {
		return cmp.Compare(b.Position, a.Position)
	})

	var b strings.Builder
	fmt.Fprintf(&b, "**Roles (%d)**", len(visible))
	for i, role := range visible {
		line := "\n• " + role.Name
		more := fmt.Sprintf("\n…and %d more", len(visible)-i)
		if utf8.RuneCountInString(b.String())+utf8.RuneCountInString(line)+utf8.RuneCountInString(more) > maxListLength {
			b.WriteString(more)
			break
		}
		b.WriteString(line)
	}
	return b.String()
}
