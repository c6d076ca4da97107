package roles

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"jarvis-bot/internal/memory"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLister struct {
	roles []Role
	calls int
}

func (l *fakeLister) Roles(context.Context, string) ([]Role, error) {
	l.calls++
	return l.roles, nil
}

type fakePublisher struct {
	sent    []string
	edits   []string
	editErr error
	nextID  int
}

func (p *fakePublisher) Send(_ context.Context, _, text string) (string, error) {
	p.sent = append(p.sent, text)
	p.nextID++
	return fmt.Sprintf("msg-%d", p.nextID), nil
}

func (p *fakePublisher) Edit(_ context.Context, _, _, text string) error {
	if p.editErr != nil {
		return p.editErr
	}
	p.edits = append(p.edits, text)
	return nil
}

func newStore(t *testing.T) *memory.SQLiteStore {
	t.Helper()
	store, err := memory.OpenSQLite(filepath.Join(t.TempDir(), "m.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

var guildRoles = []Role{
	{ID: "g1", Name: "@everyone", Position: 0},
	{ID: "r1", Name: "Member", Position: 1},
	{ID: "r2", Name: "Admin", Position: 5},
	{ID: "r3", Name: "Some Bot", Position: 3, Managed: true},
}

func TestRefresh_NoopWithoutDestinationOrGuild(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newStore(t)
	l, p := &fakeLister{roles: guildRoles}, &fakePublisher{}

	req.NoError(NewRefresher(store, l, p, "", zap.NewNop()).Refresh(ctx))
	req.NoError(NewRefresher(store, l, p, "dest", zap.NewNop()).Refresh(ctx))
	req.Zero(l.calls)
	req.Empty(p.sent)
}

func TestRefresh_PostsThenEdits(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := newStore(t)
	req.NoError(store.SetSetting(ctx, memory.SettingPrimaryGuild, "g1"))
	l, p := &fakeLister{roles: guildRoles}, &fakePublisher{}
	r := NewRefresher(store, l, p, "dest", zap.NewNop())

	req.NoError(r.Refresh(ctx))
	req.Equal([]string{"**Roles (2)**\n• Admin\n• Member"}, p.sent)

	req.NoError(r.Refresh(ctx))
	req.Len(p.sent, 1)
	req.Len(p.edits, 1)

	p.editErr = errors.New("unknown message")
	req.NoError(r.Refresh(ctx))
	req.Len(p.sent, 2)
	id, _, err := store.Setting(ctx, SettingRoleListMessage)
	req.NoError(err)
	req.Equal("msg-2", id)
}

func TestRender_StaysUnderLimit(t *testing.T) {
	var many []Role
	for i := 0; i < 500; i++ {
		many = append(many, Role{ID: fmt.Sprint(i + 1), Name: strings.Repeat("x", 20), Position: i})
	}
	out := Render("g1", many)
	require.LessOrEqual(t, utf8.RuneCountInString(out), maxListLength)
	require.Contains(t, out, "more")
}
