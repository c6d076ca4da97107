package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"jarvis-bot/internal/intent"
	"jarvis-bot/internal/memory"
	"jarvis-bot/internal/moderation"
	"jarvis-bot/internal/state"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	botID   = "100"
	ownerID = "1"
)

type fakeExecutor struct{ directives []moderation.Directive }

func (e *fakeExecutor) Execute(_ context.Context, d moderation.Directive) moderation.Outcome {
	e.directives = append(e.directives, d)
	return moderation.Outcome{Audited: true}
}

type fakeConversation struct {
	converse []string
	assist   []string
	titles   []string
}

func (c *fakeConversation) Converse(_ context.Context, ev intent.Event, title string) {
	c.converse = append(c.converse, ev.Content)
	c.titles = append(c.titles, title)
}

func (c *fakeConversation) Assist(_ context.Context, ev intent.Event) {
	c.assist = append(c.assist, ev.Content)
}

type fakeNotifier struct{ texts []string }

func (n *fakeNotifier) Notify(_ context.Context, _, text string) error {
	n.texts = append(n.texts, text)
	return nil
}

type fixture struct {
	d        *Dispatcher
	state    *state.Store
	store    *memory.SQLiteStore
	exec     *fakeExecutor
	conv     *fakeConversation
	notify   *fakeNotifier
	shutdown int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c, err := intent.NewClassifier(intent.Config{
		BotID:               botID,
		OwnerID:             ownerID,
		TriggerWord:         "jarvis",
		ReactivationPhrases: []string{"pepper", "tony stark"},
		PrimaryGuildPhrase:  "this is home",
		WatchedKeywords:     []string{"error"},
		FollowUpWindow:      time.Minute,
	})
	require.NoError(t, err)
	store, err := memory.OpenSQLite(filepath.Join(t.TempDir(), "m.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		state:  state.NewStore(),
		store:  store,
		exec:   &fakeExecutor{},
		conv:   &fakeConversation{},
		notify: &fakeNotifier{},
	}
	f.d = NewDispatcher(c, f.state, store, f.exec, f.conv, f.notify, func() { f.shutdown++ }, zap.NewNop())
	return f
}

func msg(author, content string) intent.Event {
	return intent.Event{
		MessageID: "m-" + content,
		AuthorID:  author,
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   content,
		Timestamp: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestHandle_KillSwitchSuppressesUntilReactivated(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	req.Equal(intent.Control, f.d.Handle(ctx, msg(ownerID, "jarvis standby")).Kind)
	req.True(f.state.KillSwitch())

	for _, ev := range []intent.Event{
		msg("2", "jarvis hello"),
		msg(ownerID, "jarvis ban <@5> for spam"),
		msg("3", "I get an error"),
	} {
		req.Equal(intent.Suppressed, f.d.Handle(ctx, ev).Kind, ev.Content)
	}
	req.Empty(f.exec.directives)
	req.Empty(f.conv.converse)
	req.Empty(f.conv.assist)

	req.Equal(intent.Reactivate, f.d.Handle(ctx, msg("2", "hey PEPPER are you there")).Kind)
	req.False(f.state.KillSwitch())
	req.Equal([]string{standbyAck, reactivatedAck}, f.notify.texts)

	// With the switch already clear the phrase falls through.
	req.Equal(intent.None, f.d.Handle(ctx, msg("2", "pepper")).Kind)
	req.Len(f.notify.texts, 2)
}

func TestHandle_SleepAndWake(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	f.d.Handle(ctx, msg(ownerID, "jarvis sleep"))
	req.True(f.state.IsSleeping("c1"))
	req.Equal(intent.None, f.d.Handle(ctx, msg("2", "jarvis hello")).Kind)

	f.d.Handle(ctx, msg(ownerID, "jarvis wake"))
	req.False(f.state.IsSleeping("c1"))
	req.Equal(intent.Converse, f.d.Handle(ctx, msg("2", "jarvis hello")).Kind)
	req.Equal([]string{"jarvis hello"}, f.conv.converse)
}

func TestHandle_MarkPrimaryGuildPersists(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	req.Equal(intent.MarkPrimaryGuild, f.d.Handle(ctx, msg(ownerID, "Jarvis, this is home.")).Kind)

	v, ok, err := f.store.Setting(ctx, memory.SettingPrimaryGuild)
	req.NoError(err)
	req.True(ok)
	req.Equal("g1", v)
	req.Equal([]string{primaryGuildAck}, f.notify.texts)
}

func TestHandle_RoutesModerationAndConversation(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	ev := msg(ownerID, "jarvis kick <@5> for spam")
	ev.Mentions = []string{"5"}
	f.d.Handle(ctx, ev)
	req.Len(f.exec.directives, 1)
	req.Equal(moderation.KindKick, f.exec.directives[0].Kind)
	req.Equal("5", f.exec.directives[0].TargetID)

	f.d.Handle(ctx, msg("2", "jarvis call me Captain"))
	req.Equal([]string{"Captain"}, f.conv.titles)

	f.d.Handle(ctx, msg("3", "there is an error in the build"))
	req.Equal([]string{"there is an error in the build"}, f.conv.assist)
}

func TestHandle_ShutdownCancels(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.d.Handle(context.Background(), msg(ownerID, "jarvis shutdown"))
	req.Equal(1, f.shutdown)
	req.Equal([]string{shutdownAck}, f.notify.texts)

	f.d.Handle(context.Background(), msg("2", "jarvis shutdown"))
	req.Equal(1, f.shutdown)
}
