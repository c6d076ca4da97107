package responder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"jarvis-bot/internal/ai"
	"jarvis-bot/internal/apperr"
	"jarvis-bot/internal/intent"
	"jarvis-bot/internal/memory"
	"jarvis-bot/internal/state"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	botID   = "100"
	ownerID = "1"
)

type fakeCompleter struct {
	reply    string
	deltas   []string
	err      error
	onCall   func()
	messages [][]ai.Message
}

func (c *fakeCompleter) Complete(_ context.Context, messages []ai.Message) (string, error) {
	c.messages = append(c.messages, messages)
	if c.onCall != nil {
		c.onCall()
	}
	return c.reply, c.err
}

func (c *fakeCompleter) Stream(_ context.Context, messages []ai.Message, onDelta func(string) error) error {
	c.messages = append(c.messages, messages)
	for _, d := range c.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return c.err
}

type sent struct {
	channel string
	text    string
}

type fakeOutput struct {
	sent   []sent
	edits  []string
	recent []ChannelMessage
}

func (o *fakeOutput) Send(_ context.Context, channelID, text string) (string, error) {
	o.sent = append(o.sent, sent{channelID, text})
	return "m-placeholder", nil
}

func (o *fakeOutput) Edit(_ context.Context, _, _, text string) error {
	o.edits = append(o.edits, text)
	return nil
}

func (o *fakeOutput) Recent(context.Context, string, int) ([]ChannelMessage, error) {
	return o.recent, nil
}

type fixture struct {
	r     *Responder
	comp  *fakeCompleter
	out   *fakeOutput
	store *memory.SQLiteStore
	state *state.Store
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store, err := memory.OpenSQLite(filepath.Join(t.TempDir(), "m.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg.BotID = botID
	cfg.OwnerID = ownerID
	if cfg.Persona == "" {
		cfg.Persona = "You are Jarvis."
	}
	f := &fixture{comp: &fakeCompleter{}, out: &fakeOutput{}, store: store, state: state.NewStore()}
	f.r = New(f.comp, store, f.state, f.out, nil, cfg, zap.NewNop())
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	f.r.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return f
}

func event(author, content string) intent.Event {
	return intent.Event{
		MessageID: "msg-" + content,
		AuthorID:  author,
		ChannelID: "c1",
		Content:   content,
		Timestamp: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

var rawMention = regexp.MustCompile(`<@[!&]?\d+>`)

func TestSanitize_NeutralisesEveryPing(t *testing.T) {
	inputs := []string{
		"@everyone look",
		"hey @here",
		"<@123> and <@!456> and <@&789>",
		"@@everyone@here",
		"plain text",
	}
	for _, in := range inputs {
		out := Sanitize(in)
		require.NotContains(t, out, "@everyone")
		require.NotContains(t, out, "@here")
		require.False(t, rawMention.MatchString(out), out)
		require.Equal(t, strings.ReplaceAll(in, "\u200b", ""), strings.ReplaceAll(out, "\u200b", ""))
	}
}

func TestFormatter_TruncatesWithMarker(t *testing.T) {
	req := require.New(t)
	f := formatter{limit: 50, suffix: " -bot"}

	short := f.final("hello")
	req.Equal("hello -bot", short)

	long := f.final(strings.Repeat("é", 200))
	req.LessOrEqual(len([]rune(long)), 50)
	req.True(strings.HasSuffix(long, TruncationMarker+" -bot"))
}

func TestConverse_PersistsTriggerBeforeCompletion(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Config{})
	ctx := context.Background()

	var seen []memory.Entry
	f.comp.reply = "At your service."
	f.comp.onCall = func() {
		seen, _ = f.store.LastN(ctx, "c1", 6)
	}

	f.r.Converse(ctx, event("2", "jarvis status report"), "")

	req.Len(seen, 1)
	req.Equal("jarvis status report", seen[0].Content)

	all, err := f.store.LastN(ctx, "c1", 6)
	req.NoError(err)
	req.Len(all, 2)
	req.Equal(botID, all[1].UserID)

	last, ok := f.state.LastBotReply("c1")
	req.True(ok)
	req.Equal("2", last.UserID)
}

func TestConverse_PromptOrder(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Config{Window: 6})
	ctx := context.Background()
	f.comp.reply = "ok"
	f.out.recent = []ChannelMessage{
		{ID: "r1", AuthorName: "pepper", Content: "lunch?"},
		{ID: "r2", AuthorName: "bot", Bot: true, Content: "ignored"},
		{ID: "msg-jarvis second", AuthorName: "tony", Content: "jarvis second"},
	}

	f.r.Converse(ctx, event("2", "jarvis first"), "")
	f.r.Converse(ctx, event("2", "jarvis second"), "")

	msgs := f.comp.messages[1]
	req.Equal(ai.RoleSystem, msgs[0].Role)
	req.Equal("Recent messages in this channel:\npepper: lunch?", msgs[1].Content)
	req.Equal([]ai.Message{
		{Role: ai.RoleUser, Content: "jarvis first"},
		{Role: ai.RoleAssistant, Content: "ok"},
		{Role: ai.RoleUser, Content: "jarvis second"},
	}, msgs[2:])
}

func TestConverse_PrefixByIdentity(t *testing.T) {
	ctx := context.Background()

	t.Run("owner", func(t *testing.T) {
		f := newFixture(t, Config{OwnerPrefix: "Yes, sir. ", DisclosureSuffix: " [bot]"})
		f.comp.reply = "Done."
		f.r.Converse(ctx, event(ownerID, "jarvis do it"), "")
		require.Equal(t, "Yes, sir. Done.", f.out.sent[0].text)
	})

	t.Run("stored title", func(t *testing.T) {
		f := newFixture(t, Config{OwnerPrefix: "Yes, sir. ", DisclosureSuffix: " [bot]"})
		require.NoError(t, f.store.SetTitle(ctx, "2", "Captain"))
		f.comp.reply = "Done."
		f.r.Converse(ctx, event("2", "jarvis do it"), "")
		require.Equal(t, "Captain, Done.", f.out.sent[0].text)
	})

	t.Run("anyone else", func(t *testing.T) {
		f := newFixture(t, Config{OwnerPrefix: "Yes, sir. ", DisclosureSuffix: " [bot]"})
		f.comp.reply = "Done."
		f.r.Converse(ctx, event("3", "jarvis do it"), "")
		require.Equal(t, "Done. [bot]", f.out.sent[0].text)
	})
}

func TestConverse_SanitisesGeneratedReply(t *testing.T) {
	f := newFixture(t, Config{})
	f.comp.reply = "@everyone ping <@42> now @here"

	f.r.Converse(context.Background(), event("2", "jarvis ping them"), "")

	out := f.out.sent[0].text
	require.NotContains(t, out, "@everyone")
	require.NotContains(t, out, "@here")
	require.False(t, rawMention.MatchString(out))
}

func TestConverse_FailureIsVisible(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, Config{})
	f.comp.err = fmt.Errorf("completion: %w", apperr.ErrNotConfigured)
	f.r.Converse(ctx, event("2", "jarvis hi"), "")
	require.Equal(t, []sent{{"c1", notConfiguredReply}}, f.out.sent)
	_, ok := f.state.LastBotReply("c1")
	require.False(t, ok)

	f = newFixture(t, Config{})
	f.comp.err = apperr.Transient("completion", errors.New("502"))
	f.r.Converse(ctx, event("2", "jarvis hi"), "")
	require.Equal(t, []sent{{"c1", failedReply}}, f.out.sent)

	f = newFixture(t, Config{})
	f.comp.reply = "   "
	f.r.Converse(ctx, event("2", "jarvis hi"), "")
	require.Equal(t, []sent{{"c1", failedReply}}, f.out.sent)
}

func TestConverse_StreamEditsAppendOnly(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Config{Stream: true, EditInterval: time.Nanosecond, DisclosureSuffix: " [bot]"})
	f.comp.deltas = []string{"Good ", "morning", ", @every", "one", "."}

	f.r.Converse(context.Background(), event("2", "jarvis morning"), "")

	req.Equal([]sent{{"c1", placeholderText}}, f.out.sent)
	req.NotEmpty(f.out.edits)
	for i := 1; i < len(f.out.edits); i++ {
		req.True(strings.HasPrefix(f.out.edits[i], f.out.edits[i-1]), "edit %d rewrote %q", i, f.out.edits[i-1])
	}
	final := f.out.edits[len(f.out.edits)-1]
	req.Equal("Good morning, @\u200beveryone. [bot]", final)
}

func TestConverse_StreamStopsAtCeiling(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Config{Stream: true, MaxLength: 40, EditInterval: time.Nanosecond})
	f.comp.deltas = []string{strings.Repeat("a", 20), strings.Repeat("b", 20), strings.Repeat("c", 20), "never"}

	f.r.Converse(context.Background(), event("2", "jarvis talk"), "")

	final := f.out.edits[len(f.out.edits)-1]
	req.True(strings.HasSuffix(final, TruncationMarker))
	req.LessOrEqual(len([]rune(final)), 40)
	req.NotContains(final, "ccc")
}

func TestConverse_StreamFailureReplacesPlaceholder(t *testing.T) {
	f := newFixture(t, Config{Stream: true})
	f.comp.err = apperr.Transient("completion stream", errors.New("reset"))

	f.r.Converse(context.Background(), event("2", "jarvis hi"), "")

	require.Equal(t, []string{failedReply}, f.out.edits)
}

func TestConverse_StoresRequestedTitle(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Config{})
	ctx := context.Background()

	f.r.Converse(ctx, event("2", "jarvis call me Captain"), "Captain")

	title, ok, err := f.store.Title(ctx, "2")
	req.NoError(err)
	req.True(ok)
	req.Equal("Captain", title)
	req.Empty(f.comp.messages)
	req.Len(f.out.sent, 1)
}

func TestAssist_StartsCooldown(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, Config{AssistCooldown: time.Minute})
	f.comp.reply = "Try restarting it."

	f.r.Assist(context.Background(), event("2", "I get an error"))

	req.Equal("Try restarting it.", f.out.sent[0].text)
	req.Equal(time.Date(2026, 5, 1, 9, 1, 1, 0, time.UTC), f.state.CooldownUntil())
	_, ok := f.state.LastBotReply("c1")
	req.True(ok)
}

func TestAssist_AddressesByIdentity(t *testing.T) {
	ctx := context.Background()
	cfg := Config{AssistCooldown: time.Minute, OwnerPrefix: "Yes, sir. ", DisclosureSuffix: " [bot]"}

	f := newFixture(t, cfg)
	f.comp.reply = "Try restarting it."
	f.r.Assist(ctx, event(ownerID, "my build is broken"))
	require.Equal(t, "Yes, sir. Try restarting it.", f.out.sent[0].text)

	f = newFixture(t, cfg)
	f.comp.reply = "Try restarting it."
	f.r.Assist(ctx, event("3", "my build is broken"))
	require.Equal(t, "Try restarting it. [bot]", f.out.sent[0].text)
}
