// Package responder produces conversational replies through a completion service.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jarvis-bot/internal/ai"
	"jarvis-bot/internal/apperr"
	"jarvis-bot/internal/intent"
	"jarvis-bot/internal/memory"
	"jarvis-bot/internal/rag"
	"jarvis-bot/internal/state"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	placeholderText    = "⏳"
	notConfiguredReply = "⚙️ My language systems are not configured."
	failedReply        = "⚠️ I couldn't come up with a reply just now."
	interruptedNote    = "\n*(reply interrupted)*"
)

var errCeilingReached = errors.New("reply ceiling reached")

// Completer is the language-model collaborator.
type Completer interface {
	Complete(ctx context.Context, messages []ai.Message) (string, error)
	Stream(ctx context.Context, messages []ai.Message, onDelta func(string) error) error
}

// ChannelMessage is a recent message as read back from the platform.
type ChannelMessage struct {
	ID         string
	AuthorID   string
	AuthorName string
	Bot        bool
	Content    string
}

// Output is the outbound chat surface.
type Output interface {
	Send(ctx context.Context, channelID, text string) (string, error)
	Edit(ctx context.Context, channelID, messageID, text string) error
	// Recent returns the latest messages of a channel, oldest first.
	Recent(ctx context.Context, channelID string, limit int) ([]ChannelMessage, error)
}

type Config struct {
	BotID            string
	OwnerID          string
	Persona          string
	OwnerPrefix      string
	DisclosureSuffix string
	MaxLength        int
	Window           int
	Stream           bool
	EditInterval     time.Duration
	AssistCooldown   time.Duration
}

type Responder struct {
	completer Completer
	store     memory.Store
	state     *state.Store
	out       Output
	retriever *rag.Retriever
	cfg       Config
	log       *zap.Logger
	now       func() time.Time
}

func New(completer Completer, store memory.Store, st *state.Store, out Output, retriever *rag.Retriever, cfg Config, log *zap.Logger) *Responder {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	if cfg.Window <= 0 {
		cfg.Window = 6
	}
	if cfg.EditInterval <= 0 {
		cfg.EditInterval = time.Second
	}
	return &Responder{
		completer: completer,
		store:     store,
		state:     st,
		out:       out,
		retriever: retriever,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// Converse answers a message addressed to the bot. A non-empty title is
// stored as the sender's preferred address instead of generating a reply.
func (r *Responder) Converse(ctx context.Context, ev intent.Event, title string) {
	if title != "" {
		r.storeTitle(ctx, ev, title)
		return
	}

	window, err := r.store.LastN(ctx, ev.ChannelID, r.cfg.Window)
	if err != nil {
		r.log.Warn("Reading conversation memory failed", zap.String("channel", ev.ChannelID), zap.Error(err))
	}
	storedTitle, _, err := r.store.Title(ctx, ev.AuthorID)
	if err != nil {
		r.log.Warn("Reading user preference failed", zap.String("user", ev.AuthorID), zap.Error(err))
	}

	messages := r.prompt(ctx, ev, window, storedTitle)

	// Persist the trigger before generating so the window stays consistent
	// even if the process dies mid-reply.
	if err := r.store.Append(ctx, memory.Entry{
		ID:        ev.MessageID,
		UserID:    ev.AuthorID,
		ChannelID: ev.ChannelID,
		Timestamp: ev.Timestamp,
		Content:   ev.Content,
	}); err != nil {
		r.log.Warn("Persisting trigger message failed", zap.String("channel", ev.ChannelID), zap.Error(err))
	}

	f := r.formatterFor(ev, storedTitle)
	var reply string
	if r.cfg.Stream {
		reply = r.streamReply(ctx, ev.ChannelID, messages, f)
	} else {
		reply = r.singleReply(ctx, ev.ChannelID, messages, f)
	}
	if reply == "" {
		return
	}

	if err := r.store.Append(ctx, memory.Entry{
		UserID:    r.cfg.BotID,
		ChannelID: ev.ChannelID,
		Timestamp: r.now(),
		Content:   reply,
	}); err != nil {
		r.log.Warn("Persisting reply failed", zap.String("channel", ev.ChannelID), zap.Error(err))
	}
	r.state.RecordBotReply(ev.ChannelID, ev.AuthorID, r.now())
}

// Assist sends a short unprompted hint for a watched keyword and starts the
// global cooldown.
func (r *Responder) Assist(ctx context.Context, ev intent.Event) {
	r.state.SetCooldownUntil(r.now().Add(r.cfg.AssistCooldown))

	messages := []ai.Message{
		{Role: ai.RoleSystem, Content: r.cfg.Persona},
		{Role: ai.RoleSystem, Content: "You overheard this message in a chat channel. If you can help, reply in at most two sentences."},
		{Role: ai.RoleUser, Content: ev.Content},
	}
	title, _, err := r.store.Title(ctx, ev.AuthorID)
	if err != nil {
		r.log.Warn("Reading user preference failed", zap.String("user", ev.AuthorID), zap.Error(err))
	}
	if r.singleReply(ctx, ev.ChannelID, messages, r.formatterFor(ev, title)) != "" {
		r.state.RecordBotReply(ev.ChannelID, ev.AuthorID, r.now())
	}
}

func (r *Responder) storeTitle(ctx context.Context, ev intent.Event, title string) {
	text := fmt.Sprintf("Very well. I shall address you as %s from now on.", title)
	if err := r.store.SetTitle(ctx, ev.AuthorID, title); err != nil {
		r.log.Warn("Storing preferred title failed", zap.String("user", ev.AuthorID), zap.Error(err))
		text = "⚠️ I couldn't save that preference just now."
	}
	f := formatter{limit: r.cfg.MaxLength}
	if _, err := r.out.Send(ctx, ev.ChannelID, f.final(text)); err != nil {
		r.log.Warn("Sending reply failed", zap.String("channel", ev.ChannelID), zap.Error(err))
		return
	}
	r.state.RecordBotReply(ev.ChannelID, ev.AuthorID, r.now())
}

func (r *Responder) prompt(ctx context.Context, ev intent.Event, window []memory.Entry, title string) []ai.Message {
	system := r.cfg.Persona
	switch {
	case ev.AuthorID == r.cfg.OwnerID:
		system += "\nYou are speaking with your creator. Address them as sir."
	case title != "":
		system += fmt.Sprintf("\nAddress this user as %s.", title)
	}
	messages := []ai.Message{{Role: ai.RoleSystem, Content: system}}

	recent, err := r.out.Recent(ctx, ev.ChannelID, r.cfg.Window+1)
	if err != nil {
		r.log.Debug("Reading recent channel messages failed", zap.Error(err))
	}
	recent = lo.Filter(recent, func(m ChannelMessage, _ int) bool {
		return !m.Bot && m.ID != ev.MessageID && strings.TrimSpace(m.Content) != ""
	})
	if len(recent) > r.cfg.Window {
		recent = recent[len(recent)-r.cfg.Window:]
	}
	if len(recent) > 0 {
		lines := lo.Map(recent, func(m ChannelMessage, _ int) string {
			return m.AuthorName + ": " + m.Content
		})
		messages = append(messages, ai.Message{
			Role:    ai.RoleSystem,
			Content: "Recent messages in this channel:\n" + strings.Join(lines, "\n"),
		})
	}

	if r.retriever != nil {
		note, err := r.retriever.RelevantContext(ctx, ev.ChannelID, ev.Content, window)
		if err != nil {
			r.log.Debug("Semantic recall failed", zap.Error(err))
		} else if note != "" {
			messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: note})
		}
	}

	for _, e := range window {
		role := ai.RoleUser
		if e.UserID == r.cfg.BotID {
			role = ai.RoleAssistant
		}
		messages = append(messages, ai.Message{Role: role, Content: e.Content})
	}
	return append(messages, ai.Message{Role: ai.RoleUser, Content: ev.Content})
}

func (r *Responder) formatterFor(ev intent.Event, title string) formatter {
	f := formatter{limit: r.cfg.MaxLength}
	switch {
	case ev.AuthorID == r.cfg.OwnerID:
		f.prefix = r.cfg.OwnerPrefix
	case title != "":
		f.prefix = title + ", "
	default:
		f.suffix = r.cfg.DisclosureSuffix
	}
	return f
}

// singleReply sends the reply in one message and returns what was sent, or
// "" when only a failure notice went out.
func (r *Responder) singleReply(ctx context.Context, channelID string, messages []ai.Message, f formatter) string {
	body, err := r.completer.Complete(ctx, messages)
	if err == nil && strings.TrimSpace(body) == "" {
		err = apperr.Transient("completion", errors.New("empty reply"))
	}
	if err != nil {
		r.log.Warn("Completion failed", zap.String("channel", channelID), zap.Error(err))
		r.send(ctx, channelID, failureText(err))
		return ""
	}
	text := f.final(body)
	if !r.send(ctx, channelID, text) {
		return ""
	}
	return text
}

// streamReply edits a placeholder as tokens arrive. Every edit extends the
// previous one; nothing already shown is rewritten.
func (r *Responder) streamReply(ctx context.Context, channelID string, messages []ai.Message, f formatter) string {
	msgID, err := r.out.Send(ctx, channelID, placeholderText)
	if err != nil {
		r.log.Warn("Sending placeholder failed", zap.String("channel", channelID), zap.Error(err))
		return ""
	}

	var body strings.Builder
	shown := ""
	lastEdit := r.now()
	edit := func(text string) {
		if text == shown {
			return
		}
		if err := r.out.Edit(ctx, channelID, msgID, text); err != nil {
			r.log.Debug("Editing streamed reply failed", zap.Error(err))
			return
		}
		shown = text
		lastEdit = r.now()
	}

	err = r.completer.Stream(ctx, messages, func(delta string) error {
		body.WriteString(delta)
		view, cut := f.view(body.String())
		if cut {
			return errCeilingReached
		}
		if r.now().Sub(lastEdit) >= r.cfg.EditInterval {
			edit(view)
		}
		return nil
	})
	if errors.Is(err, errCeilingReached) {
		err = nil
	}

	switch {
	case err != nil && body.Len() == 0:
		r.log.Warn("Completion stream failed", zap.String("channel", channelID), zap.Error(err))
		edit(failureText(err))
		return ""
	case err != nil:
		r.log.Warn("Completion stream interrupted", zap.String("channel", channelID), zap.Error(err))
		view, _ := f.view(body.String())
		edit(view + interruptedNote)
		return view
	case strings.TrimSpace(body.String()) == "":
		edit(failedReply)
		return ""
	}
	final := f.final(body.String())
	edit(final)
	return final
}

func (r *Responder) send(ctx context.Context, channelID, text string) bool {
	if _, err := r.out.Send(ctx, channelID, text); err != nil {
		r.log.Warn("Sending reply failed", zap.String("channel", channelID), zap.Error(err))
		return false
	}
	return true
}

func failureText(err error) string {
	if errors.Is(err, apperr.ErrNotConfigured) {
		return notConfiguredReply
	}
	return failedReply
}
