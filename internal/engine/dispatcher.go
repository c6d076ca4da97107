// Package engine routes each classified chat event to the handler that owns it.
package engine

import (
	"context"

	"jarvis-bot/internal/intent"
	"jarvis-bot/internal/memory"
	"jarvis-bot/internal/moderation"
	"jarvis-bot/internal/state"

	"go.uber.org/zap"
)

const (
	reactivatedAck  = "Systems back online. Good to see you."
	primaryGuildAck = "Understood. This server is now home."
	standbyAck      = "Going dark. Say the word when you need me."
	sleepAck        = "I'll keep quiet in this channel."
	wakeAck         = "I'm listening here again."
	shutdownAck     = "Powering down."
	settingFailed   = "⚠️ I couldn't save that setting just now."
)

// Executor runs moderation directives.
type Executor interface {
	Execute(ctx context.Context, d moderation.Directive) moderation.Outcome
}

// Conversation produces conversational replies.
type Conversation interface {
	Converse(ctx context.Context, ev intent.Event, title string)
	Assist(ctx context.Context, ev intent.Event)
}

type Dispatcher struct {
	classifier *intent.Classifier
	state      *state.Store
	store      memory.Store
	executor   Executor
	responder  Conversation
	notify     moderation.Notifier
	shutdown   context.CancelFunc
	log        *zap.Logger
}

func NewDispatcher(
	classifier *intent.Classifier,
	st *state.Store,
	store memory.Store,
	executor Executor,
	responder Conversation,
	notify moderation.Notifier,
	shutdown context.CancelFunc,
	log *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		classifier: classifier,
		state:      st,
		store:      store,
		executor:   executor,
		responder:  responder,
		notify:     notify,
		shutdown:   shutdown,
		log:        log,
	}
}

// Handle classifies one event against the current state and performs the
// resulting action. It returns the intent that was acted on.
func (d *Dispatcher) Handle(ctx context.Context, ev intent.Event) intent.Intent {
	in := d.classifier.Classify(ev, d.state.Snapshot())
	if in.Kind != intent.None {
		d.log.Debug("Classified message",
			zap.String("intent", in.Kind.String()),
			zap.String("rule", in.Rule),
			zap.String("channel", ev.ChannelID),
			zap.String("author", ev.AuthorID),
		)
	}

	switch in.Kind {
	case intent.Reactivate:
		d.state.SetKillSwitch(false)
		d.say(ctx, ev.ChannelID, reactivatedAck)
	case intent.MarkPrimaryGuild:
		d.markPrimaryGuild(ctx, ev)
	case intent.Control:
		d.control(ctx, ev, in.Control)
	case intent.Moderate:
		d.executor.Execute(ctx, in.Directive)
	case intent.Converse:
		d.responder.Converse(ctx, ev, in.Title)
	case intent.AssistiveReply:
		d.responder.Assist(ctx, ev)
	}
	return in
}

func (d *Dispatcher) markPrimaryGuild(ctx context.Context, ev intent.Event) {
	if err := d.store.SetSetting(ctx, memory.SettingPrimaryGuild, ev.GuildID); err != nil {
		d.log.Warn("Saving primary guild failed", zap.String("guild", ev.GuildID), zap.Error(err))
		d.say(ctx, ev.ChannelID, settingFailed)
		return
	}
	d.say(ctx, ev.ChannelID, primaryGuildAck)
}

func (d *Dispatcher) control(ctx context.Context, ev intent.Event, kind intent.ControlKind) {
	switch kind {
	case intent.ControlStandby:
		d.state.SetKillSwitch(true)
		d.say(ctx, ev.ChannelID, standbyAck)
	case intent.ControlSleep:
		d.state.Sleep(ev.ChannelID)
		d.say(ctx, ev.ChannelID, sleepAck)
	case intent.ControlWake:
		d.state.Wake(ev.ChannelID)
		d.say(ctx, ev.ChannelID, wakeAck)
	case intent.ControlShutdown:
		d.say(ctx, ev.ChannelID, shutdownAck)
		d.log.Info("Shutdown requested", zap.String("by", ev.AuthorID))
		if d.shutdown != nil {
			d.shutdown()
		}
	}
}

func (d *Dispatcher) say(ctx context.Context, channelID, text string) {
	if err := d.notify.Notify(ctx, channelID, text); err != nil {
		d.log.Warn("Sending acknowledgement failed", zap.String("channel", channelID), zap.Error(err))
	}
}
