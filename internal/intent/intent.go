// Package intent maps an inbound chat event to exactly one action.
package intent

import (
	"time"

	"jarvis-bot/internal/moderation"
)

// Event is an inbound chat message as the engine sees it.
type Event struct {
	MessageID       string
	AuthorID        string
	AuthorName      string
	AuthorBot       bool
	ChannelID       string
	ChannelName     string
	GuildID         string
	Content         string
	Mentions        []string
	ReplyToAuthorID string
	Timestamp       time.Time
}

type Kind int

const (
	None Kind = iota
	Suppressed
	Reactivate
	MarkPrimaryGuild
	Control
	Moderate
	Converse
	AssistiveReply
)

func (k Kind) String() string {
	switch k {
	case Suppressed:
		return "suppressed"
	case Reactivate:
		return "reactivate"
	case MarkPrimaryGuild:
		return "mark_primary_guild"
	case Control:
		return "control"
	case Moderate:
		return "moderate"
	case Converse:
		return "converse"
	case AssistiveReply:
		return "assistive_reply"
	default:
		return "none"
	}
}

type ControlKind string

const (
	ControlStandby  ControlKind = "standby"
	ControlSleep    ControlKind = "sleep"
	ControlWake     ControlKind = "wake"
	ControlShutdown ControlKind = "shutdown"
)

var controlVerbs = map[string]ControlKind{
	"standby":    ControlStandby,
	"offline":    ControlStandby,
	"killswitch": ControlStandby,
	"sleep":      ControlSleep,
	"wake":       ControlWake,
	"shutdown":   ControlShutdown,
}

// Intent is the single classified action for an event. Only the field
// matching Kind is set.
type Intent struct {
	Kind      Kind
	Rule      string
	Control   ControlKind
	Directive moderation.Directive
	// Title is set on Converse when the sender asked to be addressed differently.
	Title string
}
