package moderation

import (
	"strconv"
	"strings"
	"time"
)

type Kind string

const (
	KindBan      Kind = "ban"
	KindKick     Kind = "kick"
	KindWarn     Kind = "warn"
	KindMute     Kind = "mute"
	KindPurge    Kind = "purge"
	KindLockdown Kind = "lockdown"
	KindUnlock   Kind = "unlock"
	KindMove     Kind = "move"
	KindUnban    Kind = "unban"
)

const (
	DefaultReason     = "No reason provided"
	DefaultPurgeCount = 10
)

var verbs = map[string]Kind{
	"ban":      KindBan,
	"kick":     KindKick,
	"warn":     KindWarn,
	"mute":     KindMute,
	"timeout":  KindMute,
	"purge":    KindPurge,
	"lockdown": KindLockdown,
	"lock":     KindLockdown,
	"unlock":   KindUnlock,
	"move":     KindMove,
	"drag":     KindMove,
	"unban":    KindUnban,
	"pardon":   KindUnban,
}

// LookupVerb maps a lowercased word to a moderation kind.
func LookupVerb(word string) (Kind, bool) {
	k, ok := verbs[word]
	return k, ok
}

// Directive is an owner-issued moderation order.
type Directive struct {
	Kind        Kind
	GuildID     string
	ChannelID   string
	ModeratorID string
	TargetID    string
	Reason      string

	Count       int
	Destination string
	AllChannels bool
	Duration    time.Duration
	// RawID is the word right after the verb, used by unban.
	RawID string
}

// Parse builds a directive from the message words. verb is the index of the
// word that named the kind; mentions must already exclude the bot itself.
func Parse(kind Kind, words []string, verb int, mentions []string) Directive {
	d := Directive{
		Kind:   kind,
		Reason: reasonFrom(words),
		Count:  DefaultPurgeCount,
	}
	if len(mentions) > 0 {
		d.TargetID = mentions[0]
	}
	if n, ok := firstNumber(words); ok {
		d.Count = n
	}
	if verb+1 < len(words) {
		d.RawID = words[verb+1]
	}

	rest := words
	if verb < len(words) {
		rest = words[verb+1:]
	}
	for _, w := range rest {
		switch strings.ToLower(w) {
		case "all", "server", "everywhere":
			d.AllChannels = true
		}
		if d.Duration == 0 {
			if dur, err := time.ParseDuration(w); err == nil && dur > 0 {
				d.Duration = dur
			}
		}
	}
	d.Destination = destinationFrom(rest)
	return d
}

func reasonFrom(words []string) string {
	for i, w := range words {
		if strings.EqualFold(w, "for") {
			if r := strings.TrimSpace(strings.Join(words[i+1:], " ")); r != "" {
				return r
			}
			break
		}
	}
	return DefaultReason
}

func firstNumber(words []string) (int, bool) {
	for _, w := range words {
		if !isDigits(w) {
			continue
		}
		n, err := strconv.Atoi(w)
		if err != nil || n <= 0 {
			continue
		}
		return n, true
	}
	return 0, false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func destinationFrom(rest []string) string {
	// The reason clause never belongs to the destination.
	for i, w := range rest {
		if strings.EqualFold(w, "for") {
			rest = rest[:i]
			break
		}
	}
	for i, w := range rest {
		if strings.EqualFold(w, "to") {
			return strings.TrimSpace(strings.Join(rest[i+1:], " "))
		}
	}
	var parts []string
	for _, w := range rest {
		if isMention(w) {
			continue
		}
		parts = append(parts, w)
	}
	return strings.Join(parts, " ")
}

func isMention(w string) bool {
	return strings.HasPrefix(w, "<@") && strings.HasSuffix(w, ">")
}
