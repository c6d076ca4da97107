package intent

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"jarvis-bot/internal/moderation"
	"jarvis-bot/internal/state"

	goahocorasick "github.com/anknown/ahocorasick"
)

type Config struct {
	BotID                string
	OwnerID              string
	TriggerWord          string
	ReactivationPhrases  []string
	PrimaryGuildPhrase   string
	ConfidentialPatterns []string
	WatchedKeywords      []string
	FollowUpWindow       time.Duration
}

// Classifier is a pure function of (event, state snapshot). It performs no I/O
// and never mutates state.
type Classifier struct {
	cfg      Config
	keywords *goahocorasick.Machine
	rules    []rule
}

type rule struct {
	name  string
	match func(c *Classifier, m *message, snap state.Snapshot) (Intent, bool)
}

// message is an event with its tokenisation precomputed.
type message struct {
	Event
	lower  string
	words  []string
	tokens []string
}

func NewClassifier(cfg Config) (*Classifier, error) {
	cfg.TriggerWord = strings.ToLower(strings.TrimSpace(cfg.TriggerWord))
	if cfg.TriggerWord == "" {
		return nil, fmt.Errorf("trigger word is required")
	}
	c := &Classifier{cfg: cfg}

	var patterns [][]rune
	for _, kw := range cfg.WatchedKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			patterns = append(patterns, []rune(kw))
		}
	}
	if len(patterns) > 0 {
		m := new(goahocorasick.Machine)
		if err := m.Build(patterns); err != nil {
			return nil, fmt.Errorf("build keyword matcher: %w", err)
		}
		c.keywords = m
	}

	// First match wins.
	c.rules = []rule{
		{"bot_author", (*Classifier).botAuthor},
		{"kill_switch", (*Classifier).killSwitch},
		{"primary_guild", (*Classifier).primaryGuild},
		{"confidential_channel", (*Classifier).confidential},
		{"owner_command", (*Classifier).ownerCommand},
		{"conversation", (*Classifier).conversation},
		{"watched_keyword", (*Classifier).watchedKeyword},
	}
	return c, nil
}

func (c *Classifier) Classify(ev Event, snap state.Snapshot) Intent {
	m := tokenize(ev)
	for _, r := range c.rules {
		if in, ok := r.match(c, m, snap); ok {
			in.Rule = r.name
			return in
		}
	}
	return Intent{Kind: None, Rule: "none"}
}

func tokenize(ev Event) *message {
	words := strings.Fields(ev.Content)
	tokens := make([]string, len(words))
	for i, w := range words {
		tokens[i] = strings.ToLower(trimPunct(w))
	}
	return &message{
		Event:  ev,
		lower:  strings.ToLower(ev.Content),
		words:  words,
		tokens: tokens,
	}
}

func trimPunct(w string) string {
	return strings.TrimFunc(w, func(r rune) bool {
		return unicode.IsPunct(r) && r != '<' && r != '>' && r != '@'
	})
}

func (c *Classifier) botAuthor(m *message, _ state.Snapshot) (Intent, bool) {
	return Intent{Kind: Suppressed}, m.AuthorBot
}

func (c *Classifier) killSwitch(m *message, snap state.Snapshot) (Intent, bool) {
	if !snap.KillSwitch {
		return Intent{}, false
	}
	for _, p := range c.cfg.ReactivationPhrases {
		if p = strings.ToLower(p); p != "" && strings.Contains(m.lower, p) {
			return Intent{Kind: Reactivate}, true
		}
	}
	return Intent{Kind: Suppressed}, true
}

func (c *Classifier) primaryGuild(m *message, _ state.Snapshot) (Intent, bool) {
	phrase := strings.ToLower(strings.TrimSpace(c.cfg.PrimaryGuildPhrase))
	if !c.isOwner(m) || phrase == "" || !strings.Contains(m.lower, phrase) {
		return Intent{}, false
	}
	return Intent{Kind: MarkPrimaryGuild}, true
}

func (c *Classifier) confidential(m *message, _ state.Snapshot) (Intent, bool) {
	name := strings.ToLower(m.ChannelName)
	for _, p := range c.cfg.ConfidentialPatterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" && strings.Contains(name, p) {
			return Intent{Kind: Suppressed}, true
		}
	}
	return Intent{}, false
}

func (c *Classifier) ownerCommand(m *message, _ state.Snapshot) (Intent, bool) {
	if !c.isOwner(m) || len(m.tokens) == 0 || m.tokens[0] != c.cfg.TriggerWord {
		return Intent{}, false
	}
	i, ok := verbIndex(m.tokens)
	if !ok {
		return Intent{}, false
	}
	if ck, ok := controlVerbs[m.tokens[i]]; ok {
		return Intent{Kind: Control, Control: ck}, true
	}
	kind, ok := moderation.LookupVerb(m.tokens[i])
	if !ok {
		return Intent{}, false
	}
	d := moderation.Parse(kind, m.words, i, c.targets(m))
	d.GuildID = m.GuildID
	d.ChannelID = m.ChannelID
	d.ModeratorID = m.AuthorID
	return Intent{Kind: Moderate, Directive: d}, true
}

// commandFillers may sit between the trigger word and the verb.
var commandFillers = map[string]bool{
	"please": true,
	"pls":    true,
	"now":    true,
}

// verbIndex returns the position of the command verb: the word right after
// the trigger, skipping at most one filler. Verbs anywhere else are chat.
func verbIndex(tokens []string) (int, bool) {
	i := 1
	if i < len(tokens) && commandFillers[tokens[i]] {
		i++
	}
	return i, i < len(tokens)
}

func (c *Classifier) conversation(m *message, snap state.Snapshot) (Intent, bool) {
	if snap.IsSleeping(m.ChannelID) {
		return Intent{}, false
	}
	called := c.hasTrigger(m) || c.mentionsBot(m) || c.repliesToBot(m) || c.followsUp(m, snap)
	if !called {
		return Intent{}, false
	}
	return Intent{Kind: Converse, Title: c.requestedTitle(m)}, true
}

func (c *Classifier) watchedKeyword(m *message, snap state.Snapshot) (Intent, bool) {
	if c.keywords == nil || snap.IsSleeping(m.ChannelID) {
		return Intent{}, false
	}
	if m.Timestamp.Before(snap.CooldownUntil) {
		return Intent{}, false
	}
	if len(c.keywords.MultiPatternSearch([]rune(m.lower), true)) == 0 {
		return Intent{}, false
	}
	return Intent{Kind: AssistiveReply}, true
}

func (c *Classifier) isOwner(m *message) bool {
	return c.cfg.OwnerID != "" && m.AuthorID == c.cfg.OwnerID
}

func (c *Classifier) hasTrigger(m *message) bool {
	for _, t := range m.tokens {
		if t == c.cfg.TriggerWord {
			return true
		}
	}
	return false
}

func (c *Classifier) mentionsBot(m *message) bool {
	if c.cfg.BotID == "" {
		return false
	}
	for _, id := range m.Mentions {
		if id == c.cfg.BotID {
			return true
		}
	}
	return false
}

func (c *Classifier) repliesToBot(m *message) bool {
	return c.cfg.BotID != "" && m.ReplyToAuthorID == c.cfg.BotID
}

func (c *Classifier) followsUp(m *message, snap state.Snapshot) bool {
	last, ok := snap.LastBotReply[m.ChannelID]
	if !ok || last.UserID != m.AuthorID {
		return false
	}
	elapsed := m.Timestamp.Sub(last.At)
	return elapsed >= 0 && elapsed <= c.cfg.FollowUpWindow
}

// targets returns the mentioned users other than the bot, in message order.
func (c *Classifier) targets(m *message) []string {
	out := make([]string, 0, len(m.Mentions))
	for _, id := range m.Mentions {
		if id != c.cfg.BotID {
			out = append(out, id)
		}
	}
	return out
}

const maxTitleLen = 32

// requestedTitle handles "<trigger> call me <title>".
func (c *Classifier) requestedTitle(m *message) string {
	for i := 0; i+3 <= len(m.tokens); i++ {
		if m.tokens[i] != c.cfg.TriggerWord || m.tokens[i+1] != "call" || m.tokens[i+2] != "me" {
			continue
		}
		parts := make([]string, 0, len(m.words)-i-3)
		for _, w := range m.words[i+3:] {
			if w = trimPunct(w); w != "" {
				parts = append(parts, w)
			}
		}
		title := strings.Join(parts, " ")
		if r := []rune(title); len(r) > maxTitleLen {
			title = string(r[:maxTitleLen])
		}
		return title
	}
	return ""
}
