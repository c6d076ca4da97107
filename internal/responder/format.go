package responder

import (
	"strings"
	"unicode/utf8"
)

const (
	// TruncationMarker ends a reply that hit the length ceiling.
	TruncationMarker = "… *(truncated)*"
	// DefaultMaxLength stays under the platform's 2000 character hard cap.
	DefaultMaxLength = 1900
)

// A zero-width space after every '@' defuses @everyone, @here and raw
// <@id>/<@!id>/<@&role> tokens. The substitution is per character, so the
// sanitised form of a prefix is always a prefix of the sanitised whole.
var mentionBreaker = strings.NewReplacer("@", "@\u200b")

// Sanitize neutralises mass pings and mention tokens.
func Sanitize(s string) string {
	return mentionBreaker.Replace(s)
}

// formatter renders a reply body with its identity prefix and suffix.
type formatter struct {
	prefix string
	suffix string
	limit  int
}

func (f formatter) budget() int {
	return f.limit - utf8.RuneCountInString(TruncationMarker) - utf8.RuneCountInString(f.suffix)
}

// view renders a partial body. Views of a growing body only ever grow.
func (f formatter) view(body string) (string, bool) {
	text := Sanitize(f.prefix + body)
	budget := f.budget()
	if utf8.RuneCountInString(text) <= budget {
		return text, false
	}
	return string([]rune(text)[:budget]), true
}

// final renders the complete reply.
func (f formatter) final(body string) string {
	text, cut := f.view(body)
	if cut {
		text += TruncationMarker
	}
	return text + Sanitize(f.suffix)
}
