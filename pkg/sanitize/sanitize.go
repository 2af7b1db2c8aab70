// Package sanitize cleans raw model text before it is handed to a later stage
// or returned to a caller.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	// thinkRe matches a reasoning span and one trailing newline. (?s) lets the
	// span cross lines; the lazy body stops at the first closing tag.
	thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>\n?`)

	// fenceRe matches a whole fence delimiter line: ``` with an optional
	// language tag such as js, c++, objective-c or shell-session.
	fenceRe = regexp.MustCompile("^[ \t]*```[A-Za-z0-9_+#.-]*[ \t]*$")
)

// Sanitize strips reasoning spans and code fence delimiter lines, then trims
// surrounding whitespace. Used for stages whose output must be code only.
//
// The result is a fixed point: Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(raw string) string {
	return fixpoint(raw, func(s string) string {
		return strings.TrimSpace(StripFences(stripThink(s)))
	})
}

// StripThink removes reasoning spans and trims. Used for prose stages, whose
// markdown (including any fenced examples) is kept.
func StripThink(raw string) string {
	return fixpoint(raw, func(s string) string {
		return strings.TrimSpace(stripThink(s))
	})
}

// StripFences drops fence delimiter lines and keeps everything between them.
// Lines are otherwise untouched.
func StripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if fenceRe.MatchString(strings.TrimSuffix(line, "\r")) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func stripThink(s string) string {
	if !strings.Contains(s, "<think>") {
		return s
	}
	return thinkRe.ReplaceAllString(s, "")
}

// fixpoint applies pass until the text stops changing. Removing a span can
// splice a new one together ("<thi<think>x</think>nk>"), so one pass is not
// always enough. Every changing pass shortens s, which bounds the loop.
func fixpoint(s string, pass func(string) string) string {
	for {
		next := pass(s)
		if next == s {
			return s
		}
		s = next
	}
}
