// Package textx provides small text utilities used across the project.
package textx

import (
	"regexp"
	"strings"
)

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe         = regexp.MustCompile(`<[^>]+>`)
	spaceRe       = regexp.MustCompile(`\s+`)
)

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
func SanitizeText(s string) string {
	// strip control chars outside tab/newline/carriage return
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// SanitizeHTML strips script/style blocks and all remaining tags, then
// collapses whitespace runs to single spaces. Used on applicant-provided
// fields before scoring or prompting.
func SanitizeHTML(s string) string {
	if s == "" {
		return ""
	}
	s = scriptStyleRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
// Cutting on rune boundaries keeps non-ASCII policy text valid UTF-8.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// ClipRunes cuts s to at most n runes without an ellipsis.
func ClipRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

var piiPatterns = []*regexp.Regexp{
	// 10-digit phone numbers and 12-digit identity numbers, with optional
	// separators.
	regexp.MustCompile(`\b\d{10}\b`),
	regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),
	// 13-16 digit card numbers with optional separators.
	regexp.MustCompile(`\b(?:\d[\s-]?){13,16}\b`),
	regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
}

// ContainsPII reports whether s carries phone, identity, card or email
// patterns. Used to reject applicant text before it reaches prompts or
// storage.
func ContainsPII(s string) bool {
	for _, re := range piiPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
