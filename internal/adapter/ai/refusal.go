package ai

import "strings"

// refusalPrefixes mark engine fallback non-answers. A passage that opens
// with one of these is an apology, not citable content.
var refusalPrefixes = []string{
	"i'm sorry",
	"i apologize",
}

// IsRefusal reports whether a generated passage begins with an apology or
// refusal marker.
func IsRefusal(response string) bool {
	lower := strings.ToLower(strings.TrimSpace(response))
	for _, p := range refusalPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}
