package citation

import (
	"regexp"
	"strings"

	"github.com/fairyhunter13/msme-loan-scorer/internal/metadata"
)

var (
	referenceHeadingRe = regexp.MustCompile(`(?i)^#*\s*\*{0,2}references?\*{0,2}\s*:?\s*$`)
	headingRe          = regexp.MustCompile(`^#+\s`)
	unresolvedLineRe   = regexp.MustCompile(`(?m)^\s*\[\d+\]\s*` + metadata.UnknownSource + `.*$\n?`)
	unresolvedBlockRe  = regexp.MustCompile(`(?i)#*\s*\*{0,2}references?\*{0,2}\s*:?\s*\n(\s*\[\d+\]\s*` + metadata.UnknownSource + `.*\n?)+`)
)

// CleanResponse strips unresolved-source citation artifacts from a generated
// answer. A references heading opens a section that runs until a blank line
// or a new heading; within it, lines carrying the unresolved marker are
// dropped, and the heading itself is dropped when nothing in the section
// survives. Two regex passes then remove any leftover bracketed unresolved
// citation and any remaining references block made only of them. The
// operation is idempotent; sections with resolved citations pass through
// untouched.
func CleanResponse(answer string) string {
	if answer == "" {
		return answer
	}
	lines := strings.Split(answer, "\n")
	kept := make([]string, 0, len(lines))

	var (
		inSection bool
		heading   string
		section   []string
	)
	flush := func() {
		if !inSection {
			return
		}
		if len(section) > 0 {
			kept = append(kept, heading)
			kept = append(kept, section...)
		}
		inSection = false
		section = nil
	}
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if referenceHeadingRe.MatchString(trimmed) {
			flush()
			inSection = true
			heading = line
			continue
		}
		if inSection {
			if strings.Contains(line, metadata.UnknownSource) {
				continue
			}
			if trimmed == "" || headingRe.MatchString(trimmed) {
				flush()
				kept = append(kept, line)
				continue
			}
			section = append(section, line)
			continue
		}
		kept = append(kept, line)
	}
	flush()

	out := strings.Join(kept, "\n")
	out = unresolvedLineRe.ReplaceAllString(out, "")
	out = unresolvedBlockRe.ReplaceAllString(out, "")
	return strings.TrimRight(out, " \t\n")
}
