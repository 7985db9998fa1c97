package checks

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Limits are hard per-platform ceilings. Zero disables a limit.
type Limits struct {
	MaxChars       int
	MaxWords       int
	MaxBulletWords int
}

var bulletPrefix = regexp.MustCompile(`^\s*(?:[-*•▪‣]|\d+[.)])\s+`)

// CharCount counts user-perceived characters the way the platforms' limits are
// usually stated: one per code point.
func CharCount(s string) int {
	return utf8.RuneCountInString(s)
}

// CheckFormat enforces platform ceilings. Text is never truncated here.
func CheckFormat(platform, text string, l Limits) error {
	if l.MaxChars > 0 {
		if n := CharCount(text); n > l.MaxChars {
			return &Violation{
				Check:       platform + ".max_chars",
				Message:     fmt.Sprintf("%d characters exceeds the %d character limit", n, l.MaxChars),
				Remediation: fmt.Sprintf("The %s post is %d characters. Rewrite it to at most %d characters without dropping the core claim.", platform, n, l.MaxChars),
			}
		}
	}

	if l.MaxWords > 0 {
		if n := WordCount(text); n > l.MaxWords {
			return &Violation{
				Check:       platform + ".max_words",
				Message:     fmt.Sprintf("%d words exceeds the %d word limit", n, l.MaxWords),
				Remediation: fmt.Sprintf("The %s post is %d words. Cut it to at most %d words.", platform, n, l.MaxWords),
			}
		}
	}

	if l.MaxBulletWords > 0 {
		for _, line := range strings.Split(text, "\n") {
			loc := bulletPrefix.FindStringIndex(line)
			if loc == nil {
				continue
			}
			bullet := line[loc[1]:]
			if n := WordCount(bullet); n > l.MaxBulletWords {
				return &Violation{
					Check:       platform + ".bullet_words",
					Message:     fmt.Sprintf("bullet %q has %d words (limit %d)", strings.TrimSpace(bullet), n, l.MaxBulletWords),
					Remediation: fmt.Sprintf("Every bullet must be %d words or fewer. Shorten: %q", l.MaxBulletWords, strings.TrimSpace(bullet)),
				}
			}
		}
	}
	return nil
}
