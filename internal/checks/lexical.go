package checks

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Lexicon configures the lexical compliance check.
type Lexicon struct {
	AllowedEmoji  []string
	BannedPhrases []string
}

// Item is one named entry of a compliance checklist.
type Item struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Checklist is an ordered set of named boolean checks.
type Checklist []Item

// AllPassed is true for an empty checklist.
func (c Checklist) AllPassed() bool {
	for _, it := range c {
		if !it.Passed {
			return false
		}
	}
	return true
}

// Passed counts passing items.
func (c Checklist) Passed() int {
	n := 0
	for _, it := range c {
		if it.Passed {
			n++
		}
	}
	return n
}

// Failed returns the failing items.
func (c Checklist) Failed() []Item {
	var out []Item
	for _, it := range c {
		if !it.Passed {
			out = append(out, it)
		}
	}
	return out
}

// Prefixed returns a copy with every item name prefixed, e.g. "linkedin.".
func (c Checklist) Prefixed(prefix string) Checklist {
	out := make(Checklist, len(c))
	for i, it := range c {
		it.Name = prefix + it.Name
		out[i] = it
	}
	return out
}

var (
	hashtagPattern = regexp.MustCompile(`(?:^|[\s(])#[\p{L}\p{N}_]+`)
	passivePattern = regexp.MustCompile(`(?i)\b(?:is|are|was|were|be|been|being)\s+(?:\w+ed|built|made|done|given|shown|known|taken|written|seen|found|held|led|taught|brought|chosen)\b`)
	forcedPattern  = regexp.MustCompile(`—|--| – `)
)

// CheckLexical runs every lexical rule and reports each as a checklist item.
// None of these fail a stage on their own.
func CheckLexical(text string, lx Lexicon) Checklist {
	return Checklist{
		checkHashtags(text),
		checkEmoji(text, lx.AllowedEmoji),
		checkBanned(text, lx.BannedPhrases),
		checkPassive(text),
		checkForcedPunctuation(text),
	}
}

func checkHashtags(text string) Item {
	found := hashtagPattern.FindAllString(text, -1)
	it := Item{Name: "no_hashtags", Passed: len(found) == 0}
	if !it.Passed {
		for i := range found {
			found[i] = strings.TrimSpace(strings.TrimLeft(found[i], " \t\n("))
		}
		it.Detail = "hashtags: " + strings.Join(found, ", ")
	}
	return it
}

func checkEmoji(text string, allowed []string) Item {
	ok := make(map[rune]bool)
	for _, e := range allowed {
		for _, r := range e {
			if isEmoji(r) {
				ok[r] = true
			}
		}
	}

	var bad []string
	seen := make(map[rune]bool)
	for _, r := range text {
		if !isEmoji(r) || ok[r] || seen[r] {
			continue
		}
		seen[r] = true
		bad = append(bad, string(r))
	}
	it := Item{Name: "emoji_whitelist", Passed: len(bad) == 0}
	if !it.Passed {
		it.Detail = "emoji not allowed: " + strings.Join(bad, " ")
	}
	return it
}

// isEmoji treats pictographic symbols as emoji. Variation selectors and
// joiners are ignored.
func isEmoji(r rune) bool {
	if r == 0xFE0F || r == 0x200D {
		return false
	}
	if r >= 0x1F000 && r <= 0x1FAFF {
		return true
	}
	return r >= 0x2300 && unicode.Is(unicode.So, r)
}

func checkBanned(text string, phrases []string) Item {
	lower := strings.ToLower(text)
	var hits []string
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(p) + `\b`)
		if re.MatchString(lower) {
			hits = append(hits, p)
		}
	}
	it := Item{Name: "no_hype_words", Passed: len(hits) == 0}
	if !it.Passed {
		it.Detail = "banned: " + strings.Join(hits, ", ")
	}
	return it
}

func checkPassive(text string) Item {
	found := passivePattern.FindAllString(text, 3)
	it := Item{Name: "no_passive_voice", Passed: len(found) == 0}
	if !it.Passed {
		it.Detail = fmt.Sprintf("passive constructions: %s", strings.Join(found, "; "))
	}
	return it
}

func checkForcedPunctuation(text string) Item {
	n := len(forcedPattern.FindAllString(text, -1))
	it := Item{Name: "no_forced_punctuation", Passed: n == 0}
	if !it.Passed {
		it.Detail = fmt.Sprintf("%d em-dash style separators", n)
	}
	return it
}
