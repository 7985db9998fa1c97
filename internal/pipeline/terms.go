package pipeline

import (
	"regexp"
	"strings"
	"unicode"
)

// NormalizeTerms rewrites spaced or re-cased variants of slide terms back to
// their canonical spelling, e.g. "70 b" and "70-B" become "70B". Only tokens
// that mix digits and letters are touched; plain words are left to the
// cleaning model.
func NormalizeTerms(text string, terms []string) string {
	for _, term := range terms {
		for _, tok := range strings.Fields(term) {
			tok = strings.Trim(tok, ".,;:()[]\"'")
			re := termPattern(tok)
			if re == nil {
				continue
			}
			text = re.ReplaceAllString(text, "${1}"+strings.ReplaceAll(tok, "$", "$$"))
		}
	}
	return text
}

// SlideTerms lists the distinct tokens of markdown that mix letters and
// digits, in order of first appearance. It stands in for the cleaning model's
// term list when slide content is reused from the ledger.
func SlideTerms(markdown string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, f := range strings.Fields(markdown) {
		tok := strings.Trim(f, ".,;:()[]\"'*_`#-")
		if !mixed(tok) || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// termPattern matches tok case-insensitively, allowing a space or hyphen at
// each letter/digit boundary.
func termPattern(tok string) *regexp.Regexp {
	if !mixed(tok) {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`(?i)(^|[^\p{L}\p{N}])`)
	var prev rune
	for i, r := range tok {
		if i > 0 && boundary(prev, r) {
			sb.WriteString(`[\s-]?`)
		}
		sb.WriteString(regexp.QuoteMeta(string(r)))
		prev = r
	}
	sb.WriteString(`\b`)
	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil
	}
	return re
}

func mixed(tok string) bool {
	var letters, digits bool
	for _, r := range tok {
		switch {
		case unicode.IsDigit(r):
			digits = true
		case unicode.IsLetter(r):
			letters = true
		}
	}
	return letters && digits
}

func boundary(a, b rune) bool {
	return (unicode.IsDigit(a) && unicode.IsLetter(b)) || (unicode.IsLetter(a) && unicode.IsDigit(b))
}
