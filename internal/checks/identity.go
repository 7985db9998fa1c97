package checks

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Verdict classifies how an extracted identity string relates to the
// source-of-truth value.
type Verdict string

const (
	ExactMatch       Verdict = "exact_match"
	MinorDifferences Verdict = "minor_differences"
	MajorMismatch    Verdict = "major_mismatch"
)

// jaccardMinor is the token overlap at which two strings are treated as the
// same entity written differently.
const jaccardMinor = 0.6

func (v Verdict) rank() int {
	switch v {
	case ExactMatch:
		return 0
	case MinorDifferences:
		return 1
	default:
		return 2
	}
}

// Worst returns the most severe verdict. No verdicts is an exact match.
func Worst(vs ...Verdict) Verdict {
	worst := ExactMatch
	for _, v := range vs {
		if v.rank() > worst.rank() {
			worst = v
		}
	}
	return worst
}

// Identity is the triple checked against the ledger.
type Identity struct {
	Name        string
	Affiliation string
	Title       string
}

// IdentityReport holds per-field verdicts.
type IdentityReport struct {
	Name        Verdict `json:"name"`
	Affiliation Verdict `json:"affiliation"`
	Title       Verdict `json:"title"`
}

// Overall is the worst field verdict.
func (r IdentityReport) Overall() Verdict {
	return Worst(r.Name, r.Affiliation, r.Title)
}

func (r IdentityReport) String() string {
	return fmt.Sprintf("%s (name: %s, affiliation: %s, title: %s)", r.Overall(), r.Name, r.Affiliation, r.Title)
}

// ParseReport reads back the String form. Fields it cannot find are exact.
func ParseReport(s string) IdentityReport {
	r := IdentityReport{Name: ExactMatch, Affiliation: ExactMatch, Title: ExactMatch}
	for _, part := range []struct {
		key string
		dst *Verdict
	}{{"name: ", &r.Name}, {"affiliation: ", &r.Affiliation}, {"title: ", &r.Title}} {
		idx := strings.Index(s, part.key)
		if idx < 0 {
			continue
		}
		rest := s[idx+len(part.key):]
		if end := strings.IndexAny(rest, ",)"); end >= 0 {
			rest = rest[:end]
		}
		*part.dst = Verdict(strings.TrimSpace(rest))
	}
	return r
}

// CheckIdentity compares each extracted field with its source-of-truth value.
func CheckIdentity(extracted, source Identity) IdentityReport {
	return IdentityReport{
		Name:        MatchIdentity(extracted.Name, source.Name),
		Affiliation: MatchIdentity(extracted.Affiliation, source.Affiliation),
		Title:       MatchIdentity(extracted.Title, source.Title),
	}
}

// MatchIdentity classifies one field. An empty extracted value is never a
// mismatch: missing data says nothing about a different person.
func MatchIdentity(extracted, source string) Verdict {
	e := collapse(extracted)
	s := collapse(source)
	if e == "" || s == "" {
		return MinorDifferences
	}
	if strings.EqualFold(e, s) {
		return ExactMatch
	}

	et := significant(tokens(e))
	st := significant(tokens(s))
	if len(et) == 0 || len(st) == 0 {
		return MinorDifferences
	}
	if strings.Join(et, " ") == strings.Join(st, " ") {
		return MinorDifferences
	}
	if align(et, st) || align(st, et) {
		return MinorDifferences
	}
	if jaccard(et, st) >= jaccardMinor {
		return MinorDifferences
	}
	return MajorMismatch
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// tokens folds case and accents and splits on anything that is not a letter
// or digit.
func tokens(s string) []string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = cases.Fold().String(folded)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var stopwords = map[string]bool{
	"of": true, "the": true, "and": true, "for": true, "at": true, "in": true, "on": true, "a": true, "an": true,
}

func significant(toks []string) []string {
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		if !stopwords[t] {
			out = append(out, t)
		}
	}
	return out
}

// align reports whether every token of short can be matched, in order, to a
// token of long or to an acronym of consecutive long tokens. Long tokens may
// be skipped.
func align(short, long []string) bool {
	if len(short) > len(long) {
		return false
	}
	p := 0
	for _, tok := range short {
		matched := false
		for j := p; j < len(long) && !matched; j++ {
			if tokenEquivalent(tok, long[j]) {
				p = j + 1
				matched = true
				break
			}
			if n := acronymSpan(tok, long[j:]); n > 0 {
				p = j + n
				matched = true
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func tokenEquivalent(a, b string) bool {
	if a == b {
		return true
	}
	if len([]rune(a)) == 1 && strings.HasPrefix(b, a) {
		return true
	}
	if len([]rune(b)) == 1 && strings.HasPrefix(a, b) {
		return true
	}
	return nicknames(a, b)
}

// acronymSpan returns how many leading tokens of long spell tok by their first
// letters, or 0.
func acronymSpan(tok string, long []string) int {
	letters := []rune(tok)
	if len(letters) < 2 || len(letters) > len(long) {
		return 0
	}
	for i, r := range letters {
		first := []rune(long[i])
		if len(first) == 0 || first[0] != r {
			return 0
		}
	}
	return len(letters)
}

func jaccard(a, b []string) float64 {
	set := make(map[string]int)
	for _, t := range a {
		set[t] |= 1
	}
	for _, t := range b {
		set[t] |= 2
	}
	var inter int
	for _, v := range set {
		if v == 3 {
			inter++
		}
	}
	if len(set) == 0 {
		return 0
	}
	return float64(inter) / float64(len(set))
}

var nicknameGroups = [][]string{
	{"robert", "bob", "rob", "bobby", "robbie"},
	{"william", "bill", "will", "billy", "liam"},
	{"richard", "rick", "rich", "dick"},
	{"james", "jim", "jimmy", "jamie"},
	{"john", "jack", "johnny"},
	{"michael", "mike", "mikey"},
	{"elizabeth", "liz", "beth", "lizzie", "eliza"},
	{"katherine", "catherine", "kate", "kathy", "katie", "cathy"},
	{"margaret", "maggie", "meg", "peggy"},
	{"thomas", "tom", "tommy"},
	{"daniel", "dan", "danny"},
	{"david", "dave"},
	{"joseph", "joe", "joey"},
	{"christopher", "chris"},
	{"christina", "chris", "tina"},
	{"nicholas", "nick", "nico"},
	{"alexander", "alex", "sasha"},
	{"alexandra", "alex", "sasha"},
	{"benjamin", "ben"},
	{"jonathan", "jon"},
	{"matthew", "matt"},
	{"andrew", "andy", "drew"},
	{"anthony", "tony"},
	{"edward", "ed", "eddie", "ted"},
	{"samuel", "sam"},
	{"samantha", "sam"},
	{"stephen", "steven", "steve"},
	{"timothy", "tim"},
	{"patrick", "pat"},
	{"peter", "pete"},
	{"gregory", "greg"},
	{"jennifer", "jen", "jenny"},
	{"rebecca", "becky", "becca"},
	{"susan", "sue", "susie"},
	{"victoria", "vicky", "tori"},
	{"zachary", "zach"},
	{"jacob", "jake"},
	{"joshua", "josh"},
	{"nathaniel", "nathan", "nate"},
}

var nicknameIndex = func() map[string][]int {
	idx := make(map[string][]int)
	for i, group := range nicknameGroups {
		for _, name := range group {
			idx[name] = append(idx[name], i)
		}
	}
	return idx
}()

func nicknames(a, b string) bool {
	for _, ga := range nicknameIndex[a] {
		for _, gb := range nicknameIndex[b] {
			if ga == gb {
				return true
			}
		}
	}
	return false
}
