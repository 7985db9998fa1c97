package extract

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var mdParser = goldmark.New().Parser()

// Outline lists the markdown headings, indented two spaces per level below
// the first.
func Outline(markdown string) []string {
	src := []byte(markdown)
	doc := mdParser.Parse(text.NewReader(src))

	var out []string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		title := strings.TrimSpace(string(h.Text(src)))
		if title != "" {
			out = append(out, strings.Repeat("  ", h.Level-1)+title)
		}
		return ast.WalkSkipChildren, nil
	})
	return out
}

// sectionWords is the target length of one transcript section.
const sectionWords = 150

// TranscriptOutline summarizes a cleaned transcript as one entry per section:
// paragraphs when the text has them, else runs of whole sentences of about
// sectionWords words. Each entry is the section's opening words.
func TranscriptOutline(transcript string) []string {
	var sections []string
	for _, p := range strings.Split(transcript, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			sections = append(sections, p)
		}
	}
	if len(sections) == 1 {
		sections = groupSentences(sections[0], sectionWords)
	}

	out := make([]string, 0, len(sections))
	for _, s := range sections {
		out = append(out, opening(s, 10))
	}
	return out
}

func groupSentences(text string, target int) []string {
	var out []string
	var cur []string
	words := 0
	for _, w := range strings.Fields(text) {
		cur = append(cur, w)
		words++
		if words >= target && endsSentence(w) {
			out = append(out, strings.Join(cur, " "))
			cur, words = nil, 0
		}
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}

func endsSentence(w string) bool {
	w = strings.TrimRight(w, `"')]`)
	return strings.HasSuffix(w, ".") || strings.HasSuffix(w, "?") || strings.HasSuffix(w, "!")
}

func opening(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + " …"
}
