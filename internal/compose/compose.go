// Package compose assembles the publishable posts and the notes written next
// to them.
package compose

import (
	"fmt"
	"sort"
	"strings"

	"github.com/TobiSchelling/talkcomms/internal/checks"
	"github.com/TobiSchelling/talkcomms/internal/revision"
)

// Links are the call-to-action targets appended to every post.
type Links struct {
	Event        string
	VideoURL     string
	ResourceURLs []string
}

// Posts are the assembled, ready-to-publish posts.
type Posts struct {
	LinkedIn string
	X        string
	Bluesky  string
}

// XMain is the first X/Bluesky post as it will be published. Links go into
// the reply.
func XMain(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	return content + " 👇"
}

// Assemble builds the posts from the approved platform copy.
func Assemble(linkedin, x string, l Links) Posts {
	return Posts{
		LinkedIn: assembleLinkedIn(linkedin, l),
		X:        assembleX(x, l),
		Bluesky:  assembleX(x, l),
	}
}

func assembleLinkedIn(content string, l Links) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	parts := []string{content}
	if l.Event != "" || l.VideoURL != "" || len(l.ResourceURLs) > 0 {
		event := l.Event
		if event == "" {
			event = "the"
		}
		parts = append(parts, "", fmt.Sprintf("Link to %s recording & resources in comments 👇", event))
		if l.VideoURL != "" {
			parts = append(parts, "", "▶️ Full recording: "+l.VideoURL)
		}
		for _, u := range l.ResourceURLs {
			parts = append(parts, "", "📄 "+u)
		}
	}
	return strings.Join(parts, "\n")
}

func assembleX(content string, l Links) string {
	main := XMain(content)
	if main == "" {
		return ""
	}
	parts := []string{main}
	if l.VideoURL != "" {
		label := "Watch recording: "
		if l.Event != "" {
			label = fmt.Sprintf("Watch %s recording: ", l.Event)
		}
		parts = append(parts, "", "▶️ "+label+l.VideoURL)
	}
	for _, u := range l.ResourceURLs {
		parts = append(parts, "", "📄 "+u)
	}
	return strings.Join(parts, "\n")
}

// Banner is the warning placed above content whose extracted identity does
// not match the ledger. It is empty unless the report has a major mismatch.
func Banner(report checks.IdentityReport) string {
	if report.Overall() != checks.MajorMismatch {
		return ""
	}
	return bannerPrefix + " Speaker details extracted from the slides do not match the ledger: " +
		report.String() + ". Check the speaker, affiliation and title before publishing."
}

const bannerPrefix = "[IDENTITY WARNING]"

// StripBanner removes a banner added by WithBanner.
func StripBanner(text string) string {
	if !strings.HasPrefix(text, bannerPrefix) {
		return text
	}
	if i := strings.Index(text, "\n\n"); i >= 0 {
		return text[i+2:]
	}
	return ""
}

// WithBanner prepends banner to text when both are set.
func WithBanner(banner, text string) string {
	if banner == "" || text == "" {
		return text
	}
	return banner + "\n\n" + text
}

// Apply prepends banner to every post.
func (p Posts) Apply(banner string) Posts {
	return Posts{
		LinkedIn: WithBanner(banner, p.LinkedIn),
		X:        WithBanner(banner, p.X),
		Bluesky:  WithBanner(banner, p.Bluesky),
	}
}

// Evaluation is what EvalNotes reports on.
type Evaluation struct {
	Score       revision.Score
	Threshold   int
	Verified    bool
	Revisions   int
	Corrections []string
}

// EvalNotes renders the evaluation for the ledger's notes column.
func EvalNotes(e Evaluation) string {
	var sb strings.Builder
	if e.Verified {
		fmt.Fprintf(&sb, "Status: VERIFIED after %d revision(s)\n", e.Revisions)
	} else {
		fmt.Fprintf(&sb, "Status: UNVERIFIED - best draft after %d revision(s) did not meet the bar; review before publishing\n", e.Revisions)
	}
	fmt.Fprintf(&sb, "Rubric: %d/100 (threshold %d)\n", e.Score.Total, e.Threshold)

	names := make([]string, 0, len(revision.Rubric))
	for n := range revision.Rubric {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&sb, "- %s %d/10 (weight %d)\n", n, e.Score.SubScores[n], revision.Rubric[n])
	}

	if len(e.Score.Checklist) > 0 {
		sb.WriteString("Checklist:\n")
		for _, it := range e.Score.Checklist {
			mark := "x"
			if !it.Passed {
				mark = " "
			}
			fmt.Fprintf(&sb, "- [%s] %s", mark, it.Name)
			if !it.Passed && it.Detail != "" {
				sb.WriteString(": " + it.Detail)
			}
			sb.WriteString("\n")
		}
	}
	if len(e.Corrections) > 0 {
		sb.WriteString("Fact-check corrections:\n")
		for _, c := range e.Corrections {
			sb.WriteString("- " + c + "\n")
		}
	}
	if len(e.Score.Notes) > 0 {
		sb.WriteString("Notes:\n")
		for _, n := range e.Score.Notes {
			sb.WriteString("- " + n + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
