package compose

import (
	"strings"
	"testing"

	"github.com/TobiSchelling/talkcomms/internal/checks"
	"github.com/TobiSchelling/talkcomms/internal/revision"
)

var links = Links{
	Event:        "NeurIPS 2025",
	VideoURL:     "https://youtu.be/abc",
	ResourceURLs: []string{"https://github.com/jdoe/scaling"},
}

func TestAssembleLinkedIn(t *testing.T) {
	p := Assemble("Big models, small data.", "Short take.", links)
	want := "Big models, small data.\n\n" +
		"Link to NeurIPS 2025 recording & resources in comments 👇\n\n" +
		"▶️ Full recording: https://youtu.be/abc\n\n" +
		"📄 https://github.com/jdoe/scaling"
	if p.LinkedIn != want {
		t.Errorf("LinkedIn post =\n%s\nwant\n%s", p.LinkedIn, want)
	}
}

func TestAssembleXAndBluesky(t *testing.T) {
	p := Assemble("Big models.", "Short take.", links)
	want := "Short take. 👇\n\n▶️ Watch NeurIPS 2025 recording: https://youtu.be/abc\n\n📄 https://github.com/jdoe/scaling"
	if p.X != want {
		t.Errorf("X post =\n%s\nwant\n%s", p.X, want)
	}
	if p.Bluesky != p.X {
		t.Error("Bluesky post should match X post")
	}
}

func TestAssembleEmptyContent(t *testing.T) {
	p := Assemble("", "  ", links)
	if p.LinkedIn != "" || p.X != "" || p.Bluesky != "" {
		t.Errorf("expected empty posts, got %+v", p)
	}
}

func TestAssembleWithoutLinks(t *testing.T) {
	p := Assemble("Body.", "Take.", Links{})
	if p.LinkedIn != "Body." {
		t.Errorf("unexpected LinkedIn post %q", p.LinkedIn)
	}
	if p.X != "Take. 👇" {
		t.Errorf("unexpected X post %q", p.X)
	}
}

func TestBanner(t *testing.T) {
	ok := checks.IdentityReport{Name: checks.MinorDifferences, Affiliation: checks.ExactMatch, Title: checks.ExactMatch}
	if Banner(ok) != "" {
		t.Error("no banner expected without a major mismatch")
	}
	bad := checks.IdentityReport{Name: checks.MajorMismatch, Affiliation: checks.ExactMatch, Title: checks.ExactMatch}
	b := Banner(bad)
	if !strings.HasPrefix(b, "[IDENTITY WARNING]") || !strings.Contains(b, "name: major_mismatch") {
		t.Errorf("unexpected banner %q", b)
	}

	posts := Assemble("Body.", "Take.", Links{}).Apply(b)
	for _, post := range []string{posts.LinkedIn, posts.X, posts.Bluesky} {
		if !strings.HasPrefix(post, b+"\n\n") {
			t.Errorf("banner missing from %q", post)
		}
	}
	if WithBanner(b, "") != "" {
		t.Error("banner should not be added to empty text")
	}
	if got := StripBanner(WithBanner(b, "## Slides\n\n- one")); got != "## Slides\n\n- one" {
		t.Errorf("StripBanner = %q", got)
	}
	if got := StripBanner("## Slides"); got != "## Slides" {
		t.Errorf("text without banner changed: %q", got)
	}
}

func TestEvalNotes(t *testing.T) {
	notes := EvalNotes(Evaluation{
		Score: revision.Score{
			Total:     79,
			SubScores: map[string]int{"accuracy": 8, "hook": 7, "clarity": 8, "voice": 8, "platform_fit": 9},
			Checklist: checks.Checklist{
				{Name: "linkedin.no_hashtags", Passed: true},
				{Name: "x.emoji_whitelist", Passed: false, Detail: "🚀"},
			},
			Notes: []string{"Hook is generic."},
		},
		Threshold:   80,
		Verified:    false,
		Revisions:   1,
		Corrections: []string{"Model size is 70B, not 7B."},
	})
	for _, want := range []string{
		"Status: UNVERIFIED",
		"Rubric: 79/100 (threshold 80)",
		"- accuracy 8/10 (weight 30)",
		"- [x] linkedin.no_hashtags",
		"- [ ] x.emoji_whitelist: 🚀",
		"Model size is 70B, not 7B.",
		"Hook is generic.",
	} {
		if !strings.Contains(notes, want) {
			t.Errorf("notes missing %q:\n%s", want, notes)
		}
	}
}
