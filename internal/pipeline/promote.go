package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/TobiSchelling/talkcomms/internal/checks"
	"github.com/TobiSchelling/talkcomms/internal/compose"
	"github.com/TobiSchelling/talkcomms/internal/ledger"
	"github.com/TobiSchelling/talkcomms/internal/revision"
	"github.com/TobiSchelling/talkcomms/internal/stage"
	"github.com/TobiSchelling/talkcomms/internal/talk"
)

// maxLinkedResources caps the resource links appended to each post.
const maxLinkedResources = 2

var catalogURL = regexp.MustCompile(`\((https?://[^\s)]+)\)`)

type summaryResponse struct {
	Paragraph string   `json:"paragraph"`
	Hooks     []string `json:"hooks"`
}

// Summary is the output of the summary stages.
type Summary struct {
	Paragraph string
	Hooks     []string
	Source    string
}

// Draft is one candidate pair of platform posts.
type Draft struct {
	LinkedIn    string   `json:"linkedin"`
	X           string   `json:"x"`
	Corrections []string `json:"-"`
}

type factCheckResponse struct {
	LinkedIn    string   `json:"linkedin"`
	X           string   `json:"x"`
	Corrections []string `json:"corrections"`
}

type scoringResponse struct {
	Scores map[string]int `json:"scores"`
	Notes  []string       `json:"notes"`
}

func decodeSummary(raw string) (summaryResponse, error) {
	out, err := stage.DecodeJSON[summaryResponse](raw)
	if err != nil {
		return out, err
	}
	if strings.TrimSpace(out.Paragraph) == "" {
		return out, errors.New(`"paragraph" is empty`)
	}
	if len(out.Hooks) == 0 {
		return out, errors.New(`"hooks" is empty`)
	}
	return out, nil
}

func decodeDraft(raw string) (Draft, error) {
	out, err := stage.DecodeJSON[Draft](raw)
	if err != nil {
		return out, err
	}
	if strings.TrimSpace(out.LinkedIn) == "" || strings.TrimSpace(out.X) == "" {
		return out, errors.New(`both "linkedin" and "x" must be non-empty`)
	}
	out.LinkedIn = strings.TrimSpace(out.LinkedIn)
	out.X = strings.TrimSpace(out.X)
	return out, nil
}

func decodeScoring(raw string) (scoringResponse, error) {
	out, err := stage.DecodeJSON[scoringResponse](raw)
	if err != nil {
		return out, err
	}
	for name := range revision.Rubric {
		if _, ok := out.Scores[name]; !ok {
			return out, fmt.Errorf("missing score %q", name)
		}
	}
	return out, nil
}

func (o *Orchestrator) summarizeTalk(ctx context.Context, r *run) (output, error) {
	rec := r.record
	var parts []string
	if rec.Transcript != "" {
		parts = append(parts, "Transcript:\n"+rec.Transcript)
	}
	if rec.Slides != "" {
		parts = append(parts, "Slides:\n"+rec.Slides)
	}
	if len(parts) == 0 {
		return output{}, stage.Wrap(stage.ErrInput, StageSummary, "read prepared content",
			errors.New("record has no transcript or slides; run prepare first"))
	}
	return o.summarize(ctx, r, StageSummary, "summary", "talk", strings.Join(parts, "\n\n"))
}

func (o *Orchestrator) summarizePaper(ctx context.Context, r *run) (output, error) {
	rec := r.record
	source := strings.TrimSpace(rec.PaperText)
	if source == "" && rec.ResourceURL != "" && o.deps.Fetcher != nil {
		err := o.deps.Runner.Call(ctx, StagePaperSummary, "fetch paper", func(ctx context.Context) error {
			page, err := o.deps.Fetcher.Fetch(ctx, rec.ResourceURL)
			if err != nil {
				return err
			}
			source = strings.TrimSpace(page.Text)
			return nil
		})
		if err != nil {
			return output{}, err
		}
	}
	if source == "" {
		return output{}, stage.Wrap(stage.ErrInput, StagePaperSummary, "read paper",
			errors.New("record has no paper text or resource link"))
	}
	return o.summarize(ctx, r, StagePaperSummary, "paper_summary", "paper", source)
}

func (o *Orchestrator) summarize(ctx context.Context, r *run, name, tmpl, kind, source string) (output, error) {
	rec := r.record
	styles := o.deps.Runner.Prompts().Styles()
	res, err := stage.Run(ctx, o.deps.Runner, stage.Spec[summaryResponse]{
		Name:     name,
		Template: tmpl,
		Decode:   decodeSummary,
	}, stage.Bag{
		"style_shared": styles.Shared,
		"kind":         kind,
		"speaker":      rec.Speaker,
		"affiliation":  rec.Affiliation,
		"title":        rec.Title,
		"event":        rec.Event,
		"resources":    orNone(rec.Resources),
		"source":       source,
	})
	if err != nil {
		return output{}, err
	}

	sum := Summary{Paragraph: strings.TrimSpace(res.Output.Paragraph), Source: source}
	for _, h := range res.Output.Hooks {
		if h = strings.TrimSpace(h); h != "" {
			sum.Hooks = append(sum.Hooks, h)
		}
	}
	return output{
		value: sum,
		columns: map[string]string{
			ledger.ColParagraph: sum.Paragraph,
			ledger.ColHooks:     numbered(sum.Hooks),
		},
		summary: fmt.Sprintf("Summary written with %d hook(s)", len(sum.Hooks)),
	}, nil
}

// drafted is the output of the drafting stage.
type drafted struct {
	Outcome revision.Outcome[Draft]
}

func (o *Orchestrator) draftPosts(ctx context.Context, r *run) (output, error) {
	sum, ok := r.summary()
	if !ok {
		return output{}, stage.Wrap(stage.ErrInput, StageDrafting, "read summary", errors.New("no summary in this run"))
	}
	s := o.deps.Settings
	rec := r.record
	styles := o.deps.Runner.Prompts().Styles()
	kind := "talk"
	if r.ct == talk.PromotePaper {
		kind = "paper"
	}
	base := stage.Bag{
		"style_shared":              styles.Shared,
		"style_li":                  styles.LinkedIn,
		"style_x":                   styles.X,
		"kind":                      kind,
		"title":                     rec.Title,
		"speaker":                   rec.Speaker,
		"affiliation":               rec.Affiliation,
		"event":                     orNone(rec.Event),
		"linkedin_max_words":        s.LinkedIn.MaxWords,
		"linkedin_max_bullet_words": s.LinkedIn.MaxBulletWords,
		"x_max_chars":               s.X.MaxChars,
		"summary":                   sum.Paragraph,
	}

	draft := func(ctx context.Context, fb revision.Feedback[Draft]) (Draft, error) {
		first, err := stage.Run(ctx, o.deps.Runner, stage.Spec[Draft]{
			Name:     StageDrafting + ".draft",
			Template: "draft",
			Decode:   decodeDraft,
		}, base.With(stage.Bag{
			"hooks":    numbered(sum.Hooks),
			"feedback": feedbackText(fb),
		}))
		if err != nil {
			return Draft{}, err
		}

		checked, err := stage.Run(ctx, o.deps.Runner, stage.Spec[factCheckResponse]{
			Name:     StageDrafting + ".fact_check",
			Template: "fact_check",
		}, base.With(stage.Bag{
			"source":   sum.Paragraph + "\n\n" + sum.Source,
			"linkedin": first.Output.LinkedIn,
			"x":        first.Output.X,
		}))
		if err != nil {
			return Draft{}, err
		}
		li, x := strings.TrimSpace(checked.Output.LinkedIn), strings.TrimSpace(checked.Output.X)
		if li == "" {
			li = first.Output.LinkedIn
		}
		if x == "" {
			x = first.Output.X
		}

		tight, err := stage.Run(ctx, o.deps.Runner, stage.Spec[Draft]{
			Name:     StageDrafting + ".tighten",
			Template: "tighten",
			Decode:   decodeDraft,
			Checks:   o.formatChecks(),
		}, base.With(stage.Bag{"linkedin": li, "x": x}))
		if err != nil {
			return Draft{}, err
		}
		out := tight.Output
		out.Corrections = checked.Output.Corrections
		return out, nil
	}

	score := func(ctx context.Context, d Draft) (revision.Score, error) {
		res, err := stage.Run(ctx, o.deps.Runner, stage.Spec[scoringResponse]{
			Name:     StageDrafting + ".scoring",
			Template: "compliance_scoring",
			Decode:   decodeScoring,
		}, base.With(stage.Bag{"linkedin": d.LinkedIn, "x": d.X}))
		if err != nil {
			return revision.Score{}, err
		}
		checklist := append(
			checks.CheckLexical(d.LinkedIn, s.Lexicon).Prefixed("linkedin."),
			checks.CheckLexical(d.X, s.Lexicon).Prefixed("x.")...,
		)
		return revision.Score{
			Total:     revision.Weigh(res.Output.Scores),
			SubScores: res.Output.Scores,
			Checklist: checklist,
			Notes:     res.Output.Notes,
		}, nil
	}

	outcome, err := revision.Run(ctx, s.Revision, draft, score)
	if err != nil {
		return output{}, err
	}
	if !outcome.Verified {
		r.verified = false
		r.logger.Warn("drafts abandoned below the quality bar", "score", outcome.Score.Total, "threshold", s.Revision.Threshold)
	}

	notes := compose.EvalNotes(compose.Evaluation{
		Score:       outcome.Score,
		Threshold:   s.Revision.Threshold,
		Verified:    outcome.Verified,
		Revisions:   outcome.Revisions,
		Corrections: outcome.Draft.Corrections,
	})
	status := "verified"
	if !outcome.Verified {
		status = "UNVERIFIED"
	}
	return output{
		value: drafted{Outcome: outcome},
		columns: map[string]string{
			ledger.ColLinkedInContent: outcome.Draft.LinkedIn,
			ledger.ColXContent:        outcome.Draft.X,
			ledger.ColEvalNotes:       notes,
		},
		summary: fmt.Sprintf("Drafts %s: %d/100 after %d revision(s)", status, outcome.Score.Total, outcome.Revisions),
	}, nil
}

// formatChecks are the hard platform limits on tightened copy. The X limit
// applies to the main post as published, and Bluesky reuses the X copy.
func (o *Orchestrator) formatChecks() []func(Draft) error {
	s := o.deps.Settings
	return []func(Draft) error{
		func(d Draft) error { return checks.CheckFormat("linkedin", d.LinkedIn, s.LinkedIn) },
		func(d Draft) error { return checks.CheckFormat("x", compose.XMain(d.X), s.X) },
		func(d Draft) error { return checks.CheckFormat("bluesky", compose.XMain(d.X), s.Bluesky) },
	}
}

func (o *Orchestrator) assemblePosts(ctx context.Context, r *run) (output, error) {
	d, ok := Lookup[drafted](r.sc, StageDrafting)
	if !ok {
		return output{}, stage.Wrap(stage.ErrInput, StageAssembly, "read drafts", errors.New("no drafts in this run"))
	}
	rec := r.record

	links := compose.Links{Event: rec.Event, VideoURL: rec.VideoURL}
	if r.ct == talk.PromotePaper {
		links.VideoURL = ""
	}
	links.ResourceURLs = resourceLinks(rec)

	posts := compose.Assemble(d.Outcome.Draft.LinkedIn, d.Outcome.Draft.X, links)
	banner := compose.Banner(checks.ParseReport(rec.SpeakerValidation))
	posts = posts.Apply(banner)

	summary := "Posts assembled"
	if banner != "" {
		summary += " with identity warning"
	}
	return output{
		value: posts,
		columns: map[string]string{
			ledger.ColLinkedInPost: posts.LinkedIn,
			ledger.ColXPost:        posts.X,
			ledger.ColBlueskyPost:  posts.Bluesky,
		},
		summary: summary,
	}, nil
}

// resourceLinks prefers the record's explicit resource link, then the first
// cataloged URLs.
func resourceLinks(rec talk.Record) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] || len(out) >= maxLinkedResources {
			return
		}
		seen[u] = true
		out = append(out, u)
	}
	add(rec.ResourceURL)
	for _, m := range catalogURL.FindAllStringSubmatch(rec.Resources, -1) {
		add(m[1])
	}
	return out
}

func (r *run) summary() (Summary, bool) {
	if s, ok := Lookup[Summary](r.sc, StageSummary); ok {
		return s, true
	}
	return Lookup[Summary](r.sc, StagePaperSummary)
}

func feedbackText(fb revision.Feedback[Draft]) string {
	if fb.Prior == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Revision %d.\n", fb.Revision)
	sb.WriteString("Previous LinkedIn draft:\n" + fb.Prior.LinkedIn + "\n\n")
	sb.WriteString("Previous X draft:\n" + fb.Prior.X + "\n\n")
	sb.WriteString("What must change:\n" + fb.Remediation)
	return sb.String()
}

func numbered(items []string) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("%d. %s", i+1, it)
	}
	return strings.Join(lines, "\n")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "None"
	}
	return s
}
