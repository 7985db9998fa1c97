package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/TobiSchelling/talkcomms/internal/checks"
	"github.com/TobiSchelling/talkcomms/internal/compose"
	"github.com/TobiSchelling/talkcomms/internal/extract"
	"github.com/TobiSchelling/talkcomms/internal/ledger"
	"github.com/TobiSchelling/talkcomms/internal/resources"
	"github.com/TobiSchelling/talkcomms/internal/search"
	"github.com/TobiSchelling/talkcomms/internal/stage"
	"github.com/TobiSchelling/talkcomms/internal/talk"
)

var (
	slideExts = []string{".pdf", ".pptx", ".key"}
	mediaExts = []string{".mp4", ".mov", ".mkv", ".webm", ".m4a", ".mp3", ".wav"}
)

// transcriptExcerptWords bounds the transcript handed to resource discovery.
const transcriptExcerptWords = 1500

type slidesResponse struct {
	CleanedMarkdown string   `json:"cleaned_markdown"`
	Speaker         string   `json:"speaker"`
	Affiliation     string   `json:"affiliation"`
	Title           string   `json:"title"`
	Terms           []string `json:"terms"`
}

type transcriptResponse struct {
	Cleaned string `json:"cleaned_transcript"`
}

type discoveryResponse struct {
	References []resources.Reference `json:"references"`
}

func decodeSlides(raw string) (slidesResponse, error) {
	out, err := stage.DecodeJSON[slidesResponse](raw)
	if err != nil {
		return out, err
	}
	if strings.TrimSpace(out.CleanedMarkdown) == "" {
		return out, errors.New(`"cleaned_markdown" is empty`)
	}
	return out, nil
}

func (o *Orchestrator) cleanSlides(ctx context.Context, r *run) (output, error) {
	s := o.deps.Settings
	rec := r.record
	if r.reuse(rec.Slides) {
		return o.reuseSlides(ctx, r), nil
	}

	m, ok := extract.FindFile(s.SlidesDir, rec.Speaker, slideExts, s.MatchMinScore)
	if !ok {
		return output{}, stage.Wrap(stage.ErrInput, StageSlides, "locate slide deck",
			fmt.Errorf("no slide deck for %q in %q", rec.Speaker, s.SlidesDir))
	}
	if o.deps.Documents == nil {
		return output{}, stage.Wrap(stage.ErrInput, StageSlides, "extract document", errors.New("no document service configured"))
	}

	var doc *extract.Document
	err := o.deps.Runner.Call(ctx, StageSlides, "extract document", func(ctx context.Context) error {
		d, err := o.deps.Documents.Extract(ctx, m.Path)
		doc = d
		return err
	})
	if err != nil {
		return output{}, err
	}

	res, err := stage.Run(ctx, o.deps.Runner, stage.Spec[slidesResponse]{
		Name:     StageSlides,
		Template: "slides_cleanup",
		Decode:   decodeSlides,
	}, stage.Bag{
		"speaker":     rec.Speaker,
		"affiliation": rec.Affiliation,
		"title":       rec.Title,
		"event":       rec.Event,
		"regions":     formatRegions(doc.Regions),
		"slides":      doc.Markdown,
	})
	if err != nil {
		return output{}, err
	}

	extracted := checks.Identity{Name: res.Output.Speaker, Affiliation: res.Output.Affiliation, Title: res.Output.Title}
	report := checks.CheckIdentity(extracted, rec.Identity())
	content := talk.SlideContent{
		Markdown:  strings.TrimSpace(res.Output.CleanedMarkdown),
		Headings:  extract.Outline(res.Output.CleanedMarkdown),
		Source:    m.Path,
		Extracted: extracted,
		Report:    report,
		Terms:     res.Output.Terms,
		Codes:     doc.Codes,
	}
	if report.Overall() == checks.MajorMismatch {
		r.logger.Warn("slide identity does not match the ledger", "report", report.String())
	}

	return output{
		value: content,
		columns: map[string]string{
			ledger.ColSlides:            compose.WithBanner(compose.Banner(report), content.Markdown),
			ledger.ColSpeakerValidation: report.String(),
		},
		summary: fmt.Sprintf("Slides cleaned: %d headings, %d QR code(s), identity %s", len(content.Headings), len(doc.Codes), report.Overall()),
	}, nil
}

// reuseSlides rebuilds the slide content from the ledger. QR codes are not
// stored there, so the deck is extracted again when it can be found; the
// cleaning model is not called.
func (o *Orchestrator) reuseSlides(ctx context.Context, r *run) output {
	s := o.deps.Settings
	rec := r.record
	markdown := strings.TrimSpace(compose.StripBanner(rec.Slides))
	content := talk.SlideContent{
		Markdown: markdown,
		Headings: extract.Outline(markdown),
		Source:   "ledger",
		Report:   checks.ParseReport(rec.SpeakerValidation),
		Terms:    SlideTerms(markdown),
	}

	if m, ok := extract.FindFile(s.SlidesDir, rec.Speaker, slideExts, s.MatchMinScore); ok && o.deps.Documents != nil {
		err := o.deps.Runner.Call(ctx, StageSlides, "extract document", func(ctx context.Context) error {
			d, err := o.deps.Documents.Extract(ctx, m.Path)
			if d != nil {
				content.Codes = d.Codes
			}
			return err
		})
		if err != nil {
			r.logger.Warn("re-reading QR codes failed, continuing without them", "error", err)
		}
		content.Source = m.Path
	}

	r.logger.Info("slides skipped (already present)", "qr_codes", len(content.Codes))
	return output{
		value:   content,
		summary: fmt.Sprintf("Slides skipped (already present): %d QR code(s) re-read", len(content.Codes)),
	}
}

func (o *Orchestrator) cleanTranscript(ctx context.Context, r *run) (output, error) {
	s := o.deps.Settings
	rec := r.record
	slides, _ := Lookup[talk.SlideContent](r.sc, StageSlides)
	if r.reuse(rec.Transcript) {
		content := talk.TranscriptContent{
			Cleaned:  strings.TrimSpace(rec.Transcript),
			SRT:      rec.SRT,
			Headings: extract.TranscriptOutline(rec.Transcript),
			Source:   "ledger",
			Carried:  slides.Verdict(),
		}
		r.logger.Info("transcript skipped (already present)")
		return output{
			value:   content,
			summary: fmt.Sprintf("Transcript skipped (already present): %d words", checks.WordCount(content.Cleaned)),
		}, nil
	}

	var media extract.Media
	if m, ok := extract.FindFile(s.VideosDir, rec.Speaker, mediaExts, s.MatchMinScore); ok {
		media.Path = m.Path
	} else if rec.VideoURL != "" {
		media.URL = rec.VideoURL
	} else {
		return output{}, stage.Wrap(stage.ErrInput, StageTranscript, "locate recording",
			fmt.Errorf("no recording for %q and no video link", rec.Speaker))
	}
	if o.deps.Transcriber == nil {
		return output{}, stage.Wrap(stage.ErrInput, StageTranscript, "transcribe", errors.New("no transcription service configured"))
	}

	var captions *extract.Captions
	err := o.deps.Runner.Call(ctx, StageTranscript, "transcribe", func(ctx context.Context) error {
		c, err := o.deps.Transcriber.Transcribe(ctx, media)
		captions = c
		return err
	})
	if err != nil {
		return output{}, err
	}

	cues := extract.ParseSRT(captions.SRT)
	raw := extract.Text(cues)
	if raw == "" {
		return output{}, stage.Wrap(stage.ErrInput, StageTranscript, "parse captions", errors.New("captions contain no text"))
	}

	n := checks.WordCount(raw)
	low, high := s.Retention.Range(n)
	res, err := stage.Run(ctx, o.deps.Runner, stage.Spec[transcriptResponse]{
		Name:     StageTranscript,
		Template: "transcript_cleanup",
		Decode: func(out string) (transcriptResponse, error) {
			t, err := stage.DecodeJSON[transcriptResponse](out)
			if err != nil {
				return t, err
			}
			if strings.TrimSpace(t.Cleaned) == "" {
				return t, errors.New(`"cleaned_transcript" is empty`)
			}
			t.Cleaned = NormalizeTerms(strings.TrimSpace(t.Cleaned), slides.Terms)
			return t, nil
		},
		Checks: []func(transcriptResponse) error{
			func(t transcriptResponse) error { return checks.CheckRetention(raw, t.Cleaned, s.Retention) },
		},
	}, stage.Bag{
		"speaker":    rec.Speaker,
		"title":      rec.Title,
		"word_count": n,
		"min_words":  low,
		"max_words":  high,
		"terms":      strings.Join(slides.Terms, "\n"),
		"slides":     slides.Markdown,
		"transcript": raw,
	})
	if err != nil {
		return output{}, err
	}

	srt := extract.Format(extract.Rebuild(cues, res.Output.Cleaned))
	content := talk.TranscriptContent{
		Cleaned:    res.Output.Cleaned,
		SRT:        srt,
		Headings:   extract.TranscriptOutline(res.Output.Cleaned),
		Source:     string(captions.Source),
		InputWords: n,
		Carried:    slides.Verdict(),
	}
	return output{
		value: content,
		columns: map[string]string{
			ledger.ColTranscript: content.Cleaned,
			ledger.ColSRT:        content.SRT,
		},
		summary: fmt.Sprintf("Transcript cleaned: %d of %d words kept (%s)", checks.WordCount(content.Cleaned), n, content.Source),
	}, nil
}

func (o *Orchestrator) discoverResources(ctx context.Context, r *run) (output, error) {
	s := o.deps.Settings
	rec := r.record
	slides, _ := Lookup[talk.SlideContent](r.sc, StageSlides)
	transcript, _ := Lookup[talk.TranscriptContent](r.sc, StageTranscript)

	searchText := "None"
	if o.deps.Search != nil {
		query := strings.TrimSpace(rec.Speaker + " " + rec.Title)
		var results []search.Result
		err := o.deps.Runner.Call(ctx, StageResources, "web search", func(ctx context.Context) error {
			res, err := o.deps.Search.Search(ctx, query, s.SearchLimit)
			results = res
			return err
		})
		if err != nil {
			r.logger.Warn("web search failed, continuing without it", "error", err)
		} else {
			searchText = search.Format(results)
		}
	}

	codesText := formatCodes(slides.Codes)
	excerpt := firstWords(transcript.Cleaned, transcriptExcerptWords)
	haystack := strings.Join([]string{codesText, searchText, slides.Markdown, transcript.Cleaned}, "\n")

	res, err := stage.Run(ctx, o.deps.Runner, stage.Spec[discoveryResponse]{
		Name:     StageResources,
		Template: "resource_discovery",
	}, stage.Bag{
		"speaker":        rec.Speaker,
		"affiliation":    rec.Affiliation,
		"title":          rec.Title,
		"codes":          codesText,
		"search_results": searchText,
		"slides":         slides.Markdown,
		"outline":        strings.Join(transcript.Outline(), "\n"),
		"transcript":     excerpt,
	})
	if err != nil {
		return output{}, err
	}

	refs, dropped := groundedReferences(res.Output.References, haystack)
	if dropped > 0 {
		r.logger.Warn("dropped URLs not present in the inputs", "count", dropped)
	}
	catalog := resources.Classify(resources.Input{
		Codes:      slides.Codes,
		References: refs,
		Speaker:    rec.Speaker,
	}, s.Rules)
	catalog = o.titleResources(ctx, r, catalog)

	return output{
		value:   catalog,
		columns: map[string]string{ledger.ColResources: resources.Format(catalog)},
		summary: fmt.Sprintf("Resources: %d main work(s) cataloged", len(catalog)),
	}, nil
}

// groundedReferences blanks any URL the model returned that does not occur in
// the inputs. The citation text survives.
func groundedReferences(refs []resources.Reference, haystack string) ([]resources.Reference, int) {
	out := make([]resources.Reference, 0, len(refs))
	dropped := 0
	for _, ref := range refs {
		if ref.URL != "" && !strings.Contains(haystack, strings.TrimRight(ref.URL, "/")) {
			ref.URL = ""
			dropped++
		}
		out = append(out, ref)
	}
	return out, dropped
}

// titleResources fills missing titles from the linked pages. Failures are
// logged and the record keeps its URL as label.
func (o *Orchestrator) titleResources(ctx context.Context, r *run, catalog []resources.Record) []resources.Record {
	if o.deps.Fetcher == nil {
		return catalog
	}
	out := make([]resources.Record, len(catalog))
	for i, rec := range catalog {
		out[i] = rec
		if rec.Title != "" || rec.URL == "" {
			continue
		}
		page, err := o.deps.Fetcher.Fetch(ctx, rec.URL)
		if err != nil {
			r.logger.Debug("no title for resource", "url", rec.URL, "error", err)
			continue
		}
		out[i].Title = strings.TrimSpace(page.Title)
	}
	return out
}

func formatRegions(regions []extract.Region) string {
	if len(regions) == 0 {
		return "None"
	}
	lines := make([]string, 0, len(regions))
	for _, rg := range regions {
		lines = append(lines, fmt.Sprintf("p%d %s: %s", rg.Page, rg.Kind, rg.Description))
	}
	return strings.Join(lines, "\n")
}

func formatCodes(codes []resources.Code) string {
	if len(codes) == 0 {
		return "None"
	}
	sorted := make([]resources.Code, len(codes))
	copy(sorted, codes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Page < sorted[j].Page })
	lines := make([]string, 0, len(sorted))
	for _, c := range sorted {
		lines = append(lines, fmt.Sprintf("page %d: %s", c.Page, strings.TrimSpace(c.Data)))
	}
	return strings.Join(lines, "\n")
}

func firstWords(text string, n int) string {
	words := checks.Words(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ") + " ..."
}
