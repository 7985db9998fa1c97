// Package talk defines the record a pipeline run processes and the content
// extracted from it.
package talk

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/talkcomms/internal/checks"
	"github.com/TobiSchelling/talkcomms/internal/ledger"
	"github.com/TobiSchelling/talkcomms/internal/resources"
)

// ContentType selects a pipeline.
type ContentType string

const (
	Prepare      ContentType = "prepare"
	Promote      ContentType = "promote"
	PromotePaper ContentType = "promote_paper"
)

var contentAliases = map[string]ContentType{
	"prepare":          Prepare,
	"prepare_talk":     Prepare,
	"promote":          Promote,
	"promote_talk":     Promote,
	"promote_paper":    PromotePaper,
	"promote_research": PromotePaper,
}

// ParseContentType accepts the canonical names and the ledger button names.
func ParseContentType(s string) (ContentType, error) {
	ct, ok := contentAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown content type %q", s)
	}
	return ct, nil
}

// Record is one talk or paper. It is read once at the start of a run and not
// changed while the run is in flight.
type Record struct {
	ID          string `json:"id"`
	Speaker     string `json:"speaker"`
	Title       string `json:"title"`
	Event       string `json:"event"`
	Affiliation string `json:"affiliation"`
	VideoURL    string `json:"video_url"`
	ResourceURL string `json:"resource_url"`
	PaperText   string `json:"paper_text"`

	// Outputs of an earlier prepare run, read by promote.
	Slides     string `json:"slides,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	SRT        string `json:"srt,omitempty"`
	Resources  string `json:"resources,omitempty"`
	// Identity report written by prepare, in checks.IdentityReport.String form.
	SpeakerValidation string `json:"speaker_validation,omitempty"`
}

// ReadColumns are the ledger columns a run of ct needs.
func ReadColumns(ct ContentType) []string {
	cols := []string{
		ledger.ColSpeaker, ledger.ColTitle, ledger.ColEvent, ledger.ColAffiliation,
		ledger.ColVideoURL, ledger.ColResourceURL,
	}
	switch ct {
	case Prepare:
		cols = append(cols, ledger.ColSlides, ledger.ColTranscript, ledger.ColSRT, ledger.ColSpeakerValidation)
	case Promote:
		cols = append(cols, ledger.ColSlides, ledger.ColTranscript, ledger.ColResources, ledger.ColSpeakerValidation)
	case PromotePaper:
		cols = append(cols, ledger.ColPaperText, ledger.ColResources)
	}
	return cols
}

// FromRow builds a record from ledger values.
func FromRow(id string, row map[string]string) Record {
	get := func(col string) string { return strings.TrimSpace(row[col]) }
	return Record{
		ID:          id,
		Speaker:     get(ledger.ColSpeaker),
		Title:       get(ledger.ColTitle),
		Event:       get(ledger.ColEvent),
		Affiliation: get(ledger.ColAffiliation),
		VideoURL:    get(ledger.ColVideoURL),
		ResourceURL: get(ledger.ColResourceURL),
		PaperText:   row[ledger.ColPaperText],
		Slides:      row[ledger.ColSlides],
		Transcript:  row[ledger.ColTranscript],
		SRT:         row[ledger.ColSRT],
		Resources:   row[ledger.ColResources],

		SpeakerValidation: row[ledger.ColSpeakerValidation],
	}
}

// Merge fills empty fields of r from other. Used when a caller posts a
// payload for a record that also exists in the ledger.
func (r Record) Merge(other Record) Record {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&r.Speaker, other.Speaker)
	fill(&r.Title, other.Title)
	fill(&r.Event, other.Event)
	fill(&r.Affiliation, other.Affiliation)
	fill(&r.VideoURL, other.VideoURL)
	fill(&r.ResourceURL, other.ResourceURL)
	fill(&r.PaperText, other.PaperText)
	fill(&r.Slides, other.Slides)
	fill(&r.Transcript, other.Transcript)
	fill(&r.SRT, other.SRT)
	fill(&r.Resources, other.Resources)
	fill(&r.SpeakerValidation, other.SpeakerValidation)
	return r
}

// Identity is the source-of-truth identity used for validation.
func (r Record) Identity() checks.Identity {
	return checks.Identity{Name: r.Speaker, Affiliation: r.Affiliation, Title: r.Title}
}

// Extracted is cleaned content produced by an extraction stage.
type Extracted interface {
	Text() string
	Outline() []string
	Provenance() string
	Verdict() checks.Verdict
	extracted()
}

// SlideContent is the cleaned slide deck.
type SlideContent struct {
	Markdown  string
	Headings  []string
	Source    string
	Extracted checks.Identity
	Report    checks.IdentityReport
	Terms     []string
	Codes     []resources.Code
}

func (s SlideContent) Text() string            { return s.Markdown }
func (s SlideContent) Outline() []string       { return s.Headings }
func (s SlideContent) Provenance() string      { return s.Source }
func (s SlideContent) Verdict() checks.Verdict { return s.Report.Overall() }
func (SlideContent) extracted()                {}

// TranscriptContent is the cleaned transcript with its captions.
type TranscriptContent struct {
	Cleaned    string
	SRT        string
	Headings   []string
	Source     string
	InputWords int
	// Identity verdict carried over from the slides so later stages see it.
	Carried checks.Verdict
}

func (t TranscriptContent) Text() string            { return t.Cleaned }
func (t TranscriptContent) Outline() []string       { return t.Headings }
func (t TranscriptContent) Provenance() string      { return t.Source }
func (t TranscriptContent) Verdict() checks.Verdict { return t.Carried }
func (TranscriptContent) extracted()                {}
