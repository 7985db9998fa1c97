// Package resources turns optical-code payloads and free-text references into
// a de-duplicated catalog of the main works behind a talk or paper.
package resources

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Kind tags a resource record.
type Kind string

const (
	KindCode     Kind = "code"
	KindURL      Kind = "url"
	KindPaper    Kind = "paper"
	KindDataset  Kind = "dataset"
	KindCitation Kind = "citation"
)

// Provenance records where a resource was found.
type Provenance string

const (
	FromOpticalCode  Provenance = "optical-code"
	FromDocumentText Provenance = "document-text"
)

// Record is one catalog entry. Records are values and are never mutated once
// the catalog is built.
type Record struct {
	Kind       Kind       `json:"kind"`
	Title      string     `json:"title,omitempty"`
	URL        string     `json:"url,omitempty"`
	Reference  string     `json:"reference,omitempty"`
	Context    string     `json:"context,omitempty"`
	Provenance Provenance `json:"provenance"`
}

// Key is the dedup key: the paper identifier for arXiv and DOI links, else the
// normalized URL, else the normalized title.
func (r Record) Key() string {
	if r.URL != "" {
		if id, ok := PaperID(r.URL); ok {
			return id
		}
		if n, ok := NormalizeURL(r.URL); ok {
			return n
		}
	}
	title := r.Title
	if title == "" {
		title = r.Reference
	}
	return "title:" + NormalizeTitle(title)
}

// Code is a decoded optical code (QR) found on a page.
type Code struct {
	Page int    `json:"page"`
	Data string `json:"data"`
}

// Reference is a candidate found in document text, by a model or a search.
type Reference struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Text    string `json:"reference"`
	Context string `json:"context"`
}

// Input to Classify.
type Input struct {
	Codes      []Code
	References []Reference
	Speaker    string
}

// Rules is the exclusion rule set.
type Rules struct {
	ExcludedHosts         []string
	InstitutionalSuffixes []string
}

var (
	doiPattern   = regexp.MustCompile(`\b(10\.\d{4,9}/[^\s"<>]+)`)
	arxivPattern = regexp.MustCompile(`(?i)(?:arxiv\.org/(?:abs|pdf)/|arxiv:\s*)(\d{4}\.\d{4,5})(?:v\d+)?`)
	urlPattern   = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
)

// Classify builds the catalog. Code-derived records are classified first, so
// they win any dedup collision; order is otherwise preserved.
func Classify(in Input, rules Rules) []Record {
	var out []Record
	seen := make(map[string]bool)
	add := func(r Record) {
		if excluded(r, in.Speaker, rules) {
			return
		}
		key := r.Key()
		if key == "title:" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, r)
	}

	for _, c := range in.Codes {
		if r, ok := fromCode(c); ok {
			add(r)
		}
	}
	for _, ref := range in.References {
		if r, ok := fromReference(ref); ok {
			add(r)
		}
	}
	return out
}

func fromCode(c Code) (Record, bool) {
	data := strings.TrimSpace(c.Data)
	if !ValidURL(data) {
		return Record{}, false
	}
	return Record{
		Kind:       kindForURL(data),
		URL:        data,
		Reference:  data,
		Context:    fmt.Sprintf("QR code on page %d", c.Page),
		Provenance: FromOpticalCode,
	}, true
}

// fromReference applies DOI/paper id > bare URL > citation precedence.
func fromReference(ref Reference) (Record, bool) {
	text := strings.TrimSpace(ref.Text)
	title := strings.TrimSpace(ref.Title)
	link := strings.TrimSpace(ref.URL)
	haystack := strings.Join([]string{link, text, title}, " ")

	r := Record{
		Title:      title,
		Reference:  text,
		Context:    strings.TrimSpace(ref.Context),
		Provenance: FromDocumentText,
	}

	if m := doiPattern.FindStringSubmatch(haystack); m != nil {
		r.Kind = KindPaper
		r.URL = "https://doi.org/" + strings.TrimRight(m[1], ".,;")
		return r, true
	}
	if m := arxivPattern.FindStringSubmatch(haystack); m != nil {
		r.Kind = KindPaper
		r.URL = "https://arxiv.org/abs/" + m[1]
		return r, true
	}

	if link == "" {
		link = urlPattern.FindString(text)
	}
	link = strings.TrimRight(link, ".,;")
	if link != "" && ValidURL(link) {
		r.Kind = kindForURL(link)
		r.URL = link
		return r, true
	}

	if title == "" && text == "" {
		return Record{}, false
	}
	r.Kind = KindCitation
	return r, true
}

func kindForURL(raw string) Kind {
	u, err := url.Parse(raw)
	if err != nil {
		return KindURL
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.ToLower(u.Path)
	switch {
	case host == "github.com" || host == "gitlab.com" || host == "bitbucket.org" || host == "codeberg.org":
		return KindCode
	case host == "huggingface.co" && strings.HasPrefix(path, "/datasets/"),
		host == "kaggle.com" && strings.HasPrefix(path, "/datasets/"),
		host == "zenodo.org":
		return KindDataset
	case host == "arxiv.org" || host == "doi.org" || host == "openreview.net" ||
		host == "aclanthology.org" || strings.HasSuffix(host, ".neurips.cc") ||
		host == "proceedings.mlr.press" || strings.HasSuffix(path, ".pdf"):
		return KindPaper
	default:
		return KindURL
	}
}

// excluded applies the main-work rule set to document-text records. False
// inclusions are worse than omissions, so every rule removes. A valid URL
// decoded from a QR code was put on the slide by the speaker and is kept.
func excluded(r Record, speaker string, rules Rules) bool {
	if r.Provenance == FromOpticalCode {
		return !ValidURL(r.URL)
	}
	if r.URL != "" {
		u, err := url.Parse(r.URL)
		if err != nil {
			return true
		}
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		for _, h := range rules.ExcludedHosts {
			h = strings.ToLower(strings.TrimSpace(h))
			if h != "" && (host == h || strings.HasSuffix(host, "."+h)) {
				return true
			}
		}
		if strings.Trim(u.Path, "/") == "" && u.RawQuery == "" {
			return true
		}
		if r.Kind == KindURL {
			for _, suffix := range rules.InstitutionalSuffixes {
				if suffix != "" && strings.HasSuffix(host, strings.ToLower(suffix)) {
					return true
				}
			}
		}
	}

	if r.Provenance == FromDocumentText && (r.Kind == KindPaper || r.Kind == KindCitation) {
		return !namesSpeaker(r, speaker)
	}
	return false
}

func namesSpeaker(r Record, speaker string) bool {
	surname := lastName(speaker)
	if surname == "" {
		return false
	}
	text := NormalizeTitle(strings.Join([]string{r.Title, r.Reference, r.Context}, " "))
	for _, f := range strings.Fields(text) {
		if f == surname {
			return true
		}
	}
	return false
}

func lastName(speaker string) string {
	fields := strings.Fields(NormalizeTitle(speaker))
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// Format renders the catalog for the ledger's Resources column.
func Format(records []Record) string {
	var sb strings.Builder
	for _, r := range records {
		label := r.Title
		if label == "" {
			label = r.Reference
		}
		if label == "" {
			label = r.URL
		}
		fmt.Fprintf(&sb, "- [%s] %s", r.Kind, label)
		if r.URL != "" && r.URL != label {
			fmt.Fprintf(&sb, " (%s)", r.URL)
		}
		fmt.Fprintf(&sb, " {%s}\n", r.Provenance)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Keys returns the dedup keys of a catalog, for order-independent comparison.
func Keys(records []Record) map[string]bool {
	keys := make(map[string]bool, len(records))
	for _, r := range records {
		keys[r.Key()] = true
	}
	return keys
}
