// Package search finds candidate resources for a talk on the public web.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/TobiSchelling/talkcomms/internal/resources"
)

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// Searcher is a search strategy.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// New builds searchers by name. Unknown names are an error.
func New(names []string, client *http.Client) ([]Searcher, error) {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	out := make([]Searcher, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "duckduckgo":
			out = append(out, NewDuckDuckGo(client))
		case "arxiv":
			out = append(out, NewArxiv(client))
		default:
			return nil, fmt.Errorf("unknown search provider %q", name)
		}
	}
	return out, nil
}

// Multi queries several searchers in order and merges their results,
// dropping duplicate URLs. One failing searcher does not fail the rest.
type Multi struct {
	searchers []Searcher
}

func NewMulti(searchers ...Searcher) *Multi {
	return &Multi{searchers: searchers}
}

func (m *Multi) Name() string { return "multi" }

// Search returns an error only when every searcher failed.
func (m *Multi) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	var (
		results []Result
		errs    []error
	)
	seen := make(map[string]bool)
	for _, s := range m.searchers {
		hits, err := s.Search(ctx, query, limit)
		if err != nil {
			slog.Warn("search provider failed", "provider", s.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		for _, h := range hits {
			key, ok := resources.NormalizeURL(h.URL)
			if !ok || seen[key] {
				continue
			}
			seen[key] = true
			results = append(results, h)
		}
	}
	if len(errs) > 0 && len(errs) == len(m.searchers) {
		return nil, errors.Join(errs...)
	}
	return results, nil
}

// Format renders results as numbered lines for a prompt.
func Format(results []Result) string {
	if len(results) == 0 {
		return "None"
	}
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s (%s)", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			sb.WriteString(" - " + r.Snippet)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
