// Package fetch pulls readable text from web pages.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/talkcomms/internal/retry"
)

// ErrDomainSkipped is returned for URLs on a domain that already answered
// with an HTTP error during this fetcher's lifetime.
var ErrDomainSkipped = errors.New("domain skipped after earlier HTTP error")

// ErrNoContent is returned when a page has no extractable article text.
var ErrNoContent = errors.New("no extractable content")

const maxBody = 8 << 20

// Page is the readable form of a web page.
type Page struct {
	URL     string
	Title   string
	Excerpt string
	Text    string
}

// PageFetcher fetches pages via HTTP + readability extraction.
type PageFetcher struct {
	client *http.Client

	mu            sync.Mutex
	failedDomains map[string]struct{}
}

// NewPageFetcher creates a new page fetcher.
func NewPageFetcher(timeout time.Duration) *PageFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &PageFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		failedDomains: make(map[string]struct{}),
	}
}

// Fetch downloads pageURL and extracts its main content.
func (f *PageFetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid url %q", pageURL)
	}
	domain := strings.ToLower(parsedURL.Host)
	if f.skipped(domain) {
		return nil, fmt.Errorf("%w: %s", ErrDomainSkipped, domain)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "talkcomms/1.0 (resource lookup)")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		f.markFailed(domain)
		slog.Warn("HTTP error fetching page, skipping domain", "url", pageURL, "status", resp.StatusCode, "domain", domain)
		return nil, retry.NewStatusError(domain, resp, b)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxBody), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoContent, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) <= 100 && strings.TrimSpace(article.Title) == "" {
		return nil, ErrNoContent
	}
	return &Page{
		URL:     pageURL,
		Title:   strings.TrimSpace(article.Title),
		Excerpt: strings.TrimSpace(article.Excerpt),
		Text:    text,
	}, nil
}

func (f *PageFetcher) skipped(domain string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.failedDomains[domain]
	return ok
}

func (f *PageFetcher) markFailed(domain string) {
	f.mu.Lock()
	f.failedDomains[domain] = struct{}{}
	f.mu.Unlock()
}
