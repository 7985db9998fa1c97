package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const articleHTML = `<html><head><title>Scaling Laws Repo</title>
<meta name="description" content="Code for scaling laws."></head>
<body><article><h1>Scaling Laws Repo</h1>
<p>` + "This repository contains the training code and evaluation harness used in the paper. " +
	"It reproduces every figure and table, including the 70B model sweep. " +
	"Installation instructions and pretrained checkpoints are listed below." + `</p>
<p>More text about datasets, configs and licensing so readability has enough content to extract.</p>
</article></body></html>`

func TestFetchExtractsPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	page, err := NewPageFetcher(time.Second).Fetch(context.Background(), srv.URL+"/repo")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(page.Title, "Scaling Laws") {
		t.Errorf("unexpected title %q", page.Title)
	}
	if !strings.Contains(page.Text, "70B model sweep") {
		t.Errorf("text missing content: %q", page.Text)
	}
}

func TestFetchSkipsDomainAfterHTTPError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewPageFetcher(time.Second)
	ctx := context.Background()
	if _, err := f.Fetch(ctx, srv.URL+"/a"); err == nil {
		t.Fatal("expected HTTP error")
	}
	_, err := f.Fetch(ctx, srv.URL+"/b")
	if !errors.Is(err, ErrDomainSkipped) {
		t.Errorf("expected ErrDomainSkipped, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 request, got %d", calls)
	}
}

func TestFetchRejectsInvalidURL(t *testing.T) {
	if _, err := NewPageFetcher(0).Fetch(context.Background(), "not a url"); err == nil {
		t.Error("expected error for invalid url")
	}
}
