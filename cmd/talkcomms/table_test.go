package main

import (
	"strings"
	"testing"
)

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"Run", "Steps"}, [][]string{{"abc", "3"}, {"def"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(out, "abc") || !strings.Contains(out, "def") {
		t.Fatalf("missing rows:\n%s", out)
	}
	if !strings.Contains(out, "╭") {
		t.Errorf("expected rounded style:\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("expected empty output without headers")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncate("Grüße aus Köln", 6); got != "Grüße…" {
		t.Errorf("got %q", got)
	}
}
