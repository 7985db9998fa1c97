package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/TobiSchelling/talkcomms/internal/retry"
)

func TestParseJSONResponsePlain(t *testing.T) {
	result := ParseJSONResponse(`{"key": "value", "num": 42}`)
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
	if result["num"] != float64(42) {
		t.Errorf("expected num=42, got %v", result["num"])
	}
}

func TestParseJSONResponseWithCodeFence(t *testing.T) {
	text := "```json\n{\"key\": \"value\"}\n```"
	result := ParseJSONResponse(text)
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
}

func TestParseJSONResponseWithPlainFence(t *testing.T) {
	text := "```\n{\"key\": \"value\"}\n```"
	result := ParseJSONResponse(text)
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
}

func TestParseJSONResponseInvalid(t *testing.T) {
	result := ParseJSONResponse("not json at all")
	if result != nil {
		t.Error("expected nil for invalid JSON")
	}
}

func TestParseJSONResponseEmpty(t *testing.T) {
	result := ParseJSONResponse("")
	if result != nil {
		t.Error("expected nil for empty string")
	}
}

func TestParseJSONResponseWhitespace(t *testing.T) {
	result := ParseJSONResponse("  \n  {\"key\": \"value\"}  \n  ")
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result["key"] != "value" {
		t.Errorf("expected key='value', got %v", result["key"])
	}
}

func TestDecodeJSONWithSurroundingProse(t *testing.T) {
	var out struct {
		Cleaned string `json:"cleaned"`
	}
	err := DecodeJSON("Here is the result:\n{\"cleaned\": \"ok\"}\nLet me know!", &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Cleaned != "ok" {
		t.Errorf("expected 'ok', got %q", out.Cleaned)
	}
}

func TestDecodeJSONReportsSnippet(t *testing.T) {
	var out map[string]any
	err := DecodeJSON("I cannot help with that.", &out)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "I cannot help") {
		t.Errorf("expected payload snippet in error, got %v", err)
	}
}

func TestSnippetBounded(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := Snippet(long)
	if len([]rune(got)) > 163 {
		t.Errorf("snippet too long: %d", len([]rune(got)))
	}
	if Snippet("  ") != "<empty>" {
		t.Error("expected <empty> for blank payload")
	}
}

func TestOpenAIProviderGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "hello"}}},
		})
	}))
	defer srv.Close()

	t.Setenv("TEST_OPENAI_KEY", "test-key")
	p := NewOpenAIProvider("gpt-test", srv.URL, "TEST_OPENAI_KEY", 0)
	got, err := p.Generate(context.Background(), "hi", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello" {
		t.Errorf("expected 'hello', got %q", got)
	}
}

func TestAnthropicProviderRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "k" {
			t.Errorf("missing api key header")
		}
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate_limited"}`))
	}))
	defer srv.Close()

	t.Setenv("TEST_ANTHROPIC_KEY", "k")
	p := NewAnthropicProvider("model", srv.URL, "TEST_ANTHROPIC_KEY", 0)
	_, err := p.Generate(context.Background(), "hi", 10)

	var statusErr *retry.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", statusErr.StatusCode)
	}
	if !retry.IsTransient(err) {
		t.Error("429 should be transient")
	}
}

func TestAnthropicProviderJoinsTextBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "{\"a\":"},
				{"type": "text", "text": " 1}"},
			},
		})
	}))
	defer srv.Close()

	t.Setenv("TEST_ANTHROPIC_KEY", "k")
	p := NewAnthropicProvider("model", srv.URL, "TEST_ANTHROPIC_KEY", 0)
	got, err := p.Generate(context.Background(), "hi", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"a": 1}` {
		t.Errorf("unexpected content %q", got)
	}
}

func TestProviderNotConfigured(t *testing.T) {
	p := NewOpenAIProvider("m", "", "TALKCOMMS_UNSET_KEY_FOR_TEST", 0)
	if p.IsConfigured() {
		t.Error("expected provider without key to be unconfigured")
	}
	if _, err := p.Generate(context.Background(), "hi", 1); err == nil {
		t.Error("expected error without api key")
	}
}
