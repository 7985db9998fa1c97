package stage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/talkcomms/internal/checks"
	"github.com/TobiSchelling/talkcomms/internal/logging"
	"github.com/TobiSchelling/talkcomms/internal/prompts"
	"github.com/TobiSchelling/talkcomms/internal/retry"
)

// scriptedProvider returns one scripted reply per call and records prompts.
type scriptedProvider struct {
	replies []reply
	prompts []string
}

type reply struct {
	text string
	err  error
}

func (s *scriptedProvider) Generate(_ context.Context, prompt string, _ int) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.replies) == 0 {
		return "", errors.New("no scripted reply left")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.text, r.err
}

func (s *scriptedProvider) IsConfigured() bool { return true }

type echoOut struct {
	Text string `json:"text"`
}

const testPrompts = `
version: 1
templates:
  echo:
    max_tokens: 100
    text: |
      Rewrite this.
      {{delimit "INPUT" .input}}
`

func newTestRunner(t *testing.T, p *scriptedProvider) *Runner {
	t.Helper()
	reg, err := prompts.Parse([]byte(testPrompts), prompts.Styles{})
	if err != nil {
		t.Fatalf("parse prompts: %v", err)
	}
	noSleep := func(context.Context, time.Duration) error { return nil }
	policy := Policy{
		Transient:        retry.Policy{Attempts: 3, Backoff: retry.Backoff{Base: time.Millisecond}, Sleep: noSleep},
		SchemaRetries:    2,
		InvariantRetries: 1,
	}
	return NewRunner(p, reg, policy, logging.Discard())
}

var echoSpec = Spec[echoOut]{Name: "echo"}

func TestRunAcceptsFirstValidOutput(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{text: "```json\n{\"text\": \"hello\"}\n```"}}}
	r := newTestRunner(t, p)

	res, err := Run(context.Background(), r, echoSpec, Bag{"input": "hi"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Output.Text != "hello" {
		t.Errorf("got %q", res.Output.Text)
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Attempts)
	}
	if !strings.Contains(p.prompts[0], "<<<BEGIN INPUT>>>\nhi\n<<<END INPUT>>>") {
		t.Errorf("prompt not delimited: %q", p.prompts[0])
	}
}

func TestRunRetriesSchemaViolation(t *testing.T) {
	p := &scriptedProvider{replies: []reply{
		{text: "Sure! Here you go."},
		{text: `{"text": "fixed"}`},
	}}
	r := newTestRunner(t, p)

	res, err := Run(context.Background(), r, echoSpec, Bag{"input": "hi"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Attempts)
	}
	if !strings.Contains(p.prompts[1], "valid JSON") {
		t.Errorf("second prompt lacks corrective instruction: %q", p.prompts[1])
	}
}

func TestRunSchemaBudgetExhausted(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{text: "no"}, {text: "no"}, {text: "no"}, {text: `{"text":"late"}`}}}
	r := newTestRunner(t, p)

	_, err := Run(context.Background(), r, echoSpec, Bag{"input": "hi"})
	if !errors.Is(err, ErrSchema) || !errors.Is(err, ErrUnrecoverable) {
		t.Fatalf("expected unrecoverable schema error, got %v", err)
	}
	if len(p.prompts) != 3 {
		t.Errorf("calls = %d, want 3", len(p.prompts))
	}
	if StageName(err) != "echo" {
		t.Errorf("stage name = %q", StageName(err))
	}
}

func TestRunInvariantRemediation(t *testing.T) {
	p := &scriptedProvider{replies: []reply{
		{text: `{"text": "one two three four five"}`},
		{text: `{"text": "one two"}`},
	}}
	r := newTestRunner(t, p)
	spec := echoSpec
	spec.Checks = []func(echoOut) error{func(o echoOut) error {
		if checks.WordCount(o.Text) > 3 {
			return &checks.Violation{Check: "words", Message: "too long", Remediation: "Use at most 3 words."}
		}
		return nil
	}}

	res, err := Run(context.Background(), r, spec, Bag{"input": "hi"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Output.Text != "one two" {
		t.Errorf("got %q", res.Output.Text)
	}
	if !strings.Contains(p.prompts[1], "Use at most 3 words.") {
		t.Errorf("remediation missing from retry prompt: %q", p.prompts[1])
	}
	if len(res.Corrections) != 1 {
		t.Errorf("corrections = %v", res.Corrections)
	}
}

func TestRunInvariantBudgetExhausted(t *testing.T) {
	long := reply{text: `{"text": "far too many words here"}`}
	p := &scriptedProvider{replies: []reply{long, long, long}}
	r := newTestRunner(t, p)
	spec := echoSpec
	spec.Checks = []func(echoOut) error{func(o echoOut) error {
		return &checks.Violation{Check: "retention", Message: "ratio 0.80 below 0.95"}
	}}

	_, err := Run(context.Background(), r, spec, Bag{"input": "hi"})
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected invariant error, got %v", err)
	}
	if len(p.prompts) != 2 {
		t.Errorf("calls = %d, want 2", len(p.prompts))
	}
	var v *checks.Violation
	if !errors.As(err, &v) || v.Check != "retention" {
		t.Errorf("violation not reachable through error: %v", err)
	}
}

func TestRunTransientRetriedThenExhausted(t *testing.T) {
	rate := &retry.StatusError{Service: "openai", StatusCode: 429}
	p := &scriptedProvider{replies: []reply{{err: rate}, {err: rate}, {err: rate}}}
	r := newTestRunner(t, p)

	_, err := Run(context.Background(), r, echoSpec, Bag{"input": "hi"})
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if len(p.prompts) != 3 {
		t.Errorf("calls = %d, want 3", len(p.prompts))
	}
}

func TestRunPermanentServiceError(t *testing.T) {
	p := &scriptedProvider{replies: []reply{{err: &retry.StatusError{Service: "openai", StatusCode: 401}}}}
	r := newTestRunner(t, p)

	_, err := Run(context.Background(), r, echoSpec, Bag{"input": "hi"})
	if !errors.Is(err, ErrService) || errors.Is(err, ErrTransient) {
		t.Fatalf("expected permanent service error, got %v", err)
	}
	if len(p.prompts) != 1 {
		t.Errorf("calls = %d, want 1", len(p.prompts))
	}
}

func TestRunMissingPlaceholder(t *testing.T) {
	r := newTestRunner(t, &scriptedProvider{})
	_, err := Run(context.Background(), r, echoSpec, Bag{})
	if !errors.Is(err, ErrInput) {
		t.Fatalf("expected input error, got %v", err)
	}
}

func TestCallWrapsExhaustion(t *testing.T) {
	r := newTestRunner(t, &scriptedProvider{})
	calls := 0
	err := r.Call(context.Background(), "slides_cleanup", "extract document", func(context.Context) error {
		calls++
		return &retry.StatusError{Service: "docling", StatusCode: 503}
	})
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !strings.Contains(Summary(err), "slides_cleanup") {
		t.Errorf("summary lacks stage: %q", Summary(err))
	}
}

func TestSummaryIsSingleBoundedLine(t *testing.T) {
	cause := errors.New("bad\nthings\n" + strings.Repeat("x", 1000))
	msg := Summary(&Error{Stage: "resource_discovery", Kind: ErrSchema, Attempts: 3, Err: cause})
	if strings.Contains(msg, "\n") {
		t.Errorf("summary spans lines: %q", msg)
	}
	if !strings.HasPrefix(msg, "Error in stage resource_discovery: schema violation after 3 attempt(s)") {
		t.Errorf("unexpected summary %q", msg)
	}
	if len([]rune(msg)) > summaryLimit+3 {
		t.Errorf("summary too long: %d", len([]rune(msg)))
	}
	if Summary(nil) != "" {
		t.Error("nil error should summarize to empty")
	}
}

func TestBagWithCopies(t *testing.T) {
	base := Bag{"a": 1}
	next := base.With(Bag{"b": 2})
	if _, ok := base["b"]; ok {
		t.Error("With mutated the receiver")
	}
	if next["a"] != 1 || next["b"] != 2 {
		t.Errorf("unexpected bag %v", next)
	}
}
