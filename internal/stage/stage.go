// Package stage runs one pipeline stage: render a prompt, call the completion
// service, decode the structured response and enforce the stage's hard checks
// under a bounded retry budget.
package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/TobiSchelling/talkcomms/internal/checks"
	"github.com/TobiSchelling/talkcomms/internal/llm"
	"github.com/TobiSchelling/talkcomms/internal/prompts"
	"github.com/TobiSchelling/talkcomms/internal/retry"
)

const defaultMaxTokens = 4096

// Bag carries named placeholder values into a prompt template.
type Bag map[string]any

// With returns a copy of b with kv applied on top.
func (b Bag) With(kv Bag) Bag {
	out := make(Bag, len(b)+len(kv))
	for k, v := range b {
		out[k] = v
	}
	for k, v := range kv {
		out[k] = v
	}
	return out
}

// Spec declares a stage. Template defaults to Name. Decode turns the raw model
// text into T and reports schema problems; each check returns nil or a
// *checks.Violation.
type Spec[T any] struct {
	Name      string
	Template  string
	MaxTokens int
	Decode    func(raw string) (T, error)
	Checks    []func(T) error
}

// Result is an accepted stage output.
type Result[T any] struct {
	Output   T
	Attempts int
	// Corrections are the corrective instructions that were issued on retries.
	Corrections []string
}

// Policy holds the independent retry budgets.
type Policy struct {
	Transient        retry.Policy
	SchemaRetries    int
	InvariantRetries int
	MaxTokens        int
}

// Runner executes stages against one completion service.
type Runner struct {
	provider llm.Provider
	prompts  *prompts.Registry
	policy   Policy
	logger   *slog.Logger
}

// NewRunner creates a stage runner.
func NewRunner(provider llm.Provider, reg *prompts.Registry, policy Policy, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{provider: provider, prompts: reg, policy: policy, logger: logger}
}

// Prompts returns the template registry the runner renders from.
func (r *Runner) Prompts() *prompts.Registry {
	return r.prompts
}

// DecodeJSON is the default decoder: the response must be a JSON document
// that unmarshals into T.
func DecodeJSON[T any](raw string) (T, error) {
	var out T
	if err := llm.DecodeJSON(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// Run executes spec once, retrying schema and invariant failures with
// corrective instructions until their budgets are spent.
func Run[T any](ctx context.Context, r *Runner, spec Spec[T], bag Bag) (Result[T], error) {
	var zero Result[T]
	tmpl := spec.Template
	if tmpl == "" {
		tmpl = spec.Name
	}
	decode := spec.Decode
	if decode == nil {
		decode = DecodeJSON[T]
	}

	base, err := r.prompts.Render(tmpl, bag)
	if err != nil {
		return zero, &Error{Stage: spec.Name, Kind: ErrInput, Err: err}
	}
	maxTokens := r.maxTokens(spec.MaxTokens, tmpl)
	logger := r.logger.With(slog.String("stage", spec.Name))

	schemaLeft := r.policy.SchemaRetries
	invariantLeft := r.policy.InvariantRetries
	var corrections []string

	for attempt := 1; ; attempt++ {
		prompt := withCorrections(base, corrections)
		raw, err := r.generate(ctx, prompt, maxTokens)
		if err != nil {
			kind := ErrService
			var exhausted *retry.ExhaustedError
			if errors.As(err, &exhausted) {
				kind = ErrTransient
			}
			return zero, &Error{Stage: spec.Name, Kind: kind, Attempts: attempt, Err: err}
		}

		out, err := decode(raw)
		if err != nil {
			if schemaLeft == 0 {
				return zero, &Error{Stage: spec.Name, Kind: ErrSchema, Attempts: attempt, Err: err}
			}
			schemaLeft--
			logger.Warn("unparsable stage output, retrying", "attempt", attempt, "error", err)
			corrections = append(corrections, fmt.Sprintf(
				"Your previous response could not be parsed (%s). Return ONLY valid JSON matching the schema above, with no prose and no code fences.",
				llm.Snippet(err.Error())))
			continue
		}

		if v := firstViolation(spec.Checks, out); v != nil {
			if invariantLeft == 0 {
				return zero, &Error{Stage: spec.Name, Kind: ErrInvariant, Attempts: attempt, Err: v}
			}
			invariantLeft--
			logger.Warn("stage output failed a hard check, retrying", "attempt", attempt, "check", v.Check, "detail", v.Message)
			corrections = append(corrections, remediation(v))
			continue
		}

		logger.Debug("stage accepted", "attempts", attempt)
		return Result[T]{Output: out, Attempts: attempt, Corrections: corrections}, nil
	}
}

// Call runs a non-LLM external operation under the transient retry budget.
func (r *Runner) Call(ctx context.Context, stageName, operation string, fn func(ctx context.Context) error) error {
	err := retry.Do(ctx, r.transientPolicy(), fn)
	if err == nil {
		return nil
	}
	kind := ErrService
	attempts := 1
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		kind = ErrTransient
		attempts = exhausted.Attempts
	}
	return &Error{Stage: stageName, Kind: kind, Attempts: attempts, Err: fmt.Errorf("%s: %w", operation, err)}
}

func (r *Runner) generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if r.provider == nil {
		return "", errors.New("no LLM provider configured")
	}
	var raw string
	err := retry.Do(ctx, r.transientPolicy(), func(ctx context.Context) error {
		out, err := r.provider.Generate(ctx, prompt, maxTokens)
		if err != nil {
			return err
		}
		raw = out
		return nil
	})
	return raw, err
}

func (r *Runner) transientPolicy() retry.Policy {
	p := r.policy.Transient
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	return p
}

func (r *Runner) maxTokens(specTokens int, tmpl string) int {
	if specTokens > 0 {
		return specTokens
	}
	if n := r.prompts.MaxTokens(tmpl); n > 0 {
		return n
	}
	if r.policy.MaxTokens > 0 {
		return r.policy.MaxTokens
	}
	return defaultMaxTokens
}

func firstViolation[T any](fns []func(T) error, out T) *checks.Violation {
	for _, fn := range fns {
		err := fn(out)
		if err == nil {
			continue
		}
		var v *checks.Violation
		if errors.As(err, &v) {
			return v
		}
		return &checks.Violation{Check: "output", Message: err.Error(), Remediation: err.Error()}
	}
	return nil
}

func remediation(v *checks.Violation) string {
	if v.Remediation != "" {
		return v.Remediation
	}
	return "Fix this problem: " + v.Message
}

func withCorrections(prompt string, corrections []string) string {
	if len(corrections) == 0 {
		return prompt
	}
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\nIMPORTANT corrections from previous attempts:\n")
	for _, c := range corrections {
		sb.WriteString("- ")
		sb.WriteString(c)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
