package stage

import (
	"errors"
	"fmt"
	"strings"
)

// Failure markers. A *Error unwraps to ErrUnrecoverable plus one of the
// others, so callers classify with errors.Is.
var (
	ErrUnrecoverable = errors.New("unrecoverable stage error")
	ErrTransient     = errors.New("transient service error")
	ErrSchema        = errors.New("schema violation")
	ErrInvariant     = errors.New("invariant violation")
	ErrService       = errors.New("service error")
	ErrInput         = errors.New("missing input")
)

// Error is a stage that ran out of retries or hit a permanent failure.
type Error struct {
	Stage    string
	Kind     error
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	kind := "failed"
	if e.Kind != nil {
		kind = e.Kind.Error()
	}
	if e.Attempts > 0 {
		return fmt.Sprintf("stage %s: %s after %d attempt(s): %v", e.Stage, kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("stage %s: %s: %v", e.Stage, kind, e.Err)
}

func (e *Error) Unwrap() []error {
	out := []error{ErrUnrecoverable}
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Wrap builds a stage error with operation context, tagged with marker.
func Wrap(marker error, stage, operation string, err error) error {
	if marker == nil {
		marker = ErrService
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		err = fmt.Errorf("%s: %w", operation, err)
	}
	return &Error{Stage: stage, Kind: marker, Err: err}
}

// StageName returns the failing stage recorded in err, if any.
func StageName(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

const summaryLimit = 300

// Summary renders err as a single bounded line for external observers. It
// names the failing stage and never includes stack traces or raw payloads
// beyond the limit.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	var msg string
	var se *Error
	if errors.As(err, &se) {
		kind := "failed"
		if se.Kind != nil {
			kind = se.Kind.Error()
		}
		cause := ""
		if se.Err != nil {
			cause = se.Err.Error()
		}
		msg = fmt.Sprintf("Error in stage %s: %s", se.Stage, kind)
		if se.Attempts > 0 {
			msg += fmt.Sprintf(" after %d attempt(s)", se.Attempts)
		}
		if cause != "" {
			msg += ": " + cause
		}
	} else {
		msg = "Error: " + err.Error()
	}

	if i := strings.Index(msg, "goroutine "); i > 0 {
		msg = msg[:i]
	}
	msg = strings.Join(strings.Fields(msg), " ")
	if r := []rune(msg); len(r) > summaryLimit {
		msg = string(r[:summaryLimit]) + "..."
	}
	return msg
}
