// Package checks holds the pure validation rules applied to stage output
// before it is accepted. Nothing here performs I/O.
package checks

import (
	"fmt"
	"strings"
)

// Violation is a failed hard check. Remediation is phrased as an instruction
// that can be handed back to the model on retry.
type Violation struct {
	Check       string
	Message     string
	Remediation string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Check, v.Message)
}

// Words splits text on whitespace.
func Words(s string) []string {
	return strings.Fields(s)
}

// WordCount returns the number of whitespace separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
