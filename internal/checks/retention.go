package checks

import (
	"fmt"
	"math"
)

// RetentionBounds are inclusive ratio bounds of output words to input words.
type RetentionBounds struct {
	Min float64
	Max float64
}

// DefaultRetention keeps a cleaned transcript within 5% of the source length.
var DefaultRetention = RetentionBounds{Min: 0.95, Max: 1.05}

// CheckRetention fails when a verbatim cleaning pass dropped or invented text.
func CheckRetention(input, output string, b RetentionBounds) error {
	in := WordCount(input)
	out := WordCount(output)

	if in == 0 {
		if out == 0 {
			return nil
		}
		return &Violation{
			Check:       "retention",
			Message:     fmt.Sprintf("input is empty but output has %d words", out),
			Remediation: "The input is empty. Return an empty transcript.",
		}
	}

	ratio := float64(out) / float64(in)
	if ratio >= b.Min && ratio <= b.Max {
		return nil
	}

	low := minWords(in, b.Min)
	high := maxWords(in, b.Max)
	return &Violation{
		Check:   "retention",
		Message: fmt.Sprintf("output has %d words for %d input words (ratio %.3f, allowed %.2f-%.2f)", out, in, ratio, b.Min, b.Max),
		Remediation: fmt.Sprintf(
			"Your previous output had %d words but must contain between %d and %d words. "+
				"Keep every sentence of the original; only fix transcription errors, punctuation and paragraph breaks. Do not summarize or add content.",
			out, low, high),
	}
}

// Range is the inclusive output word range allowed for in input words.
func (b RetentionBounds) Range(in int) (low, high int) {
	return minWords(in, b.Min), maxWords(in, b.Max)
}

func minWords(in int, ratio float64) int {
	return int(math.Ceil(float64(in)*ratio - 1e-9))
}

func maxWords(in int, ratio float64) int {
	return int(math.Floor(float64(in)*ratio + 1e-9))
}
