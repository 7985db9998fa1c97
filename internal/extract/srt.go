package extract

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cue is one caption block.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// ParseSRT reads SRT content. Malformed blocks are skipped.
func ParseSRT(content string) []Cue {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var cues []Cue
	for _, block := range strings.Split(strings.TrimSpace(content), "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 2 {
			continue
		}
		// The index line is optional in the wild.
		timing := 0
		idx := len(cues) + 1
		if !strings.Contains(lines[0], "-->") {
			if n, err := strconv.Atoi(strings.TrimSpace(lines[0])); err == nil {
				idx = n
			}
			timing = 1
		}
		if timing >= len(lines) {
			continue
		}
		parts := strings.Split(lines[timing], "-->")
		if len(parts) != 2 {
			continue
		}
		start, err1 := parseTimestamp(parts[0])
		end, err2 := parseTimestamp(parts[1])
		if err1 != nil || err2 != nil {
			continue
		}
		text := strings.Join(strings.Fields(strings.Join(lines[timing+1:], " ")), " ")
		cues = append(cues, Cue{Index: idx, Start: start, End: end, Text: text})
	}
	return cues
}

// Text joins cue texts into plain running text.
func Text(cues []Cue) string {
	parts := make([]string, 0, len(cues))
	for _, c := range cues {
		if c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, " ")
}

// Rebuild lays cleaned text over the original cue timings. Words are handed
// out in proportion to each cue's original word count and the last cue takes
// any remainder, so no cleaned word is dropped.
func Rebuild(cues []Cue, cleaned string) []Cue {
	words := strings.Fields(cleaned)
	if len(cues) == 0 {
		return nil
	}
	total := 0
	for _, c := range cues {
		total += len(strings.Fields(c.Text))
	}

	out := make([]Cue, 0, len(cues))
	pos := 0
	seen := 0
	for i, c := range cues {
		n := len(strings.Fields(c.Text))
		seen += n
		var end int
		switch {
		case i == len(cues)-1:
			end = len(words)
		case total == 0:
			end = (i + 1) * len(words) / len(cues)
		default:
			end = seen * len(words) / total
		}
		if end < pos {
			end = pos
		}
		c.Text = strings.Join(words[pos:end], " ")
		pos = end
		c.Index = len(out) + 1
		out = append(out, c)
	}
	return out
}

// Format renders cues as SRT.
func Format(cues []Cue) string {
	var sb strings.Builder
	for i, c := range cues {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n", c.Index, formatTimestamp(c.Start), formatTimestamp(c.End), c.Text)
	}
	return sb.String()
}

func parseTimestamp(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	// Normalize period to comma (SRT standard uses comma for milliseconds)
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(millis)*time.Millisecond, nil
}

func formatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
