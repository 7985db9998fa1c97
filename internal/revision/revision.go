// Package revision drives the draft, score, revise cycle for social copy.
package revision

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/TobiSchelling/talkcomms/internal/checks"
)

// State is a position in the revision state machine.
type State string

const (
	Drafting  State = "drafting"
	Scoring   State = "scoring"
	Revising  State = "revising"
	Accepted  State = "accepted"
	Abandoned State = "abandoned"
)

// Criterion weights out of 100. Sub-scores are 0-10.
var Rubric = map[string]int{
	"accuracy":     30,
	"hook":         20,
	"clarity":      20,
	"voice":        15,
	"platform_fit": 15,
}

// Score is the outcome of evaluating one draft.
type Score struct {
	Total     int
	SubScores map[string]int
	Checklist checks.Checklist
	Notes     []string
}

// Weigh computes the rubric total from 0-10 sub-scores. Unknown criteria are
// ignored and missing ones count as zero.
func Weigh(sub map[string]int) int {
	sum := 0.0
	for name, w := range Rubric {
		s := sub[name]
		if s < 0 {
			s = 0
		}
		if s > 10 {
			s = 10
		}
		sum += float64(w*s) / 10
	}
	return int(math.Round(sum))
}

// Passes reports whether the draft meets the acceptance rule.
func (s Score) Passes(threshold int) bool {
	return s.Total >= threshold && s.Checklist.AllPassed()
}

// Remediation lists what must change for the next draft.
func (s Score) Remediation(threshold int) string {
	var lines []string
	if s.Total < threshold {
		lines = append(lines, fmt.Sprintf("Rubric total %d is below the required %d.", s.Total, threshold))
		names := make([]string, 0, len(Rubric))
		for n := range Rubric {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			if v := s.SubScores[n]; v < 8 {
				lines = append(lines, fmt.Sprintf("Improve %s (scored %d/10).", n, v))
			}
		}
	}
	for _, item := range s.Checklist.Failed() {
		line := "Fix " + item.Name
		if item.Detail != "" {
			line += ": " + item.Detail
		}
		lines = append(lines, line+".")
	}
	lines = append(lines, s.Notes...)
	return strings.Join(lines, "\n")
}

// Policy bounds the loop.
type Policy struct {
	Threshold    int
	MaxRevisions int
}

// Feedback is handed to the drafter. It is empty on the first draft.
type Feedback[T any] struct {
	Prior       *T
	Score       *Score
	Remediation string
	Revision    int
}

// Outcome is the loop's result. Verified is false when the loop was abandoned
// and Draft is only the best candidate seen.
type Outcome[T any] struct {
	Draft     T
	Score     Score
	Verified  bool
	Revisions int
	States    []State
}

// DraftFunc produces a candidate, possibly revising a prior one.
type DraftFunc[T any] func(ctx context.Context, fb Feedback[T]) (T, error)

// ScoreFunc evaluates a candidate.
type ScoreFunc[T any] func(ctx context.Context, draft T) (Score, error)

// Run drafts, scores and revises until a draft is accepted or the revision
// budget is spent. Errors from draft or score end the loop immediately.
func Run[T any](ctx context.Context, p Policy, draft DraftFunc[T], score ScoreFunc[T]) (Outcome[T], error) {
	var out Outcome[T]
	var best *T
	var bestScore Score
	fb := Feedback[T]{}

	for {
		out.States = append(out.States, Drafting)
		d, err := draft(ctx, fb)
		if err != nil {
			return out, err
		}

		out.States = append(out.States, Scoring)
		s, err := score(ctx, d)
		if err != nil {
			return out, err
		}

		if best == nil || better(s, bestScore) {
			cp := d
			best = &cp
			bestScore = s
		}

		if s.Passes(p.Threshold) {
			out.States = append(out.States, Accepted)
			out.Draft, out.Score, out.Verified = d, s, true
			return out, nil
		}

		if out.Revisions >= p.MaxRevisions {
			out.States = append(out.States, Abandoned)
			out.Draft, out.Score = *best, bestScore
			return out, nil
		}

		out.States = append(out.States, Revising)
		out.Revisions++
		prior, ps := d, s
		fb = Feedback[T]{
			Prior:       &prior,
			Score:       &ps,
			Remediation: s.Remediation(p.Threshold),
			Revision:    out.Revisions,
		}
	}
}

func better(a, b Score) bool {
	if a.Total != b.Total {
		return a.Total > b.Total
	}
	return a.Checklist.Passed() > b.Checklist.Passed()
}
