package extract

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]`)

func cleanName(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(s), "")
}

// Match is a scored filename match.
type Match struct {
	Path        string
	Score       int
	Specificity int
	Reason      string
}

// ScoreFilename rates how well a speaker name matches a file name. Scores:
// 100 full name, 90 first and last, 85 partial first plus last, 80 one name,
// 60 six-character prefix, 40 four-character prefix.
func ScoreFilename(speaker, filename string) Match {
	parts := strings.Fields(speaker)
	if len(parts) == 0 {
		return Match{Reason: "no_match"}
	}
	file := cleanName(filename)
	first := cleanName(parts[0])
	last := ""
	if len(parts) > 1 {
		last = cleanName(parts[len(parts)-1])
	}

	full := cleanName(strings.Join(parts, ""))
	if full != "" && strings.Contains(file, full) {
		return Match{Score: 100, Specificity: len(full), Reason: "full_exact:" + full}
	}
	if first != "" && last != "" && strings.Contains(file, first) && strings.Contains(file, last) {
		return Match{Score: 90, Specificity: len(first) + len(last), Reason: "both_exact:" + first + "+" + last}
	}
	if first != "" && last != "" && strings.Contains(file, last) && len(first) >= 4 {
		for i := min(len(first), 8); i > 3; i-- {
			if strings.Contains(file, first[:i]) {
				return Match{Score: 85, Specificity: i + len(last), Reason: "partial_first_exact_last:" + first[:i] + "+" + last}
			}
		}
	}

	var best Match
	if first != "" && strings.Contains(file, first) {
		best = Match{Score: 80, Specificity: len(first), Reason: "first_exact:" + first}
	}
	if last != "" && strings.Contains(file, last) && len(last) > best.Specificity {
		best = Match{Score: 80, Specificity: len(last), Reason: "last_exact:" + last}
	}
	if best.Score > 0 {
		return best
	}

	if len(first) >= 6 && strings.Contains(file, first[:6]) {
		return Match{Score: 60, Specificity: 6, Reason: "first_partial:" + first[:6]}
	}
	if len(last) >= 6 && strings.Contains(file, last[:6]) {
		return Match{Score: 60, Specificity: 6, Reason: "last_partial:" + last[:6]}
	}
	if len(first) >= 5 && strings.Contains(file, first[:4]) {
		return Match{Score: 40, Specificity: 4, Reason: "first_medium:" + first[:4]}
	}
	if len(last) >= 5 && strings.Contains(file, last[:4]) {
		return Match{Score: 40, Specificity: 4, Reason: "last_medium:" + last[:4]}
	}
	return Match{Reason: "no_match"}
}

// MatchFile picks the path whose base name best matches speaker. It returns
// false when nothing reaches minScore.
func MatchFile(speaker string, paths []string, minScore int) (Match, bool) {
	var best Match
	for _, p := range paths {
		m := ScoreFilename(speaker, filepath.Base(p))
		if m.Score > best.Score || (m.Score == best.Score && m.Specificity > best.Specificity) {
			m.Path = p
			best = m
		}
	}
	if best.Path == "" || best.Score < minScore || best.Score == 0 {
		slog.Warn("no file match for speaker", "speaker", speaker, "best_score", best.Score)
		return Match{}, false
	}
	slog.Info("matched speaker to file", "speaker", speaker, "file", filepath.Base(best.Path), "reason", best.Reason, "score", best.Score)
	return best, true
}

// FindFile matches speaker against files in dir with one of the extensions.
func FindFile(dir, speaker string, exts []string, minScore int) (Match, bool) {
	if dir == "" {
		return Match{}, false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("cannot list input directory", "dir", dir, "error", err)
		return Match{}, false
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range exts {
			if ext == want {
				paths = append(paths, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	sort.Strings(paths)
	return MatchFile(speaker, paths, minScore)
}
