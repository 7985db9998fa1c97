package resources

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var trackingParams = map[string]bool{
	"fbclid": true, "gclid": true, "ref": true, "ref_src": true, "si": true, "igshid": true,
}

// NormalizeURL returns the dedup form of a URL: lowercased scheme, host and
// path, no "www.", fragment, trailing slash or tracking parameters, sorted
// query. The second result is false when raw is not an absolute http(s) URL.
func NormalizeURL(raw string) (string, bool) {
	u, ok := parseAbsolute(raw)
	if !ok {
		return "", false
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.TrimRight(strings.ToLower(u.EscapedPath()), "/")

	q := u.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		lk := strings.ToLower(k)
		if trackingParams[lk] || strings.HasPrefix(lk, "utm_") || strings.HasPrefix(lk, "mc_") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(strings.ToLower(u.Scheme))
	sb.WriteString("://")
	sb.WriteString(host)
	sb.WriteString(path)
	if len(keys) > 0 {
		clean := url.Values{}
		for _, k := range keys {
			clean[k] = q[k]
		}
		sb.WriteString("?")
		sb.WriteString(clean.Encode())
	}
	return sb.String(), true
}

var (
	arxivPathPattern = regexp.MustCompile(`^/(?:abs|pdf|html)/(\d{4}\.\d{4,5})(?:v\d+)?(?:\.pdf)?/?$`)
	doiPathPattern   = regexp.MustCompile(`^/(10\.\d{4,9}/.+?)/?$`)
)

// PaperID maps the abstract, PDF and HTML forms of an arXiv link to
// "arxiv:<id>" and a doi.org link to "doi:<doi>", lowercased.
func PaperID(raw string) (string, bool) {
	u, ok := parseAbsolute(raw)
	if !ok {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "arxiv.org", "export.arxiv.org":
		if m := arxivPathPattern.FindStringSubmatch(u.Path); m != nil {
			return "arxiv:" + m[1], true
		}
	case "doi.org", "dx.doi.org":
		if m := doiPathPattern.FindStringSubmatch(u.Path); m != nil {
			return "doi:" + strings.ToLower(m[1]), true
		}
	}
	return "", false
}

// ValidURL reports whether raw is a syntactically valid absolute http(s) URL.
func ValidURL(raw string) bool {
	_, ok := parseAbsolute(raw)
	return ok
}

func parseAbsolute(raw string) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t\n") {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, false
	}
	if u.Hostname() == "" || !strings.Contains(u.Hostname(), ".") {
		return nil, false
	}
	return u, true
}

// NormalizeTitle lowercases and strips punctuation for title-keyed dedup.
func NormalizeTitle(title string) string {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}
