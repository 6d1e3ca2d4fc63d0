// Package scan locates plain and obfuscated email addresses in text. The
// detection and overlap logic is pure so it can run against any document
// representation; internal/scan/htmldoc applies the results to HTML.
package scan

import (
	"regexp"
	"sort"

	"crmscan/pkg/email"
)

// Match is one detected address within a text span. Start and End are byte
// offsets of the original span; Email is the reconstructed address, which
// for obfuscated spans differs from the span's text.
type Match struct {
	Start int
	End   int
	Email string
}

// Obfuscation tokens: "info (at) example (dot) com", "info [at] example",
// "user at domain punkt de", the &commat; entity, and the bare words in
// English and German. The "ät" alternative carries no \b guards because RE2
// word boundaries are ASCII-only and would never match next to it.
const (
	atToken  = `(?:@|\(at\)|\[at\]|\{at\}|&commat;|\bat\b|ät)`
	dotToken = `(?:\.|\(dot\)|\[dot\]|\{dot\}|\bdot\b|\bpunkt\b)`
)

var (
	obfuscatedRx = regexp.MustCompile(
		`(?i)([a-z0-9._%+-]+)\s*` + atToken + `\s*([a-z0-9][a-z0-9.-]*(?:\s*` + dotToken + `\s*[a-z0-9][a-z0-9.-]*)*)`)
	dotTokenRx = regexp.MustCompile(`(?i)` + dotToken)
	bracketRx  = regexp.MustCompile(`[()\[\]{}]`)
	spaceRx    = regexp.MustCompile(`\s+`)
)

// Find returns every address detected in text, sorted by start offset, with
// overlaps resolved in favor of the earliest-starting match. Later
// overlapping matches are dropped, not merged.
func Find(text string) []Match {
	var matches []Match
	for _, loc := range email.Pattern.FindAllStringIndex(text, -1) {
		matches = append(matches, Match{Start: loc[0], End: loc[1], Email: text[loc[0]:loc[1]]})
	}
	matches = append(matches, findObfuscated(text)...)

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })

	kept := matches[:0]
	last := 0
	for _, m := range matches {
		if len(kept) > 0 && m.Start < last {
			continue
		}
		kept = append(kept, m)
		last = m.End
	}
	return kept
}

// findObfuscated scans for separator-token addresses. A candidate whose
// reconstruction fails validation is discarded, and the search resumes just
// past the candidate's start rather than past its end: an invalid candidate
// like "us at info" must not swallow the "info (at) example (dot) com" that
// begins inside it.
func findObfuscated(text string) []Match {
	var out []Match
	pos := 0
	for pos < len(text) {
		m := obfuscatedRx.FindStringSubmatchIndex(text[pos:])
		if m == nil {
			break
		}
		start, end := pos+m[0], pos+m[1]
		user := text[pos+m[2] : pos+m[3]]
		rawDomain := text[pos+m[4] : pos+m[5]]

		domain := dotTokenRx.ReplaceAllString(rawDomain, ".")
		domain = bracketRx.ReplaceAllString(domain, "")
		domain = spaceRx.ReplaceAllString(domain, "")
		addr := user + "@" + domain

		if email.Valid(addr) {
			out = append(out, Match{Start: start, End: end, Email: addr})
			pos = end
		} else {
			pos = start + 1
		}
	}
	return out
}
