// Package email holds the canonical address form shared by the lookup,
// caching, and scanning layers. Two addresses are considered the same record
// key iff their normalized forms are equal.
package email

import (
	"regexp"
	"strings"
)

// Pattern matches an address-shaped substring anywhere in text.
var Pattern = regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`)

var strict = regexp.MustCompile(`(?i)^[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}$`)

// Normalize lowercases and trims an address and strips a mailto: scheme.
func Normalize(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimPrefix(s, "mailto:")
	return strings.TrimSpace(s)
}

// Valid reports whether s as a whole is a well-formed address.
func Valid(s string) bool {
	return strict.MatchString(s)
}

// Domain returns the part after the last '@' of a normalized address, or ""
// when the address has none.
func Domain(e string) string {
	if at := strings.LastIndexByte(e, '@'); at >= 0 {
		return e[at+1:]
	}
	return ""
}

// MatchesDomain reports whether the address belongs to domain d, including
// subdomains: a@mail.example.com matches example.com.
func MatchesDomain(e, d string) bool {
	ed := Domain(e)
	return ed == d || strings.HasSuffix(ed, "."+d)
}
