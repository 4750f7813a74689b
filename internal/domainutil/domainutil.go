// Package domainutil normalizes candidate domains and filters junk before it
// reaches the work queue. Delegates registrable-part splitting to
// golang.org/x/net/publicsuffix and label encoding to golang.org/x/net/idna.
package domainutil

import (
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// Candidate is a parsed domain candidate. Equality is by FQDN.
type Candidate struct {
	FQDN            string
	RegistrablePart string
	PublicSuffix    string
}

// Normalize strips scheme prefixes and trailing slashes and lowercases the
// remainder, mirroring what LLM output tends to need.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimRight(s, "/")
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	return strings.ToLower(s)
}

// Parse derives the public suffix and registrable part of a normalized FQDN.
// "example.co.uk" yields registrable part "example" and suffix "co.uk".
func Parse(raw string) Candidate {
	fqdn := Normalize(raw)
	suffix, _ := publicsuffix.PublicSuffix(fqdn)

	registrable := fqdn
	if suffix != "" && len(fqdn) > len(suffix)+1 {
		registrable = fqdn[:len(fqdn)-len(suffix)-1]
		if i := strings.LastIndexByte(registrable, '.'); i >= 0 {
			registrable = registrable[i+1:]
		}
	}

	return Candidate{FQDN: fqdn, RegistrablePart: registrable, PublicSuffix: suffix}
}

// IsValid reports whether a candidate is worth enqueueing at all.
// Rejects: empty strings, the Unicode replacement character, any non-ASCII
// code point, dot-less names, empty labels, and anything IDNA refuses to encode.
func IsValid(domain string) bool {
	d := strings.TrimSpace(domain)
	if d == "" {
		return false
	}
	if strings.ContainsRune(d, '�') {
		return false
	}
	for _, r := range d {
		if r > 127 {
			return false
		}
	}
	if !strings.Contains(d, ".") {
		return false
	}
	for _, label := range strings.Split(d, ".") {
		if strings.TrimSpace(label) == "" {
			return false
		}
	}
	if _, err := idna.Lookup.ToASCII(d); err != nil {
		return false
	}
	return true
}

// Filter partitions candidates into valid and invalid sets, preserving order.
func Filter(domains []string) (valid []string, invalid []string) {
	valid = make([]string, 0, len(domains))
	invalid = make([]string, 0)
	for _, d := range domains {
		if IsValid(d) {
			valid = append(valid, d)
		} else {
			invalid = append(invalid, d)
		}
	}
	return valid, invalid
}
