package emailfinder

import (
	"strings"
	"unicode/utf8"
)

// GeneratePermutations returns the nine common address patterns for a
// person at domain, most common first:
//
//	first.last, first, firstlast, f.last, flast, first_last,
//	last.first, last, f_last
//
// Inputs are trimmed and lowercased. If any input is empty the result is nil.
func GeneratePermutations(first, last, domain string) []string {
	first = strings.ToLower(strings.TrimSpace(first))
	last = strings.ToLower(strings.TrimSpace(last))
	domain = strings.ToLower(strings.TrimSpace(domain))
	if first == "" || last == "" || domain == "" {
		return nil
	}

	_, n := utf8.DecodeRuneInString(first)
	f := first[:n]

	locals := []string{
		first + "." + last,
		first,
		first + last,
		f + "." + last,
		f + last,
		first + "_" + last,
		last + "." + first,
		last,
		f + "_" + last,
	}
	out := make([]string, len(locals))
	for i, l := range locals {
		out[i] = l + "@" + domain
	}
	return out
}
