// Package wordlist holds the embedded classification lists used to annotate
// verification results.
package wordlist

import (
	_ "embed"
	"strings"
)

var (
	//go:embed role.txt
	rawRole string
	//go:embed free.txt
	rawFree string
	//go:embed disposable.txt
	rawDisposable string
)

var (
	roleAccounts  = parse(rawRole)
	freeProviders = parse(rawFree)
	disposable    = parse(rawDisposable)
)

// Set is a case-insensitive string set.
type Set map[string]struct{}

// NewSet builds a Set from items, lowercasing and trimming each one.
// Blank items are skipped.
func NewSet(items ...string) Set {
	s := make(Set, len(items))
	s.Add(items...)
	return s
}

// Add inserts items into the set.
func (s Set) Add(items ...string) {
	for _, it := range items {
		it = strings.ToLower(strings.TrimSpace(it))
		if it != "" {
			s[it] = struct{}{}
		}
	}
}

// Has reports whether v is in the set.
func (s Set) Has(v string) bool {
	_, ok := s[strings.ToLower(v)]
	return ok
}

// Items returns the set members in no particular order.
func (s Set) Items() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

// RoleAccounts returns the default role-account local parts.
func RoleAccounts() []string { return clone(roleAccounts) }

// FreeProviders returns the default free-mail provider domains.
func FreeProviders() []string { return clone(freeProviders) }

// Disposable returns the default disposable-mail domains.
func Disposable() []string { return clone(disposable) }

func parse(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			out = append(out, strings.ToLower(line))
		}
	}
	return out
}

func clone(in []string) []string {
	return append([]string(nil), in...)
}
