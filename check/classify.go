package check

import (
	"sort"
	"strings"

	"github.com/optimode/emailfinder/internal/levenshtein"
	"github.com/optimode/emailfinder/internal/wordlist"
)

// ClassifierConfig is the classifier configuration. Nil lists use the
// embedded defaults; a non-nil empty list disables that flag.
type ClassifierConfig struct {
	RoleAccounts  []string
	FreeProviders []string
	Disposable    []string
	// TypoThreshold is the maximum edit distance from a free provider domain
	// for which a suggestion is given. 0 disables suggestions.
	TypoThreshold int
}

// Classification holds the advisory flags of an address. None of them
// affects the verification status.
type Classification struct {
	IsRoleAccount  bool
	IsFreeProvider bool
	IsDisposable   bool
	Suggestion     string // corrected address when the domain looks like a typo
}

// Classifier flags role accounts, free-mail and disposable domains, and
// likely typos of free-mail domains.
type Classifier struct {
	roles      wordlist.Set
	free       wordlist.Set
	disposable wordlist.Set
	providers  []string // free list, for typo matching
	threshold  int
}

func NewClassifier(cfg ClassifierConfig) *Classifier {
	roles, free, disp := cfg.RoleAccounts, cfg.FreeProviders, cfg.Disposable
	if roles == nil {
		roles = wordlist.RoleAccounts()
	}
	if free == nil {
		free = wordlist.FreeProviders()
	}
	if disp == nil {
		disp = wordlist.Disposable()
	}
	c := &Classifier{
		roles:      wordlist.NewSet(roles...),
		free:       wordlist.NewSet(free...),
		disposable: wordlist.NewSet(disp...),
		threshold:  cfg.TypoThreshold,
	}
	c.providers = c.free.Items()
	sort.Strings(c.providers)
	return c
}

// Annotate classifies local@domain. domain should be the ASCII form.
func (c *Classifier) Annotate(local, domain string) Classification {
	local = strings.ToLower(local)
	domain = strings.ToLower(domain)

	cl := Classification{
		IsRoleAccount:  c.roles.Has(local),
		IsFreeProvider: c.free.Has(domain),
		IsDisposable:   c.disposable.Has(domain),
	}
	if c.threshold > 0 && !cl.IsFreeProvider && !cl.IsDisposable {
		if match, _, ok := levenshtein.Closest(domain, c.providers, c.threshold); ok {
			cl.Suggestion = local + "@" + match
		}
	}
	return cl
}
