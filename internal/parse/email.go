// Package parse splits candidate addresses into local part and domain.
package parse

import (
	"net/mail"
	"strings"

	"golang.org/x/net/idna"
)

// Address is a candidate address split into its parts.
// Domain is always lowercase ASCII (Punycode for IDNs) so it can be used
// for DNS queries and SMTP commands as-is.
type Address struct {
	Raw           string // the trimmed input
	Local         string
	Domain        string
	DomainUnicode string
	Valid         bool
}

// String returns the address in the form sent in RCPT TO.
func (a Address) String() string {
	if !a.Valid {
		return a.Raw
	}
	return a.Local + "@" + a.Domain
}

// Split parses raw into an Address. Valid is false when raw has no usable
// local part or domain; Raw is always populated.
func Split(raw string) Address {
	raw = strings.TrimSpace(raw)

	local, domain, ok := "", "", false
	if addr, err := mail.ParseAddress(raw); err == nil {
		local, domain, ok = cut(addr.Address)
	} else {
		// net/mail rejects UTF-8 local parts, fall back to the last '@'
		local, domain, ok = cut(raw)
	}
	if !ok {
		return Address{Raw: raw}
	}

	ascii, unicode, ok := normalizeDomain(domain)
	if !ok {
		return Address{Raw: raw}
	}
	return Address{
		Raw:           raw,
		Local:         local,
		Domain:        ascii,
		DomainUnicode: unicode,
		Valid:         true,
	}
}

func cut(s string) (local, domain string, ok bool) {
	at := strings.LastIndex(s, "@")
	if at < 1 || at == len(s)-1 {
		return "", "", false
	}
	return s[:at], s[at+1:], true
}

// normalizeDomain lowercases the domain and returns both its ASCII and
// Unicode forms. ok is false when an internationalized domain fails IDNA2008.
func normalizeDomain(domain string) (ascii, unicode string, ok bool) {
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	if domain == "" {
		return "", "", false
	}

	for _, r := range domain {
		if r > 127 {
			a, err := idna.Lookup.ToASCII(domain)
			if err != nil {
				return "", "", false
			}
			return a, domain, true
		}
	}

	u, err := idna.Display.ToUnicode(domain)
	if err != nil {
		u = domain
	}
	return domain, u, true
}
