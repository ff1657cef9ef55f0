package emailfinder

import (
	"os"
	"time"
)

// DefaultMailFrom is the MAIL FROM address used when none is configured.
const DefaultMailFrom = "test@example.com"

// DNSOptions configures MX, SPF and DMARC lookups.
type DNSOptions struct {
	// Timeout is the maximum time for one lookup. Default: 5s
	Timeout time.Duration
	// CacheTTL is how long a domain's DNS profile is reused. Default: 5m
	CacheTTL time.Duration
	// Server queries this nameserver ("host" or "host:port") directly
	// instead of the system resolver.
	Server string
	// Resolver overrides both the system resolver and Server.
	Resolver Resolver
}

func defaultDNSOptions() DNSOptions {
	return DNSOptions{
		Timeout:  5 * time.Second,
		CacheTTL: 5 * time.Minute,
	}
}

// SMTPOptions configures the RCPT TO probe and catch-all detection.
type SMTPOptions struct {
	// HeloName is the name sent in EHLO. Default: the host name, or "localhost"
	HeloName string
	// MailFrom is the address sent in MAIL FROM. Default: test@example.com
	// Verifier.VerifyFrom overrides it per call.
	MailFrom string
	// ConnectTimeout is the maximum time for the TCP connection. Default: 10s
	ConnectTimeout time.Duration
	// CommandTimeout is the maximum response time for one SMTP command. Default: 10s
	CommandTimeout time.Duration
	// Port is the SMTP port. Default: 25
	Port string
	// MaxConnsPerHost is the number of concurrent sessions per MX host. Default: 1
	MaxConnsPerHost int
	// MinHostInterval is the minimum delay between session starts on one
	// MX host. Default: 500ms. A negative value disables pacing.
	MinHostInterval time.Duration
	// SOCKS5Proxy routes probes through a SOCKS5 proxy, "[user:pass@]host:port".
	SOCKS5Proxy string
	// CatchAllTTL is how long a domain's catch-all verdict is reused. Default: 10m
	CatchAllTTL time.Duration
	// RecheckCatchAll probes for catch-all on every accepted candidate.
	RecheckCatchAll bool
	// Dial replaces the TCP dialer. Ignored when SOCKS5Proxy is set.
	Dial DialFunc
}

func defaultSMTPOptions() SMTPOptions {
	return SMTPOptions{
		HeloName:        defaultHeloName(),
		MailFrom:        DefaultMailFrom,
		ConnectTimeout:  10 * time.Second,
		CommandTimeout:  10 * time.Second,
		Port:            "25",
		MaxConnsPerHost: 1,
		MinHostInterval: 500 * time.Millisecond,
		CatchAllTTL:     10 * time.Minute,
	}
}

// withDefaults fills the zero values of o.
func (o SMTPOptions) withDefaults() SMTPOptions {
	def := defaultSMTPOptions()
	if o.HeloName == "" {
		o.HeloName = def.HeloName
	}
	if o.MailFrom == "" {
		o.MailFrom = def.MailFrom
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = def.ConnectTimeout
	}
	if o.CommandTimeout == 0 {
		o.CommandTimeout = def.CommandTimeout
	}
	if o.Port == "" {
		o.Port = def.Port
	}
	if o.MaxConnsPerHost == 0 {
		o.MaxConnsPerHost = def.MaxConnsPerHost
	}
	if o.MinHostInterval == 0 {
		o.MinHostInterval = def.MinHostInterval
	}
	if o.CatchAllTTL == 0 {
		o.CatchAllTTL = def.CatchAllTTL
	}
	return o
}

func defaultHeloName() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "localhost"
}

// ClassifierOptions configures the advisory role, free-provider and
// disposable flags. Nil lists keep the built-in defaults.
type ClassifierOptions struct {
	// RoleAccounts replaces the role local parts (admin, support, info, ...).
	RoleAccounts []string
	// FreeProviders replaces the free-mail domains (gmail.com, yahoo.com, ...).
	FreeProviders []string
	// Disposable replaces the disposable-mail domains.
	Disposable []string
	// TypoThreshold is the Levenshtein distance within which a domain is
	// taken for a misspelt free provider. Default: 2. Negative disables.
	TypoThreshold int
}

func defaultClassifierOptions() ClassifierOptions {
	return ClassifierOptions{TypoThreshold: 2}
}

// BatchOptions configures VerifyMany and Find.
type BatchOptions struct {
	// Workers is the number of concurrent verifications. Default: 5
	// Probes against one MX host are still throttled by SMTPOptions.
	Workers int
	// OnResult, if set, is called once per address as soon as its result is
	// ready, with the address's index in the input. Calls never overlap.
	OnResult func(i int, r Result)
}
