package check

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-msgauth/dmarc"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/optimode/emailfinder/internal/metrics"
	"github.com/optimode/emailfinder/internal/ttlcache"
)

const (
	spfPrefix   = "v=spf1"
	dmarcPrefix = "v=DMARC1"
)

// Resolver is the DNS backend. *net.Resolver satisfies it, as does
// internal/dnsclient for queries against a fixed nameserver.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// DNSConfig is the DNS resolver configuration.
type DNSConfig struct {
	Timeout  time.Duration // per lookup (default: 5s)
	CacheTTL time.Duration // profile cache lifetime (default: 5m)
	Log      logrus.FieldLogger
	Metrics  *metrics.Metrics
}

// DomainProfile is what DNS tells us about a domain's mail setup.
// An empty MXHost means no usable MX record was found.
type DomainProfile struct {
	Domain      string
	MXHost      string
	HasSPF      bool
	HasDMARC    bool
	DMARCPolicy string // p= tag of the DMARC record, if it parses
}

// DNSResolver answers MX, SPF and DMARC questions. Every lookup degrades to
// "absent" on failure; nothing here returns an error. A profile whose MX
// lookup failed temporarily is returned but not cached.
type DNSResolver struct {
	cfg      DNSConfig
	resolver Resolver
	profiles *ttlcache.Cache[DomainProfile]
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
}

// NewDNSResolver creates a resolver over r. A nil r uses the system resolver.
func NewDNSResolver(cfg DNSConfig, r Resolver) *DNSResolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if r == nil {
		r = &net.Resolver{}
	}
	return &DNSResolver{
		cfg:      cfg,
		resolver: r,
		profiles: ttlcache.New[DomainProfile](cfg.CacheTTL),
		log:      orDiscard(cfg.Log),
		metrics:  orNop(cfg.Metrics),
	}
}

// Profile returns the cached DomainProfile for domain, resolving MX, SPF and
// DMARC concurrently on a miss.
func (d *DNSResolver) Profile(ctx context.Context, domain string) DomainProfile {
	domain = strings.ToLower(domain)
	p, err := d.profiles.Get(ctx, domain, func(ctx context.Context) (DomainProfile, error) {
		// the shared load must not fail because the first caller went away
		return d.resolveProfile(context.WithoutCancel(ctx), domain)
	})
	var le *mxLookupError
	switch {
	case err == nil:
	case errors.As(err, &le):
		d.log.WithField("domain", domain).WithError(le.Err).Debug("MX lookup failed temporarily, profile not cached")
	default:
		// only a waiter whose context ended gets here
		d.log.WithField("domain", domain).WithError(err).Debug("profile wait aborted")
		return DomainProfile{Domain: domain}
	}
	return p
}

// mxLookupError carries a temporary MX failure out of a profile load so the
// degraded profile is not retained.
type mxLookupError struct {
	Domain string
	Err    error
}

func (e *mxLookupError) Error() string { return fmt.Sprintf("MX lookup for %s: %v", e.Domain, e.Err) }

func (e *mxLookupError) Unwrap() error { return e.Err }

func (d *DNSResolver) resolveProfile(ctx context.Context, domain string) (DomainProfile, error) {
	p := DomainProfile{Domain: domain}

	var mxErr error
	var g errgroup.Group
	g.Go(func() error {
		p.MXHost, mxErr = d.lookupMX(ctx, domain)
		return nil
	})
	g.Go(func() error {
		p.HasSPF = d.HasTXTPrefix(ctx, domain, spfPrefix)
		return nil
	})
	g.Go(func() error {
		p.HasDMARC, p.DMARCPolicy = d.lookupDMARC(ctx, domain)
		return nil
	})
	_ = g.Wait()

	d.log.WithFields(logrus.Fields{
		"domain": domain,
		"mx":     p.MXHost,
		"spf":    p.HasSPF,
		"dmarc":  p.HasDMARC,
	}).Debug("domain profile resolved")
	if mxErr != nil {
		return p, &mxLookupError{Domain: domain, Err: mxErr}
	}
	return p, nil
}

// ResolveMX returns the most preferred MX host of domain without the
// trailing root dot, or "" if none can be resolved.
func (d *DNSResolver) ResolveMX(ctx context.Context, domain string) string {
	host, _ := d.lookupMX(ctx, domain)
	return host
}

// lookupMX is ResolveMX that also returns the lookup error when the failure
// may be temporary, such as a timeout or SERVFAIL. NXDOMAIN, an empty answer
// and a null MX are definitive and return a nil error.
func (d *DNSResolver) lookupMX(ctx context.Context, domain string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	records, err := d.resolver.LookupMX(ctx, domain)
	if err != nil || len(records) == 0 {
		d.lookupFailed("MX", domain, err)
		if err != nil && !isNotFound(err) {
			return "", err
		}
		return "", nil
	}

	records = append([]*net.MX(nil), records...)
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Pref < records[j].Pref
	})
	host := strings.TrimSuffix(records[0].Host, ".")
	if host == "" {
		// "0 ." is a null MX (RFC 7505): the domain accepts no mail
		d.lookupFailed("MX", domain, nil)
		return "", nil
	}
	d.metrics.DNSLookups.WithLabelValues("MX", "found").Inc()
	return host, nil
}

func isNotFound(err error) bool {
	var de *net.DNSError
	return errors.As(err, &de) && de.IsNotFound
}

// HasTXTPrefix reports whether any TXT record of name starts with prefix
// (case-sensitive) once surrounding quotes are stripped.
func (d *DNSResolver) HasTXTPrefix(ctx context.Context, name, prefix string) bool {
	_, ok := d.findTXT(ctx, name, prefix)
	return ok
}

func (d *DNSResolver) lookupDMARC(ctx context.Context, domain string) (bool, string) {
	txt, ok := d.findTXT(ctx, "_dmarc."+domain, dmarcPrefix)
	if !ok {
		return false, ""
	}
	rec, err := dmarc.Parse(txt)
	if err != nil {
		d.log.WithField("domain", domain).WithError(err).Debug("unparsable DMARC record")
		return true, ""
	}
	return true, string(rec.Policy)
}

func (d *DNSResolver) findTXT(ctx context.Context, name, prefix string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	records, err := d.resolver.LookupTXT(ctx, name)
	if err != nil {
		d.lookupFailed("TXT", name, err)
		return "", false
	}
	for _, r := range records {
		r = strings.Trim(r, `"`)
		if strings.HasPrefix(r, prefix) {
			d.metrics.DNSLookups.WithLabelValues("TXT", "found").Inc()
			return r, true
		}
	}
	d.metrics.DNSLookups.WithLabelValues("TXT", "absent").Inc()
	return "", false
}

func (d *DNSResolver) lookupFailed(rtype, name string, err error) {
	d.metrics.DNSLookups.WithLabelValues(rtype, "absent").Inc()
	entry := d.log.WithFields(logrus.Fields{"domain": name, "type": rtype})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Debug("DNS lookup found nothing")
}

func orDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l != nil {
		return l
	}
	nl := logrus.New()
	nl.SetOutput(io.Discard)
	return nl
}

func orNop(m *metrics.Metrics) *metrics.Metrics {
	if m != nil {
		return m
	}
	return metrics.Nop()
}
