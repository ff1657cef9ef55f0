package emailfinder

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/badoux/checkmail"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/optimode/emailfinder/check"
	"github.com/optimode/emailfinder/internal/dnsclient"
	"github.com/optimode/emailfinder/internal/metrics"
	"github.com/optimode/emailfinder/internal/parse"
)

// Verifier is the main fluent builder struct. Instantiate with New(), then
// configure it with the With methods before the first verification; the
// components are built once, on first use.
// A Verifier is safe for concurrent use and should be reused: it caches DNS
// profiles and catch-all verdicts per domain.
type Verifier struct {
	dnsOpts  DNSOptions
	smtpOpts SMTPOptions
	clsOpts  ClassifierOptions
	log      logrus.FieldLogger
	reg      prometheus.Registerer

	once       sync.Once
	err        error // configuration error, reported by Err() and in every Result
	dns        *check.DNSResolver
	prober     *check.SMTPProber
	catchAll   *check.CatchAllDetector
	classifier *check.Classifier
	metrics    *metrics.Metrics
}

// New creates a Verifier with the default options: the system resolver,
// SMTP probes on port 25 from test@example.com and the built-in role and
// free-provider lists. Logging is discarded until WithLogger is called.
func New() *Verifier {
	return &Verifier{
		dnsOpts:  defaultDNSOptions(),
		smtpOpts: defaultSMTPOptions(),
		clsOpts:  defaultClassifierOptions(),
	}
}

// WithDNS overrides the default DNSOptions. Zero fields keep their defaults.
func (v *Verifier) WithDNS(opts DNSOptions) *Verifier {
	def := defaultDNSOptions()
	if opts.Timeout == 0 {
		opts.Timeout = def.Timeout
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = def.CacheTTL
	}
	v.dnsOpts = opts
	return v
}

// WithSMTP overrides the default SMTPOptions. Zero fields keep their defaults.
func (v *Verifier) WithSMTP(opts SMTPOptions) *Verifier {
	v.smtpOpts = opts.withDefaults()
	return v
}

// WithClassifier overrides the role, free-provider and disposable lists.
func (v *Verifier) WithClassifier(opts ClassifierOptions) *Verifier {
	if opts.TypoThreshold == 0 {
		opts.TypoThreshold = defaultClassifierOptions().TypoThreshold
	}
	v.clsOpts = opts
	return v
}

// WithLogger sets the logger handed to every component.
func (v *Verifier) WithLogger(l logrus.FieldLogger) *Verifier {
	v.log = l
	return v
}

// WithMetrics registers the verification collectors with reg.
func (v *Verifier) WithMetrics(reg prometheus.Registerer) *Verifier {
	v.reg = reg
	return v
}

// Err builds the Verifier if needed and returns its configuration error.
// A Verifier with a configuration error still answers every call, with an
// Unknown result carrying the error as its reason.
func (v *Verifier) Err() error {
	v.once.Do(v.build)
	return v.err
}

func (v *Verifier) build() {
	if v.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		v.log = l
	}

	m, err := metrics.New(v.reg)
	if err != nil {
		v.err = fmt.Errorf("emailfinder: registering metrics: %w", err)
		return
	}
	v.metrics = m

	o := v.smtpOpts
	if err := checkmail.ValidateFormat(o.MailFrom); err != nil {
		v.err = fmt.Errorf("%w: MailFrom %q: %v", ErrInvalidSMTPOptions, o.MailFrom, err)
		return
	}
	if o.ConnectTimeout < 0 || o.CommandTimeout < 0 || o.MaxConnsPerHost < 0 || o.CatchAllTTL < 0 {
		v.err = fmt.Errorf("%w: negative timeout or limit", ErrInvalidSMTPOptions)
		return
	}

	var resolver check.Resolver
	switch {
	case v.dnsOpts.Resolver != nil:
		resolver = v.dnsOpts.Resolver
	case v.dnsOpts.Server != "":
		resolver = dnsclient.New(v.dnsOpts.Server, v.dnsOpts.Timeout)
	}
	v.dns = check.NewDNSResolver(check.DNSConfig{
		Timeout:  v.dnsOpts.Timeout,
		CacheTTL: v.dnsOpts.CacheTTL,
		Log:      v.log,
		Metrics:  m,
	}, resolver)

	v.prober, err = check.NewSMTPProber(check.SMTPConfig{
		HeloName:        o.HeloName,
		ConnectTimeout:  o.ConnectTimeout,
		CommandTimeout:  o.CommandTimeout,
		Port:            o.Port,
		MaxConnsPerHost: o.MaxConnsPerHost,
		MinHostInterval: o.MinHostInterval,
		SOCKS5Proxy:     o.SOCKS5Proxy,
		Dial:            o.Dial,
		Log:             v.log,
		Metrics:         m,
	})
	if err != nil {
		v.err = fmt.Errorf("%w: %v", ErrInvalidProxy, err)
		return
	}
	v.catchAll = check.NewCatchAllDetector(v.prober, check.CatchAllConfig{
		TTL:     o.CatchAllTTL,
		Recheck: o.RecheckCatchAll,
		Log:     v.log,
	})

	threshold := v.clsOpts.TypoThreshold
	if threshold < 0 {
		threshold = 0
	}
	v.classifier = check.NewClassifier(check.ClassifierConfig{
		RoleAccounts:  v.clsOpts.RoleAccounts,
		FreeProviders: v.clsOpts.FreeProviders,
		Disposable:    v.clsOpts.Disposable,
		TypoThreshold: threshold,
	})
}

// Verify checks one address using the configured MAIL FROM sender.
// It never fails: every outcome, including configuration errors and
// cancellation, is reported through Result.Status and Result.Reason.
func (v *Verifier) Verify(ctx context.Context, address string) Result {
	return v.VerifyFrom(ctx, address, "")
}

// VerifyFrom is Verify with an explicit MAIL FROM sender. An empty sender
// uses the configured one.
func (v *Verifier) VerifyFrom(ctx context.Context, address, sender string) Result {
	addr := parse.Split(address)
	res := Result{Email: addr.String()}

	if err := v.Err(); err != nil {
		return v.finish(res, StatusUnknown, err.Error())
	}
	if sender == "" {
		sender = v.smtpOpts.MailFrom
	} else if err := checkmail.ValidateFormat(sender); err != nil {
		return v.finish(res, StatusUnknown, fmt.Sprintf("invalid sender address %q: %v", sender, err))
	}

	if !addr.Valid {
		return v.finish(res, StatusUnknown, "malformed email address: missing local part or domain")
	}
	if err := checkmail.ValidateFormat(addr.String()); err != nil {
		return v.finish(res, StatusUnknown, "malformed email address: "+err.Error())
	}
	if ctx.Err() != nil {
		return v.cancelled(ctx, res)
	}

	cl := v.classifier.Annotate(addr.Local, addr.Domain)
	res.IsRoleAccount = cl.IsRoleAccount
	res.IsFreeProvider = cl.IsFreeProvider
	res.IsDisposable = cl.IsDisposable
	res.Suggestion = cl.Suggestion

	p := v.dns.Profile(ctx, addr.Domain)
	if ctx.Err() != nil {
		return v.cancelled(ctx, res)
	}
	res.MXRecord = p.MXHost
	res.HasSPF = p.HasSPF
	res.HasDMARC = p.HasDMARC
	res.DMARCPolicy = p.DMARCPolicy
	if p.MXHost == "" {
		return v.finish(res, StatusNoMX, check.ReasonNoMX)
	}

	pr := v.prober.Probe(ctx, p.MXHost, sender, addr.String())
	res.SMTPBanner = pr.Banner
	res.SMTPCode = pr.Code

	status, reason := check.Classify(pr)
	if status == StatusValid && v.catchAll.IsCatchAll(ctx, addr.Domain, p.MXHost, sender) {
		status, reason = StatusCatchAll, check.ReasonCatchAll
	}
	return v.finish(res, status, reason)
}

func (v *Verifier) cancelled(ctx context.Context, res Result) Result {
	return v.finish(res, StatusUnknown, "verification cancelled: "+context.Cause(ctx).Error())
}

func (v *Verifier) finish(res Result, status Status, reason string) Result {
	res.Status = status
	res.Reason = reason

	if v.metrics != nil {
		v.metrics.Verifications.WithLabelValues(string(status), string(status.Bucket())).Inc()
	}
	if v.log != nil {
		v.log.WithFields(logrus.Fields{
			"email":  res.Email,
			"mx":     res.MXRecord,
			"status": status,
			"reason": reason,
		}).Debug("verification finished")
	}
	return res
}

// VerifyMany verifies multiple addresses concurrently.
// The result order matches the input slice order.
// Addresses are sorted by domain internally so that each domain's DNS
// profile and catch-all verdict are resolved once and then reused.
// If ctx ends, the addresses not yet started come back as Unknown results
// naming the cancellation.
func (v *Verifier) VerifyMany(ctx context.Context, addrs []string, opts BatchOptions) []Result {
	workers := 5
	if opts.Workers > 0 {
		workers = opts.Workers
	}
	if workers > len(addrs) {
		workers = len(addrs)
	}

	results := make([]Result, len(addrs))
	type job struct {
		idx    int
		addr   string
		domain string
	}

	// Build and sort jobs by domain for cache locality
	jobSlice := make([]job, len(addrs))
	for i, a := range addrs {
		domain := ""
		if at := strings.LastIndex(a, "@"); at >= 0 {
			domain = strings.ToLower(strings.TrimSpace(a[at+1:]))
		}
		jobSlice[i] = job{idx: i, addr: a, domain: domain}
	}
	sort.SliceStable(jobSlice, func(i, j int) bool {
		return jobSlice[i].domain < jobSlice[j].domain
	})

	// Feed sorted jobs into bounded channel
	bufSize := min(len(addrs), 1000)
	jobs := make(chan job, bufSize)
	go func() {
		for _, j := range jobSlice {
			jobs <- j
		}
		close(jobs)
	}()

	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				res := v.Verify(ctx, j.addr)
				results[j.idx] = res
				if opts.OnResult != nil {
					mu.Lock()
					opts.OnResult(j.idx, res)
					mu.Unlock()
				}
			}
		}()
	}

	wg.Wait()
	return results
}

// Find generates the address patterns for first and last at domain and
// verifies them all. The results follow GeneratePermutations order.
// It returns nil if any input is empty.
func (v *Verifier) Find(ctx context.Context, first, last, domain string, opts BatchOptions) []Result {
	candidates := GeneratePermutations(first, last, domain)
	if candidates == nil {
		return nil
	}
	return v.VerifyMany(ctx, candidates, opts)
}
