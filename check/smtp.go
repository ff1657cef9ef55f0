package check

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"

	"github.com/optimode/emailfinder/internal/hostgate"
	"github.com/optimode/emailfinder/internal/metrics"
	"github.com/optimode/emailfinder/internal/smtpsession"
	"github.com/optimode/emailfinder/types"
)

// Reasons attached to probe statuses.
const (
	ReasonValid       = "SMTP handshake successful."
	ReasonCatchAll    = "Server accepts all emails (Catch-All)."
	ReasonInvalid     = "User unknown (550 Error)."
	ReasonTimeout     = "Connection timed out."
	ReasonNoMX        = "No MX records found for domain."
	reasonConnectFail = "Server returned code %d on connect."
	reasonUnexpected  = "Unexpected SMTP response: %d"
)

// Probe kinds, used as a metrics label.
const (
	KindCandidate = "candidate"
	KindCatchAll  = "catchall"
)

// DialFunc opens the TCP connection to an MX host.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// SMTPConfig is the SMTP prober configuration.
type SMTPConfig struct {
	HeloName        string
	ConnectTimeout  time.Duration
	CommandTimeout  time.Duration
	QuitTimeout     time.Duration
	Port            string
	MaxConnsPerHost int           // concurrent sessions per MX host (default: 1)
	MinHostInterval time.Duration // minimum spacing between sessions to one host
	// SOCKS5Proxy routes probes through a SOCKS5 proxy, "[user:pass@]host:port".
	SOCKS5Proxy string
	// Dial is injectable for testing. Ignored when SOCKS5Proxy is set.
	Dial    DialFunc
	Log     logrus.FieldLogger
	Metrics *metrics.Metrics
}

// ProbeResult is the outcome of one RCPT TO probe.
type ProbeResult struct {
	MXHost string
	Banner string // greeting as received, empty if none was read
	Code   int    // RCPT TO reply code, or the code of the reply that ended the session early
	Reply  string // text of that reply
	Err    error  // nil when RCPT was answered
}

// AbortedError is returned for a probe whose context ended while it was
// still waiting for a slot on its MX host. No connection was made.
type AbortedError struct {
	MXHost string
	Err    error
}

func (e *AbortedError) Error() string { return "verification cancelled: " + e.Err.Error() }

func (e *AbortedError) Unwrap() error { return e.Err }

// Accepted reports whether the server answered RCPT TO with 250.
func (r ProbeResult) Accepted() bool { return r.Err == nil && r.Code == 250 }

// SMTPProber runs single-transaction RCPT TO probes against MX hosts,
// throttled per host.
type SMTPProber struct {
	session smtpsession.Config
	gate    *hostgate.Gate
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// NewSMTPProber creates a prober. It fails only if the SOCKS5 proxy address
// cannot be used.
func NewSMTPProber(cfg SMTPConfig) (*SMTPProber, error) {
	log := orDiscard(cfg.Log)
	sc := smtpsession.Config{
		HeloName:       cfg.HeloName,
		ConnectTimeout: cfg.ConnectTimeout,
		CommandTimeout: cfg.CommandTimeout,
		QuitTimeout:    cfg.QuitTimeout,
		Port:           cfg.Port,
		Log:            log,
	}
	if cfg.Dial != nil {
		sc.Dial = smtpsession.DialFunc(cfg.Dial)
	}
	if cfg.SOCKS5Proxy != "" {
		dial, err := socks5Dialer(cfg.SOCKS5Proxy, cfg.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		sc.Dial = dial
	}
	return &SMTPProber{
		session: sc,
		gate:    hostgate.New(cfg.MaxConnsPerHost, cfg.MinHostInterval),
		log:     log,
		metrics: orNop(cfg.Metrics),
	}, nil
}

// Probe asks mxHost whether it would accept mail from sender to rcpt.
func (p *SMTPProber) Probe(ctx context.Context, mxHost, sender, rcpt string) ProbeResult {
	return p.probe(ctx, KindCandidate, mxHost, sender, rcpt)
}

func (p *SMTPProber) probe(ctx context.Context, kind, mxHost, sender, rcpt string) ProbeResult {
	start := time.Now()
	res := ProbeResult{MXHost: mxHost}
	log := p.log.WithFields(logrus.Fields{"mx": mxHost, "email": rcpt, "kind": kind})

	release, err := p.gate.Acquire(ctx, mxHost)
	if err != nil {
		if ctx.Err() != nil {
			err = context.Cause(ctx)
		}
		res.Err = &AbortedError{MXHost: mxHost, Err: err}
		log.WithError(err).Debug("gave up waiting for the MX host")
		p.record(kind, "aborted", start)
		return res
	}
	t, err := smtpsession.Probe(ctx, p.session, mxHost, sender, rcpt)
	release()

	res.Banner = t.Banner.Message
	if err != nil {
		var re *smtpsession.ReplyError
		if errors.As(err, &re) {
			res.Code = re.Reply.Code
			res.Reply = re.Reply.Text()
		}
		if ctx.Err() != nil {
			err = fmt.Errorf("probe aborted: %w (%v)", ctx.Err(), err)
		}
		res.Err = err
		log.WithError(err).Debug("SMTP probe failed")
		p.record(kind, "error", start)
		return res
	}

	res.Code = t.Rcpt.Code
	res.Reply = t.Rcpt.Text()
	log.WithField("code", res.Code).Debug("RCPT answered")
	p.record(kind, strconv.Itoa(res.Code), start)
	return res
}

func (p *SMTPProber) record(kind, outcome string, start time.Time) {
	p.metrics.Probes.WithLabelValues(kind, outcome).Inc()
	p.metrics.ProbeDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// Classify maps a probe result to its status and reason. A 250 maps to
// Valid; deciding between Valid and Risky (Catch-All) is the caller's job.
func Classify(r ProbeResult) (types.Status, string) {
	if r.Err == nil {
		switch r.Code {
		case 250:
			return types.StatusValid, ReasonValid
		case 550:
			return types.StatusInvalid, ReasonInvalid
		default:
			return types.StatusForCode(r.Code), fmt.Sprintf(reasonUnexpected, r.Code)
		}
	}

	var re *smtpsession.ReplyError
	var ae *AbortedError
	switch {
	case errors.As(r.Err, &ae):
		return types.StatusUnknown, ae.Error()
	case errors.As(r.Err, &re) && re.Stage == smtpsession.StageBanner:
		return types.StatusConnectFail, fmt.Sprintf(reasonConnectFail, re.Reply.Code)
	case errors.As(r.Err, &re):
		// refused EHLO/HELO or MAIL FROM: RCPT was never asked
		return types.StatusForCode(re.Reply.Code), fmt.Sprintf(reasonUnexpected, re.Reply.Code)
	case errors.Is(r.Err, context.Canceled):
		return types.StatusUnknown, r.Err.Error()
	case smtpsession.IsTimeout(r.Err):
		return types.StatusTimeout, ReasonTimeout
	case smtpsession.IsTransport(r.Err):
		return types.StatusConnectionError, r.Err.Error()
	default:
		return types.StatusUnknown, r.Err.Error()
	}
}

func socks5Dialer(addr string, timeout time.Duration) (smtpsession.DialFunc, error) {
	u, err := url.Parse("socks5://" + addr)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("socks5 proxy %q: invalid address", addr)
	}
	if _, _, err := net.SplitHostPort(u.Host); err != nil {
		return nil, fmt.Errorf("socks5 proxy %q: %w", u.Host, err)
	}
	var auth *proxy.Auth
	if u.User != nil {
		pass, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: pass}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d, err := proxy.SOCKS5("tcp", u.Host, auth, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy %q: %w", u.Host, err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 proxy %q: dialer does not support contexts", u.Host)
	}
	return cd.DialContext, nil
}
