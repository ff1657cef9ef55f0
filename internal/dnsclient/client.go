// Package dnsclient resolves MX and TXT records against one fixed nameserver
// using github.com/miekg/dns, bypassing the system resolver configuration.
package dnsclient

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Client queries a single nameserver. It satisfies check.Resolver.
type Client struct {
	server string
	udp    *dns.Client
	tcp    *dns.Client
}

// New creates a client for server ("1.1.1.1" or "1.1.1.1:53").
// A zero timeout falls back to 5s.
func New(server string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &Client{
		server: server,
		udp:    &dns.Client{Net: "udp", Timeout: timeout},
		tcp:    &dns.Client{Net: "tcp", Timeout: timeout},
	}
}

// Server returns the host:port the client queries.
func (c *Client) Server() string { return c.server }

// LookupMX returns the MX records for name in answer order.
func (c *Client) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	answer, err := c.query(ctx, name, dns.TypeMX)
	if err != nil {
		return nil, err
	}
	var out []*net.MX
	for _, rr := range answer {
		if mx, ok := rr.(*dns.MX); ok {
			out = append(out, &net.MX{Host: mx.Mx, Pref: mx.Preference})
		}
	}
	if len(out) == 0 {
		return nil, notFound(name, c.server)
	}
	return out, nil
}

// LookupTXT returns the TXT records for name. The character strings of a
// single record are concatenated, matching net.Resolver.
func (c *Client) LookupTXT(ctx context.Context, name string) ([]string, error) {
	answer, err := c.query(ctx, name, dns.TypeTXT)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, rr := range answer {
		if txt, ok := rr.(*dns.TXT); ok {
			out = append(out, strings.Join(txt.Txt, ""))
		}
	}
	if len(out) == 0 {
		return nil, notFound(name, c.server)
	}
	return out, nil
}

func (c *Client) query(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	r, _, err := c.udp.ExchangeContext(ctx, m, c.server)
	if err == nil && r.Truncated {
		r, _, err = c.tcp.ExchangeContext(ctx, m, c.server)
	}
	if err != nil {
		return nil, &net.DNSError{
			Err:       err.Error(),
			Name:      name,
			Server:    c.server,
			IsTimeout: isTimeout(err),
		}
	}

	switch r.Rcode {
	case dns.RcodeSuccess:
		return r.Answer, nil
	case dns.RcodeNameError:
		return nil, notFound(name, c.server)
	default:
		return nil, &net.DNSError{
			Err:    fmt.Sprintf("server answered %s", dns.RcodeToString[r.Rcode]),
			Name:   name,
			Server: c.server,
		}
	}
}

func notFound(name, server string) error {
	return &net.DNSError{Err: "no such host", Name: name, Server: server, IsNotFound: true}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
