package check_test

import (
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/optimode/emailfinder/check"
	"github.com/optimode/emailfinder/internal/metrics"
)

// fakeResolver serves MX and TXT records from maps and counts lookups.
type fakeResolver struct {
	mx    map[string][]*net.MX
	txt   map[string][]string
	delay time.Duration

	mxCalls  atomic.Int32
	txtCalls atomic.Int32
}

func (f *fakeResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	f.mxCalls.Add(1)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if recs, ok := f.mx[strings.ToLower(name)]; ok {
		return recs, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func (f *fakeResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	f.txtCalls.Add(1)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if recs, ok := f.txt[strings.ToLower(name)]; ok {
		return recs, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func (f *fakeResolver) wait(ctx context.Context) error {
	if f.delay == 0 {
		return nil
	}
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// flakyResolver fails the first failures MX lookups with err, then defers
// to the embedded fakeResolver.
type flakyResolver struct {
	*fakeResolver
	err      *net.DNSError
	failures atomic.Int32
}

func (f *flakyResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	if f.failures.Add(-1) >= 0 {
		f.mxCalls.Add(1)
		return nil, f.err
	}
	return f.fakeResolver.LookupMX(ctx, name)
}

func acmeResolver() *fakeResolver {
	return &fakeResolver{
		mx: map[string][]*net.MX{
			"acme.com": {
				{Host: "mx2.acme.com.", Pref: 20},
				{Host: "mx1.acme.com.", Pref: 10},
			},
		},
		txt: map[string][]string{
			"acme.com":        {"google-site-verification=abc", `"v=spf1 include:_spf.google.com ~all"`},
			"_dmarc.acme.com": {"v=DMARC1; p=reject; rua=mailto:dmarc@acme.com"},
		},
	}
}

func TestDNSResolver_ResolveMX(t *testing.T) {
	tests := []struct {
		name    string
		records []*net.MX
		want    string
	}{
		{
			name:    "lowest preference wins",
			records: []*net.MX{{Host: "b.example.com.", Pref: 20}, {Host: "a.example.com.", Pref: 5}},
			want:    "a.example.com",
		},
		{
			name:    "no trailing dot",
			records: []*net.MX{{Host: "mx.example.com", Pref: 10}},
			want:    "mx.example.com",
		},
		{
			name:    "null MX",
			records: []*net.MX{{Host: ".", Pref: 0}},
			want:    "",
		},
		{
			name:    "empty answer",
			records: []*net.MX{},
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := check.NewDNSResolver(check.DNSConfig{}, &fakeResolver{
				mx: map[string][]*net.MX{"example.com": tt.records},
			})
			assert.Equal(t, tt.want, r.ResolveMX(context.Background(), "example.com"))
		})
	}
}

func TestDNSResolver_ResolveMX_Failure(t *testing.T) {
	r := check.NewDNSResolver(check.DNSConfig{}, &fakeResolver{})
	assert.Empty(t, r.ResolveMX(context.Background(), "nowhere.invalid"))
}

func TestDNSResolver_ResolveMX_Timeout(t *testing.T) {
	f := acmeResolver()
	f.delay = time.Second
	r := check.NewDNSResolver(check.DNSConfig{Timeout: 20 * time.Millisecond}, f)

	start := time.Now()
	assert.Empty(t, r.ResolveMX(context.Background(), "acme.com"))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDNSResolver_HasTXTPrefix(t *testing.T) {
	r := check.NewDNSResolver(check.DNSConfig{}, acmeResolver())
	ctx := context.Background()

	assert.True(t, r.HasTXTPrefix(ctx, "acme.com", "v=spf1"), "quotes are stripped")
	assert.False(t, r.HasTXTPrefix(ctx, "acme.com", "V=SPF1"), "match is case-sensitive")
	assert.True(t, r.HasTXTPrefix(ctx, "_dmarc.acme.com", "v=DMARC1"))
	assert.False(t, r.HasTXTPrefix(ctx, "_dmarc.nowhere.invalid", "v=DMARC1"))
}

func TestDNSResolver_Profile(t *testing.T) {
	r := check.NewDNSResolver(check.DNSConfig{}, acmeResolver())

	p := r.Profile(context.Background(), "ACME.com")
	assert.Equal(t, check.DomainProfile{
		Domain:      "acme.com",
		MXHost:      "mx1.acme.com",
		HasSPF:      true,
		HasDMARC:    true,
		DMARCPolicy: "reject",
	}, p)
}

func TestDNSResolver_Profile_NoMXStillChecksTXT(t *testing.T) {
	f := acmeResolver()
	delete(f.mx, "acme.com")
	r := check.NewDNSResolver(check.DNSConfig{}, f)

	p := r.Profile(context.Background(), "acme.com")
	assert.Empty(t, p.MXHost)
	assert.True(t, p.HasSPF)
	assert.True(t, p.HasDMARC)
}

func TestDNSResolver_Profile_UnparsableDMARC(t *testing.T) {
	f := acmeResolver()
	f.txt["_dmarc.acme.com"] = []string{"v=DMARC1; rua=mailto:x@acme.com"}
	r := check.NewDNSResolver(check.DNSConfig{}, f)

	p := r.Profile(context.Background(), "acme.com")
	assert.True(t, p.HasDMARC)
	assert.Empty(t, p.DMARCPolicy)
}

func TestDNSResolver_Profile_Cached(t *testing.T) {
	f := acmeResolver()
	r := check.NewDNSResolver(check.DNSConfig{CacheTTL: time.Minute}, f)

	r.Profile(context.Background(), "acme.com")
	r.Profile(context.Background(), "acme.com")
	assert.Equal(t, int32(1), f.mxCalls.Load())
	assert.Equal(t, int32(2), f.txtCalls.Load())
}

func TestDNSResolver_Profile_NoMXCached(t *testing.T) {
	f := acmeResolver()
	delete(f.mx, "acme.com")
	r := check.NewDNSResolver(check.DNSConfig{CacheTTL: time.Minute}, f)

	r.Profile(context.Background(), "acme.com")
	r.Profile(context.Background(), "acme.com")
	assert.Equal(t, int32(1), f.mxCalls.Load(), "NXDOMAIN is a definitive answer")
}

func TestDNSResolver_Profile_TemporaryFailureNotCached(t *testing.T) {
	tests := []struct {
		name string
		err  *net.DNSError
	}{
		{name: "timeout", err: &net.DNSError{Err: "i/o timeout", Name: "acme.com", IsTimeout: true}},
		{name: "servfail", err: &net.DNSError{Err: "server answered SERVFAIL", Name: "acme.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &flakyResolver{fakeResolver: acmeResolver(), err: tt.err}
			f.failures.Store(1)
			r := check.NewDNSResolver(check.DNSConfig{CacheTTL: time.Minute}, f)

			p := r.Profile(context.Background(), "acme.com")
			assert.Empty(t, p.MXHost)
			assert.True(t, p.HasSPF, "the degraded profile still carries TXT results")

			p = r.Profile(context.Background(), "acme.com")
			assert.Equal(t, "mx1.acme.com", p.MXHost)
			assert.Equal(t, int32(2), f.mxCalls.Load())

			r.Profile(context.Background(), "acme.com")
			assert.Equal(t, int32(2), f.mxCalls.Load(), "the good profile is cached")
		})
	}
}

func TestDNSResolver_Profile_ConcurrentDedup(t *testing.T) {
	f := acmeResolver()
	f.delay = 30 * time.Millisecond
	r := check.NewDNSResolver(check.DNSConfig{}, f)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := r.Profile(context.Background(), "acme.com")
			assert.Equal(t, "mx1.acme.com", p.MXHost)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), f.mxCalls.Load())
}

func TestDNSResolver_Metrics(t *testing.T) {
	m := metrics.Nop()
	r := check.NewDNSResolver(check.DNSConfig{Metrics: m}, acmeResolver())

	r.ResolveMX(context.Background(), "acme.com")
	r.ResolveMX(context.Background(), "nowhere.invalid")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DNSLookups.WithLabelValues("MX", "found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DNSLookups.WithLabelValues("MX", "absent")))
}
