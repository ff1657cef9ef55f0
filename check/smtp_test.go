package check_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimode/emailfinder/check"
	"github.com/optimode/emailfinder/internal/metrics"
	"github.com/optimode/emailfinder/types"
)

func TestSMTPProber_Classify(t *testing.T) {
	tests := []struct {
		name       string
		banner     string
		mail       string
		rcpt       string
		wantStatus types.Status
		wantReason string
		wantCode   int
	}{
		{
			name:       "accepted",
			rcpt:       "250 2.1.5 OK",
			wantStatus: types.StatusValid,
			wantReason: check.ReasonValid,
			wantCode:   250,
		},
		{
			name:       "user unknown",
			rcpt:       "550 5.1.1 User unknown",
			wantStatus: types.StatusInvalid,
			wantReason: check.ReasonInvalid,
			wantCode:   550,
		},
		{
			name:       "greylisted",
			rcpt:       "451 4.7.1 Try again later",
			wantStatus: "Unknown (451)",
			wantReason: "Unexpected SMTP response: 451",
			wantCode:   451,
		},
		{
			name:       "unavailable on connect",
			banner:     "554 No SMTP service here",
			rcpt:       "250 OK",
			wantStatus: types.StatusConnectFail,
			wantReason: "Server returned code 554 on connect.",
			wantCode:   554,
		},
		{
			name:       "sender refused",
			mail:       "550 5.7.1 Sender rejected",
			rcpt:       "250 OK",
			wantStatus: "Unknown (550)",
			wantReason: "Unexpected SMTP response: 550",
			wantCode:   550,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockSMTPServer{banner: tt.banner, mail: tt.mail, rcpt: func(string) string { return tt.rcpt }}
			res := newTestProber(m.dial).Probe(context.Background(), "mx.acme.com", "test@example.com", "jane@acme.com")

			assert.Equal(t, "mx.acme.com", res.MXHost)
			assert.Equal(t, tt.wantCode, res.Code)
			status, reason := check.Classify(res)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestSMTPProber_Banner(t *testing.T) {
	m := &mockSMTPServer{rcpt: acceptAll}
	res := newTestProber(m.dial).Probe(context.Background(), "mx.acme.com", "test@example.com", "jane@acme.com")

	require.NoError(t, res.Err)
	assert.True(t, res.Accepted())
	assert.Equal(t, "220 mx.acme.com ESMTP", res.Banner)
	assert.Equal(t, []string{"jane@acme.com"}, m.recipients())
}

func TestSMTPProber_DialFailure(t *testing.T) {
	p := newTestProber(func(ctx context.Context, network, address string) (net.Conn, error) {
		return nil, &net.OpError{Op: "dial", Net: network, Err: errors.New("connection refused")}
	})
	res := p.Probe(context.Background(), "mx.acme.com", "test@example.com", "jane@acme.com")

	require.Error(t, res.Err)
	status, reason := check.Classify(res)
	assert.Equal(t, types.StatusConnectionError, status)
	assert.Contains(t, reason, "connection refused")
	assert.False(t, res.Accepted())
}

func TestSMTPProber_SilentServerTimesOut(t *testing.T) {
	p, err := check.NewSMTPProber(check.SMTPConfig{
		CommandTimeout: 30 * time.Millisecond,
		QuitTimeout:    10 * time.Millisecond,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			client, server := net.Pipe()
			t.Cleanup(func() { _ = server.Close() })
			return client, nil
		},
	})
	require.NoError(t, err)

	res := p.Probe(context.Background(), "mx.acme.com", "test@example.com", "jane@acme.com")
	status, reason := check.Classify(res)
	assert.Equal(t, types.StatusTimeout, status)
	assert.Equal(t, check.ReasonTimeout, reason)
}

func TestSMTPProber_CancelledWhileWaiting(t *testing.T) {
	m := &mockSMTPServer{rcpt: acceptAll}
	p := newTestProber(m.dial)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := p.Probe(ctx, "mx.acme.com", "test@example.com", "jane@acme.com")

	status, reason := check.Classify(res)
	assert.Equal(t, types.StatusUnknown, status)
	assert.Contains(t, reason, "context canceled")
	assert.Zero(t, m.dials.Load())
}

func TestSMTPProber_SOCKS5(t *testing.T) {
	// nothing listens on the proxy port
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	p, err := check.NewSMTPProber(check.SMTPConfig{
		ConnectTimeout: time.Second,
		SOCKS5Proxy:    "user:secret@" + addr,
	})
	require.NoError(t, err)

	res := p.Probe(context.Background(), "mx.acme.com", "test@example.com", "jane@acme.com")
	status, _ := check.Classify(res)
	assert.Equal(t, types.StatusConnectionError, status)
}

func TestSMTPProber_InvalidProxy(t *testing.T) {
	_, err := check.NewSMTPProber(check.SMTPConfig{SOCKS5Proxy: "proxy.local"})
	assert.Error(t, err)
}

func TestSMTPProber_Metrics(t *testing.T) {
	m := &mockSMTPServer{rcpt: acceptOnly("jane@acme.com")}
	reg := metrics.Nop()
	p, err := check.NewSMTPProber(check.SMTPConfig{Dial: m.dial, QuitTimeout: 50 * time.Millisecond, Metrics: reg})
	require.NoError(t, err)

	p.Probe(context.Background(), "mx.acme.com", "test@example.com", "jane@acme.com")
	p.Probe(context.Background(), "mx.acme.com", "test@example.com", "john@acme.com")

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Probes.WithLabelValues(check.KindCandidate, "250")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Probes.WithLabelValues(check.KindCandidate, "550")))
}

func TestSMTPProber_SenderRefusedSkipsRcpt(t *testing.T) {
	m := &mockSMTPServer{mail: "553 5.1.8 Domain of sender does not exist", rcpt: acceptAll}
	res := newTestProber(m.dial).Probe(context.Background(), "mx.acme.com", "test@example.com", "jane@acme.com")

	assert.False(t, res.Accepted())
	assert.Equal(t, 553, res.Code)
	assert.Equal(t, "5.1.8 Domain of sender does not exist", res.Reply)
	assert.Empty(t, m.recipients())
}

func TestSMTPProber_DeadlineWhileWaitingForHost(t *testing.T) {
	unblock := make(chan struct{})
	m := &mockSMTPServer{rcpt: func(string) string {
		<-unblock
		return "250 OK"
	}}
	p, err := check.NewSMTPProber(check.SMTPConfig{
		CommandTimeout:  time.Second,
		QuitTimeout:     50 * time.Millisecond,
		MaxConnsPerHost: 1,
		Dial:            m.dial,
	})
	require.NoError(t, err)

	done := make(chan check.ProbeResult)
	go func() {
		done <- p.Probe(context.Background(), "mx.acme.com", "test@example.com", "jane@acme.com")
	}()
	require.Eventually(t, func() bool { return len(m.recipients()) == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := p.Probe(ctx, "mx.acme.com", "test@example.com", "john@acme.com")

	var ae *check.AbortedError
	require.ErrorAs(t, res.Err, &ae)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	status, reason := check.Classify(res)
	assert.Equal(t, types.StatusUnknown, status)
	assert.Equal(t, "verification cancelled: context deadline exceeded", reason)

	close(unblock)
	assert.True(t, (<-done).Accepted())
	assert.Equal(t, int32(1), m.dials.Load())
}
