package check_test

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/optimode/emailfinder/check"
)

// mockSMTPServer simulates an MX host on one end of a net.Pipe. rcpt picks
// the RCPT TO reply for each recipient; mail overrides the MAIL FROM reply.
type mockSMTPServer struct {
	banner string
	mail   string
	rcpt   func(addr string) string

	dials atomic.Int32
	mu    sync.Mutex
	rcpts []string
}

func acceptAll(string) string { return "250 OK" }

// acceptOnly accepts the listed recipients and rejects everything else.
func acceptOnly(addrs ...string) func(string) string {
	return func(addr string) string {
		for _, a := range addrs {
			if strings.EqualFold(a, addr) {
				return "250 OK"
			}
		}
		return "550 5.1.1 User unknown"
	}
}

func (m *mockSMTPServer) dial(ctx context.Context, network, address string) (net.Conn, error) {
	m.dials.Add(1)
	client, server := net.Pipe()
	go m.serve(server)
	return client, nil
}

func (m *mockSMTPServer) serve(server net.Conn) {
	defer func() { _ = server.Close() }()

	banner := m.banner
	if banner == "" {
		banner = "220 mx.acme.com ESMTP"
	}
	_, _ = fmt.Fprintf(server, "%s\r\n", banner)

	buf := make([]byte, 4096)
	for {
		n, err := server.Read(buf)
		if err != nil {
			return
		}
		cmd := strings.TrimRight(string(buf[:n]), "\r\n")
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			_, _ = fmt.Fprintf(server, "250-mx.acme.com\r\n250 8BITMIME\r\n")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			reply := m.mail
			if reply == "" {
				reply = "250 OK"
			}
			_, _ = fmt.Fprintf(server, "%s\r\n", reply)
		case strings.HasPrefix(cmd, "RCPT TO:"):
			addr := strings.Trim(strings.TrimPrefix(cmd, "RCPT TO:"), "<>")
			m.mu.Lock()
			m.rcpts = append(m.rcpts, addr)
			m.mu.Unlock()
			_, _ = fmt.Fprintf(server, "%s\r\n", m.rcpt(addr))
		case strings.HasPrefix(cmd, "QUIT"):
			_, _ = fmt.Fprintf(server, "221 Bye\r\n")
			return
		default:
			_, _ = fmt.Fprintf(server, "502 Command not implemented\r\n")
		}
	}
}

func (m *mockSMTPServer) recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.rcpts...)
}

func newTestProber(dial check.DialFunc) *check.SMTPProber {
	p, err := check.NewSMTPProber(check.SMTPConfig{
		HeloName:        "probe.test",
		ConnectTimeout:  time.Second,
		CommandTimeout:  time.Second,
		QuitTimeout:     50 * time.Millisecond,
		MaxConnsPerHost: 2,
		Dial:            dial,
	})
	if err != nil {
		panic(err)
	}
	return p
}
