// Package smtpsession runs a single SMTP RCPT TO probe over a raw TCP
// connection: banner, EHLO, MAIL FROM, RCPT TO, QUIT.
package smtpsession

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DialFunc opens the TCP connection to an MX host.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config configures a probe session.
type Config struct {
	HeloName       string
	ConnectTimeout time.Duration
	CommandTimeout time.Duration // per command round trip
	QuitTimeout    time.Duration // budget for the closing QUIT (default: 2s)
	Port           string
	// Dial is injectable for testing. Defaults to a net.Dialer.
	Dial DialFunc
	Log  logrus.FieldLogger
}

func (c Config) withDefaults() Config {
	if c.HeloName == "" {
		c.HeloName = "localhost"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 10 * time.Second
	}
	if c.QuitTimeout <= 0 {
		c.QuitTimeout = 2 * time.Second
	}
	if c.Port == "" {
		c.Port = "25"
	}
	if c.Dial == nil {
		d := &net.Dialer{}
		c.Dial = d.DialContext
	}
	if c.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.Log = l
	}
	return c
}

// Reply is one (possibly multi-line) SMTP reply.
type Reply struct {
	Code    int
	Message string // all reply lines, including codes, joined by " | "
}

// Transcript holds the replies a probe collected.
// Banner is set once the greeting was read; Rcpt once RCPT TO was answered.
type Transcript struct {
	Banner Reply
	Rcpt   Reply
}

// session is an established probe connection.
type session struct {
	cfg    Config
	ctx    context.Context
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	log    logrus.FieldLogger
}

// Probe connects to host and asks whether it accepts mail from sender to rcpt.
// A nil error means the RCPT TO command was answered; the code is in
// Transcript.Rcpt. Failures are returned as *StageError or *ReplyError.
// Once connected, the session always ends with QUIT and the socket is closed.
func Probe(ctx context.Context, cfg Config, host, sender, rcpt string) (Transcript, error) {
	cfg = cfg.withDefaults()
	var t Transcript

	addr := net.JoinHostPort(host, cfg.Port)
	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	nc, err := cfg.Dial(dialCtx, "tcp", addr)
	cancel()
	if err != nil {
		return t, &StageError{Stage: StageDial, Err: fmt.Errorf("connect to %s: %w", addr, err)}
	}

	s := &session{
		cfg:    cfg,
		ctx:    ctx,
		conn:   nc,
		reader: bufio.NewReader(nc),
		writer: bufio.NewWriter(nc),
		log:    cfg.Log.WithField("mx", host),
	}
	// unblock in-flight I/O when the caller gives up
	stop := context.AfterFunc(ctx, func() { _ = nc.SetDeadline(time.Unix(1, 0)) })
	defer func() {
		stop()
		s.quit()
		_ = nc.Close()
	}()

	t.Banner, err = s.read(StageBanner)
	if err != nil {
		return t, err
	}
	if t.Banner.Code != 220 {
		return t, &ReplyError{Stage: StageBanner, Reply: t.Banner}
	}

	if err := s.hello(); err != nil {
		return t, err
	}

	mail, err := s.command(StageMail, "MAIL FROM:<"+sender+">")
	if err != nil {
		return t, err
	}
	if mail.Code < 200 || mail.Code >= 300 {
		return t, &ReplyError{Stage: StageMail, Reply: mail}
	}

	t.Rcpt, err = s.command(StageRcpt, "RCPT TO:<"+rcpt+">")
	return t, err
}

// hello sends EHLO, falling back to HELO for servers that refuse EHLO.
func (s *session) hello() error {
	r, err := s.command(StageHelo, "EHLO "+s.cfg.HeloName)
	if err != nil {
		return err
	}
	if r.Code >= 500 {
		if r, err = s.command(StageHelo, "HELO "+s.cfg.HeloName); err != nil {
			return err
		}
	}
	if r.Code >= 400 {
		return &ReplyError{Stage: StageHelo, Reply: r}
	}
	return nil
}

func (s *session) command(stage Stage, cmd string) (Reply, error) {
	if err := s.conn.SetDeadline(s.deadline()); err != nil {
		return Reply{}, &StageError{Stage: stage, Err: fmt.Errorf("set deadline: %w", err)}
	}
	s.log.Debugf("> %s", cmd)
	if _, err := s.writer.WriteString(cmd + "\r\n"); err != nil {
		return Reply{}, &StageError{Stage: stage, Err: err}
	}
	if err := s.writer.Flush(); err != nil {
		return Reply{}, &StageError{Stage: stage, Err: err}
	}
	return s.read(stage)
}

func (s *session) read(stage Stage) (Reply, error) {
	if err := s.conn.SetReadDeadline(s.deadline()); err != nil {
		return Reply{}, &StageError{Stage: stage, Err: fmt.Errorf("set deadline: %w", err)}
	}
	r, err := readReply(s.reader)
	if err != nil {
		return Reply{}, &StageError{Stage: stage, Err: err}
	}
	s.log.Debugf("< %s", r.Message)
	return r, nil
}

// deadline is one command timeout from now, capped by the context deadline.
func (s *session) deadline() time.Time {
	if s.ctx.Err() != nil {
		return time.Unix(1, 0)
	}
	d := time.Now().Add(s.cfg.CommandTimeout)
	if cd, ok := s.ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

// quit sends QUIT and waits briefly for the 221 (best-effort, ignores errors).
func (s *session) quit() {
	_ = s.conn.SetDeadline(time.Now().Add(s.cfg.QuitTimeout))
	if _, err := s.writer.WriteString("QUIT\r\n"); err != nil {
		return
	}
	if err := s.writer.Flush(); err != nil {
		return
	}
	_, _ = readReply(s.reader)
}

// Reply size limits. RFC 5321 4.5.3.1.5 caps a reply line at 512 octets
// including the CRLF.
const (
	maxReplyLine  = 512
	maxReplyLines = 100
)

// ErrReplyTooLong is returned for a reply line or a multi-line reply that
// exceeds the size limits.
var ErrReplyTooLong = errors.New("SMTP reply too long")

// readReply reads a (possibly multi-line) SMTP reply.
func readReply(r *bufio.Reader) (Reply, error) {
	var lines []string
	for {
		if len(lines) == maxReplyLines {
			return Reply{}, fmt.Errorf("%w: more than %d lines", ErrReplyTooLong, maxReplyLines)
		}
		line, err := readLine(r)
		if err != nil {
			return Reply{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 3 {
			return Reply{}, &MalformedReplyError{Line: line}
		}
		lines = append(lines, line)
		// a '-' in the 4th position marks a continuation line
		if len(line) < 4 || line[3] != '-' {
			break
		}
	}

	last := lines[len(lines)-1]
	code, err := strconv.Atoi(last[:3])
	if err != nil || code < 100 || code > 599 {
		return Reply{}, &MalformedReplyError{Line: last}
	}
	return Reply{Code: code, Message: strings.Join(lines, " | ")}, nil
}

// readLine reads one line of at most maxReplyLine bytes.
func readLine(r *bufio.Reader) (string, error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > maxReplyLine {
			return "", fmt.Errorf("%w: line exceeds %d bytes", ErrReplyTooLong, maxReplyLine)
		}
		switch {
		case err == nil:
			return string(buf), nil
		case errors.Is(err, bufio.ErrBufferFull):
		default:
			return "", fmt.Errorf("read SMTP reply: %w", err)
		}
	}
}

// Text returns the reply text without status codes, lines joined by spaces.
func (r Reply) Text() string {
	parts := strings.Split(r.Message, " | ")
	for i, p := range parts {
		if len(p) > 4 {
			parts[i] = p[4:]
		} else {
			parts[i] = ""
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// IsTransport reports whether err is a socket-level failure: a failed dial,
// a reset or refused connection, or the peer closing mid-session.
func IsTransport(err error) bool {
	var se *StageError
	if errors.As(err, &se) && se.Stage == StageDial {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed)
}

// IsTimeout reports whether err stems from a connect or I/O deadline.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
