// Package draft defines the contract for the cold-email drafting
// collaborator: a resume and a free-text company or job context go in, one
// drafted message with a subject line and a body comes out. The model and
// prompt behind a Drafter live elsewhere.
package draft

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxResumeRunes bounds the resume text handed to a Drafter.
const MaxResumeRunes = 4000

// ErrEmptyContext is returned by Compose when the request has no context.
var ErrEmptyContext = errors.New("draft: empty company/job context")

// Request is the input of one drafting call.
type Request struct {
	Resume    string // at most MaxResumeRunes runes
	Context   string // company or job description
	Truncated bool   // the resume was cut to fit
}

// NewRequest builds a Request, truncating resume to MaxResumeRunes runes.
func NewRequest(resume, jobContext string) Request {
	resume = strings.TrimSpace(resume)
	req := Request{Resume: resume, Context: strings.TrimSpace(jobContext)}
	if utf8.RuneCountInString(resume) > MaxResumeRunes {
		req.Resume = truncateRunes(resume, MaxResumeRunes)
		req.Truncated = true
	}
	return req
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Drafter produces one drafted message for a request.
type Drafter interface {
	Draft(ctx context.Context, req Request) (string, error)
}

// Func adapts a plain function to the Drafter interface.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Draft(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// Message is a drafted email split into its parts.
type Message struct {
	Subject string
	Body    string
}

// ParseMessage splits a drafted text into subject and body. The subject is
// taken from a leading "Subject:" line (case-insensitive, optionally bold
// markdown); without one, the whole text is the body.
func ParseMessage(text string) Message {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	first, rest, _ := strings.Cut(text, "\n")

	line := strings.Trim(strings.TrimSpace(first), "*")
	if len(line) >= len("subject:") && strings.EqualFold(line[:len("subject:")], "subject:") {
		subject := strings.Trim(strings.TrimSpace(line[len("subject:"):]), "*")
		return Message{Subject: strings.TrimSpace(subject), Body: strings.TrimSpace(rest)}
	}
	return Message{Body: text}
}

// String renders the message back as "Subject: ...", a blank line, then the body.
func (m Message) String() string {
	if m.Subject == "" {
		return m.Body
	}
	return "Subject: " + m.Subject + "\n\n" + m.Body
}

// Compose runs d on req and parses the result.
func Compose(ctx context.Context, d Drafter, req Request) (Message, error) {
	if req.Context == "" {
		return Message{}, ErrEmptyContext
	}
	text, err := d.Draft(ctx, req)
	if err != nil {
		return Message{}, fmt.Errorf("draft: %w", err)
	}
	return ParseMessage(text), nil
}
