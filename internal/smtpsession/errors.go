package smtpsession

import "fmt"

// Stage names the step of the session at which a probe stopped.
type Stage string

const (
	StageDial   Stage = "dial"
	StageBanner Stage = "banner"
	StageHelo   Stage = "helo"
	StageMail   Stage = "mail"
	StageRcpt   Stage = "rcpt"
)

// StageError is a transport or parse failure at a given stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// ReplyError is a well-formed reply that ended the session early,
// e.g. a 554 banner or a refused MAIL FROM.
type ReplyError struct {
	Stage Stage
	Reply Reply
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Stage, e.Reply.Message)
}

// MalformedReplyError is returned for a reply line that is not "NNN text".
type MalformedReplyError struct {
	Line string
}

func (e *MalformedReplyError) Error() string {
	return fmt.Sprintf("malformed SMTP reply %q", e.Line)
}
