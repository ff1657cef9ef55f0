package emailfinder

import "errors"

var (
	// ErrInvalidSMTPOptions is reported when SMTPOptions carries a malformed
	// MailFrom address or negative limits.
	ErrInvalidSMTPOptions = errors.New("emailfinder: invalid SMTPOptions")

	// ErrInvalidProxy is reported when SMTPOptions.SOCKS5Proxy cannot be used.
	ErrInvalidProxy = errors.New("emailfinder: invalid SOCKS5 proxy")
)
