// Package emailfinder guesses and verifies professional email addresses.
// It generates the usual address patterns for a name at a company domain
// and grades each one with live MX, SPF and DMARC lookups, an SMTP RCPT TO
// probe and catch-all detection.
//
// Basic usage:
//
//	v := emailfinder.New()
//	res := v.Verify(ctx, "jane.doe@acme.com")
//	fmt.Println(res.Status, res.Reason)
//
// Finding an address:
//
//	results := emailfinder.New().
//	    WithSMTP(emailfinder.SMTPOptions{
//	        HeloName: "mail.myapp.com",
//	        MailFrom: "verify@myapp.com",
//	    }).
//	    Find(ctx, "Jane", "Doe", "acme.com", emailfinder.BatchOptions{})
package emailfinder

import (
	"github.com/optimode/emailfinder/check"
	"github.com/optimode/emailfinder/types"
)

// Status is a re-export from the types package so that consumers
// don't need to import the types package directly.
type Status = types.Status

// Bucket is a re-export.
type Bucket = types.Bucket

// Status constants re-exported.
const (
	StatusValid           = types.StatusValid
	StatusInvalid         = types.StatusInvalid
	StatusCatchAll        = types.StatusCatchAll
	StatusUnknown         = types.StatusUnknown
	StatusNoMX            = types.StatusNoMX
	StatusConnectFail     = types.StatusConnectFail
	StatusTimeout         = types.StatusTimeout
	StatusConnectionError = types.StatusConnectionError
)

// Bucket constants re-exported.
const (
	BucketPass    = types.BucketPass
	BucketCaution = types.BucketCaution
	BucketFail    = types.BucketFail
	BucketUnknown = types.BucketUnknown
)

// Resolver is the DNS backend interface. *net.Resolver implements it.
type Resolver = check.Resolver

// DialFunc opens the TCP connection to an MX host.
type DialFunc = check.DialFunc
