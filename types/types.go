// Package types contains the shared types for emailfinder.
// This package does not import anything from other emailfinder packages
// to avoid circular imports.
package types

import "strconv"

// Status is the terminal verification verdict for one address.
type Status string

const (
	StatusValid           Status = "Valid"
	StatusInvalid         Status = "Invalid"
	StatusCatchAll        Status = "Risky (Catch-All)"
	StatusUnknown         Status = "Unknown"
	StatusNoMX            Status = "Unknown (No MX)"
	StatusConnectFail     Status = "Unknown (Connect Fail)"
	StatusTimeout         Status = "Unknown (Timeout)"
	StatusConnectionError Status = "Unknown (Connection Error)"
)

// StatusForCode returns the Unknown status carrying an unexpected SMTP code,
// e.g. "Unknown (451)".
func StatusForCode(code int) Status {
	return Status("Unknown (" + strconv.Itoa(code) + ")")
}

// Bucket groups statuses for display.
type Bucket string

const (
	BucketPass    Bucket = "pass"
	BucketCaution Bucket = "caution"
	BucketFail    Bucket = "fail"
	BucketUnknown Bucket = "unknown"
)

// Bucket maps a status to its display bucket: Valid passes, Risky needs
// caution, Invalid fails, everything else is unknown.
func (s Status) Bucket() Bucket {
	switch s {
	case StatusValid:
		return BucketPass
	case StatusCatchAll:
		return BucketCaution
	case StatusInvalid:
		return BucketFail
	default:
		return BucketUnknown
	}
}

// Definitive reports whether the status came from an explicit 250 or 550 reply.
func (s Status) Definitive() bool {
	return s.Bucket() != BucketUnknown
}

func (s Status) String() string { return string(s) }
