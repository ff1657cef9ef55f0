// Package check holds the building blocks of a verification: DNS profiling,
// SMTP RCPT probing, catch-all detection and advisory classification.
// They can be used on their own, but most callers want the Verifier in
// github.com/optimode/emailfinder, which wires them together.
package check
