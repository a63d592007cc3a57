// Package daverr holds the error types shared by the codec, transport and
// reconciliation layers.
package daverr

import (
	"errors"
	"fmt"
)

// ProtocolError reports a response whose XML shape does not match what the
// WebDAV/CalDAV RFCs allow for the request that was made.
type ProtocolError struct {
	Msg string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Msg, e.Err)
	}
	return "protocol error: " + e.Msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Protocolf builds a ProtocolError from a format string.
func Protocolf(format string, args ...any) *ProtocolError {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

// UnexpectedStatusError is returned when the server answers with a status
// code outside the set accepted by the operation.
type UnexpectedStatusError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
}

func (e *UnexpectedStatusError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d", e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %s", e.Method, e.URL, status)
}

// NotFoundError reports that a resource or property does not exist. Callers
// looking up items that may not have been created yet treat it as "absent".
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string {
	return "not found: " + e.What
}

// PreconditionFailedError is returned when a conditional write was rejected
// because the remote ETag no longer matches.
type PreconditionFailedError struct {
	URL   string
	ETags []string
}

func (e *PreconditionFailedError) Error() string {
	return fmt.Sprintf("precondition failed for %s (etags %v)", e.URL, e.ETags)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsPreconditionFailed reports whether err wraps a PreconditionFailedError.
func IsPreconditionFailed(err error) bool {
	var pf *PreconditionFailedError
	return errors.As(err, &pf)
}

// IsProtocol reports whether err wraps a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsUnexpectedStatus reports whether err wraps an UnexpectedStatusError.
func IsUnexpectedStatus(err error) bool {
	var us *UnexpectedStatusError
	return errors.As(err, &us)
}
