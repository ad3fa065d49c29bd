package jsonsql

import (
	"errors"
	"fmt"
)

// TransportError wraps a network-level failure (dial, timeout, malformed
// response). Retrying is the caller's decision; the sync engine treats the
// final outcome as fatal for the run.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("jsonsql transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a structured error payload returned by the server. These are
// never retried. AccessDenied marks 403-equivalent responses, which the sync
// manager treats as a permanent per-table condition.
type APIError struct {
	Code         int
	Message      string
	AccessDenied bool
}

func (e *APIError) Error() string {
	if e.AccessDenied {
		return fmt.Sprintf("jsonsql api: access denied (%d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("jsonsql api: error %d: %s", e.Code, e.Message)
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsAccessDenied reports whether err is an APIError of the access-denied
// subkind.
func IsAccessDenied(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.AccessDenied
}
