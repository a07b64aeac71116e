package compound

import (
	"errors"
	"fmt"

	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// OpError represents a failure of a compound filesystem operation.
//
// These are the engine's caller-visible errors. Wire-level NT statuses
// are folded into a small set of categories; callers that need the raw
// status for their own interpretation can read it off the error or
// request diagnostics buffers.
type OpError struct {
	// Code is the error category
	Code ErrorCode

	// Status is the NT status that produced the error, when the error
	// originated on the wire (zero otherwise)
	Status types.Status

	// Message is a human-readable error description
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes the underlying error to errors.Is/As.
func (e *OpError) Unwrap() error { return e.Err }

// ErrorCode represents the category of a compound operation error.
type ErrorCode int

const (
	// ErrEncode indicates a request could not be built: path-to-wire
	// conversion failed or an operation encoder rejected its inputs.
	// Fatal to the call, never retried.
	ErrEncode ErrorCode = iota

	// ErrTransport indicates a network or session level failure
	// reported by the transport, carrying the wire status when known.
	ErrTransport

	// ErrStructural indicates a response declared an output range that
	// does not fit the bytes actually received. Hard failure, never
	// downgraded to a partial result.
	ErrStructural

	// ErrReconnect is the transport failure variant raised when the
	// share was deleted or renamed server-side. The connection has
	// already been marked for forced reconnection when this surfaces.
	ErrReconnect

	// ErrNotSupported indicates the server rejected the operation as
	// unsupported.
	ErrNotSupported

	// ErrReferral indicates the path is served elsewhere and must be
	// re-resolved through the DFS referral mechanism.
	ErrReferral

	// ErrNotFound indicates the path does not exist.
	ErrNotFound
)

// String returns the category name for logging.
func (c ErrorCode) String() string {
	switch c {
	case ErrEncode:
		return "ENCODE"
	case ErrTransport:
		return "TRANSPORT"
	case ErrStructural:
		return "STRUCTURAL"
	case ErrReconnect:
		return "RECONNECT"
	case ErrNotSupported:
		return "NOT_SUPPORTED"
	case ErrReferral:
		return "REFERRAL"
	case ErrNotFound:
		return "NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// IsCode reports whether err is an *OpError with the given category.
func IsCode(err error, code ErrorCode) bool {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Code == code
	}
	return false
}

// encodeError wraps a builder/encoder failure.
func encodeError(what string, err error) *OpError {
	return &OpError{
		Code:    ErrEncode,
		Message: fmt.Sprintf("encode %s", what),
		Err:     err,
	}
}

// structuralError wraps an offset/length validation failure.
func structuralError(err error) *OpError {
	return &OpError{
		Code:    ErrStructural,
		Message: "response failed structural validation",
		Err:     err,
	}
}

// statusError categorizes a wire status reported by the transport.
func statusError(status types.Status) *OpError {
	code := ErrTransport
	switch status {
	case types.StatusNetworkNameDeleted:
		code = ErrReconnect
	case types.StatusNotSupported, types.StatusStoppedOnSymlink:
		// Stopping on a symlink surfaces as "not supported" so the
		// retry controller can distinguish it via the raw response
		// header rather than the folded category.
		code = ErrNotSupported
	case types.StatusPathNotCovered:
		code = ErrReferral
	case types.StatusObjectNameNotFound:
		code = ErrNotFound
	}
	return &OpError{
		Code:    code,
		Status:  status,
		Message: fmt.Sprintf("server returned status 0x%08X", uint32(status)),
	}
}

// transportError wraps a transaction-level transport failure that did
// not carry a per-slot status (connection loss, timeout).
func transportError(err error) *OpError {
	return &OpError{
		Code:    ErrTransport,
		Message: "transport failure",
		Err:     err,
	}
}

// referralError is the caller-visible "target has moved" error used by
// the retry controller's remapping paths.
func referralError(status types.Status) *OpError {
	return &OpError{
		Code:    ErrReferral,
		Status:  status,
		Message: "path is served by another server, referral required",
	}
}

// notSupportedError is the uniform error shown to callers without DFS
// handling when a referral cannot be followed.
func notSupportedError(status types.Status) *OpError {
	return &OpError{
		Code:    ErrNotSupported,
		Status:  status,
		Message: "referral indicated but DFS resolution is unavailable",
	}
}
