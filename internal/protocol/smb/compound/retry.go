package compound

import (
	"errors"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/protocol/smb/codec"
	"github.com/marmos91/dittosmb/internal/protocol/smb/transport"
	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// ============================================================================
// Reparse/Referral Retry Controller
// ============================================================================
//
// A path query can fail for reasons that warrant exactly one more
// decision: the path is a symlink (re-query the reparse point itself)
// or the path lives on another server (surface a referral). The
// controller is an explicit two-state machine - Initial, then Retried -
// terminal on the first retry, so the "never retries twice" bound is
// enforced by the state, not by call-site discipline.

// retryState is the controller's position in its two-state machine.
type retryState uint8

const (
	stateInitial retryState = iota
	stateRetried
)

// retryAction tells the query path what to do with a failure.
type retryAction uint8

const (
	// actionNone propagates the (possibly remapped) error as-is.
	actionNone retryAction = iota

	// actionRetrySymlink re-issues the query once with reparse-point
	// creation options.
	actionRetrySymlink
)

// retryController decides, once per logical call, whether a failed
// query is retried or how its error is remapped.
type retryController struct {
	state retryState
}

// inspect examines a query failure from the Initial state and either
// requests the single symlink retry or remaps the error for the caller.
// From the Retried state it always propagates the error verbatim: a
// failure on the retry is final.
func (rc *retryController) inspect(
	e *Engine,
	kind Kind,
	err error,
	diag *Diagnostics,
	info *PathInfo,
) (retryAction, error) {
	if rc.state == stateRetried {
		return actionNone, err
	}

	if kind == KindPosixQueryInfo {
		return rc.inspectPosix(err, diag, info)
	}
	return rc.inspectQuery(e, err, diag, info)
}

// inspectQuery handles the KindQueryInfo failure paths.
func (rc *retryController) inspectQuery(
	e *Engine,
	err error,
	diag *Diagnostics,
	info *PathInfo,
) (retryAction, error) {
	open := &diag.Responses[0]
	if open.Kind != transport.BufferNone {
		hdr, perr := codec.ParseHeader(open.Buf)
		switch {
		case perr != nil:

		case IsCode(err, ErrNotSupported) &&
			hdr.Command == types.CmdCreate &&
			hdr.Status == types.StatusStoppedOnSymlink:
			// Failed on a symbolic link - recover the target from the
			// raw open-phase response, then query the reparse point
			// itself.
			target, terr := codec.ParseSymlinkErrorResponse(open.Buf)
			if terr != nil {
				return actionNone, structuralError(terr)
			}
			info.SymlinkTarget = target
			info.Reparse = true
			rc.state = stateRetried
			return actionRetrySymlink, nil

		case !IsCode(err, ErrReferral) &&
			e.conn.DFSSupported() &&
			hdr.Status == types.StatusObjectNameInvalid:
			// Some Windows servers answer a query for a DFS link whose
			// name contains non-ASCII unicode symbols with
			// STATUS_OBJECT_NAME_INVALID instead of the referral status.
			err = referralError(hdr.Status)
		}
	}

	if IsCode(err, ErrReferral) && !e.conn.DFSEnabled() {
		// Without DFS resolution the referral cannot be followed;
		// callers see a uniform "unsupported" error instead.
		var status types.Status
		var opErr *OpError
		if errors.As(err, &opErr) {
			status = opErr.Status
		}
		err = notSupportedError(status)
	}
	return actionNone, err
}

// inspectPosix handles the KindPosixQueryInfo failure paths.
//
// The retry here is a best-effort structural re-query: it proceeds on
// any "unsupported" failure, even when the symlink target could not be
// recovered from the raw response.
func (rc *retryController) inspectPosix(
	err error,
	diag *Diagnostics,
	info *PathInfo,
) (retryAction, error) {
	if !IsCode(err, ErrNotSupported) {
		return actionNone, err
	}

	open := &diag.Responses[0]
	if open.Kind != transport.BufferNone {
		if hdr, perr := codec.ParseHeader(open.Buf); perr == nil &&
			hdr.Command == types.CmdCreate &&
			hdr.Status == types.StatusStoppedOnSymlink {
			target, terr := codec.ParseSymlinkErrorResponse(open.Buf)
			if terr != nil {
				logger.Warn("posix query: symlink target recovery failed: %v", terr)
			} else {
				info.SymlinkTarget = target
			}
		}
	}

	info.Reparse = true
	rc.state = stateRetried
	return actionRetrySymlink, nil
}
