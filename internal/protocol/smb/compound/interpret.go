package compound

import (
	"fmt"

	"github.com/marmos91/dittosmb/internal/protocol/smb/codec"
	"github.com/marmos91/dittosmb/internal/protocol/smb/pdu"
	"github.com/marmos91/dittosmb/internal/protocol/smb/transport"
	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// ============================================================================
// Response Interpreter
// ============================================================================

// interpret converts the transaction's responses into the caller's
// result and tears the transaction down.
//
// Buffer discipline: every response buffer is released exactly once.
// On success (or failure without diagnostics) the interpreter releases
// them all itself; on failure with diagnostics requested, ownership of
// every buffer transfers verbatim to the Diagnostics and the local
// references are dropped.
func (e *Engine) interpret(
	kind Kind,
	txn *Transaction,
	responses []transport.Response,
	execErr error,
	params *opParams,
	handleSymlinkTarget string,
	diag *Diagnostics,
) error {
	err := execErr

	if kind.isQuery() {
		// A handle opened through a reparse point already knows the
		// link target; surface it even before looking at the wire
		// result so a successful re-query keeps the link information.
		if handleSymlinkTarget != "" {
			params.info.SymlinkTarget = handleSymlinkTarget
		}

		if err == nil {
			err = e.extractQueryPayload(kind, txn, responses, params.info)
		}
	}

	if err != nil && diag != nil {
		// Ownership of the raw responses transfers to the caller, who
		// must release them; nothing is freed locally.
		diag.take(responses)
		return err
	}

	t := e.conn.Transport()
	for i := range responses {
		t.Release(&responses[i])
	}
	return err
}

// extractQueryPayload locates the operate slot's response, validates
// the declared output range against the received bytes, and decodes the
// fixed-size attribute block the caller expects.
//
// A declared offset/length outside the received buffer is a structural
// failure, reported distinctly from any wire-level error and never
// silently truncated.
func (e *Engine) extractQueryPayload(
	kind Kind,
	txn *Transaction,
	responses []transport.Response,
	info *PathInfo,
) error {
	idx := txn.operateIndex()
	if idx >= len(responses) || responses[idx].Kind == transport.BufferNone {
		return structuralError(fmt.Errorf("no response received for operate slot %d", idx))
	}
	packet := responses[idx].Buf

	offset, length, err := pdu.ParseQueryInfoResponse(packet)
	if err != nil {
		return structuralError(err)
	}

	need := types.FileAllInfoSize
	if kind == KindPosixQueryInfo {
		need = types.PosixInfoSize
	}

	out, err := codec.ValidateOutputRange(packet, offset, length, need)
	if err != nil {
		return structuralError(err)
	}

	switch kind {
	case KindQueryInfo:
		fi, err := codec.DecodeFileAllInfo(out)
		if err != nil {
			return structuralError(err)
		}
		info.All = *fi
	case KindPosixQueryInfo:
		pi, err := codec.DecodePosixInfo(out)
		if err != nil {
			return structuralError(err)
		}
		info.Posix = *pi
	}

	return nil
}
