package compound

import (
	"context"
	"errors"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/protocol/smb/transport"
	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// ============================================================================
// Transaction Executor
// ============================================================================

// execute sends the transaction's populated request slots as one atomic
// chained call and returns one response per sent slot, in order.
//
// With a caller-supplied handle only the operate sub-range was ever
// populated, so the open/close network cost is skipped by construction.
//
// The returned responses are owned by the caller regardless of the
// error: a failed transaction still carries the server's error packets,
// which the interpreter either releases or hands to the caller's
// diagnostics.
//
// One status gets special treatment: when the server reports the share
// as deleted or renamed mid-session, the connection is marked for
// forced reconnection as an unconditional side effect, independent of
// what the caller does with the error.
func (e *Engine) execute(ctx context.Context, txn *Transaction) ([]transport.Response, error) {
	responses, err := e.conn.Transport().Send(ctx, txn.requests())
	if err == nil {
		return responses, nil
	}

	var statusErr *transport.StatusError
	if !errors.As(err, &statusErr) {
		return responses, transportError(err)
	}

	if statusErr.Status == types.StatusNetworkNameDeleted {
		e.shareDeletedWarn.Do(func() {
			logger.Warn("share %s deleted or renamed on the server, reconnect required",
				e.conn.Share())
		})
		e.conn.MarkReconnect()
		e.metrics.RecordReconnectMark()
	}

	return responses, statusError(statusErr.Status)
}
