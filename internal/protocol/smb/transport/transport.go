// Package transport defines the contract between the compound engine
// and the layer that physically moves SMB2 packets: a Transport sends a
// batch of chained requests as one wire transaction and returns one
// response per request, and a Conn carries the per-connection state the
// engine is allowed to touch (most importantly the sticky
// needs-reconnect flag).
//
// Session establishment, credit accounting, signing and encryption are
// entirely the transport implementation's business; the engine never
// sees them.
package transport

import (
	"context"
	"fmt"

	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// BufferKind records where a response buffer came from, which dictates
// the correct release path.
type BufferKind uint8

const (
	// BufferNone marks an empty response slot: nothing was received and
	// nothing needs releasing.
	BufferNone BufferKind = iota

	// BufferHeap marks an ordinary allocated buffer. Releasing it is a
	// no-op beyond dropping the reference.
	BufferHeap

	// BufferPooled marks a buffer owned by the transport's receive pool.
	// It must be released back through Transport.Release exactly once.
	BufferPooled
)

// Response is one received response packet and its buffer provenance.
//
// Ownership: the receiver of a Response owns Buf until it either calls
// Transport.Release on it or hands the Response to another owner. Every
// Response must be released exactly once.
type Response struct {
	// Buf is the raw packet (header + body). Nil when Kind is BufferNone.
	Buf []byte

	// Kind is the buffer's provenance.
	Kind BufferKind
}

// Transport sends chained request batches and returns parallel responses.
type Transport interface {
	// Send transmits reqs as a single compounded wire transaction
	// sharing one session context, and returns one Response per request
	// in the same order.
	//
	// On a per-request failure, Send still returns the response slice
	// (failed slots carry the server's error packet) together with a
	// *StatusError for the first failing slot. A returned error that is
	// not a *StatusError means the transaction as a whole did not
	// complete (connection loss, timeout); response slots may then be
	// BufferNone.
	//
	// Ownership of every non-empty returned Response transfers to the
	// caller.
	Send(ctx context.Context, reqs [][]byte) ([]Response, error)

	// Release returns a response buffer to the transport. Safe on
	// BufferNone slots; must be called exactly once for everything else.
	Release(r *Response)
}

// StatusError reports the NT status of the first failed request in a
// transaction, along with its position.
type StatusError struct {
	// Status is the NT status code from the failing response header.
	Status types.Status

	// Slot is the index of the failing request within the batch.
	Slot int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("request %d failed with status 0x%08X", e.Slot, uint32(e.Status))
}
