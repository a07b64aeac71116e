package compound

import (
	"github.com/marmos91/dittosmb/internal/protocol/smb/transport"
)

// ============================================================================
// Request Slot Array
// ============================================================================

// MaxSlots is the fixed capacity of a transaction: at most an open, one
// operate request and a close travel together.
const MaxSlots = 3

// slotTag identifies the role of a populated request slot.
type slotTag uint8

const (
	slotEmpty slotTag = iota
	slotOpen
	slotOperate
	slotClose
)

// requestSlot is one element of the transaction's ordered request
// sequence: an encoded packet and its chaining mark.
type requestSlot struct {
	tag slotTag

	// payload is the complete encoded packet, owned by this slot from
	// the moment its encoder populated it until the transaction is torn
	// down.
	payload []byte

	// related marks the packet as sharing session context and handle
	// with its predecessor, making the transport execute it as part of
	// the same atomic transaction. The flag is already patched onto the
	// payload's header when set.
	related bool
}

// Transaction is the populated prefix of the slot array for one logical
// operation, alive only for the duration of a single call (plus at most
// one retry, which builds a fresh Transaction).
type Transaction struct {
	slots [MaxSlots]requestSlot
	count int

	// ownsOpen records whether the transaction was synthesized as a
	// create+act+close fusion. When false a caller-supplied handle is
	// in use and only the operate slots travel.
	ownsOpen bool
}

// requests returns the encoded packets to hand to the transport, in
// slot order. With a caller-supplied handle the open and close slots
// were never populated, so this is exactly the operate sub-range.
func (t *Transaction) requests() [][]byte {
	reqs := make([][]byte, 0, t.count)
	for i := 0; i < t.count; i++ {
		reqs = append(reqs, t.slots[i].payload)
	}
	return reqs
}

// operateIndex is the response index of the kind's own operate slot:
// right after the open when the transaction owns one, first otherwise.
func (t *Transaction) operateIndex() int {
	if t.ownsOpen {
		return 1
	}
	return 0
}

// ============================================================================
// Diagnostics
// ============================================================================

// Diagnostics receives the raw response buffers of a failed transaction
// when the caller asked for them.
//
// Ownership: on failure the engine moves every response buffer into the
// Diagnostics verbatim, provenance included, and forgets its own
// references. The holder must release the buffers exactly once via
// Release. On success Diagnostics stays empty and there is nothing to
// release (Release is still safe to call).
type Diagnostics struct {
	// Responses holds the raw per-slot responses, parallel to the sent
	// request slots.
	Responses [MaxSlots]transport.Response
}

// Release returns every held buffer to the transport and empties the
// Diagnostics. Safe to call on an empty Diagnostics and safe to call
// after a previous Release; each buffer is released at most once.
func (d *Diagnostics) Release(t transport.Transport) {
	if d == nil {
		return
	}
	for i := range d.Responses {
		t.Release(&d.Responses[i])
	}
}

// take moves the given responses into the Diagnostics, transferring
// ownership away from the caller's slice.
func (d *Diagnostics) take(responses []transport.Response) {
	for i := range responses {
		if i >= MaxSlots {
			break
		}
		d.Responses[i] = responses[i]
		responses[i] = transport.Response{}
	}
}
