package compound

import (
	"sync/atomic"

	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// ============================================================================
// Open Handles (external collaborator contract)
// ============================================================================

// Handle is a reference-counted open file or directory on the server.
//
// The engine consumes handles, it does not own them: when a caller (or
// a HandleSource lookup) supplies one, the engine skips the open/close
// fusion, acts on the handle's identifiers, and releases exactly one
// reference before returning. Do not reuse a Handle after passing it to
// an engine operation unless you hold another reference.
type Handle struct {
	// ID is the persistent/volatile identifier pair.
	ID types.FileID

	// SymlinkTarget is the previously-resolved link target when this
	// handle was opened through a reparse point, empty otherwise. Query
	// operations copy it into their result eagerly.
	SymlinkTarget string

	refs    atomic.Int32
	release func()
}

// NewHandle builds a handle with one reference. release, if non-nil,
// runs when the last reference is put.
func NewHandle(id types.FileID, symlinkTarget string, release func()) *Handle {
	h := &Handle{
		ID:            id,
		SymlinkTarget: symlinkTarget,
		release:       release,
	}
	h.refs.Store(1)
	return h
}

// Get takes an additional reference.
func (h *Handle) Get() *Handle {
	h.refs.Add(1)
	return h
}

// Put drops one reference, running the release hook on the last one.
func (h *Handle) Put() {
	if h.refs.Add(-1) == 0 && h.release != nil {
		h.release()
	}
}

// WritableFlags selects what kind of writable handle a lookup wants.
type WritableFlags uint8

const (
	// WritableAny accepts any writable handle.
	WritableAny WritableFlags = iota

	// WritableWithDelete requires the handle to have been opened with
	// delete access, as rename needs.
	WritableWithDelete
)

// HandleSource is the open-file table the engine consults before each
// operation for a reusable already-open handle.
//
// Both lookups return nil when no suitable handle is open; the engine
// then builds the open/close fusion instead. A returned handle carries
// a reference the engine will put.
type HandleSource interface {
	// Readable returns an open handle with read-attributes access for
	// the path, or nil.
	Readable(path string) *Handle

	// Writable returns an open handle with write access (and delete
	// access when flags demands it) for the path, or nil.
	Writable(path string, flags WritableFlags) *Handle
}
