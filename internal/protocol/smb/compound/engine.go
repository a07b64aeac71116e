// Package compound implements the compound-operation engine of the
// DittoSMB client: it turns a single logical filesystem action (query
// attributes, create or remove a directory, delete, rename, hardlink,
// truncate, set metadata) into a chain of SMB2 requests sent as one
// atomic wire transaction, and interprets the chained responses -
// including partial failure, symlink redirection and referral fallback -
// back into a filesystem-level result.
//
// When no handle is already open for the target path, the engine fuses
// an implicit open, the operation itself and a close into a single
// round trip, using the compound placeholder FileID to refer to the
// handle the chain's own CREATE produces. When a caller-supplied handle
// exists, the open/close pair is skipped entirely and only the
// operation travels.
//
// Every operation call is synchronous and self-contained: the slot
// array, encoded packets and response buffers live for one call (plus
// at most one symlink-driven retry) and are torn down on every exit
// path.
package compound

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/dittosmb/internal/protocol/smb/transport"
	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
	"github.com/marmos91/dittosmb/pkg/metrics"
)

// PathInfo is the result of a QueryPathInfo/PosixQueryPathInfo call.
type PathInfo struct {
	// All is the FILE_ALL_INFORMATION attribute block. Populated by
	// KindQueryInfo.
	All types.FileAllInfo

	// Posix is the SMB3.1.1 POSIX attribute block. Populated by
	// KindPosixQueryInfo.
	Posix types.PosixInfo

	// SymlinkTarget is the resolved link target when the path turned
	// out to be (or was opened through) a symbolic link.
	SymlinkTarget string

	// AdjustTZ reports that the server's timestamps need timezone
	// adjustment. Always false on SMB2+ servers; retained for parity
	// with the query result contract.
	AdjustTZ bool

	// Reparse reports that the path is a reparse point and the
	// attributes describe the reparse point itself.
	Reparse bool
}

// opParams carries the kind-specific inputs and outputs of a single
// compound call. Exactly the fields the Kind consumes are set.
type opParams struct {
	// info receives query results (query kinds only).
	info *PathInfo

	// target is the UTF-16LE encoded rename/hardlink destination.
	target []byte

	// eof is the new end-of-file position for KindSetEOF.
	eof uint64

	// basic is the attribute block for KindSetInfo.
	basic *types.FileBasicInfo
}

// Engine builds, sends and interprets compound transactions on one
// connection.
//
// An Engine is safe for concurrent use; each call owns all of its
// per-call state and the only shared mutable state it touches is the
// connection's sticky needs-reconnect flag.
type Engine struct {
	conn    *transport.Conn
	dirs    DirCache
	files   HandleSource
	metrics metrics.CompoundMetrics

	// shareDeletedWarn gates the deleted-share warning to one line per
	// engine; the condition repeats on every call until reconnection.
	shareDeletedWarn sync.Once
}

// Option customizes an Engine at construction time.
type Option func(*Engine)

// WithDirCache attaches the cached-directory-handle subsystem, enabling
// the root-query shortcut and cached-handle invalidation.
func WithDirCache(dirs DirCache) Option {
	return func(e *Engine) { e.dirs = dirs }
}

// WithHandleSource attaches the open-file table consulted for reusable
// handles before each operation.
func WithHandleSource(files HandleSource) Option {
	return func(e *Engine) { e.files = files }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m metrics.CompoundMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine on the given connection.
func New(conn *transport.Conn, opts ...Option) *Engine {
	e := &Engine{
		conn:    conn,
		metrics: metrics.NewNoopCompoundMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Conn returns the connection the engine operates on.
func (e *Engine) Conn() *transport.Conn { return e.conn }

// compound runs one complete transaction: build, execute, interpret,
// tear down.
//
// If h is non-nil the reference it carries is put before returning;
// do not reuse h afterwards. If diag is non-nil and the transaction
// fails, the raw response buffers are moved into it and the caller owns
// their release.
func (e *Engine) compound(
	ctx context.Context,
	path string,
	access, disposition, createOptions, mode uint32,
	kind Kind,
	params *opParams,
	h *Handle,
	diag *Diagnostics,
) error {
	start := time.Now()

	var symlinkTarget string
	if h != nil {
		symlinkTarget = h.SymlinkTarget
	}

	txn, err := e.build(path, access, disposition, createOptions, mode, kind, params, h)
	if err != nil {
		if h != nil {
			h.Put()
		}
		e.metrics.RecordOperation(kind.String(), time.Since(start), err)
		return err
	}

	responses, execErr := e.execute(ctx, txn)

	// The engine holds the handle only for the duration of the send;
	// its identifiers are baked into the encoded requests already.
	if h != nil {
		h.Put()
	}

	err = e.interpret(kind, txn, responses, execErr, params, symlinkTarget, diag)
	e.metrics.RecordOperation(kind.String(), time.Since(start), err)
	return err
}
