package compound

import (
	"context"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/protocol/smb/codec"
	"github.com/marmos91/dittosmb/internal/protocol/smb/pdu"
	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// ============================================================================
// Public Operations
// ============================================================================

// QueryPathInfo retrieves the FILE_ALL_INFORMATION attribute block for
// path.
//
// For the share root the call is satisfied from the cached root handle
// when one exists: a valid pre-fetched snapshot is returned with zero
// network traffic, and an invalid one triggers a single non-compound
// query on the cached handle's identifiers instead of the full
// open/query/close fusion.
//
// When the path turns out to be a symbolic link, the query is retried
// exactly once against the reparse point itself and the result carries
// Reparse=true plus the resolved SymlinkTarget.
func (e *Engine) QueryPathInfo(ctx context.Context, path string) (*PathInfo, error) {
	if path == "" && e.dirs != nil {
		if info, ok, err := e.queryCachedRoot(ctx, path); ok {
			return info, err
		}
	}
	return e.queryPathInfo(ctx, path, KindQueryInfo)
}

// PosixQueryPathInfo retrieves the SMB3.1.1 POSIX information block for
// path. On a symlink failure the query is retried once against the
// reparse point; target recovery is best-effort and a recovery failure
// does not abort the retry.
func (e *Engine) PosixQueryPathInfo(ctx context.Context, path string) (*PathInfo, error) {
	return e.queryPathInfo(ctx, path, KindPosixQueryInfo)
}

// Mkdir creates a directory at path. mode is the POSIX create mode, or
// ACLNoMode when the server should apply its defaults.
func (e *Engine) Mkdir(ctx context.Context, path string, mode uint32) error {
	triple := kindDefaults[KindMkdir]
	return e.compound(ctx, path,
		triple.access, triple.disposition, triple.options, mode,
		KindMkdir, &opParams{}, nil, nil)
}

// MkdirSetInfo stamps DOS attributes onto a freshly created directory.
//
// The stamp is best-effort: the directory already exists, so a failure
// here only loses the attribute bits, not the directory. The error is
// logged and swallowed.
func (e *Engine) MkdirSetInfo(ctx context.Context, path string, attributes uint32) {
	basic := &types.FileBasicInfo{
		Attributes: attributes | types.AttrReadonly,
	}

	triple := kindDefaults[KindMkdir]
	err := e.compound(ctx, path,
		triple.access, triple.disposition, triple.options, types.ACLNoMode,
		KindSetInfo, &opParams{basic: basic},
		e.writableHandle(path, WritableAny), nil)
	if err != nil {
		logger.Debug("failed to set attributes 0x%X on new directory %q: %v",
			attributes, path, err)
	}
}

// Rmdir removes the directory at path. Any cached handle for the
// directory is invalidated first so the delete-pending marking cannot
// race a reuse of the doomed handle.
func (e *Engine) Rmdir(ctx context.Context, path string) error {
	if e.dirs != nil {
		e.dirs.DropByName(ctx, path)
	}

	triple := kindDefaults[KindRmdir]
	return e.compound(ctx, path,
		triple.access, triple.disposition, triple.options, types.ACLNoMode,
		KindRmdir, &opParams{}, nil, nil)
}

// Unlink removes the file at path via delete-on-close.
func (e *Engine) Unlink(ctx context.Context, path string) error {
	triple := kindDefaults[KindDelete]
	return e.compound(ctx, path,
		triple.access, triple.disposition, triple.options, types.ACLNoMode,
		KindDelete, &opParams{}, nil, nil)
}

// Rename moves from to to, replacing an existing destination. Cached
// handles under the old name are invalidated, and an already-open
// handle with delete access is reused when available.
func (e *Engine) Rename(ctx context.Context, from, to string) error {
	if e.dirs != nil {
		e.dirs.DropByName(ctx, from)
	}
	return e.renameLike(ctx, from, to, KindRename,
		e.writableHandle(from, WritableWithDelete))
}

// Hardlink creates a hard link at to pointing at from's file. An
// existing destination is not replaced.
func (e *Engine) Hardlink(ctx context.Context, from, to string) error {
	return e.renameLike(ctx, from, to, KindHardlink, nil)
}

// SetPathSize truncates or extends the file at path to size bytes.
func (e *Engine) SetPathSize(ctx context.Context, path string, size uint64) error {
	triple := kindDefaults[KindSetEOF]
	return e.compound(ctx, path,
		triple.access, triple.disposition, triple.options, types.ACLNoMode,
		KindSetEOF, &opParams{eof: size},
		e.writableHandle(path, WritableAny), nil)
}

// SetFileInfo updates the timestamps and DOS attributes of path from
// the non-zero fields of basic. A fully zero block is a no-op that
// touches neither the network nor any handle.
func (e *Engine) SetFileInfo(ctx context.Context, path string, basic *types.FileBasicInfo) error {
	if basic.IsZero() {
		return nil
	}

	triple := kindDefaults[KindSetInfo]
	return e.compound(ctx, path,
		triple.access, triple.disposition, triple.options, types.ACLNoMode,
		KindSetInfo, &opParams{basic: basic},
		e.writableHandle(path, WritableAny), nil)
}

// ============================================================================
// Query and rename internals
// ============================================================================

// queryPathInfo is the shared query driver: it runs the compound call
// and, on failure, consults the retry controller for the single symlink
// retry or an error remap. Diagnostics buffers captured for the
// controller are released before returning, on every path.
func (e *Engine) queryPathInfo(ctx context.Context, path string, kind Kind) (*PathInfo, error) {
	info := &PathInfo{}
	triple := kindDefaults[kind]
	createOptions := triple.options

	rc := &retryController{}
	diag := &Diagnostics{}
	defer diag.Release(e.conn.Transport())

	// First pass captures diagnostics for the controller; the retry
	// does not, since a second failure is final.
	capture := diag
	for {
		err := e.compound(ctx, path,
			triple.access, triple.disposition, createOptions, types.ACLNoMode,
			kind, &opParams{info: info},
			e.readableHandle(path), capture)
		if err == nil {
			return info, nil
		}

		action, remapped := rc.inspect(e, kind, err, diag, info)
		if action != actionRetrySymlink {
			return nil, remapped
		}

		logger.Debug("%s on %q hit a symlink, re-querying the reparse point", kind, path)
		e.metrics.RecordRetry(kind.String())
		createOptions |= types.OpenReparsePoint
		capture = nil
	}
}

// queryCachedRoot tries to satisfy a root query from the cached root
// handle. ok=false means no cached handle was available and the caller
// must fall through to the normal compound path.
func (e *Engine) queryCachedRoot(ctx context.Context, path string) (*PathInfo, bool, error) {
	cdir, err := e.dirs.OpenRoot(ctx, path)
	if err != nil {
		return nil, false, nil
	}
	defer cdir.Close()

	info := &PathInfo{}

	if snapshot, valid := cdir.AllInfo(); valid {
		info.All = *snapshot
		e.metrics.RecordCachedRootHit()
		return info, true, nil
	}

	// Stale snapshot: query on the cached handle's identifiers, still
	// skipping the open/close pair.
	if err := e.queryInfoByHandle(ctx, cdir.FileID(), info); err != nil {
		return nil, true, err
	}
	return info, true, nil
}

// queryInfoByHandle issues a single non-compound FILE_ALL_INFORMATION
// query against an already-open handle.
func (e *Engine) queryInfoByHandle(ctx context.Context, fid types.FileID, info *PathInfo) error {
	payload, err := pdu.EncodeQueryInfo(&pdu.QueryInfoParams{
		FileID:             fid,
		InfoType:           types.InfoFile,
		InfoClass:          types.FileAllInformation,
		OutputBufferLength: queryOutputLength,
	})
	if err != nil {
		return encodeError("query info request", err)
	}

	txn := &Transaction{}
	txn.slots[0] = requestSlot{tag: slotOperate, payload: payload}
	txn.count = 1

	responses, err := e.execute(ctx, txn)
	if err == nil {
		err = e.extractQueryPayload(KindQueryInfo, txn, responses, info)
	}

	t := e.conn.Transport()
	for i := range responses {
		t.Release(&responses[i])
	}
	return err
}

// renameLike drives the rename and hardlink kinds, which share the
// two-part SET_INFO payload differing only in info class and the
// replace-if-exists bit.
func (e *Engine) renameLike(ctx context.Context, from, to string, kind Kind, h *Handle) error {
	target, err := codec.EncodePath(to)
	if err != nil {
		if h != nil {
			h.Put()
		}
		return encodeError("target path", err)
	}

	triple := kindDefaults[kind]
	return e.compound(ctx, from,
		triple.access, triple.disposition, triple.options, types.ACLNoMode,
		kind, &opParams{target: target}, h, nil)
}

// readableHandle consults the open-file table for a readable handle.
func (e *Engine) readableHandle(path string) *Handle {
	if e.files == nil {
		return nil
	}
	return e.files.Readable(path)
}

// writableHandle consults the open-file table for a writable handle.
func (e *Engine) writableHandle(path string, flags WritableFlags) *Handle {
	if e.files == nil {
		return nil
	}
	return e.files.Writable(path, flags)
}
