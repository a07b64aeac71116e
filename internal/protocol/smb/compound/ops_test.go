package compound

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/protocol/smb/codec"
	"github.com/marmos91/dittosmb/internal/protocol/smb/transport"
	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// queryInfoFileIDOffset is where the handle pair sits in a QUERY_INFO
// request packet, header included.
const queryInfoFileIDOffset = types.HeaderSize + 24

func sampleAllInfo() *types.FileAllInfo {
	return &types.FileAllInfo{
		CreationTime:   131000000000000000,
		LastWriteTime:  131000000100000000,
		Attributes:     types.AttrArchive,
		AllocationSize: 8192,
		EndOfFile:      4242,
		NumberOfLinks:  2,
		IndexNumber:    777,
	}
}

func TestQueryPathInfo(t *testing.T) {
	t.Run("success decodes the attribute block", func(t *testing.T) {
		fi := sampleAllInfo()
		ft := newFakeTransport(t, querySuccess(t, fi))
		e := newTestEngine(ft)

		info, err := e.QueryPathInfo(context.Background(), "dir/file.txt")
		require.NoError(t, err)
		assert.Equal(t, *fi, info.All)
		assert.False(t, info.Reparse)
		assert.Empty(t, info.SymlinkTarget)

		require.Len(t, ft.batches, 1)
		require.Len(t, ft.batches[0], 3)
		ft.requireBalanced(t)
	})

	t.Run("symlink failure is retried once against the reparse point", func(t *testing.T) {
		fi := sampleAllInfo()
		ft := newFakeTransport(t,
			sendResult{
				responses: []transport.Response{
					pooled(symlinkPacket(t, "real/target", codec.SymlinkFlagRelative)),
					emptyResponse(),
					emptyResponse(),
				},
				err: &transport.StatusError{Status: types.StatusStoppedOnSymlink, Slot: 0},
			},
			querySuccess(t, fi),
		)
		e := newTestEngine(ft)

		info, err := e.QueryPathInfo(context.Background(), "link.txt")
		require.NoError(t, err)
		assert.True(t, info.Reparse)
		assert.Equal(t, "real/target", info.SymlinkTarget)
		assert.Equal(t, *fi, info.All)

		require.Len(t, ft.batches, 2)
		retryCreate := ft.batches[1][0]
		requireCommand(t, retryCreate, types.CmdCreate)
		options := binary.LittleEndian.Uint32(retryCreate[createOptionsOffset:])
		assert.NotZero(t, options&types.OpenReparsePoint,
			"retry must open the reparse point itself")
		ft.requireBalanced(t)
	})

	t.Run("a failure on the retry is final", func(t *testing.T) {
		symlinkFailure := func() sendResult {
			return sendResult{
				responses: []transport.Response{
					pooled(symlinkPacket(t, "real/target", codec.SymlinkFlagRelative)),
					emptyResponse(),
					emptyResponse(),
				},
				err: &transport.StatusError{Status: types.StatusStoppedOnSymlink, Slot: 0},
			}
		}
		ft := newFakeTransport(t, symlinkFailure(), symlinkFailure())
		e := newTestEngine(ft)

		_, err := e.QueryPathInfo(context.Background(), "link.txt")
		require.Error(t, err)
		assert.True(t, IsCode(err, ErrNotSupported))

		require.Len(t, ft.batches, 2, "exactly one retry, never more")
		ft.requireBalanced(t)
	})

	t.Run("malformed symlink payload aborts the retry", func(t *testing.T) {
		// Status says symlink but the body carries no symlink payload.
		ft := newFakeTransport(t, sendResult{
			responses: []transport.Response{
				pooled(statusPacket(t, types.CmdCreate, types.StatusStoppedOnSymlink)),
				emptyResponse(),
				emptyResponse(),
			},
			err: &transport.StatusError{Status: types.StatusStoppedOnSymlink, Slot: 0},
		})
		e := newTestEngine(ft)

		_, err := e.QueryPathInfo(context.Background(), "link.txt")
		require.Error(t, err)
		assert.True(t, IsCode(err, ErrStructural))
		require.Len(t, ft.batches, 1)
		ft.requireBalanced(t)
	})

	t.Run("referral without DFS resolution reads as unsupported", func(t *testing.T) {
		ft := newFakeTransport(t, sendResult{
			responses: []transport.Response{
				pooled(statusPacket(t, types.CmdCreate, types.StatusPathNotCovered)),
				emptyResponse(),
				emptyResponse(),
			},
			err: &transport.StatusError{Status: types.StatusPathNotCovered, Slot: 0},
		})
		e := newTestEngine(ft)

		_, err := e.QueryPathInfo(context.Background(), "dfs/link")
		require.Error(t, err)
		assert.True(t, IsCode(err, ErrNotSupported))
		ft.requireBalanced(t)
	})

	t.Run("referral with DFS resolution surfaces as referral", func(t *testing.T) {
		ft := newFakeTransport(t, sendResult{
			responses: []transport.Response{
				pooled(statusPacket(t, types.CmdCreate, types.StatusPathNotCovered)),
				emptyResponse(),
				emptyResponse(),
			},
			err: &transport.StatusError{Status: types.StatusPathNotCovered, Slot: 0},
		})
		conn := transport.NewConn(ft, `\\server\share`, transport.WithDFSSupport(true))
		e := New(conn)

		_, err := e.QueryPathInfo(context.Background(), "dfs/link")
		require.Error(t, err)
		assert.True(t, IsCode(err, ErrReferral))
		ft.requireBalanced(t)
	})

	t.Run("invalid name on a DFS-capable server is remapped to referral", func(t *testing.T) {
		ft := newFakeTransport(t, sendResult{
			responses: []transport.Response{
				pooled(statusPacket(t, types.CmdCreate, types.StatusObjectNameInvalid)),
				emptyResponse(),
				emptyResponse(),
			},
			err: &transport.StatusError{Status: types.StatusObjectNameInvalid, Slot: 0},
		})
		conn := transport.NewConn(ft, `\\server\share`, transport.WithDFSSupport(true))
		e := New(conn)

		_, err := e.QueryPathInfo(context.Background(), "dfs/łink")
		require.Error(t, err)
		assert.True(t, IsCode(err, ErrReferral))
		ft.requireBalanced(t)
	})

	t.Run("share deleted marks the connection for reconnect", func(t *testing.T) {
		ft := newFakeTransport(t, sendResult{
			responses: []transport.Response{
				pooled(statusPacket(t, types.CmdCreate, types.StatusNetworkNameDeleted)),
				emptyResponse(),
				emptyResponse(),
			},
			err: &transport.StatusError{Status: types.StatusNetworkNameDeleted, Slot: 0},
		})
		e := newTestEngine(ft)

		require.False(t, e.Conn().NeedsReconnect())
		_, err := e.QueryPathInfo(context.Background(), "gone.txt")
		require.Error(t, err)
		assert.True(t, IsCode(err, ErrReconnect))
		assert.True(t, e.Conn().NeedsReconnect())
		ft.requireBalanced(t)
	})

	t.Run("handle symlink target survives a successful re-query", func(t *testing.T) {
		fi := sampleAllInfo()
		ft := newFakeTransport(t, sendResult{responses: []transport.Response{
			pooled(allInfoPacket(t, fi)),
		}})
		e := newTestEngine(ft, WithHandleSource(&fakeHandleSource{
			path: "link.txt",
			handle: NewHandle(
				types.FileID{Persistent: 1, Volatile: 2}, "old/target", nil),
		}))

		info, err := e.QueryPathInfo(context.Background(), "link.txt")
		require.NoError(t, err)
		assert.Equal(t, "old/target", info.SymlinkTarget)
		assert.Equal(t, *fi, info.All)
		// With a reusable handle only the query itself travels.
		require.Len(t, ft.batches, 1)
		require.Len(t, ft.batches[0], 1)
		ft.requireBalanced(t)
	})
}

func TestQueryPathInfoCachedRoot(t *testing.T) {
	rootID := types.FileID{Persistent: 0xAB, Volatile: 0xCD}

	t.Run("valid snapshot answers with zero network traffic", func(t *testing.T) {
		fi := sampleAllInfo()
		closed := false
		ft := newFakeTransport(t)
		e := newTestEngine(ft, WithDirCache(&fakeDirCache{
			root: NewCachedDir(rootID, fi, func() { closed = true }),
		}))

		info, err := e.QueryPathInfo(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, *fi, info.All)
		assert.Empty(t, ft.batches, "snapshot hit must not touch the network")
		assert.True(t, closed, "cached handle reference must be dropped")
	})

	t.Run("stale snapshot queries on the cached handle", func(t *testing.T) {
		fi := sampleAllInfo()
		closed := false
		ft := newFakeTransport(t, sendResult{responses: []transport.Response{
			pooled(allInfoPacket(t, fi)),
		}})
		e := newTestEngine(ft, WithDirCache(&fakeDirCache{
			root: NewCachedDir(rootID, nil, func() { closed = true }),
		}))

		info, err := e.QueryPathInfo(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, *fi, info.All)
		assert.True(t, closed)

		require.Len(t, ft.batches, 1)
		require.Len(t, ft.batches[0], 1, "no open/close around the cached handle")
		req := ft.batches[0][0]
		requireCommand(t, req, types.CmdQueryInfo)
		assert.Equal(t, rootID.Persistent, binary.LittleEndian.Uint64(req[queryInfoFileIDOffset:]))
		assert.Equal(t, rootID.Volatile, binary.LittleEndian.Uint64(req[queryInfoFileIDOffset+8:]))
		ft.requireBalanced(t)
	})

	t.Run("cache miss falls through to the compound path", func(t *testing.T) {
		fi := sampleAllInfo()
		ft := newFakeTransport(t, querySuccess(t, fi))
		e := newTestEngine(ft, WithDirCache(&fakeDirCache{
			openErr: context.DeadlineExceeded,
		}))

		info, err := e.QueryPathInfo(context.Background(), "")
		require.NoError(t, err)
		assert.Equal(t, *fi, info.All)
		require.Len(t, ft.batches, 1)
		require.Len(t, ft.batches[0], 3)
		ft.requireBalanced(t)
	})
}

func TestPosixQueryPathInfo(t *testing.T) {
	samplePosix := func() *types.PosixInfo {
		return &types.PosixInfo{
			EndOfFile:     1234,
			DosAttributes: types.AttrNormal,
			Inode:         99,
			HardLinks:     3,
			Mode:          0o644,
		}
	}

	t.Run("success decodes the posix block", func(t *testing.T) {
		pi := samplePosix()
		ft := newFakeTransport(t, sendResult{responses: []transport.Response{
			pooled(statusPacket(t, types.CmdCreate, types.StatusSuccess)),
			pooled(posixInfoPacket(t, pi)),
			pooled(statusPacket(t, types.CmdClose, types.StatusSuccess)),
		}})
		e := newTestEngine(ft)

		info, err := e.PosixQueryPathInfo(context.Background(), "file.txt")
		require.NoError(t, err)
		assert.Equal(t, *pi, info.Posix)
		ft.requireBalanced(t)
	})

	t.Run("unsupported failure retries even without a symlink payload", func(t *testing.T) {
		pi := samplePosix()
		ft := newFakeTransport(t,
			sendResult{
				responses: []transport.Response{
					pooled(statusPacket(t, types.CmdCreate, types.StatusNotSupported)),
					emptyResponse(),
					emptyResponse(),
				},
				err: &transport.StatusError{Status: types.StatusNotSupported, Slot: 0},
			},
			sendResult{responses: []transport.Response{
				pooled(statusPacket(t, types.CmdCreate, types.StatusSuccess)),
				pooled(posixInfoPacket(t, pi)),
				pooled(statusPacket(t, types.CmdClose, types.StatusSuccess)),
			}},
		)
		e := newTestEngine(ft)

		info, err := e.PosixQueryPathInfo(context.Background(), "maybe-link")
		require.NoError(t, err)
		assert.True(t, info.Reparse)
		assert.Empty(t, info.SymlinkTarget, "no target recoverable, retry proceeds anyway")
		assert.Equal(t, *pi, info.Posix)

		require.Len(t, ft.batches, 2)
		retryCreate := ft.batches[1][0]
		options := binary.LittleEndian.Uint32(retryCreate[createOptionsOffset:])
		assert.NotZero(t, options&types.OpenReparsePoint)
		ft.requireBalanced(t)
	})

	t.Run("symlink failure recovers the target", func(t *testing.T) {
		pi := samplePosix()
		ft := newFakeTransport(t,
			sendResult{
				responses: []transport.Response{
					pooled(symlinkPacket(t, "else/where", codec.SymlinkFlagRelative)),
					emptyResponse(),
					emptyResponse(),
				},
				err: &transport.StatusError{Status: types.StatusStoppedOnSymlink, Slot: 0},
			},
			sendResult{responses: []transport.Response{
				pooled(statusPacket(t, types.CmdCreate, types.StatusSuccess)),
				pooled(posixInfoPacket(t, pi)),
				pooled(statusPacket(t, types.CmdClose, types.StatusSuccess)),
			}},
		)
		e := newTestEngine(ft)

		info, err := e.PosixQueryPathInfo(context.Background(), "link")
		require.NoError(t, err)
		assert.True(t, info.Reparse)
		assert.Equal(t, "else/where", info.SymlinkTarget)
		ft.requireBalanced(t)
	})
}

func TestMutationOps(t *testing.T) {
	twoSlotSuccess := func() sendResult {
		return sendResult{responses: []transport.Response{
			pooled(statusPacket(t, types.CmdCreate, types.StatusSuccess)),
			pooled(statusPacket(t, types.CmdClose, types.StatusSuccess)),
		}}
	}
	threeSlotSuccess := func(middle types.Command) sendResult {
		return sendResult{responses: []transport.Response{
			pooled(statusPacket(t, types.CmdCreate, types.StatusSuccess)),
			pooled(statusPacket(t, middle, types.StatusSuccess)),
			pooled(statusPacket(t, types.CmdClose, types.StatusSuccess)),
		}}
	}

	t.Run("unlink compounds create and close only", func(t *testing.T) {
		ft := newFakeTransport(t, twoSlotSuccess())
		e := newTestEngine(ft)

		require.NoError(t, e.Unlink(context.Background(), "doomed.txt"))
		require.Len(t, ft.batches, 1)
		require.Len(t, ft.batches[0], 2)
		requireCommand(t, ft.batches[0][0], types.CmdCreate)
		requireCommand(t, ft.batches[0][1], types.CmdClose)
		ft.requireBalanced(t)
	})

	t.Run("mkdir compounds create and close only", func(t *testing.T) {
		ft := newFakeTransport(t, twoSlotSuccess())
		e := newTestEngine(ft)

		require.NoError(t, e.Mkdir(context.Background(), "newdir", 0o755))
		require.Len(t, ft.batches[0], 2)
		ft.requireBalanced(t)
	})

	t.Run("rmdir invalidates the cached handle first", func(t *testing.T) {
		ft := newFakeTransport(t, threeSlotSuccess(types.CmdSetInfo))
		dirs := &fakeDirCache{}
		e := newTestEngine(ft, WithDirCache(dirs))

		require.NoError(t, e.Rmdir(context.Background(), "olddir"))
		assert.Equal(t, []string{"olddir"}, dirs.dropped)
		require.Len(t, ft.batches[0], 3)
		ft.requireBalanced(t)
	})

	t.Run("rename compounds three slots and drops the cached name", func(t *testing.T) {
		ft := newFakeTransport(t, threeSlotSuccess(types.CmdSetInfo))
		dirs := &fakeDirCache{}
		files := &fakeHandleSource{}
		e := newTestEngine(ft, WithDirCache(dirs), WithHandleSource(files))

		require.NoError(t, e.Rename(context.Background(), "old.txt", "new.txt"))
		assert.Equal(t, []string{"old.txt"}, dirs.dropped)
		assert.Equal(t, WritableWithDelete, files.lastFlags,
			"rename needs a handle opened with delete access")

		require.Len(t, ft.batches[0], 3)
		requireCommand(t, ft.batches[0][1], types.CmdSetInfo)
		ft.requireBalanced(t)
	})

	t.Run("rename with an open handle sends only the set info", func(t *testing.T) {
		released := false
		ft := newFakeTransport(t, sendResult{responses: []transport.Response{
			pooled(statusPacket(t, types.CmdSetInfo, types.StatusSuccess)),
		}})
		e := newTestEngine(ft, WithHandleSource(&fakeHandleSource{
			path: "old.txt",
			handle: NewHandle(
				types.FileID{Persistent: 5, Volatile: 6}, "", func() { released = true }),
		}))

		require.NoError(t, e.Rename(context.Background(), "old.txt", "new.txt"))
		require.Len(t, ft.batches[0], 1)
		requireCommand(t, ft.batches[0][0], types.CmdSetInfo)
		assert.True(t, released, "engine must put the borrowed reference")
		ft.requireBalanced(t)
	})

	t.Run("rename releases the handle when the target cannot be encoded", func(t *testing.T) {
		released := false
		ft := newFakeTransport(t)
		e := newTestEngine(ft, WithHandleSource(&fakeHandleSource{
			path: "old.txt",
			handle: NewHandle(
				types.FileID{Persistent: 5, Volatile: 6}, "", func() { released = true }),
		}))

		long := make([]byte, types.MaxPath)
		for i := range long {
			long[i] = 'x'
		}
		err := e.Rename(context.Background(), "old.txt", string(long))
		require.Error(t, err)
		assert.True(t, IsCode(err, ErrEncode))
		assert.True(t, released)
		assert.Empty(t, ft.batches)
	})

	t.Run("hardlink compounds three slots without a handle lookup", func(t *testing.T) {
		ft := newFakeTransport(t, threeSlotSuccess(types.CmdSetInfo))
		e := newTestEngine(ft)

		require.NoError(t, e.Hardlink(context.Background(), "src.txt", "link.txt"))
		require.Len(t, ft.batches[0], 3)
		ft.requireBalanced(t)
	})

	t.Run("set path size travels as set info", func(t *testing.T) {
		ft := newFakeTransport(t, threeSlotSuccess(types.CmdSetInfo))
		e := newTestEngine(ft)

		require.NoError(t, e.SetPathSize(context.Background(), "file.txt", 1<<20))
		require.Len(t, ft.batches[0], 3)
		ft.requireBalanced(t)
	})

	t.Run("set file info with a zero block is a silent no-op", func(t *testing.T) {
		ft := newFakeTransport(t)
		e := newTestEngine(ft)

		require.NoError(t, e.SetFileInfo(context.Background(), "file.txt",
			&types.FileBasicInfo{}))
		assert.Empty(t, ft.batches, "zero block must not touch the network")
	})

	t.Run("set file info sends non-zero blocks", func(t *testing.T) {
		ft := newFakeTransport(t, threeSlotSuccess(types.CmdSetInfo))
		e := newTestEngine(ft)

		require.NoError(t, e.SetFileInfo(context.Background(), "file.txt",
			&types.FileBasicInfo{Attributes: types.AttrHidden}))
		require.Len(t, ft.batches[0], 3)
		ft.requireBalanced(t)
	})

	t.Run("mkdir set info swallows failures", func(t *testing.T) {
		ft := newFakeTransport(t, sendResult{
			responses: []transport.Response{
				pooled(statusPacket(t, types.CmdCreate, types.StatusObjectNameNotFound)),
				emptyResponse(),
				emptyResponse(),
			},
			err: &transport.StatusError{Status: types.StatusObjectNameNotFound, Slot: 0},
		})
		e := newTestEngine(ft)

		e.MkdirSetInfo(context.Background(), "newdir", types.AttrHidden)
		require.Len(t, ft.batches, 1)
		ft.requireBalanced(t)
	})

	t.Run("missing path surfaces as not found", func(t *testing.T) {
		ft := newFakeTransport(t, sendResult{
			responses: []transport.Response{
				pooled(statusPacket(t, types.CmdCreate, types.StatusObjectNameNotFound)),
				emptyResponse(),
			},
			err: &transport.StatusError{Status: types.StatusObjectNameNotFound, Slot: 0},
		})
		e := newTestEngine(ft)

		err := e.Unlink(context.Background(), "missing.txt")
		require.Error(t, err)
		assert.True(t, IsCode(err, ErrNotFound))
		ft.requireBalanced(t)
	})
}
