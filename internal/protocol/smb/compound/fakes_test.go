package compound

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/protocol/smb/codec"
	"github.com/marmos91/dittosmb/internal/protocol/smb/pdu"
	"github.com/marmos91/dittosmb/internal/protocol/smb/transport"
	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// ============================================================================
// Test Fakes
// ============================================================================

// sendResult scripts one Send call of the fake transport.
type sendResult struct {
	responses []transport.Response
	err       error
}

// fakeTransport plays the server side from a script and accounts every
// buffer it hands out against every buffer released back.
type fakeTransport struct {
	t       *testing.T
	script  []sendResult
	batches [][][]byte

	allocated int
	released  int
}

func newFakeTransport(t *testing.T, script ...sendResult) *fakeTransport {
	return &fakeTransport{t: t, script: script}
}

func (f *fakeTransport) Send(_ context.Context, reqs [][]byte) ([]transport.Response, error) {
	batch := make([][]byte, len(reqs))
	copy(batch, reqs)
	f.batches = append(f.batches, batch)

	require.NotEmpty(f.t, f.script, "unscripted Send call")
	next := f.script[0]
	f.script = f.script[1:]

	responses := make([]transport.Response, len(next.responses))
	copy(responses, next.responses)
	for i := range responses {
		if responses[i].Kind != transport.BufferNone {
			f.allocated++
		}
	}
	return responses, next.err
}

func (f *fakeTransport) Release(r *transport.Response) {
	if r == nil || r.Kind == transport.BufferNone {
		return
	}
	f.released++
	*r = transport.Response{}
}

// requireBalanced asserts every handed-out buffer was released exactly once.
func (f *fakeTransport) requireBalanced(t *testing.T) {
	t.Helper()
	require.Equal(t, f.allocated, f.released, "response buffer accounting")
}

// fakeHandleSource serves a single pre-opened handle for one path, then
// runs dry. It records the flags of the last writable lookup.
type fakeHandleSource struct {
	path      string
	handle    *Handle
	lastFlags WritableFlags
}

func (f *fakeHandleSource) Readable(path string) *Handle {
	if f.handle != nil && path == f.path {
		h := f.handle
		f.handle = nil
		return h
	}
	return nil
}

func (f *fakeHandleSource) Writable(path string, flags WritableFlags) *Handle {
	f.lastFlags = flags
	return f.Readable(path)
}

// fakeDirCache serves one cached root handle and records invalidations.
type fakeDirCache struct {
	root    *CachedDir
	openErr error
	opens   int
	dropped []string
}

func (f *fakeDirCache) OpenRoot(_ context.Context, path string) (*CachedDir, error) {
	f.opens++
	if f.openErr != nil {
		return nil, f.openErr
	}
	if path != "" {
		return nil, f.openErr
	}
	return f.root, nil
}

func (f *fakeDirCache) DropByName(_ context.Context, path string) {
	f.dropped = append(f.dropped, path)
}

// ============================================================================
// Packet Builders
// ============================================================================

func pooled(buf []byte) transport.Response {
	return transport.Response{Buf: buf, Kind: transport.BufferPooled}
}

func emptyResponse() transport.Response {
	return transport.Response{}
}

func statusPacket(t *testing.T, cmd types.Command, status types.Status) []byte {
	t.Helper()
	buf, err := pdu.EncodeStatusResponse(cmd, status)
	require.NoError(t, err)
	return buf
}

func allInfoPacket(t *testing.T, fi *types.FileAllInfo) []byte {
	t.Helper()
	payload := new(bytes.Buffer)
	require.NoError(t, codec.EncodeFileAllInfo(payload, fi))
	buf, err := pdu.EncodeQueryInfoResponse(payload.Bytes())
	require.NoError(t, err)
	return buf
}

func posixInfoPacket(t *testing.T, pi *types.PosixInfo) []byte {
	t.Helper()
	payload := new(bytes.Buffer)
	require.NoError(t, codec.EncodePosixInfo(payload, pi))
	buf, err := pdu.EncodeQueryInfoResponse(payload.Bytes())
	require.NoError(t, err)
	return buf
}

func symlinkPacket(t *testing.T, target string, flags uint32) []byte {
	t.Helper()
	buf, err := codec.EncodeSymlinkErrorResponse(target, flags)
	require.NoError(t, err)
	return buf
}

// querySuccess scripts the full create+query+close success exchange.
func querySuccess(t *testing.T, fi *types.FileAllInfo) sendResult {
	t.Helper()
	return sendResult{responses: []transport.Response{
		pooled(statusPacket(t, types.CmdCreate, types.StatusSuccess)),
		pooled(allInfoPacket(t, fi)),
		pooled(statusPacket(t, types.CmdClose, types.StatusSuccess)),
	}}
}

// requireCommand asserts the packet's header carries the given command.
func requireCommand(t *testing.T, packet []byte, cmd types.Command) *types.Header {
	t.Helper()
	hdr, err := codec.ParseHeader(packet)
	require.NoError(t, err)
	require.Equal(t, cmd, hdr.Command)
	return hdr
}

// requireRelated asserts the related-operations chaining flag state.
func requireRelated(t *testing.T, packet []byte, related bool) {
	t.Helper()
	hdr, err := codec.ParseHeader(packet)
	require.NoError(t, err)
	require.Equal(t, related, hdr.Flags&types.FlagRelatedOperations != 0)
}

func newTestEngine(ft *fakeTransport, opts ...Option) *Engine {
	conn := transport.NewConn(ft, `\\server\share`)
	return New(conn, opts...)
}
