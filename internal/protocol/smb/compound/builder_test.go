package compound

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// Body field offsets within complete encoded packets, header included.
const (
	createDesiredAccessOffset = types.HeaderSize + 24
	createDispositionOffset   = types.HeaderSize + 36
	createOptionsOffset       = types.HeaderSize + 40
	setInfoFileIDOffset       = types.HeaderSize + 16
)

func TestBuildOwnedOpen(t *testing.T) {
	e := newTestEngine(newFakeTransport(t))

	tests := []struct {
		name     string
		kind     Kind
		params   *opParams
		commands []types.Command
	}{
		{
			name:     "query wraps the info request in create and close",
			kind:     KindQueryInfo,
			params:   &opParams{info: &PathInfo{}},
			commands: []types.Command{types.CmdCreate, types.CmdQueryInfo, types.CmdClose},
		},
		{
			name:     "posix query wraps the info request in create and close",
			kind:     KindPosixQueryInfo,
			params:   &opParams{info: &PathInfo{}},
			commands: []types.Command{types.CmdCreate, types.CmdQueryInfo, types.CmdClose},
		},
		{
			name:     "delete rides entirely on the open",
			kind:     KindDelete,
			params:   &opParams{},
			commands: []types.Command{types.CmdCreate, types.CmdClose},
		},
		{
			name:     "mkdir rides entirely on the open",
			kind:     KindMkdir,
			params:   &opParams{},
			commands: []types.Command{types.CmdCreate, types.CmdClose},
		},
		{
			name:     "rmdir marks delete pending between open and close",
			kind:     KindRmdir,
			params:   &opParams{},
			commands: []types.Command{types.CmdCreate, types.CmdSetInfo, types.CmdClose},
		},
		{
			name:     "set eof travels as set info",
			kind:     KindSetEOF,
			params:   &opParams{eof: 4096},
			commands: []types.Command{types.CmdCreate, types.CmdSetInfo, types.CmdClose},
		},
		{
			name:     "rename travels as set info",
			kind:     KindRename,
			params:   &opParams{target: []byte{'n', 0}},
			commands: []types.Command{types.CmdCreate, types.CmdSetInfo, types.CmdClose},
		},
		{
			name:     "hardlink travels as set info",
			kind:     KindHardlink,
			params:   &opParams{target: []byte{'n', 0}},
			commands: []types.Command{types.CmdCreate, types.CmdSetInfo, types.CmdClose},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			triple := kindDefaults[tt.kind]
			txn, err := e.build("dir/file.txt",
				triple.access, triple.disposition, triple.options, types.ACLNoMode,
				tt.kind, tt.params, nil)
			require.NoError(t, err)
			require.True(t, txn.ownsOpen)
			require.Equal(t, len(tt.commands), txn.count)

			reqs := txn.requests()
			for i, cmd := range tt.commands {
				requireCommand(t, reqs[i], cmd)
				// Every request after the first chains onto its
				// predecessor's handle and session context.
				requireRelated(t, reqs[i], i > 0)
			}
		})
	}
}

func TestBuildOpenTriple(t *testing.T) {
	e := newTestEngine(newFakeTransport(t))

	txn, err := e.build("doomed.txt",
		kindDefaults[KindDelete].access,
		kindDefaults[KindDelete].disposition,
		kindDefaults[KindDelete].options,
		types.ACLNoMode,
		KindDelete, &opParams{}, nil)
	require.NoError(t, err)

	create := txn.requests()[0]
	access := binary.LittleEndian.Uint32(create[createDesiredAccessOffset:])
	disposition := binary.LittleEndian.Uint32(create[createDispositionOffset:])
	options := binary.LittleEndian.Uint32(create[createOptionsOffset:])

	assert.Equal(t, types.Delete, access)
	assert.Equal(t, types.FileOpen, disposition)
	assert.Equal(t, types.CreateDeleteOnClose|types.OpenReparsePoint, options)
}

func TestBuildWithHandle(t *testing.T) {
	e := newTestEngine(newFakeTransport(t))

	released := false
	fid := types.FileID{Persistent: 0x1122334455667788, Volatile: 0x99AABBCCDDEEFF00}
	h := NewHandle(fid, "", func() { released = true })

	txn, err := e.build("open/file.txt",
		kindDefaults[KindSetEOF].access,
		kindDefaults[KindSetEOF].disposition,
		kindDefaults[KindSetEOF].options,
		types.ACLNoMode,
		KindSetEOF, &opParams{eof: 123}, h)
	require.NoError(t, err)

	require.False(t, txn.ownsOpen)
	require.Equal(t, 1, txn.count)
	require.Equal(t, 0, txn.operateIndex())

	req := txn.requests()[0]
	requireCommand(t, req, types.CmdSetInfo)
	requireRelated(t, req, false)

	// The handle's real identifiers are baked in, not the placeholder.
	persistent := binary.LittleEndian.Uint64(req[setInfoFileIDOffset:])
	volatile := binary.LittleEndian.Uint64(req[setInfoFileIDOffset+8:])
	assert.Equal(t, fid.Persistent, persistent)
	assert.Equal(t, fid.Volatile, volatile)

	// Building does not consume the reference; that happens at send time.
	assert.False(t, released)
	h.Put()
	assert.True(t, released)
}

func TestBuildRenamePayloadCarriesTrailingNull(t *testing.T) {
	e := newTestEngine(newFakeTransport(t))

	target := []byte{'a', 0, 'b', 0}
	txn, err := e.build("old.txt",
		kindDefaults[KindRename].access,
		kindDefaults[KindRename].disposition,
		kindDefaults[KindRename].options,
		types.ACLNoMode,
		KindRename, &opParams{target: target}, nil)
	require.NoError(t, err)

	setInfo := txn.requests()[1]
	body := setInfo[types.HeaderSize:]
	bufferLength := binary.LittleEndian.Uint32(body[4:8])

	// Fixed rename block, then the name with a null terminator pair the
	// declared name length does not count.
	require.Equal(t, uint32(types.RenameInfoSize+len(target)+2), bufferLength)

	payload := body[32 : 32+int(bufferLength)]
	assert.Equal(t, uint8(1), payload[0], "replace-if-exists")
	nameLen := binary.LittleEndian.Uint32(payload[16:20])
	assert.Equal(t, uint32(len(target)), nameLen)
	assert.Equal(t, target, payload[types.RenameInfoSize:types.RenameInfoSize+len(target)])
	assert.Equal(t, []byte{0, 0}, payload[types.RenameInfoSize+len(target):])
}

func TestBuildHardlinkDoesNotReplace(t *testing.T) {
	e := newTestEngine(newFakeTransport(t))

	txn, err := e.build("src.txt",
		kindDefaults[KindHardlink].access,
		kindDefaults[KindHardlink].disposition,
		kindDefaults[KindHardlink].options,
		types.ACLNoMode,
		KindHardlink, &opParams{target: []byte{'l', 0}}, nil)
	require.NoError(t, err)

	setInfo := txn.requests()[1]
	payload := setInfo[types.HeaderSize+32:]
	assert.Equal(t, uint8(0), payload[0], "replace-if-exists must be off for links")
}

func TestBuildRejectsOversizedPath(t *testing.T) {
	e := newTestEngine(newFakeTransport(t))

	long := make([]rune, types.MaxPath)
	for i := range long {
		long[i] = 'x'
	}

	_, err := e.build(string(long),
		kindDefaults[KindQueryInfo].access,
		kindDefaults[KindQueryInfo].disposition,
		kindDefaults[KindQueryInfo].options,
		types.ACLNoMode,
		KindQueryInfo, &opParams{info: &PathInfo{}}, nil)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrEncode))
}
