// Package pdu builds and parses the individual SMB2 request/response
// bodies the compound engine chains together: CREATE, QUERY_INFO,
// SET_INFO and CLOSE.
//
// Each encoder produces one complete packet (64-byte header plus body)
// with session-independent fields populated. MessageID, TreeID,
// SessionID and credits are stamped by the transport at send time;
// compound chaining fields (NextCommand, the related flag) are patched
// onto the encoded packet by the engine's builder.
package pdu

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/marmos91/dittosmb/internal/protocol/smb/codec"
	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// posixCreateContextTag is the SMB3.1.1 POSIX extensions create context
// GUID (93AD2550-9CB4-11E7-B423-83DE968BCD7C, on-wire byte order).
var posixCreateContextTag = [16]byte{
	0x93, 0xAD, 0x25, 0x50, 0x9C, 0xB4, 0x11, 0xE7,
	0xB4, 0x23, 0x83, 0xDE, 0x96, 0x8B, 0xCD, 0x7C,
}

// CreateParams carries everything needed to encode a CREATE request
// (MS-SMB2 Section 2.2.13).
type CreateParams struct {
	// Name is the UTF-16LE share-relative wire name (empty for the root).
	Name []byte

	// DesiredAccess, CreateDisposition and CreateOptions form the
	// operation-kind specific triple from the compound operation table.
	DesiredAccess     uint32
	CreateDisposition uint32
	CreateOptions     uint32

	// FileAttributes to apply when the create actually creates.
	FileAttributes uint32

	// Mode is the POSIX mode for SMB3.1.1 POSIX mounts. ACLNoMode means
	// no mode is supplied and no POSIX create context is attached.
	Mode uint32

	// OplockLevel requested; the compound engine always passes
	// OplockLevelNone since the handle lives for one transaction.
	OplockLevel uint8
}

// EncodeCreate encodes a complete CREATE request packet.
//
// The name is placed immediately after the fixed 57-byte body. When a
// POSIX mode is supplied, a single POSIX create context follows the
// name, 8-byte aligned.
func EncodeCreate(p *CreateParams) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := codec.EncodeHeader(buf, &types.Header{Command: types.CmdCreate}); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}

	// Fixed body is 56 bytes; StructureSize 57 counts the first byte of
	// the variable part per MS-SMB2 convention.
	nameOffset := types.HeaderSize + 56
	nameLength := len(p.Name)

	contextsOffset := 0
	contextLen := 0
	hasPosixContext := p.Mode != types.ACLNoMode
	if hasPosixContext {
		// Contexts start 8-byte aligned after the name.
		contextsOffset = align8(nameOffset + nameLength)
		// Context header (16) + tag (16) + mode (4).
		contextLen = 16 + 16 + 4
	}

	fields := []any{
		uint16(57),              // StructureSize
		uint8(0),                // SecurityFlags
		p.OplockLevel,           // RequestedOplockLevel
		uint32(2),               // ImpersonationLevel: Impersonation
		uint64(0),               // SmbCreateFlags
		uint64(0),               // Reserved
		p.DesiredAccess,         // DesiredAccess
		p.FileAttributes,        // FileAttributes
		types.FileShareAll,      // ShareAccess
		p.CreateDisposition,     // CreateDisposition
		p.CreateOptions,         // CreateOptions
		uint16(nameOffset),      // NameOffset
		uint16(nameLength),      // NameLength
		uint32(contextsOffset),  // CreateContextsOffset
		uint32(contextLen),      // CreateContextsLength
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("write create field: %w", err)
		}
	}

	if _, err := buf.Write(p.Name); err != nil {
		return nil, fmt.Errorf("write name: %w", err)
	}

	if hasPosixContext {
		pad := contextsOffset - (nameOffset + nameLength)
		buf.Write(make([]byte, pad))

		// Create context header (MS-SMB2 Section 2.2.13.2).
		_ = binary.Write(buf, binary.LittleEndian, uint32(0))  // Next
		_ = binary.Write(buf, binary.LittleEndian, uint16(16)) // NameOffset (from context start)
		_ = binary.Write(buf, binary.LittleEndian, uint16(16)) // NameLength
		_ = binary.Write(buf, binary.LittleEndian, uint16(0))  // Reserved
		_ = binary.Write(buf, binary.LittleEndian, uint16(32)) // DataOffset
		_ = binary.Write(buf, binary.LittleEndian, uint32(4))  // DataLength
		buf.Write(posixCreateContextTag[:])
		_ = binary.Write(buf, binary.LittleEndian, p.Mode)
	}

	return buf.Bytes(), nil
}

// align8 rounds n up to the next multiple of 8.
func align8(n int) int {
	return (n + 7) &^ 7
}
