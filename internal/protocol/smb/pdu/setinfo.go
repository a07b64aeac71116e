package pdu

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/marmos91/dittosmb/internal/protocol/smb/codec"
	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// SetInfoParams carries the parameters of a SET_INFO request
// (MS-SMB2 Section 2.2.39).
type SetInfoParams struct {
	// FileID is the handle to modify, or types.CompoundFileID inside a
	// compound that owns its own CREATE.
	FileID types.FileID

	// InfoClass selects the structure being set (FileRenameInformation,
	// FileEndOfFileInformation, FileDispositionInformation, ...).
	InfoClass uint8

	// Parts are the payload pieces, concatenated in order on the wire.
	// Rename and hardlink carry two parts (fixed info block + UTF-16
	// target name); everything else carries one.
	Parts [][]byte
}

// EncodeSetInfo encodes a complete SET_INFO request packet.
func EncodeSetInfo(p *SetInfoParams) ([]byte, error) {
	if len(p.Parts) == 0 {
		return nil, fmt.Errorf("set info requires at least one payload part")
	}

	total := 0
	for _, part := range p.Parts {
		total += len(part)
	}

	buf := new(bytes.Buffer)
	if err := codec.EncodeHeader(buf, &types.Header{Command: types.CmdSetInfo}); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}

	// Fixed body is 32 bytes; the payload buffer follows immediately.
	bufferOffset := types.HeaderSize + 32

	fields := []any{
		uint16(33),           // StructureSize
		types.InfoFile,       // InfoType
		p.InfoClass,          // FileInfoClass
		uint32(total),        // BufferLength
		uint16(bufferOffset), // BufferOffset
		uint16(0),            // Reserved
		uint32(0),            // AdditionalInformation
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("write set info field: %w", err)
		}
	}
	if err := codec.EncodeFileID(buf, p.FileID); err != nil {
		return nil, err
	}

	for _, part := range p.Parts {
		if _, err := buf.Write(part); err != nil {
			return nil, fmt.Errorf("write payload part: %w", err)
		}
	}

	return buf.Bytes(), nil
}
