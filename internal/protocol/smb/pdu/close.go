package pdu

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/marmos91/dittosmb/internal/protocol/smb/codec"
	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// EncodeClose encodes a complete CLOSE request packet
// (MS-SMB2 Section 2.2.15).
//
// The compound engine always closes with the compound placeholder
// FileID: the only handles it closes are the ones its own CREATE opened
// earlier in the same chained transaction.
func EncodeClose(id types.FileID) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := codec.EncodeHeader(buf, &types.Header{Command: types.CmdClose}); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}

	fields := []any{
		uint16(24), // StructureSize
		uint16(0),  // Flags
		uint32(0),  // Reserved
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("write close field: %w", err)
		}
	}
	if err := codec.EncodeFileID(buf, id); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
