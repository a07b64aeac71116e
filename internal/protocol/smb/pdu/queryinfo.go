package pdu

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/marmos91/dittosmb/internal/protocol/smb/codec"
	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// QueryInfoParams carries the parameters of a QUERY_INFO request
// (MS-SMB2 Section 2.2.37).
type QueryInfoParams struct {
	// FileID is the handle to query, or types.CompoundFileID when the
	// handle is produced by the CREATE earlier in the same compound.
	FileID types.FileID

	// InfoType selects the information category (types.InfoFile).
	InfoType uint8

	// InfoClass selects the structure to return
	// (FileAllInformation, FilePosixInformation, ...).
	InfoClass uint8

	// OutputBufferLength is the maximum response payload the client is
	// prepared to receive.
	OutputBufferLength uint32
}

// EncodeQueryInfo encodes a complete QUERY_INFO request packet.
func EncodeQueryInfo(p *QueryInfoParams) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := codec.EncodeHeader(buf, &types.Header{Command: types.CmdQueryInfo}); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}

	fields := []any{
		uint16(41),           // StructureSize
		p.InfoType,           // InfoType
		p.InfoClass,          // FileInfoClass
		p.OutputBufferLength, // OutputBufferLength
		uint16(0),            // InputBufferOffset
		uint16(0),            // Reserved
		uint32(0),            // InputBufferLength
		uint32(0),            // AdditionalInformation
		uint32(0),            // Flags
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, fmt.Errorf("write query info field: %w", err)
		}
	}
	if err := codec.EncodeFileID(buf, p.FileID); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// ParseQueryInfoResponse extracts the declared output buffer range from
// a QUERY_INFO response packet (MS-SMB2 Section 2.2.38).
//
// Only the declared offset and length are returned; the caller is
// responsible for validating them against the received packet with
// codec.ValidateOutputRange before touching the payload.
func ParseQueryInfoResponse(packet []byte) (offset uint16, length uint32, err error) {
	body := packet
	if len(body) < types.HeaderSize+8 {
		return 0, 0, fmt.Errorf("query info response too short: %d bytes", len(packet))
	}
	body = body[types.HeaderSize:]

	structureSize := binary.LittleEndian.Uint16(body[0:2])
	if structureSize != 9 {
		return 0, 0, fmt.Errorf("bad query info response structure size: %d", structureSize)
	}

	offset = binary.LittleEndian.Uint16(body[2:4])
	length = binary.LittleEndian.Uint32(body[4:8])
	return offset, length, nil
}

// EncodeQueryInfoResponse builds a success QUERY_INFO response packet
// carrying the given payload. Test fakes use it to play the server side.
func EncodeQueryInfoResponse(payload []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	hdr := &types.Header{
		Command: types.CmdQueryInfo,
		Flags:   types.FlagServerToRedir,
	}
	if err := codec.EncodeHeader(buf, hdr); err != nil {
		return nil, err
	}

	// Payload sits right after the 8-byte response body.
	outputOffset := types.HeaderSize + 8

	_ = binary.Write(buf, binary.LittleEndian, uint16(9))
	_ = binary.Write(buf, binary.LittleEndian, uint16(outputOffset))
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(payload)))
	buf.Write(payload)

	return buf.Bytes(), nil
}

// EncodeStatusResponse builds a minimal response packet with the given
// command and status and no meaningful body. Test fakes use it for
// CREATE/SET_INFO/CLOSE replies and for plain error responses.
func EncodeStatusResponse(cmd types.Command, status types.Status) ([]byte, error) {
	buf := new(bytes.Buffer)
	hdr := &types.Header{
		Command: cmd,
		Status:  status,
		Flags:   types.FlagServerToRedir,
	}
	if err := codec.EncodeHeader(buf, hdr); err != nil {
		return nil, err
	}

	// Error response envelope (MS-SMB2 Section 2.2.2): also valid as a
	// placeholder success body for fakes.
	_ = binary.Write(buf, binary.LittleEndian, uint16(9))
	_ = binary.Write(buf, binary.LittleEndian, uint16(0))
	_ = binary.Write(buf, binary.LittleEndian, uint32(0))

	return buf.Bytes(), nil
}
