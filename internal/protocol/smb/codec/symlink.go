package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// ============================================================================
// Symbolic Link Error Response Parsing
// ============================================================================
//
// A CREATE that traverses a symbolic link fails with
// STATUS_STOPPED_ON_SYMLINK, and the error response body carries a
// Symbolic Link Error Response describing the link target
// (MS-SMB2 Section 2.2.2.2.1). The compound engine recovers the target
// from the preserved raw response before retrying the query against the
// reparse point itself.

// symlinkErrorTag identifies a Symbolic Link Error Response ("SYML").
const symlinkErrorTag uint32 = 0x4C4D5953

// symlinkReparseTag is IO_REPARSE_TAG_SYMLINK (MS-FSCC Section 2.1.2.4).
const symlinkReparseTag uint32 = 0xA000000C

// SymlinkFlagRelative marks the substitute name as relative to the
// directory containing the link rather than a full NT path.
const SymlinkFlagRelative uint32 = 0x00000001

// ntPathPrefix is the NT namespace prefix on absolute substitute names.
const ntPathPrefix = `\??\`

// ParseSymlinkErrorResponse extracts the symlink target from a failed
// CREATE response packet.
//
// The packet must be a full error response: SMB2 header with
// StatusStoppedOnSymlink, then the 8-byte error response envelope
// (StructureSize=9, ErrorContextCount, Reserved, ByteCount), then the
// Symbolic Link Error Response itself.
//
// Every length and offset in the payload comes off the wire and is
// validated against the bytes actually received before use.
//
// Parameters:
//   - packet: Raw response packet (header + error body)
//
// Returns:
//   - string: The link's substitute name with any NT namespace prefix
//     stripped and separators normalized to "/"
//   - error: Malformed payload or wrong status/tag
func ParseSymlinkErrorResponse(packet []byte) (string, error) {
	hdr, err := ParseHeader(packet)
	if err != nil {
		return "", fmt.Errorf("parse header: %w", err)
	}
	if hdr.Status != types.StatusStoppedOnSymlink {
		return "", fmt.Errorf("unexpected status 0x%08X", uint32(hdr.Status))
	}

	body := packet[types.HeaderSize:]
	if len(body) < 8 {
		return "", fmt.Errorf("error body too short: %d bytes", len(body))
	}

	structureSize := binary.LittleEndian.Uint16(body[0:2])
	if structureSize != 9 {
		return "", fmt.Errorf("bad error response structure size: %d", structureSize)
	}
	byteCount := binary.LittleEndian.Uint32(body[4:8])

	errData := body[8:]
	if uint64(byteCount) > uint64(len(errData)) {
		return "", fmt.Errorf("error data %d bytes, declared %d", len(errData), byteCount)
	}
	errData = errData[:byteCount]

	// Symbolic Link Error Response fixed part:
	// [SymLinkLength:4][SymLinkErrorTag:4][ReparseTag:4]
	// [ReparseDataLength:2][UnparsedPathLength:2]
	// [SubstituteNameOffset:2][SubstituteNameLength:2]
	// [PrintNameOffset:2][PrintNameLength:2][Flags:4]
	if len(errData) < 28 {
		return "", fmt.Errorf("symlink payload too short: %d bytes", len(errData))
	}
	if tag := binary.LittleEndian.Uint32(errData[4:8]); tag != symlinkErrorTag {
		return "", fmt.Errorf("bad symlink error tag 0x%08X", tag)
	}
	if tag := binary.LittleEndian.Uint32(errData[8:12]); tag != symlinkReparseTag {
		return "", fmt.Errorf("bad reparse tag 0x%08X", tag)
	}

	subOffset := binary.LittleEndian.Uint16(errData[16:18])
	subLength := binary.LittleEndian.Uint16(errData[18:20])
	flags := binary.LittleEndian.Uint32(errData[24:28])

	pathBuffer := errData[28:]
	end := uint32(subOffset) + uint32(subLength)
	if end > uint32(len(pathBuffer)) {
		return "", fmt.Errorf(
			"substitute name range [%d, %d) exceeds path buffer of %d bytes",
			subOffset, end, len(pathBuffer))
	}

	target, err := DecodeUTF16String(pathBuffer[subOffset:end])
	if err != nil {
		return "", fmt.Errorf("decode substitute name: %w", err)
	}

	if flags&SymlinkFlagRelative == 0 {
		target = strings.TrimPrefix(target, ntPathPrefix)
	}
	return strings.ReplaceAll(target, "\\", "/"), nil
}

// EncodeSymlinkErrorResponse builds a complete STATUS_STOPPED_ON_SYMLINK
// error response packet for the given target. The target is encoded
// verbatim, NT prefix and separators included. Tests use it to fabricate
// server responses; the client never sends one.
func EncodeSymlinkErrorResponse(target string, flags uint32) ([]byte, error) {
	name := EncodeUTF16String(target)

	buf := new(bytes.Buffer)
	hdr := &types.Header{
		Command: types.CmdCreate,
		Status:  types.StatusStoppedOnSymlink,
		Flags:   types.FlagServerToRedir,
	}
	if err := EncodeHeader(buf, hdr); err != nil {
		return nil, err
	}

	// Substitute and print name share the same bytes.
	payloadLen := 28 + len(name)

	// Error response envelope.
	_ = binary.Write(buf, binary.LittleEndian, uint16(9))
	buf.WriteByte(0) // ErrorContextCount
	buf.WriteByte(0) // Reserved
	_ = binary.Write(buf, binary.LittleEndian, uint32(payloadLen))

	// Symbolic Link Error Response.
	_ = binary.Write(buf, binary.LittleEndian, uint32(payloadLen-4))
	_ = binary.Write(buf, binary.LittleEndian, symlinkErrorTag)
	_ = binary.Write(buf, binary.LittleEndian, symlinkReparseTag)
	_ = binary.Write(buf, binary.LittleEndian, uint16(12+len(name))) // ReparseDataLength
	_ = binary.Write(buf, binary.LittleEndian, uint16(0))            // UnparsedPathLength
	_ = binary.Write(buf, binary.LittleEndian, uint16(0))            // SubstituteNameOffset
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(name)))    // SubstituteNameLength
	_ = binary.Write(buf, binary.LittleEndian, uint16(0))            // PrintNameOffset
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(name)))    // PrintNameLength
	_ = binary.Write(buf, binary.LittleEndian, flags)
	buf.Write(name)

	return buf.Bytes(), nil
}
