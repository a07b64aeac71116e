package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// ============================================================================
// SMB2 Decoding Helpers - Wire Format → Go Structures
// ============================================================================

// ParseHeader decodes the fixed 64-byte SMB2 header from the start of a
// received packet.
//
// Per MS-SMB2 Section 2.2.1.2, a response header carries the NT status
// of the request and echoes the command. The compound engine reads
// exactly these two fields off failed responses to drive its retry
// decisions, so ParseHeader must succeed on any buffer the transport
// accepted, however short the body.
//
// Parameters:
//   - data: Raw packet bytes (header + body)
//
// Returns:
//   - *types.Header: Decoded header
//   - error: Malformed or truncated header
func ParseHeader(data []byte) (*types.Header, error) {
	if len(data) < types.HeaderSize {
		return nil, fmt.Errorf("packet too short for header: %d bytes", len(data))
	}
	if !bytes.Equal(data[:4], types.ProtocolID[:]) {
		return nil, fmt.Errorf("bad protocol id: % x", data[:4])
	}

	structureSize := binary.LittleEndian.Uint16(data[4:6])
	if structureSize != types.HeaderSize {
		return nil, fmt.Errorf("bad header structure size: %d", structureSize)
	}

	hdr := &types.Header{
		CreditCharge: binary.LittleEndian.Uint16(data[6:8]),
		Status:       types.Status(binary.LittleEndian.Uint32(data[8:12])),
		Command:      types.Command(binary.LittleEndian.Uint16(data[12:14])),
		Credits:      binary.LittleEndian.Uint16(data[14:16]),
		Flags:        binary.LittleEndian.Uint32(data[16:20]),
		NextCommand:  binary.LittleEndian.Uint32(data[20:24]),
		MessageID:    binary.LittleEndian.Uint64(data[24:32]),
		TreeID:       binary.LittleEndian.Uint32(data[36:40]),
		SessionID:    binary.LittleEndian.Uint64(data[40:48]),
	}
	copy(hdr.Signature[:], data[48:64])

	return hdr, nil
}

// ValidateOutputRange validates that a response's declared output buffer
// lies entirely within the received packet and covers at least `need`
// bytes, then returns that sub-slice.
//
// Both offset and length come straight off the wire and must never be
// trusted: a server (or a corrupted packet) can declare a range outside
// the bytes actually received. A range that does not fit is a hard
// structural failure, distinct from a wire-level error status - the
// engine never silently truncates.
//
// Parameters:
//   - packet: The full received packet (offset is relative to its start)
//   - offset: Declared start of the output buffer
//   - length: Declared length of the output buffer
//   - need: Minimum number of bytes the caller requires
//
// Returns:
//   - []byte: The validated output range, at least `need` bytes long
//   - error: Structural validation failure
func ValidateOutputRange(packet []byte, offset uint16, length uint32, need int) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(packet)) {
		return nil, fmt.Errorf(
			"declared output range [%d, %d) exceeds packet of %d bytes",
			offset, end, len(packet))
	}
	if int(length) < need {
		return nil, fmt.Errorf("output buffer %d bytes, need %d", length, need)
	}
	return packet[offset:end], nil
}

// DecodeFileAllInfo decodes the fixed part of a FILE_ALL_INFORMATION
// block (MS-FSCC Section 2.4.2). The variable-length name that may
// follow is ignored.
func DecodeFileAllInfo(data []byte) (*types.FileAllInfo, error) {
	if len(data) < types.FileAllInfoSize {
		return nil, fmt.Errorf("all info block too short: %d bytes", len(data))
	}

	fi := &types.FileAllInfo{
		CreationTime:         types.Filetime(binary.LittleEndian.Uint64(data[0:8])),
		LastAccessTime:       types.Filetime(binary.LittleEndian.Uint64(data[8:16])),
		LastWriteTime:        types.Filetime(binary.LittleEndian.Uint64(data[16:24])),
		ChangeTime:           types.Filetime(binary.LittleEndian.Uint64(data[24:32])),
		Attributes:           binary.LittleEndian.Uint32(data[32:36]),
		AllocationSize:       binary.LittleEndian.Uint64(data[40:48]),
		EndOfFile:            binary.LittleEndian.Uint64(data[48:56]),
		NumberOfLinks:        binary.LittleEndian.Uint32(data[56:60]),
		DeletePending:        data[60],
		Directory:            data[61],
		IndexNumber:          binary.LittleEndian.Uint64(data[64:72]),
		EASize:               binary.LittleEndian.Uint32(data[72:76]),
		AccessFlags:          binary.LittleEndian.Uint32(data[76:80]),
		CurrentByteOffset:    binary.LittleEndian.Uint64(data[80:88]),
		Mode:                 binary.LittleEndian.Uint32(data[88:92]),
		AlignmentRequirement: binary.LittleEndian.Uint32(data[92:96]),
		FileNameLength:       binary.LittleEndian.Uint32(data[96:100]),
	}

	return fi, nil
}

// EncodeFileAllInfo encodes the fixed part of a FILE_ALL_INFORMATION
// block. The engine itself never sends this structure; the cached
// directory subsystem and tests use it to fabricate snapshots.
func EncodeFileAllInfo(buf *bytes.Buffer, fi *types.FileAllInfo) error {
	fields := []any{
		uint64(fi.CreationTime),
		uint64(fi.LastAccessTime),
		uint64(fi.LastWriteTime),
		uint64(fi.ChangeTime),
		fi.Attributes,
		fi.Pad1,
		fi.AllocationSize,
		fi.EndOfFile,
		fi.NumberOfLinks,
		fi.DeletePending,
		fi.Directory,
		fi.Pad2,
		fi.IndexNumber,
		fi.EASize,
		fi.AccessFlags,
		fi.CurrentByteOffset,
		fi.Mode,
		fi.AlignmentRequirement,
		fi.FileNameLength,
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return fmt.Errorf("write all info field: %w", err)
		}
	}
	return nil
}

// DecodePosixInfo decodes the fixed part of an SMB3.1.1 POSIX query
// response (SMB_FIND_FILE_POSIX_INFO). The variable-length owner and
// group SIDs that follow are ignored.
func DecodePosixInfo(data []byte) (*types.PosixInfo, error) {
	if len(data) < types.PosixInfoSize {
		return nil, fmt.Errorf("posix info block too short: %d bytes", len(data))
	}

	pi := &types.PosixInfo{
		CreationTime:   types.Filetime(binary.LittleEndian.Uint64(data[0:8])),
		LastAccessTime: types.Filetime(binary.LittleEndian.Uint64(data[8:16])),
		LastWriteTime:  types.Filetime(binary.LittleEndian.Uint64(data[16:24])),
		ChangeTime:     types.Filetime(binary.LittleEndian.Uint64(data[24:32])),
		EndOfFile:      binary.LittleEndian.Uint64(data[32:40]),
		AllocationSize: binary.LittleEndian.Uint64(data[40:48]),
		DosAttributes:  binary.LittleEndian.Uint32(data[48:52]),
		Inode:          binary.LittleEndian.Uint64(data[52:60]),
		DeviceID:       binary.LittleEndian.Uint32(data[60:64]),
		Zero:           binary.LittleEndian.Uint32(data[64:68]),
		HardLinks:      binary.LittleEndian.Uint32(data[68:72]),
		ReparseTag:     binary.LittleEndian.Uint32(data[72:76]),
		Mode:           binary.LittleEndian.Uint32(data[76:80]),
	}

	return pi, nil
}

// EncodePosixInfo encodes the fixed part of a POSIX query response.
// Used by tests to fabricate server responses.
func EncodePosixInfo(buf *bytes.Buffer, pi *types.PosixInfo) error {
	fields := []any{
		uint64(pi.CreationTime),
		uint64(pi.LastAccessTime),
		uint64(pi.LastWriteTime),
		uint64(pi.ChangeTime),
		pi.EndOfFile,
		pi.AllocationSize,
		pi.DosAttributes,
		pi.Inode,
		pi.DeviceID,
		pi.Zero,
		pi.HardLinks,
		pi.ReparseTag,
		pi.Mode,
		pi.Reserved,
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return fmt.Errorf("write posix info field: %w", err)
		}
	}
	return nil
}
