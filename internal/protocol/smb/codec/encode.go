package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// ============================================================================
// SMB2 Encoding Helpers - Go Structures → Wire Format
// ============================================================================
//
// All SMB2 integer fields are little-endian (MS-SMB2 Section 2.2).
// These helpers build complete packets: a 64-byte header followed by the
// command-specific body. Compounding (NextCommand chaining and the
// related flag) is expressed purely through header fields, so the
// encoders here stay oblivious to whether a packet travels alone or as
// part of a chained transaction.

// EncodeHeader encodes the fixed 64-byte SMB2 packet header.
//
// Per MS-SMB2 Section 2.2.1.2 (SYNC header):
// Format: [ProtocolId:4][StructureSize:2][CreditCharge:2][Status:4]
// [Command:2][Credits:2][Flags:4][NextCommand:4][MessageId:8]
// [Reserved:4][TreeId:4][SessionId:8][Signature:16]
//
// MessageID, TreeID and SessionID are left to the transport: it owns
// session state and stamps them at send time. The engine only sets
// Command, Flags and NextCommand.
func EncodeHeader(buf *bytes.Buffer, hdr *types.Header) error {
	if _, err := buf.Write(types.ProtocolID[:]); err != nil {
		return fmt.Errorf("write protocol id: %w", err)
	}

	fields := []any{
		uint16(types.HeaderSize),
		hdr.CreditCharge,
		uint32(hdr.Status),
		uint16(hdr.Command),
		hdr.Credits,
		hdr.Flags,
		hdr.NextCommand,
		hdr.MessageID,
		uint32(0), // Reserved (ProcessId in SMB1)
		hdr.TreeID,
		hdr.SessionID,
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return fmt.Errorf("write header field: %w", err)
		}
	}

	if _, err := buf.Write(hdr.Signature[:]); err != nil {
		return fmt.Errorf("write signature: %w", err)
	}

	return nil
}

// EncodeFileID encodes the 16-byte persistent/volatile handle pair
// (MS-SMB2 Section 2.2.14.1).
func EncodeFileID(buf *bytes.Buffer, id types.FileID) error {
	if err := binary.Write(buf, binary.LittleEndian, id.Persistent); err != nil {
		return fmt.Errorf("write persistent fid: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, id.Volatile); err != nil {
		return fmt.Errorf("write volatile fid: %w", err)
	}
	return nil
}

// EncodeFileBasicInfo encodes a FILE_BASIC_INFORMATION block
// (MS-FSCC Section 2.4.7). Always exactly types.FileBasicInfoSize bytes.
func EncodeFileBasicInfo(buf *bytes.Buffer, fi *types.FileBasicInfo) error {
	fields := []any{
		uint64(fi.CreationTime),
		uint64(fi.LastAccessTime),
		uint64(fi.LastWriteTime),
		uint64(fi.ChangeTime),
		fi.Attributes,
		fi.Pad,
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return fmt.Errorf("write basic info field: %w", err)
		}
	}
	return nil
}

// EncodeRenameInfo encodes the fixed part of FILE_RENAME_INFORMATION or
// FILE_LINK_INFORMATION (MS-FSCC Sections 2.4.37 and 2.4.24 - the two
// layouts are identical).
//
// Format: [ReplaceIfExists:1][Reserved:7][RootDirectory:8][FileNameLength:4]
//
// The UTF-16LE target name is appended by the caller as the second part
// of the set-info payload; nameLen is its byte length excluding the
// trailing null.
func EncodeRenameInfo(buf *bytes.Buffer, replaceIfExists bool, nameLen uint32) error {
	replace := uint8(0)
	if replaceIfExists {
		replace = 1
	}
	if err := buf.WriteByte(replace); err != nil {
		return fmt.Errorf("write replace flag: %w", err)
	}
	if _, err := buf.Write(make([]byte, 7)); err != nil {
		return fmt.Errorf("write reserved: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, uint64(0)); err != nil {
		return fmt.Errorf("write root directory: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, nameLen); err != nil {
		return fmt.Errorf("write name length: %w", err)
	}
	return nil
}
