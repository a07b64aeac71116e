package codec

import (
	"encoding/binary"

	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// ============================================================================
// Header Patching - In-Place Edits on Encoded Packets
// ============================================================================
//
// The engine and the transport both amend already-encoded packets: the
// engine marks compound chaining on the packets it collected into a
// transaction, and the transport stamps session identity at send time.
// These helpers edit the fixed header fields in place; offsets follow
// MS-SMB2 Section 2.2.1.2. All of them assume the packet passed
// ParseHeader-level sanity (at least 64 bytes long).

// SetRelatedFlag marks the packet as related to its predecessor in the
// same compound: it shares the predecessor's session, tree and handle.
func SetRelatedFlag(packet []byte) {
	flags := binary.LittleEndian.Uint32(packet[16:20])
	binary.LittleEndian.PutUint32(packet[16:20], flags|types.FlagRelatedOperations)
}

// SetNextCommand writes the 8-byte-aligned offset from this header to
// the next one in the compound. Zero marks the final request.
func SetNextCommand(packet []byte, offset uint32) {
	binary.LittleEndian.PutUint32(packet[20:24], offset)
}

// SetMessageID stamps the per-connection message identifier.
func SetMessageID(packet []byte, id uint64) {
	binary.LittleEndian.PutUint64(packet[24:32], id)
}

// SetTreeID stamps the share identifier.
func SetTreeID(packet []byte, id uint32) {
	binary.LittleEndian.PutUint32(packet[36:40], id)
}

// SetSessionID stamps the authenticated session identifier.
func SetSessionID(packet []byte, id uint64) {
	binary.LittleEndian.PutUint64(packet[40:48], id)
}
