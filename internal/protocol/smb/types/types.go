package types

import "time"

// ============================================================================
// SMB2 Protocol Types - MS-SMB2 Wire Format Structures
// ============================================================================
//
// These types represent the exact wire format for the SMB2/3 protocol as
// defined in MS-SMB2. They are separate from the compound engine's result
// types to maintain clean separation between the wire layer and the
// filesystem-level logic built on top of it.

// HeaderSize is the fixed size of the SMB2 packet header in bytes.
// Every request and response begins with this header (MS-SMB2 Section 2.2.1).
const HeaderSize = 64

// ProtocolID is the 4-byte magic at the start of every SMB2 packet:
// 0xFE 'S' 'M' 'B' (MS-SMB2 Section 2.2.1.2).
var ProtocolID = [4]byte{0xFE, 'S', 'M', 'B'}

// ============================================================================
// Commands
// ============================================================================

// Command identifies an SMB2 request/response type.
// Defined in MS-SMB2 Section 2.2.1.2 (SMB2 Packet Header - SYNC).
type Command uint16

const (
	CmdNegotiate      Command = 0x0000
	CmdSessionSetup   Command = 0x0001
	CmdLogoff         Command = 0x0002
	CmdTreeConnect    Command = 0x0003
	CmdTreeDisconnect Command = 0x0004
	CmdCreate         Command = 0x0005
	CmdClose          Command = 0x0006
	CmdFlush          Command = 0x0007
	CmdRead           Command = 0x0008
	CmdWrite          Command = 0x0009
	CmdLock           Command = 0x000A
	CmdIoctl          Command = 0x000B
	CmdCancel         Command = 0x000C
	CmdEcho           Command = 0x000D
	CmdQueryDirectory Command = 0x000E
	CmdChangeNotify   Command = 0x000F
	CmdQueryInfo      Command = 0x0010
	CmdSetInfo        Command = 0x0011
	CmdOplockBreak    Command = 0x0012
)

// String returns the MS-SMB2 name of the command for logging.
func (c Command) String() string {
	switch c {
	case CmdNegotiate:
		return "NEGOTIATE"
	case CmdSessionSetup:
		return "SESSION_SETUP"
	case CmdLogoff:
		return "LOGOFF"
	case CmdTreeConnect:
		return "TREE_CONNECT"
	case CmdTreeDisconnect:
		return "TREE_DISCONNECT"
	case CmdCreate:
		return "CREATE"
	case CmdClose:
		return "CLOSE"
	case CmdFlush:
		return "FLUSH"
	case CmdRead:
		return "READ"
	case CmdWrite:
		return "WRITE"
	case CmdLock:
		return "LOCK"
	case CmdIoctl:
		return "IOCTL"
	case CmdCancel:
		return "CANCEL"
	case CmdEcho:
		return "ECHO"
	case CmdQueryDirectory:
		return "QUERY_DIRECTORY"
	case CmdChangeNotify:
		return "CHANGE_NOTIFY"
	case CmdQueryInfo:
		return "QUERY_INFO"
	case CmdSetInfo:
		return "SET_INFO"
	case CmdOplockBreak:
		return "OPLOCK_BREAK"
	default:
		return "UNKNOWN"
	}
}

// ============================================================================
// NT Status Codes
// ============================================================================

// Status is a 32-bit NT status code carried in the SMB2 header.
// Only the values the compound engine interprets are listed here;
// everything else is passed through opaquely (MS-ERREF Section 2.3).
type Status uint32

const (
	// StatusSuccess indicates the request completed successfully.
	StatusSuccess Status = 0x00000000

	// StatusStoppedOnSymlink is returned for a CREATE that traversed a
	// symbolic link. The error payload describes the link target
	// (MS-SMB2 Section 2.2.2.2.1, Symbolic Link Error Response).
	StatusStoppedOnSymlink Status = 0x8000002D

	// StatusObjectNameInvalid indicates the path contains characters the
	// server considers invalid. Some Windows servers return this instead
	// of StatusPathNotCovered for DFS links whose name contains
	// non-ASCII unicode symbols.
	StatusObjectNameInvalid Status = 0xC0000033

	// StatusObjectNameNotFound indicates the path does not exist.
	StatusObjectNameNotFound Status = 0xC0000034

	// StatusNetworkNameDeleted indicates the share was deleted or renamed
	// server-side while the session was established. The connection must
	// be re-established before further use.
	StatusNetworkNameDeleted Status = 0xC00000C9

	// StatusPathNotCovered indicates the path is a DFS link served by a
	// different server/share and must be re-resolved via a referral
	// (MS-DFSC).
	StatusPathNotCovered Status = 0xC0000257

	// StatusNotSupported indicates the server does not support the
	// requested operation.
	StatusNotSupported Status = 0xC00000BB
)

// ============================================================================
// Header Flags
// ============================================================================

const (
	// FlagServerToRedir marks a response packet.
	FlagServerToRedir uint32 = 0x00000001

	// FlagRelatedOperations marks a request as related to the previous
	// request in the same compound: it shares the previous request's
	// session/tree context and handle (MS-SMB2 Section 3.2.4.1.4).
	FlagRelatedOperations uint32 = 0x00000004
)

// ============================================================================
// Access Masks, Dispositions, Create Options
// ============================================================================

// Access mask bits (MS-SMB2 Section 2.2.13.1.1, File_Pvt_Access_Mask).
const (
	FileWriteData       uint32 = 0x00000002
	FileReadAttributes  uint32 = 0x00000080
	FileWriteAttributes uint32 = 0x00000100
	Delete              uint32 = 0x00010000
)

// Create dispositions (MS-SMB2 Section 2.2.13).
const (
	FileSupersede   uint32 = 0x00000000
	FileOpen        uint32 = 0x00000001
	FileCreate      uint32 = 0x00000002
	FileOpenIf      uint32 = 0x00000003
	FileOverwrite   uint32 = 0x00000004
	FileOverwriteIf uint32 = 0x00000005
)

// Create options (MS-SMB2 Section 2.2.13).
const (
	// CreateNotFile requires the target to be a directory
	// (FILE_DIRECTORY_FILE).
	CreateNotFile uint32 = 0x00000001

	// CreateNotDir requires the target to be a non-directory
	// (FILE_NON_DIRECTORY_FILE).
	CreateNotDir uint32 = 0x00000040

	// CreateDeleteOnClose deletes the file when the last handle closes.
	CreateDeleteOnClose uint32 = 0x00001000

	// OpenReparsePoint opens the reparse point itself instead of
	// following its indirection (FILE_OPEN_REPARSE_POINT).
	OpenReparsePoint uint32 = 0x00200000
)

// Oplock levels (MS-SMB2 Section 2.2.13).
const (
	OplockLevelNone uint8 = 0x00
)

// Share access (MS-SMB2 Section 2.2.13).
const (
	FileShareRead   uint32 = 0x00000001
	FileShareWrite  uint32 = 0x00000002
	FileShareDelete uint32 = 0x00000004
	FileShareAll           = FileShareRead | FileShareWrite | FileShareDelete
)

// ACLNoMode is the sentinel mode value meaning "no POSIX mode supplied".
const ACLNoMode uint32 = 0xFFFFFFFF

// ============================================================================
// Info Types and Classes
// ============================================================================

// Info types for QUERY_INFO/SET_INFO (MS-SMB2 Section 2.2.37).
const (
	InfoFile uint8 = 0x01
)

// File information classes (MS-FSCC Section 2.4).
const (
	FileBasicInformation       uint8 = 4
	FileRenameInformation      uint8 = 10
	FileLinkInformation        uint8 = 11
	FileDispositionInformation uint8 = 13
	FileAllInformation         uint8 = 18
	FileEndOfFileInformation   uint8 = 20

	// FilePosixInformation is the SMB3.1.1 POSIX extensions query level
	// (SMB_FIND_FILE_POSIX_INFO).
	FilePosixInformation uint8 = 100
)

// ============================================================================
// File Identifiers
// ============================================================================

// FileID is the persistent/volatile identifier pair referring to an open
// file or directory on the server (MS-SMB2 Section 2.2.14.1).
type FileID struct {
	Persistent uint64
	Volatile   uint64
}

// CompoundFileID is the well-known placeholder handle. When a request in
// a compound carries this value, the server substitutes the handle
// produced by the CREATE earlier in the same compound
// (MS-SMB2 Section 3.2.4.1.4).
var CompoundFileID = FileID{Persistent: 0xFFFFFFFFFFFFFFFF, Volatile: 0xFFFFFFFFFFFFFFFF}

// IsCompoundPlaceholder reports whether the FileID is the compound
// placeholder rather than a real open handle.
func (id FileID) IsCompoundPlaceholder() bool {
	return id == CompoundFileID
}

// ============================================================================
// Header
// ============================================================================

// Header represents the fixed 64-byte SMB2 packet header
// (MS-SMB2 Section 2.2.1.2, SYNC variant).
type Header struct {
	// CreditCharge is the number of credits this request consumes.
	CreditCharge uint16

	// Status carries the NT status code. Meaningful in responses only;
	// requests set the channel sequence here on SMB3 dialects.
	Status Status

	// Command identifies the request/response type.
	Command Command

	// Credits is the credit request (in requests) or grant (in responses).
	Credits uint16

	// Flags carries packet-level flags such as FlagRelatedOperations.
	Flags uint32

	// NextCommand is the offset from the start of this header to the
	// next header in a compound, 8-byte aligned. Zero for the final
	// (or only) request in a packet.
	NextCommand uint32

	// MessageID uniquely identifies the request within the connection.
	MessageID uint64

	// TreeID identifies the share the request operates on.
	TreeID uint32

	// SessionID identifies the authenticated session.
	SessionID uint64

	// Signature is the 16-byte packet signature (all zero when signing
	// is not in effect).
	Signature [16]byte
}

// ============================================================================
// Attribute Structures
// ============================================================================

// Filetime is a Windows FILETIME: 100-nanosecond intervals since
// January 1, 1601 UTC (MS-DTYP Section 2.3.3).
type Filetime uint64

// filetimeEpochDelta is the number of 100ns intervals between the
// FILETIME epoch (1601) and the Unix epoch (1970).
const filetimeEpochDelta = 116444736000000000

// Time converts the FILETIME to a Go time.Time.
// The zero FILETIME converts to the zero time.Time.
func (ft Filetime) Time() time.Time {
	if ft == 0 {
		return time.Time{}
	}
	ns := (int64(ft) - filetimeEpochDelta) * 100
	return time.Unix(0, ns).UTC()
}

// FiletimeFromTime converts a Go time.Time to a FILETIME.
// The zero time.Time converts to the zero FILETIME.
func FiletimeFromTime(t time.Time) Filetime {
	if t.IsZero() {
		return 0
	}
	return Filetime(t.UnixNano()/100 + filetimeEpochDelta)
}

// FileAllInfoSize is the encoded size of the fixed part of
// FILE_ALL_INFORMATION (MS-FSCC Section 2.4.2): everything up to and
// including FileNameLength, excluding the variable-length name.
const FileAllInfoSize = 100

// FileAllInfo is the fixed part of the FILE_ALL_INFORMATION query result
// (MS-FSCC Section 2.4.2). The variable-length file name that follows on
// the wire is not captured; path-based queries already know the name.
type FileAllInfo struct {
	CreationTime         Filetime
	LastAccessTime       Filetime
	LastWriteTime        Filetime
	ChangeTime           Filetime
	Attributes           uint32
	Pad1                 uint32
	AllocationSize       uint64
	EndOfFile            uint64
	NumberOfLinks        uint32
	DeletePending        uint8
	Directory            uint8
	Pad2                 uint16
	IndexNumber          uint64
	EASize               uint32
	AccessFlags          uint32
	CurrentByteOffset    uint64
	Mode                 uint32
	AlignmentRequirement uint32
	FileNameLength       uint32
}

// PosixInfoSize is the encoded size of the fixed part of the SMB3.1.1
// POSIX query response, excluding the variable-length owner/group SIDs.
const PosixInfoSize = 80

// PosixInfo is the fixed part of the SMB3.1.1 POSIX extensions query
// result (SMB_FIND_FILE_POSIX_INFO). The owner and group SIDs that
// follow on the wire are variable-length and not captured here.
type PosixInfo struct {
	CreationTime   Filetime
	LastAccessTime Filetime
	LastWriteTime  Filetime
	ChangeTime     Filetime
	EndOfFile      uint64
	AllocationSize uint64
	DosAttributes  uint32
	Inode          uint64
	DeviceID       uint32
	Zero           uint32
	HardLinks      uint32
	ReparseTag     uint32
	Mode           uint32
	Reserved       uint32
}

// FileBasicInfoSize is the encoded size of FILE_BASIC_INFORMATION
// (MS-FSCC Section 2.4.7).
const FileBasicInfoSize = 40

// FileBasicInfo is the FILE_BASIC_INFORMATION block used by SetInfo to
// update timestamps and DOS attributes (MS-FSCC Section 2.4.7).
type FileBasicInfo struct {
	CreationTime   Filetime
	LastAccessTime Filetime
	LastWriteTime  Filetime
	ChangeTime     Filetime
	Attributes     uint32
	Pad            uint32
}

// IsZero reports whether the block would be a no-op when sent: every
// settable field is zero, meaning "no change" per MS-FSCC.
func (fi *FileBasicInfo) IsZero() bool {
	return fi.CreationTime == 0 && fi.LastAccessTime == 0 &&
		fi.LastWriteTime == 0 && fi.ChangeTime == 0 && fi.Attributes == 0
}

// DOS attribute bits (MS-FSCC Section 2.6).
const (
	AttrReadonly  uint32 = 0x00000001
	AttrHidden    uint32 = 0x00000002
	AttrSystem    uint32 = 0x00000004
	AttrDirectory uint32 = 0x00000010
	AttrArchive   uint32 = 0x00000020
	AttrNormal    uint32 = 0x00000080
)

// RenameInfoSize is the encoded size of the fixed part of
// FILE_RENAME_INFORMATION (MS-FSCC Section 2.4.37): ReplaceIfExists,
// 7 reserved bytes, RootDirectory and FileNameLength, excluding the
// variable-length target name.
const RenameInfoSize = 20

// MaxPath bounds the UTF-16 encoded length of a single path, matching
// the limit the engine applies when sizing query response buffers.
const MaxPath = 4096
