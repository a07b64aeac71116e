package compound

import "github.com/marmos91/dittosmb/internal/protocol/smb/types"

// ============================================================================
// Operation Kinds
// ============================================================================

// Kind identifies one of the compound filesystem operations the engine
// knows how to build, send and interpret.
type Kind int

const (
	// KindQueryInfo queries FILE_ALL_INFORMATION for a path.
	KindQueryInfo Kind = iota

	// KindPosixQueryInfo queries the SMB3.1.1 POSIX information level.
	KindPosixQueryInfo

	// KindDelete removes a file. The removal rides entirely on the
	// open (delete-on-close), so the kind itself needs no operate slot.
	KindDelete

	// KindMkdir creates a directory. Creation rides entirely on the
	// open's create disposition and options.
	KindMkdir

	// KindRmdir removes a directory via FILE_DISPOSITION_INFORMATION.
	KindRmdir

	// KindSetEOF truncates or extends a file via
	// FILE_END_OF_FILE_INFORMATION.
	KindSetEOF

	// KindSetInfo updates timestamps/attributes via
	// FILE_BASIC_INFORMATION.
	KindSetInfo

	// KindRename renames via FILE_RENAME_INFORMATION.
	KindRename

	// KindHardlink links via FILE_LINK_INFORMATION.
	KindHardlink
)

// String returns the operation name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindQueryInfo:
		return "QUERY_INFO"
	case KindPosixQueryInfo:
		return "POSIX_QUERY_INFO"
	case KindDelete:
		return "DELETE"
	case KindMkdir:
		return "MKDIR"
	case KindRmdir:
		return "RMDIR"
	case KindSetEOF:
		return "SET_EOF"
	case KindSetInfo:
		return "SET_INFO"
	case KindRename:
		return "RENAME"
	case KindHardlink:
		return "HARDLINK"
	default:
		return "UNKNOWN"
	}
}

// Arity is the number of operate slots the kind occupies between the
// open and close: zero for the kinds that ride entirely on the open.
func (k Kind) Arity() int {
	switch k {
	case KindDelete, KindMkdir:
		return 0
	default:
		return 1
	}
}

// isQuery reports whether the kind extracts an attribute payload from
// its response.
func (k Kind) isQuery() bool {
	return k == KindQueryInfo || k == KindPosixQueryInfo
}

// openTriple is the access-right/create-disposition/create-options
// triple a kind uses when the transaction opens its own handle.
type openTriple struct {
	access      uint32
	disposition uint32
	options     uint32
}

// kindDefaults maps each kind to its open triple. The query kinds may
// have OpenReparsePoint added to options by the retry controller.
var kindDefaults = map[Kind]openTriple{
	KindQueryInfo:      {types.FileReadAttributes, types.FileOpen, 0},
	KindPosixQueryInfo: {types.FileReadAttributes, types.FileOpen, 0},
	KindDelete:         {types.Delete, types.FileOpen, types.CreateDeleteOnClose | types.OpenReparsePoint},
	KindMkdir:          {types.FileWriteAttributes, types.FileCreate, types.CreateNotFile},
	KindRmdir:          {types.Delete, types.FileOpen, types.CreateNotFile},
	KindSetEOF:         {types.FileWriteData, types.FileOpen, 0},
	KindSetInfo:        {types.FileWriteAttributes, types.FileOpen, 0},
	KindRename:         {types.Delete, types.FileOpen, 0},
	KindHardlink:       {types.FileReadAttributes, types.FileOpen, 0},
}
