package codec

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// ============================================================================
// Path Encoding - Go Strings ↔ UTF-16LE Wire Names
// ============================================================================
//
// SMB2 transmits all path names as UTF-16LE without a trailing null
// (the name length field delimits them). Paths use backslash separators
// and are relative to the share root; a leading separator is stripped
// so that "" and "\" both mean the share root.

// EncodePath converts a share-relative path into its UTF-16LE wire form.
//
// Forward slashes are accepted and normalized to backslashes so callers
// can pass POSIX-style paths. The result carries no trailing null.
//
// Parameters:
//   - path: Share-relative path ("" or "\" for the root)
//
// Returns:
//   - []byte: UTF-16LE encoded name (empty for the root)
//   - error: Path exceeds types.MaxPath once encoded
func EncodePath(path string) ([]byte, error) {
	path = strings.ReplaceAll(path, "/", "\\")
	path = strings.TrimPrefix(path, "\\")

	units := utf16.Encode([]rune(path))
	if len(units)*2 > types.MaxPath {
		return nil, fmt.Errorf("path exceeds %d bytes encoded: %q", types.MaxPath, path)
	}

	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	return out, nil
}

// EncodeUTF16String converts a Go string into UTF-16LE wire bytes
// verbatim, with no path normalization and no trailing null.
func EncodeUTF16String(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	return out
}

// DecodeUTF16String converts UTF-16LE wire bytes back into a Go string.
//
// Parameters:
//   - data: UTF-16LE bytes; must have even length
//
// Returns:
//   - string: Decoded string
//   - error: Odd-length input
func DecodeUTF16String(data []byte) (string, error) {
	if len(data)%2 != 0 {
		return "", fmt.Errorf("utf16 data has odd length %d", len(data))
	}

	units := make([]uint16, len(data)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(data[i*2:])
	}
	return string(utf16.Decode(units)), nil
}
