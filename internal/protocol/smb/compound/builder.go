package compound

import (
	"bytes"
	"fmt"

	"github.com/marmos91/dittosmb/internal/protocol/smb/codec"
	"github.com/marmos91/dittosmb/internal/protocol/smb/pdu"
	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// ============================================================================
// Compound Request Builder
// ============================================================================

// queryOutputLength is the response buffer size requested for
// FILE_ALL_INFORMATION queries: the fixed block plus room for the
// longest possible name.
const queryOutputLength = types.FileAllInfoSize + 2*types.MaxPath

// posixOutputLength additionally leaves room for the owner and group
// SIDs trailing the POSIX block.
const posixOutputLength = types.PosixInfoSize + 2*types.MaxPath + 2*80

// deletePending is the FILE_DISPOSITION_INFORMATION payload marking the
// handle's file for deletion (MS-FSCC Section 2.4.11).
var deletePending = []byte{1}

// build populates a Transaction for the given kind.
//
// With no caller handle the transaction owns its open: slot 0 is a
// CREATE for the path, the kind's operate request (if any) follows
// addressed at the compound placeholder, and a CLOSE of that same
// placeholder ends the chain. Each slot after the first is marked
// related so the transport executes the chain as one atomic compounded
// transaction.
//
// With a caller handle, only the operate slots are populated, addressed
// at the handle's real identifiers, and nothing is opened or closed -
// the engine is acting on a handle it does not own.
func (e *Engine) build(
	path string,
	access, disposition, createOptions, mode uint32,
	kind Kind,
	params *opParams,
	h *Handle,
) (*Transaction, error) {
	txn := &Transaction{ownsOpen: h == nil}

	fid := types.CompoundFileID
	if h != nil {
		fid = h.ID
	}

	// Open
	if txn.ownsOpen {
		wireName, err := codec.EncodePath(path)
		if err != nil {
			return nil, encodeError("path", err)
		}

		payload, err := pdu.EncodeCreate(&pdu.CreateParams{
			Name:              wireName,
			DesiredAccess:     access,
			CreateDisposition: disposition,
			CreateOptions:     createOptions,
			Mode:              mode,
			OplockLevel:       types.OplockLevelNone,
		})
		if err != nil {
			return nil, encodeError("create request", err)
		}
		txn.slots[txn.count] = requestSlot{tag: slotOpen, payload: payload}
		txn.count++
	}

	// Operation
	payload, err := e.encodeOperation(kind, fid, params)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		slot := requestSlot{tag: slotOperate, payload: payload}
		if txn.ownsOpen {
			slot.related = true
			codec.SetRelatedFlag(slot.payload)
		}
		txn.slots[txn.count] = slot
		txn.count++
	}

	// Close
	if txn.ownsOpen {
		payload, err := pdu.EncodeClose(types.CompoundFileID)
		if err != nil {
			return nil, encodeError("close request", err)
		}
		codec.SetRelatedFlag(payload)
		txn.slots[txn.count] = requestSlot{tag: slotClose, payload: payload, related: true}
		txn.count++
	}

	return txn, nil
}

// encodeOperation encodes the kind's own request, or returns nil for
// the kinds that ride entirely on the open.
func (e *Engine) encodeOperation(kind Kind, fid types.FileID, params *opParams) ([]byte, error) {
	switch kind {
	case KindQueryInfo:
		payload, err := pdu.EncodeQueryInfo(&pdu.QueryInfoParams{
			FileID:             fid,
			InfoType:           types.InfoFile,
			InfoClass:          types.FileAllInformation,
			OutputBufferLength: queryOutputLength,
		})
		if err != nil {
			return nil, encodeError("query info request", err)
		}
		return payload, nil

	case KindPosixQueryInfo:
		payload, err := pdu.EncodeQueryInfo(&pdu.QueryInfoParams{
			FileID:             fid,
			InfoType:           types.InfoFile,
			InfoClass:          types.FilePosixInformation,
			OutputBufferLength: posixOutputLength,
		})
		if err != nil {
			return nil, encodeError("posix query info request", err)
		}
		return payload, nil

	case KindDelete, KindMkdir:
		// Deletion rides on delete-on-close; directory creation rides
		// on the create disposition and options.
		return nil, nil

	case KindRmdir:
		return e.encodeSetInfo(fid, types.FileDispositionInformation, deletePending)

	case KindSetEOF:
		buf := new(bytes.Buffer)
		if err := writeUint64LE(buf, params.eof); err != nil {
			return nil, encodeError("end of file value", err)
		}
		return e.encodeSetInfo(fid, types.FileEndOfFileInformation, buf.Bytes())

	case KindSetInfo:
		buf := new(bytes.Buffer)
		if err := codec.EncodeFileBasicInfo(buf, params.basic); err != nil {
			return nil, encodeError("basic info block", err)
		}
		return e.encodeSetInfo(fid, types.FileBasicInformation, buf.Bytes())

	case KindRename:
		return e.encodeRenameLike(fid, types.FileRenameInformation, true, params.target)

	case KindHardlink:
		return e.encodeRenameLike(fid, types.FileLinkInformation, false, params.target)

	default:
		return nil, encodeError("operation", fmt.Errorf("invalid operation kind %d", kind))
	}
}

// encodeSetInfo encodes a single-part SET_INFO request.
func (e *Engine) encodeSetInfo(fid types.FileID, infoClass uint8, part []byte) ([]byte, error) {
	payload, err := pdu.EncodeSetInfo(&pdu.SetInfoParams{
		FileID:    fid,
		InfoClass: infoClass,
		Parts:     [][]byte{part},
	})
	if err != nil {
		return nil, encodeError("set info request", err)
	}
	return payload, nil
}

// encodeRenameLike encodes the two-part rename/link SET_INFO payload:
// the fixed info block, then the UTF-16 target name with its trailing
// null pair.
func (e *Engine) encodeRenameLike(fid types.FileID, infoClass uint8, replace bool, target []byte) ([]byte, error) {
	info := new(bytes.Buffer)
	if err := codec.EncodeRenameInfo(info, replace, uint32(len(target))); err != nil {
		return nil, encodeError("rename info block", err)
	}

	name := make([]byte, len(target)+2)
	copy(name, target)

	payload, err := pdu.EncodeSetInfo(&pdu.SetInfoParams{
		FileID:    fid,
		InfoClass: infoClass,
		Parts:     [][]byte{info.Bytes(), name},
	})
	if err != nil {
		return nil, encodeError("set info request", err)
	}
	return payload, nil
}

// writeUint64LE writes v little-endian.
func writeUint64LE(buf *bytes.Buffer, v uint64) error {
	var b [8]byte
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
	_, err := buf.Write(b[:])
	return err
}
