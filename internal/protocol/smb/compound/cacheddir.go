package compound

import (
	"context"

	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// ============================================================================
// Cached Directory Handles (external collaborator contract)
// ============================================================================

// CachedDir is a long-lived open directory handle, optionally carrying
// a pre-fetched attribute snapshot.
//
// The engine only reads the snapshot and the handle identifiers; the
// cache subsystem owns the handle's lifetime. Every successful OpenRoot
// must be balanced by exactly one Close, on every exit path.
type CachedDir struct {
	id           types.FileID
	allInfo      types.FileAllInfo
	allInfoValid bool
	release      func()
}

// NewCachedDir builds a cached directory handle. info may be nil when
// no snapshot was pre-fetched; release, if non-nil, runs on Close.
func NewCachedDir(id types.FileID, info *types.FileAllInfo, release func()) *CachedDir {
	d := &CachedDir{id: id, release: release}
	if info != nil {
		d.allInfo = *info
		d.allInfoValid = true
	}
	return d
}

// FileID returns the cached handle's identifiers.
func (d *CachedDir) FileID() types.FileID { return d.id }

// AllInfo returns the pre-fetched attribute snapshot and whether it is
// valid. An invalid snapshot means the caller must query the server
// using the handle's identifiers instead.
func (d *CachedDir) AllInfo() (*types.FileAllInfo, bool) {
	if !d.allInfoValid {
		return nil, false
	}
	return &d.allInfo, true
}

// Close releases the reference obtained from DirCache.OpenRoot.
func (d *CachedDir) Close() {
	if d.release != nil {
		d.release()
		d.release = nil
	}
}

// DirCache is the cached-directory-handle subsystem the engine consults
// for the filesystem root before building any transaction.
type DirCache interface {
	// OpenRoot returns a referenced cached handle for the share root,
	// or an error when no cached handle is available. path must be the
	// empty/root path; anything else fails.
	OpenRoot(ctx context.Context, path string) (*CachedDir, error)

	// DropByName invalidates any cached handle for the given path.
	// Called before operations that remove or rename the directory.
	DropByName(ctx context.Context, path string)
}
