package transport

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/marmos91/dittosmb/internal/logger"
)

// Conn is the per-connection state shared by every transaction in
// flight on the same session.
//
// Concurrency: multiple transactions may run against one Conn at once,
// coordinated by the Transport. The needs-reconnect flag is the one
// piece of mutable state the compound engine touches; it is monotonic
// (set stays set) and safe to set from any number of goroutines.
type Conn struct {
	transport Transport

	// guid identifies this client instance to the server, generated
	// once per connection.
	guid uuid.UUID

	// share is the UNC name of the connected share, used in logs.
	share string

	// supportsDFS reports whether the connected server advertised DFS
	// capability during negotiation.
	supportsDFS bool

	// noDFS administratively disables DFS resolution for this mount
	// even when the server supports it.
	noDFS bool

	needsReconnect atomic.Bool
	warnDeleted    sync.Once
}

// ConnOption customizes a Conn at construction time.
type ConnOption func(*Conn)

// WithDFSSupport records whether the server advertised DFS capability.
func WithDFSSupport(supported bool) ConnOption {
	return func(c *Conn) { c.supportsDFS = supported }
}

// WithNoDFS administratively disables DFS resolution for this mount.
func WithNoDFS(disabled bool) ConnOption {
	return func(c *Conn) { c.noDFS = disabled }
}

// NewConn wraps a Transport with per-connection state for the given
// share.
func NewConn(t Transport, share string, opts ...ConnOption) *Conn {
	c := &Conn{
		transport: t,
		guid:      uuid.New(),
		share:     share,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transport returns the transport this connection sends through.
func (c *Conn) Transport() Transport { return c.transport }

// GUID returns the client instance identifier.
func (c *Conn) GUID() uuid.UUID { return c.guid }

// Share returns the UNC share name this connection is bound to.
func (c *Conn) Share() string { return c.share }

// DFSEnabled reports whether DFS referral resolution applies to this
// mount: the server must support it and it must not be administratively
// disabled.
func (c *Conn) DFSEnabled() bool { return c.supportsDFS && !c.noDFS }

// DFSSupported reports whether the server advertised DFS capability,
// regardless of the administrative override.
func (c *Conn) DFSSupported() bool { return c.supportsDFS }

// MarkReconnect marks the connection as needing re-establishment.
//
// Called when the server reports the share was deleted or renamed
// mid-session. Idempotent and sticky: once set the flag stays set until
// the connection is rebuilt, and concurrent transactions may all call
// this without coordination.
func (c *Conn) MarkReconnect() {
	c.warnDeleted.Do(func() {
		logger.Warn("server share %s deleted, connection needs reconnect", c.share)
	})
	c.needsReconnect.Store(true)
}

// NeedsReconnect reports whether the connection must be re-established
// before further use.
func (c *Conn) NeedsReconnect() bool {
	return c.needsReconnect.Load()
}
