package config

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/protocol/smb/transport"
)

// tcpTransportConfig represents the direct-TCP transport section loaded
// from the configuration file.
//
// SessionID and TreeID come from the externally performed session setup
// (negotiate, authentication, tree connect) and are stamped onto every
// outgoing packet by the transport.
type tcpTransportConfig struct {
	SessionID uint64 `mapstructure:"session_id"`
	TreeID    uint32 `mapstructure:"tree_id"`
}

// CreateConnection dials the configured server and wraps the transport
// in a connection carrying the mount's DFS state.
//
// This factory function uses the Transport.Type field to determine which
// transport implementation to create, then decodes the type-specific
// configuration from the corresponding map.
//
// Supported types:
//   - "tcp": SMB2 over direct TCP (port 445)
//
// Parameters:
//   - ctx: Context for the connection attempt
//   - cfg: The complete DittoSMB configuration
//
// Returns:
//   - *transport.Conn: Connection ready for a compound engine
//   - *transport.TCPTransport: The underlying transport, for Close
//   - error: Dial or configuration error
func CreateConnection(ctx context.Context, cfg *Config) (*transport.Conn, *transport.TCPTransport, error) {
	switch cfg.Mount.Transport.Type {
	case "tcp":
		return createTCPConnection(ctx, cfg)
	default:
		return nil, nil, fmt.Errorf("unknown transport type: %q", cfg.Mount.Transport.Type)
	}
}

// createTCPConnection builds the direct-TCP transport from its config section.
func createTCPConnection(ctx context.Context, cfg *Config) (*transport.Conn, *transport.TCPTransport, error) {
	var tcpCfg tcpTransportConfig
	if err := mapstructure.Decode(cfg.Mount.Transport.TCP, &tcpCfg); err != nil {
		return nil, nil, fmt.Errorf("failed to decode tcp transport config: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Client.DialTimeout)
	defer cancel()

	t, err := transport.DialTCP(dialCtx, cfg.Mount.Address, transport.TCPOptions{
		SessionID:    tcpCfg.SessionID,
		TreeID:       tcpCfg.TreeID,
		ReadTimeout:  cfg.Client.ReadTimeout,
		WriteTimeout: cfg.Client.WriteTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", cfg.Mount.Address, err)
	}

	logger.Info("connected to %s for share %s", cfg.Mount.Address, cfg.Mount.Share)

	conn := transport.NewConn(t, cfg.Mount.Share,
		transport.WithDFSSupport(cfg.Mount.DFS),
		transport.WithNoDFS(cfg.Mount.NoDFS),
	)
	return conn, t, nil
}
