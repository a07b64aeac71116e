package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/protocol/smb/codec"
	"github.com/marmos91/dittosmb/internal/protocol/smb/types"
)

// ============================================================================
// Direct TCP Transport
// ============================================================================
//
// SMB2 over direct TCP (port 445) frames each message with a 4-byte
// header: a zero byte followed by a 24-bit big-endian payload length
// (MS-SMB2 Section 2.1). A compound travels as one frame containing the
// concatenated requests, each header's NextCommand pointing at the next.
//
// This transport handles framing, compound concatenation/splitting,
// message-ID stamping and response buffer pooling. It assumes session
// setup (negotiate, authentication, tree connect) has already been
// performed on the wrapped endpoint; stamping of tree and session
// identifiers uses the values the dialer was given.

// maxFrameSize bounds a single received frame (MS-SMB2 allows 16MB-1).
const maxFrameSize = 1<<24 - 1

// TCPTransport is a Transport over an established direct-TCP endpoint.
type TCPTransport struct {
	sessionID uint64
	treeID    uint32

	writeTimeout time.Duration
	readTimeout  time.Duration

	mu        sync.Mutex
	conn      net.Conn
	messageID uint64

	pool sync.Pool
}

// TCPOptions configures a TCPTransport.
type TCPOptions struct {
	// SessionID and TreeID are stamped onto every outgoing packet.
	// They come from the externally performed session setup.
	SessionID uint64
	TreeID    uint32

	// ReadTimeout and WriteTimeout bound each network operation.
	// Zero means no timeout.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewTCPTransport wraps an established connection.
func NewTCPTransport(conn net.Conn, opts TCPOptions) *TCPTransport {
	return &TCPTransport{
		sessionID:    opts.SessionID,
		treeID:       opts.TreeID,
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
		conn:         conn,
		pool: sync.Pool{
			New: func() any { return []byte(nil) },
		},
	}
}

// DialTCP connects to addr and wraps the connection.
func DialTCP(ctx context.Context, addr string, opts TCPOptions) (*TCPTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	logger.Debug("connected to %s", addr)
	return NewTCPTransport(conn, opts), nil
}

// Close closes the underlying connection.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.Close()
}

// Send implements Transport. The request batch is concatenated into one
// frame with 8-byte alignment between packets and NextCommand offsets
// patched, then the response frame is split back into per-request
// responses.
func (t *TCPTransport) Send(ctx context.Context, reqs [][]byte) ([]Response, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("empty request batch")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	frame, err := t.buildFrame(reqs)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetDeadline(deadline)
	} else {
		if t.writeTimeout > 0 {
			_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
		}
		if t.readTimeout > 0 {
			_ = t.conn.SetReadDeadline(time.Now().Add(t.readTimeout))
		}
	}

	if err := t.writeFrame(frame); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}

	responses := make([]Response, len(reqs))
	received, err := t.readFrame()
	if err != nil {
		return responses, fmt.Errorf("read frame: %w", err)
	}

	if err := t.splitResponses(received, responses); err != nil {
		return responses, err
	}
	return responses, firstFailure(responses)
}

// Release implements Transport, returning pooled buffers for reuse.
func (t *TCPTransport) Release(r *Response) {
	if r == nil || r.Kind != BufferPooled || r.Buf == nil {
		return
	}
	t.pool.Put(r.Buf[:0])
	r.Buf = nil
	r.Kind = BufferNone
}

// buildFrame concatenates the batch, stamping identity and chaining.
func (t *TCPTransport) buildFrame(reqs [][]byte) ([]byte, error) {
	total := 0
	for i, req := range reqs {
		if len(req) < types.HeaderSize {
			return nil, fmt.Errorf("request %d shorter than a header", i)
		}
		total = align8(total) + len(req)
	}
	if total > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds maximum", total)
	}

	frame := make([]byte, 0, total)
	for i, req := range reqs {
		if pad := align8(len(frame)) - len(frame); pad > 0 {
			frame = append(frame, make([]byte, pad)...)
		}
		start := len(frame)
		frame = append(frame, req...)

		packet := frame[start:]
		t.messageID++
		codec.SetMessageID(packet, t.messageID)
		codec.SetSessionID(packet, t.sessionID)
		codec.SetTreeID(packet, t.treeID)

		if i < len(reqs)-1 {
			next := align8(len(req))
			codec.SetNextCommand(packet, uint32(next))
		}
	}
	return frame, nil
}

// writeFrame sends one direct-TCP framed message.
func (t *TCPTransport) writeFrame(payload []byte) error {
	var hdr [4]byte
	hdr[1] = byte(len(payload) >> 16)
	hdr[2] = byte(len(payload) >> 8)
	hdr[3] = byte(len(payload))

	if _, err := t.conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := t.conn.Write(payload)
	return err
}

// readFrame receives one direct-TCP framed message into a pooled buffer.
func (t *TCPTransport) readFrame() ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(t.conn, hdr[:]); err != nil {
		return nil, err
	}
	if hdr[0] != 0 {
		return nil, fmt.Errorf("bad frame header byte 0x%02X", hdr[0])
	}

	length := int(hdr[1])<<16 | int(hdr[2])<<8 | int(hdr[3])
	if length > maxFrameSize {
		return nil, fmt.Errorf("frame length %d exceeds maximum", length)
	}

	buf := t.pool.Get().([]byte)
	if cap(buf) < length {
		buf = make([]byte, length)
	}
	buf = buf[:length]

	if _, err := io.ReadFull(t.conn, buf); err != nil {
		t.pool.Put(buf[:0])
		return nil, err
	}
	return buf, nil
}

// splitResponses walks the compound response frame, copying each packet
// into its own pooled buffer so slots can be released independently.
func (t *TCPTransport) splitResponses(frame []byte, out []Response) error {
	offset := 0
	for i := range out {
		if offset >= len(frame) {
			return fmt.Errorf("response frame ended after %d of %d packets", i, len(out))
		}

		rest := frame[offset:]
		hdr, err := codec.ParseHeader(rest)
		if err != nil {
			return fmt.Errorf("parse response %d: %w", i, err)
		}

		length := len(rest)
		if hdr.NextCommand != 0 {
			if int(hdr.NextCommand) > len(rest) {
				return fmt.Errorf("response %d next command %d out of range", i, hdr.NextCommand)
			}
			length = int(hdr.NextCommand)
		}

		packet := t.pool.Get().([]byte)
		if cap(packet) < length {
			packet = make([]byte, length)
		}
		packet = packet[:length]
		copy(packet, rest[:length])

		out[i] = Response{Buf: packet, Kind: BufferPooled}
		offset += length
	}
	t.pool.Put(frame[:0])
	return nil
}

// firstFailure scans the responses for the first non-success status.
func firstFailure(responses []Response) error {
	for i, r := range responses {
		if r.Kind == BufferNone {
			continue
		}
		hdr, err := codec.ParseHeader(r.Buf)
		if err != nil {
			return fmt.Errorf("parse response %d: %w", i, err)
		}
		if hdr.Status != types.StatusSuccess {
			return &StatusError{Status: hdr.Status, Slot: i}
		}
	}
	return nil
}

// align8 rounds n up to the next multiple of 8.
func align8(n int) int {
	return (n + 7) &^ 7
}
