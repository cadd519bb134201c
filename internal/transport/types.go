package transport

import (
	"context"
	"errors"
	"net/http"
)

// Errors
var (
	ErrSessionClosed = errors.New("session closed")
	ErrPongTimeout   = errors.New("no pong received")
)

// FrameKind classifies a received or outbound message unit.
type FrameKind int

const (
	FrameText FrameKind = iota + 1
	FrameBinary
)

// String returns the wire-facing name of the frame kind.
func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Frame is one discrete message unit exchanged over a session.
// Text frames carry UTF-8 bytes in Data.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// Text builds a text frame from a string.
func Text(s string) Frame {
	return Frame{Kind: FrameText, Data: []byte(s)}
}

// Binary builds a binary frame.
func Binary(b []byte) Frame {
	return Frame{Kind: FrameBinary, Data: b}
}

// Request describes the target of a session: URL plus extra handshake headers.
type Request struct {
	URL    string
	Header http.Header
}

// Callbacks are lifecycle notifications fired by the transport.
// OnOpen fires once the handshake completes; OnClose fires at most once
// when the session ends, whether by remote close or read failure.
type Callbacks struct {
	OnOpen  func(protocol string)
	OnClose func(code int, reason string)
}

// Session is one open network session. Implementations must be safe for
// concurrent Submit/Probe/ReceiveOnce/Close.
type Session interface {
	// Submit writes one frame to the session.
	Submit(ctx context.Context, frame Frame) error

	// Probe sends a keepalive ping and blocks until the peer acknowledges,
	// the context expires, or the session closes.
	Probe(ctx context.Context) error

	// ReceiveOnce blocks for the next frame from the peer.
	ReceiveOnce(ctx context.Context) (Frame, error)

	// Close sends a close message with the given code and reason and drops
	// the session. Safe to call more than once.
	Close(code int, reason string) error
}

// Dialer opens sessions. The returned Session is live and OnOpen has
// already fired when OpenSession returns nil.
type Dialer interface {
	OpenSession(ctx context.Context, req Request, cb Callbacks) (Session, error)
}
