// Package transport provides the session capability consumed by the
// connection manager: open/submit/probe/receive/close primitives plus
// open and close lifecycle callbacks.
//
// The gorilla/websocket implementation owns all protocol concerns
// (handshake, framing, masking, ping/pong); callers only see frames.
package transport
