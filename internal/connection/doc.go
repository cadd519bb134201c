// Package connection implements the connection manager.
//
// The Manager:
//   - Owns at most one transport session at a time
//   - Republishes lifecycle transitions and received frames on a
//     current-value event stream
//   - Exposes send and ping as one-shot Pending results
//   - Guarantees no stale events are delivered after Disconnect returns
//
// The Supervisor layers redial-with-backoff on top; the Manager itself
// never reconnects.
package connection
