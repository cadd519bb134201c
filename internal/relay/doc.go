// Package relay republishes connection events to NATS subjects.
//
// Each event is JSON-encoded and published fire-and-forget to
// <prefix>.<kind> (for example ws.frame). Publishing is best-effort;
// failures are counted and logged without slowing the event stream.
package relay
