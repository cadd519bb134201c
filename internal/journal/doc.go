// Package journal persists connection events to PostgreSQL in batches.
//
// Rows land in the ws_events table keyed by bridge instance and session.
// Batching follows size and interval thresholds; a failed flush drops the
// batch and counts an error rather than blocking the event stream.
package journal
