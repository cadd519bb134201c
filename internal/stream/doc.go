// Package stream implements a broadcast value stream with replay-of-last
// semantics for late subscribers, backed by per-subscriber growable queues
// so delivery preserves order without dropping.
package stream
