// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection state and redial counts
//   - Frame and event rates by kind
//   - Disconnects by close code
//   - Journal and relay throughput
package metrics
