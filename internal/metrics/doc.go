// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Engine evaluation and stage transition counts
//   - Alert dispatch vs dedup suppression rates
//   - Broker API failure counts
//   - Monitor sweep latency
package metrics
