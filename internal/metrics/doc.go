// Package metrics exports coordination activity as Prometheus series.
//
// A Collector subscribes to an event.Bus and counts what flows past: action
// transitions, cleanup sweeps, dependency waits, stage transitions,
// approvals, and emergency stops. It holds no state beyond the Prometheus
// collectors, so counts start from zero in each process.
package metrics
