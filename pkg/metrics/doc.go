/*
Package metrics defines and registers ledgerd's Prometheus metrics and
serves them over the standard text exposition endpoint.

Metrics fall into four groups:

  - Request: per-method dispatch counts and latency, recorded by the
    event loop around every frame it serves.
  - Context: child-context pool occupancy and exhaustion counts,
    recorded by the context pool itself.
  - Canonization / process queue: block_make latency and outcomes,
    current chain height, queue depth, and submit/drop counters,
    recorded at the handler call sites.
  - Storage: transaction durations and begin/commit failures.

All metrics register against the default registry at package init;
Handler exposes them for scraping. health.go adds the /health, /ready,
and /live endpoints fed by component registrations from the daemon's
startup path.
*/
package metrics
