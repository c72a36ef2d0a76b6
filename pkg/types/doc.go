/*
Package types defines the core data structures shared across moverwatch.

This package contains the value types that cross component boundaries:
disk samples, PID file events, process descriptions, progress metrics,
notification messages, delivery tracking, lifecycle states, and classified
error records. Components exchange these by value so no locking is needed
once a value has been published.

# Core Types

  - DiskSample: one measurement of bytes used across the monitored paths
  - PIDFileEvent: created/modified/deleted transition of the mover PID file
  - ProcessInfo: a process-table entry for the mover process
  - ProgressMetrics: percent, rate, ETC and confidence at one instant
  - Message / QueuedMessage / DeliveryStatus: the notification pipeline
  - MonitorState: the orchestrator's lifecycle states
  - ErrorRecord: a classified, sanitized failure

All types are serializable with encoding/json and carry no behavior beyond
small derived accessors (Aggregate, Complete).
*/
package types
