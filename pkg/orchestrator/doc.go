/*
Package orchestrator drives the monitor's lifecycle.

One lifecycle pass covers a single mover run under a fresh correlation id:

	IDLE -> DETECTING -> MONITORING -> COMPLETING -> IDLE

Detection watches the PID file and scans the process table by name; the
first sighting captures a baseline disk sample that becomes the zero point
for progress. While monitoring, each interval tick takes a cached sample,
feeds the estimator, and publishes progress events that the bridge turns
into notifications. The PID file disappearing, or the process leaving the
process table, moves the pass to completion, which reports the last
observed percent, not an assumed 100.

Errors are classified and counted in a sliding window. Repeats past the
threshold (or any critical error) escalate: an error event is published and
the machine walks ERROR -> RECOVERING -> IDLE when the category's strategy
allows a retry, or ERROR -> SHUTDOWN when it does not.

Shutdown is ordered so nothing is lost: the bridge detaches first, the
dispatcher drains its queue inside the grace period, then the PID watcher
stops. The state machine snapshot persists across restarts; transient
states restore as IDLE so a new pass re-detects cleanly.
*/
package orchestrator
