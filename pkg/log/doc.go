/*
Package log provides structured logging for the monitor using zerolog.

The package wraps zerolog with three additions every record passes through:

  - A sanitizing writer on the sink. Serialized records are scrubbed of
    webhook URLs, bot tokens, and key-bearing query parameters before they
    reach any output, so a secret embedded in an error message never lands
    in a log file or syslog.
  - A correlation hook. Records carry a stable "correlation_id" field taken
    from the event's context, or "N/A" when none is bound. Bind an id with
    WithCorrelation and log through Ctx(ctx) to propagate it.
  - Optional syslog fan-out on the daemon facility alongside the console
    sink.

# Usage

	log.Init(log.Config{Level: "info", JSONOutput: true})

	logger := log.WithComponent("dispatch")
	logger.Info().Str("provider", "telegram").Msg("delivery succeeded")

	ctx := log.WithCorrelation(ctx, log.NewCorrelationID())
	log.Ctx(ctx).Warn().Err(err).Msg("sample failed")

Component loggers add a "component" field; helper functions (Debug, Info,
Warn, Error) log through the global logger for code without a component
identity.
*/
package log
