package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moverwatch/moverwatch/pkg/metrics"
)

// healthCheck is one startup probe. Failures on required checks abort
// startup; optional ones only mark the component degraded.
type healthCheck struct {
	name     string
	required bool
	check    func(ctx context.Context) error
}

func (o *Orchestrator) healthChecks() []healthCheck {
	return []healthCheck{
		{
			name:     "store",
			required: true,
			check: func(context.Context) error {
				_, err := o.deps.Store.LoadSnapshot()
				return err
			},
		},
		{
			name:     "paths",
			required: true,
			check: func(context.Context) error {
				for _, p := range o.cfg.Process.Paths {
					if _, err := os.Stat(p); err != nil {
						return fmt.Errorf("monitored path %s: %w", p, err)
					}
				}
				return nil
			},
		},
		{
			name:     "watcher",
			required: false,
			check: func(context.Context) error {
				// The PID file itself may legitimately be absent; its
				// directory must exist for the watcher to observe creation.
				dir := filepath.Dir(o.cfg.Process.PIDFile)
				if _, err := os.Stat(dir); err != nil {
					return fmt.Errorf("pid file directory %s: %w", dir, err)
				}
				return nil
			},
		},
		{
			name:     "dispatcher",
			required: true,
			check: func(context.Context) error {
				if o.deps.Dispatcher == nil {
					return fmt.Errorf("no dispatcher configured")
				}
				return nil
			},
		},
	}
}

// runHealthChecks probes every component, records the results for the
// readiness endpoint, and fails on the first broken required component.
func (o *Orchestrator) runHealthChecks(ctx context.Context) error {
	var firstErr error
	for _, hc := range o.healthChecks() {
		err := hc.check(ctx)
		healthy := err == nil

		msg := ""
		if err != nil {
			msg = err.Error()
			o.logger.Warn().Err(err).Str("check", hc.name).Msg("health check failed")
		}
		metrics.RegisterComponent(hc.name, healthy, msg)

		if err != nil && hc.required && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", hc.name, err)
		}
	}
	return firstErr
}
