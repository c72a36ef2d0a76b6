package orchestrator

import (
	"context"
	"time"

	"github.com/moverwatch/moverwatch/pkg/events"
	"github.com/moverwatch/moverwatch/pkg/failure"
	"github.com/moverwatch/moverwatch/pkg/log"
	"github.com/moverwatch/moverwatch/pkg/metrics"
	"github.com/moverwatch/moverwatch/pkg/progress"
	"github.com/moverwatch/moverwatch/pkg/types"
)

// detectPollInterval paces the detection cycle between process-table scans.
const detectPollInterval = time.Second

// cycle is the per-lifecycle working set. A fresh one is built for every
// IDLE -> DETECTING pass so no state leaks between mover runs.
type cycle struct {
	pid        int32
	baseline   types.DiskSample
	startedAt  time.Time
	lastSample types.DiskSample
	last       types.ProgressMetrics
	reported   float64
}

// lifecycle runs one full pass: detect the mover, monitor it to completion,
// and return to IDLE. A fresh correlation id covers everything the pass
// does, logs included.
func (o *Orchestrator) lifecycle(ctx context.Context) {
	ctx = log.WithCorrelation(ctx, log.NewCorrelationID())

	if err := o.transition(ctx, types.StateDetecting); err != nil {
		o.fail(ctx, err, "transition")
		return
	}

	cyc, ok := o.detect(ctx)
	if !ok {
		// Not found inside the window, or shutting down. Back to IDLE for
		// the next pass; a detection failure has already walked the ERROR
		// edges, in which case the machine is no longer in DETECTING.
		if ctx.Err() == nil && o.deps.Machine.Current() == types.StateDetecting {
			if err := o.transition(ctx, types.StateIdle); err != nil {
				o.fail(ctx, err, "transition")
			}
		}
		return
	}

	if err := o.transition(ctx, types.StateMonitoring); err != nil {
		o.fail(ctx, err, "transition")
		return
	}

	o.monitor(ctx, cyc)

	if ctx.Err() != nil {
		return
	}
	if o.deps.Machine.Current() != types.StateMonitoring {
		// An escalated monitoring error already walked the ERROR edges.
		return
	}
	if err := o.transition(ctx, types.StateCompleting); err != nil {
		o.fail(ctx, err, "transition")
		return
	}
	o.complete(ctx, cyc)
	if err := o.transition(ctx, types.StateIdle); err != nil {
		o.fail(ctx, err, "transition")
	}
}

// detect waits for the mover to appear, via PID file events or a process
// table scan, bounded by the detection timeout (unbounded when zero).
func (o *Orchestrator) detect(ctx context.Context) (*cycle, bool) {
	deadline := time.Time{}
	if timeout := o.cfg.Monitoring.DetectionTimeout(); timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	ticker := time.NewTicker(detectPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, false

		case ev, open := <-o.deps.Watcher.Events():
			if !open {
				return nil, false
			}
			if ev.Type == types.PIDCreated && ev.PID > 0 {
				return o.beginCycle(ctx, ev.PID), true
			}

		case <-ticker.C:
			info, err := o.deps.Prober.FindByName(ctx, o.cfg.Process.Name)
			if err != nil {
				o.fail(ctx, err, "detection")
				return nil, false
			}
			if info != nil {
				return o.beginCycle(ctx, info.PID), true
			}
			if !deadline.IsZero() && time.Now().After(deadline) {
				log.Ctx(ctx).Debug().
					Str("component", "orchestrator").
					Str("process", o.cfg.Process.Name).
					Msg("detection window elapsed, mover not running")
				return nil, false
			}
		}
	}
}

// beginCycle captures the baseline sample and announces the mover.
// The cache is invalidated first so the baseline reflects this instant,
// not a measurement from the previous cycle.
func (o *Orchestrator) beginCycle(ctx context.Context, pid int32) *cycle {
	if o.deps.Cache != nil {
		o.deps.Cache.Invalidate()
	}
	baseline := o.sample(ctx)
	o.deps.Estimator.Reset()

	log.Ctx(ctx).Info().
		Str("component", "orchestrator").
		Int32("pid", pid).
		Int64("baseline_bytes", baseline.BytesUsed).
		Msg("mover detected, baseline captured")

	o.deps.Bus.Publish(ctx, events.Event{
		Topic: events.TopicMoverStarted,
		Payload: map[string]any{
			"pid":         pid,
			"total_bytes": baseline.BytesUsed,
			"paths":       o.cfg.Process.Paths,
		},
	})

	return &cycle{
		pid:        pid,
		baseline:   baseline,
		startedAt:  time.Now(),
		lastSample: baseline,
	}
}

// monitor samples on every tick until the mover goes away or ctx ends.
func (o *Orchestrator) monitor(ctx context.Context, cyc *cycle) {
	ticker := time.NewTicker(o.cfg.Monitoring.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, open := <-o.deps.Watcher.Events():
			if !open {
				return
			}
			switch ev.Type {
			case types.PIDDeleted:
				return
			case types.PIDModified:
				o.pidChanged(ctx, cyc, ev.PID)
			}

		case <-ticker.C:
			if gone := o.tick(ctx, cyc); gone {
				return
			}
		}
	}
}

// tick performs one monitoring step and reports whether the mover is gone.
func (o *Orchestrator) tick(ctx context.Context, cyc *cycle) bool {
	alive, err := o.deps.Prober.Exists(ctx, cyc.pid)
	if err != nil {
		if !o.absorb(ctx, err, "probe") {
			return true
		}
	} else if !alive {
		return true
	}

	sample := o.sample(ctx)
	cyc.lastSample = sample

	transferred := cyc.baseline.BytesUsed - sample.BytesUsed
	if transferred < 0 {
		// The share grew while draining; treat the new high-water mark as
		// the baseline so percent stays in range.
		cyc.baseline = sample
		transferred = 0
	}
	if err := o.deps.Estimator.AddSample(transferred, cyc.baseline.BytesUsed, sample.Timestamp); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("estimator rejected sample")
		return false
	}

	m := o.deps.Estimator.Metrics(progress.MethodAdaptive)
	cyc.last = m
	metrics.ProgressPercent.Set(m.Percent)
	metrics.ETCSeconds.Set(m.ETCSeconds)

	if m.Percent-cyc.reported >= o.cfg.Progress.MinChangeThreshold {
		cyc.reported = m.Percent
		o.deps.Bus.Publish(ctx, events.Event{
			Topic: events.TopicMoverProgress,
			Payload: map[string]any{
				"percent":     m.Percent,
				"rate":        m.RateBps,
				"etc_seconds": m.ETCSeconds,
				"confidence":  m.Confidence,
				"moved_bytes": m.BytesTransferred,
				"total_bytes": m.TotalBytes,
			},
		})
	}
	return false
}

// pidChanged handles the rare in-place pid rewrite. Rebaselining is a
// config decision; the default keeps the original zero point.
func (o *Orchestrator) pidChanged(ctx context.Context, cyc *cycle, pid int32) {
	log.Ctx(ctx).Warn().
		Str("component", "orchestrator").
		Int32("old_pid", cyc.pid).
		Int32("new_pid", pid).
		Msg("pid file rewritten while monitoring")

	if pid > 0 {
		cyc.pid = pid
	}
	if o.cfg.Monitoring.RebaselineOnPIDChange {
		if o.deps.Cache != nil {
			o.deps.Cache.Invalidate()
		}
		cyc.baseline = o.sample(ctx)
		cyc.lastSample = cyc.baseline
		cyc.reported = 0
		o.deps.Estimator.Reset()
	}
}

// complete emits the final progress and the completion event. The reported
// percent is whatever was last observed: a mover that crashed at 35% is
// reported at 35%, not forced to 100.
func (o *Orchestrator) complete(ctx context.Context, cyc *cycle) {
	if o.deps.Cache != nil {
		o.deps.Cache.Invalidate()
	}
	final := o.sample(ctx)

	transferred := cyc.baseline.BytesUsed - final.BytesUsed
	if transferred < 0 {
		transferred = 0
	}
	if err := o.deps.Estimator.AddSample(transferred, cyc.baseline.BytesUsed, final.Timestamp); err == nil {
		cyc.last = o.deps.Estimator.Metrics(progress.MethodAdaptive)
	}

	elapsed := time.Since(cyc.startedAt).Seconds()
	log.Ctx(ctx).Info().
		Str("component", "orchestrator").
		Float64("percent", cyc.last.Percent).
		Int64("moved_bytes", cyc.last.BytesTransferred).
		Float64("elapsed_seconds", elapsed).
		Msg("mover finished")

	o.deps.Bus.Publish(ctx, events.Event{
		Topic: events.TopicMoverCompleted,
		Payload: map[string]any{
			"percent":         cyc.last.Percent,
			"moved_bytes":     cyc.last.BytesTransferred,
			"total_bytes":     cyc.baseline.BytesUsed,
			"elapsed_seconds": elapsed,
		},
	})
	o.deps.Estimator.Reset()
}

// sample takes one disk usage measurement and records its metrics.
func (o *Orchestrator) sample(ctx context.Context) types.DiskSample {
	timer := metrics.NewTimer()
	s := o.deps.Sampler.Sample(ctx, o.cfg.Process.Paths, o.cfg.Progress.Exclusions)
	timer.ObserveDuration(metrics.SampleDuration)
	metrics.SamplesTotal.Inc()
	return s
}

// absorb classifies err and reports whether monitoring can continue.
// Escalated errors move the machine through ERROR and, when a strategy
// applies, RECOVERING back to IDLE.
func (o *Orchestrator) absorb(ctx context.Context, err error, opContext string) bool {
	rec := failure.NewRecord(err, opContext)
	metrics.ErrorsTotal.WithLabelValues(string(rec.Category), string(rec.Severity)).Inc()

	if !o.deps.Escalator.Observe(rec) {
		log.Ctx(ctx).Debug().
			Str("component", "orchestrator").
			Str("category", string(rec.Category)).
			Str("context", opContext).
			Str("cause", rec.Message).
			Msg("transient error absorbed")
		return true
	}

	o.escalate(ctx, rec)
	return false
}

// fail is the terminal error path: classify, publish, and walk the
// ERROR/RECOVERING edges.
func (o *Orchestrator) fail(ctx context.Context, err error, opContext string) {
	rec := failure.NewRecord(err, opContext)
	metrics.ErrorsTotal.WithLabelValues(string(rec.Category), string(rec.Severity)).Inc()
	o.escalate(ctx, rec)
}

func (o *Orchestrator) escalate(ctx context.Context, rec types.ErrorRecord) {
	log.Ctx(ctx).Error().
		Str("component", "orchestrator").
		Str("category", string(rec.Category)).
		Str("severity", string(rec.Severity)).
		Str("context", rec.Context).
		Msg(rec.Message)

	o.deps.Bus.Publish(ctx, events.Event{
		Topic: events.TopicMoverError,
		Payload: map[string]any{
			"category": string(rec.Category),
			"severity": string(rec.Severity),
			"message":  rec.Message,
			"context":  rec.Context,
		},
	})

	if err := o.transition(ctx, types.StateError); err != nil {
		o.logger.Warn().Err(err).Msg("error transition rejected")
		return
	}

	if failure.StrategyFor(rec.Category) == failure.StrategyNone {
		// No recovery applies. Exhausted recovery means shutdown; the run
		// loop stops once it sees the machine there.
		if err := o.transition(ctx, types.StateShutdown); err != nil {
			o.logger.Warn().Err(err).Msg("shutdown transition rejected")
		}
		return
	}

	if err := o.transition(ctx, types.StateRecovering); err != nil {
		o.logger.Warn().Err(err).Msg("recovery transition rejected")
		return
	}
	o.deps.Escalator.Reset()
	if err := o.transition(ctx, types.StateIdle); err != nil {
		o.logger.Warn().Err(err).Msg("recovery completion transition rejected")
	}
}
