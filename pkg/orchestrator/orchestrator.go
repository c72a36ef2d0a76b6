package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/moverwatch/moverwatch/pkg/breaker"
	"github.com/moverwatch/moverwatch/pkg/bridge"
	"github.com/moverwatch/moverwatch/pkg/config"
	"github.com/moverwatch/moverwatch/pkg/disk"
	"github.com/moverwatch/moverwatch/pkg/dispatch"
	"github.com/moverwatch/moverwatch/pkg/events"
	"github.com/moverwatch/moverwatch/pkg/failure"
	"github.com/moverwatch/moverwatch/pkg/fsm"
	"github.com/moverwatch/moverwatch/pkg/log"
	"github.com/moverwatch/moverwatch/pkg/metrics"
	"github.com/moverwatch/moverwatch/pkg/notify"
	"github.com/moverwatch/moverwatch/pkg/pidfile"
	"github.com/moverwatch/moverwatch/pkg/proctable"
	"github.com/moverwatch/moverwatch/pkg/progress"
	"github.com/moverwatch/moverwatch/pkg/ratelimit"
	"github.com/moverwatch/moverwatch/pkg/storage"
	"github.com/moverwatch/moverwatch/pkg/types"
)

// Deps are the orchestrator's collaborators. New builds the production set
// from config; tests inject fakes.
type Deps struct {
	Machine    *fsm.Machine
	Sampler    disk.Sampler
	Cache      *disk.CachedSampler
	Estimator  *progress.Estimator
	Prober     proctable.Prober
	Watcher    *pidfile.Watcher
	Dispatcher *dispatch.Dispatcher
	Bridge     *bridge.Bridge
	Bus        *events.Bus
	Store      storage.Store
	Escalator  *failure.Escalator
}

// Orchestrator drives the monitor's lifecycle: detect the mover, baseline
// disk usage, sample and estimate while it runs, and report completion.
// Errors are classified and either recovered from or escalated into
// shutdown.
type Orchestrator struct {
	cfg    *config.Config
	deps   Deps
	logger zerolog.Logger

	watcherCancel context.CancelFunc
	watcherDone   chan struct{}
}

// New wires the full production stack from cfg. In dry-run mode every
// enabled provider is replaced by the log provider, so the whole pipeline
// runs but nothing leaves the process.
func New(cfg *config.Config) (*Orchestrator, error) {
	store, err := storage.NewBoltStore(cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	providers, err := buildProviders(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	bus := events.NewBus()
	limiter := ratelimit.New(ratelimit.Config{
		Capacity:    cfg.RateLimit.Capacity,
		RefillRate:  cfg.RateLimit.RefillRate,
		HourlyQuota: cfg.RateLimit.HourlyQuota,
	})
	breakers := breaker.NewManager(breaker.Settings{})

	dispatcher := dispatch.New(dispatch.Config{
		QueueSize:     cfg.Dispatch.QueueSize,
		Workers:       cfg.Dispatch.Workers,
		MaxAttempts:   cfg.Dispatch.MaxAttempts,
		Throttle:      secondsToDuration(cfg.Dispatch.ThrottleSeconds),
		DedupTTL:      secondsToDuration(cfg.Dispatch.DedupTTLSeconds),
		ShutdownGrace: secondsToDuration(cfg.Dispatch.ShutdownGraceSeconds),
	}, providers, limiter, breakers, store, bus)

	machine := fsm.New(types.StateIdle, fsm.Lifecycle())
	snap, err := store.LoadSnapshot()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load state snapshot: %w", err)
	}
	machine.Restore(normalizeSnapshot(snap))

	cache := disk.NewCachedSampler(disk.NewWalkSampler(), disk.DefaultCacheTTL)
	prober := proctable.NewSystemProber()

	deps := Deps{
		Machine:    machine,
		Sampler:    disk.NewAsyncSampler(cache),
		Cache:      cache,
		Estimator:  progress.NewEstimator(progress.Config{MaxSamples: cfg.Progress.EstimationWindow}),
		Prober:     prober,
		Watcher:    pidfile.NewWatcher(cfg.Process.PIDFile, time.Second, prober),
		Dispatcher: dispatcher,
		Bridge:     bridge.New(bus, dispatcher, bridge.DefaultRules(), 5*time.Minute),
		Bus:        bus,
		Store:      store,
		Escalator:  failure.NewEscalator(0, 0),
	}
	return NewWithDeps(cfg, deps), nil
}

// NewWithDeps creates an orchestrator over explicit collaborators.
func NewWithDeps(cfg *config.Config, deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: log.WithComponent("orchestrator"),
	}
}

// buildProviders constructs the enabled provider set, or the log provider
// alone in dry-run mode.
func buildProviders(cfg *config.Config) ([]notify.Provider, error) {
	if cfg.Monitoring.DryRun {
		p, err := notify.Create("log", nil)
		if err != nil {
			return nil, err
		}
		return []notify.Provider{p}, nil
	}

	providers := make([]notify.Provider, 0, len(cfg.Notifications.EnabledProviders))
	for _, name := range cfg.Notifications.EnabledProviders {
		p, err := notify.Create(name, cfg.ProviderSection(name))
		if err != nil {
			return nil, fmt.Errorf("failed to build provider %q: %w", name, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// normalizeSnapshot maps transient states from a previous run back to a
// restartable one. A process killed mid-monitoring resumes from IDLE and
// re-detects rather than pretending the old cycle survived.
func normalizeSnapshot(snap *storage.Snapshot) *storage.Snapshot {
	if snap == nil {
		return nil
	}
	switch snap.CurrentState {
	case types.StateIdle, types.StateSuspended:
		return snap
	default:
		snap.PreviousState = snap.CurrentState
		snap.CurrentState = types.StateIdle
		return snap
	}
}

// Run executes lifecycle cycles until ctx is cancelled, then shuts the
// pipeline down in order: bridge, dispatcher, watcher.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.runHealthChecks(ctx); err != nil {
		return fmt.Errorf("startup health check failed: %w", err)
	}

	if err := o.deps.Dispatcher.Start(); err != nil {
		return err
	}
	o.deps.Bridge.Start()
	o.startWatcher(ctx)
	metrics.UpdateComponent("dispatcher", true, "")
	metrics.UpdateComponent("watcher", true, "")

	o.logger.Info().
		Str("process", o.cfg.Process.Name).
		Strs("paths", o.cfg.Process.Paths).
		Dur("interval", o.cfg.Monitoring.Interval()).
		Bool("dry_run", o.cfg.Monitoring.DryRun).
		Msg("Orchestrator running")

	for ctx.Err() == nil && o.deps.Machine.Current() != types.StateShutdown {
		o.lifecycle(ctx)
	}

	o.shutdown()
	return nil
}

// startWatcher launches the PID watcher under its own cancel scope so
// shutdown can stop it after the dispatcher has drained.
func (o *Orchestrator) startWatcher(ctx context.Context) {
	wctx, cancel := context.WithCancel(ctx)
	o.watcherCancel = cancel
	o.watcherDone = make(chan struct{})

	go func() {
		defer close(o.watcherDone)
		var err error
		if o.cfg.Process.WatchStrategy == "notify" {
			err = o.deps.Watcher.RunNotify(wctx)
		} else {
			err = o.deps.Watcher.Run(wctx)
		}
		if err != nil && wctx.Err() == nil {
			o.logger.Error().Err(err).Msg("PID watcher stopped unexpectedly")
		}
	}()
}

func (o *Orchestrator) shutdown() {
	o.logger.Info().Msg("Shutting down")

	if o.deps.Machine.Current() != types.StateShutdown {
		if err := o.deps.Machine.TransitionTo(types.StateShutdown); err != nil {
			o.logger.Warn().Err(err).Msg("shutdown transition rejected")
		}
	}
	o.persistState()

	o.deps.Bridge.Stop()
	o.deps.Dispatcher.Stop()
	if o.watcherCancel != nil {
		o.watcherCancel()
		<-o.watcherDone
	}
	o.deps.Bus.Close()
	if err := o.deps.Store.Close(); err != nil {
		o.logger.Warn().Err(err).Msg("failed to close state store")
	}
	o.logger.Info().Msg("Shutdown complete")
}

// transition moves the state machine, records metrics, persists the
// snapshot, and announces the change on the bus.
func (o *Orchestrator) transition(ctx context.Context, target types.MonitorState) error {
	from := o.deps.Machine.Current()
	if err := o.deps.Machine.TransitionTo(target); err != nil {
		return err
	}

	metrics.StateTransitions.WithLabelValues(string(from), string(target)).Inc()
	metrics.MonitorState.WithLabelValues(string(from)).Set(0)
	metrics.MonitorState.WithLabelValues(string(target)).Set(1)

	log.Ctx(ctx).Info().
		Str("component", "orchestrator").
		Str("from", string(from)).
		Str("to", string(target)).
		Msg("state transition")

	o.persistState()
	o.deps.Bus.Publish(ctx, events.Event{
		Topic:   events.TopicStateChanged,
		Payload: map[string]any{"from": string(from), "to": string(target)},
	})
	return nil
}

func (o *Orchestrator) persistState() {
	if err := o.deps.Store.SaveSnapshot(o.deps.Machine.Snapshot()); err != nil {
		o.logger.Warn().Err(err).Msg("failed to persist state snapshot")
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
