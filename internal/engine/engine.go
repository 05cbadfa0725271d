// Package engine supervises the monitoring workers: one ping and one
// traceroute prober per target, the discovery scanner, the housekeeping
// sweeper, and the settings watcher. All workers stop cooperatively when the
// engine is stopped.
package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/cfletcher/netwatch/internal/discovery"
	"github.com/cfletcher/netwatch/internal/logstore"
	"github.com/cfletcher/netwatch/internal/probe"
	"github.com/cfletcher/netwatch/internal/settings"
	"github.com/cfletcher/netwatch/internal/sweeper"
	"github.com/cfletcher/netwatch/internal/topic"
)

// Target is one monitored host.
type Target struct {
	Host     string
	Label    string // log/topic qualifier, e.g. "INTERNAL" or "EXTERNAL_A"
	Internal bool   // internal targets get a traceroute reachability pre-check
}

// Engine owns the worker set and their shared infrastructure.
type Engine struct {
	store     *logstore.Store
	topics    *topic.Registry
	watcher   *settings.Watcher
	discovery *discovery.Worker
	sweeper   *sweeper.Sweeper
	probes    []*probe.Worker
	logger    *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the engine for the given targets. Each target gets a ping worker
// and a traceroute worker sharing the settings watcher's snapshot.
func New(store *logstore.Store, topics *topic.Registry, watcher *settings.Watcher, targets []Target, logger *zap.Logger) *Engine {
	e := &Engine{
		store:   store,
		topics:  topics,
		watcher: watcher,
		logger:  logger,
	}

	probeSettings := func() probe.Settings {
		s := watcher.Current()
		return probe.Settings{PingInterval: s.PingInterval, ScanTimeout: s.ScanTimeout}
	}
	discoverySettings := func() discovery.Settings {
		s := watcher.Current()
		return discovery.Settings{Interval: s.DeviceInterval, ScanTimeout: s.ScanTimeout}
	}

	for _, t := range targets {
		for _, kind := range []probe.Kind{probe.KindPing, probe.KindTraceroute} {
			cfg := probe.Config{
				Target:   t.Host,
				Label:    t.Label,
				Kind:     kind,
				Internal: t.Internal,
			}
			e.probes = append(e.probes, probe.NewWorker(cfg, store, topics, probeSettings, logger))
		}
	}

	e.discovery = discovery.NewWorker(store, topics, discoverySettings, logger)
	e.sweeper = sweeper.New(store, logger)
	return e
}

// Start launches all workers. It returns immediately; the workers run until
// Stop is called or ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return // already running
	}

	ctx, e.cancel = context.WithCancel(ctx)

	e.spawn(ctx, e.watcher.Run)
	e.spawn(ctx, e.discovery.Run)
	e.spawn(ctx, e.sweeper.Run)
	for _, w := range e.probes {
		e.spawn(ctx, w.Run)
	}

	e.logger.Info("engine started",
		zap.Int("probe_workers", len(e.probes)),
	)
}

// Stop cancels every worker and waits for them to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	e.wg.Wait()
	e.logger.Info("engine stopped")
}

func (e *Engine) spawn(ctx context.Context, run func(context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		run(ctx)
	}()
}

// Store returns the shared log store.
func (e *Engine) Store() *logstore.Store { return e.store }

// Topics returns the shared topic registry.
func (e *Engine) Topics() *topic.Registry { return e.topics }

// Settings returns the settings watcher.
func (e *Engine) Settings() *settings.Watcher { return e.watcher }

// Discovery returns the discovery worker.
func (e *Engine) Discovery() *discovery.Worker { return e.discovery }

// Sweeper returns the housekeeping sweeper.
func (e *Engine) Sweeper() *sweeper.Sweeper { return e.sweeper }
