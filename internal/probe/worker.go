package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cfletcher/netwatch/internal/logstore"
	"github.com/cfletcher/netwatch/internal/metrics"
	"github.com/cfletcher/netwatch/internal/topic"
)

const (
	// restartDelay is how long a ping worker waits before relaunching its
	// subprocess after an exit or spawn failure.
	restartDelay = 5 * time.Second

	// unreachableBackoff is the traceroute pause after a failed pre-check.
	unreachableBackoff = 30 * time.Second

	// cycleDelay separates consecutive traceroute runs.
	cycleDelay = time.Second

	// tracerouteTimeout bounds one traceroute subprocess invocation.
	tracerouteTimeout = 2 * time.Minute

	lineTimeFormat = "2006-01-02 15:04:05"
)

// Config identifies the (target, kind) pair a worker monitors.
type Config struct {
	Target   string
	Label    string // e.g. "INTERNAL", "EXTERNAL_A"
	Kind     Kind
	Internal bool // internal targets get a reachability pre-check before traceroute
}

// Worker maintains an unending probe loop for one (target, kind) pair.
// Errors of any kind are logged and recovered; the loop only exits on
// context cancellation.
type Worker struct {
	cfg      Config
	category string

	store    *logstore.Store
	topic    *topic.Topic
	runner   Runner
	precheck Prechecker
	settings SettingsFunc
	logger   *zap.Logger
	now      func() time.Time

	// Delays are fields so tests can compress them.
	restartDelay       time.Duration
	unreachableBackoff time.Duration
	cycleDelay         time.Duration
}

// NewWorker wires a worker to its log category and topic buffer. The topic is
// resolved through the registry by the deterministic (kind, label) name, so
// live subscribers find it without registration.
func NewWorker(cfg Config, store *logstore.Store, reg *topic.Registry, settings SettingsFunc, logger *zap.Logger) *Worker {
	capacity := topic.PingCapacity
	if cfg.Kind == KindTraceroute {
		capacity = topic.TracerouteCapacity
	}
	return &Worker{
		cfg:      cfg,
		category: string(cfg.Kind),
		store:    store,
		topic:    reg.Get(topic.Name(string(cfg.Kind), cfg.Label), capacity),
		runner:   execRunner{},
		precheck: icmpPrechecker{},
		settings: settings,
		logger: logger.With(
			zap.String("label", cfg.Label),
			zap.String("kind", string(cfg.Kind)),
			zap.String("target", cfg.Target),
		),
		now:                time.Now,
		restartDelay:       restartDelay,
		unreachableBackoff: unreachableBackoff,
		cycleDelay:         cycleDelay,
	}
}

// Topic returns the worker's live buffer.
func (w *Worker) Topic() *topic.Topic { return w.topic }

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	switch w.cfg.Kind {
	case KindPing:
		w.runPing(ctx)
	case KindTraceroute:
		w.runTraceroute(ctx)
	default:
		w.logger.Error("unknown probe kind")
	}
}

// runPing launches the continuous ping subprocess and consumes its output,
// restarting after a fixed delay whenever the process dies. Never returns
// except on cancellation.
func (w *Worker) runPing(ctx context.Context) {
	name, args := pingCommand(w.cfg.Target)
	for ctx.Err() == nil {
		lines, err := w.runner.Run(ctx, name, args...)
		if err != nil {
			w.logger.Warn("ping spawn failed", zap.Error(err))
			metrics.ProbeRestarts.WithLabelValues(w.cfg.Label).Inc()
			if !sleepCtx(ctx, w.restartDelay) {
				return
			}
			continue
		}

		w.consumePing(ctx, lines)
		if err := lines.Close(); err != nil && ctx.Err() == nil {
			w.logger.Warn("ping subprocess exited", zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}

		w.logger.Info("restarting ping subprocess")
		metrics.ProbeRestarts.WithLabelValues(w.cfg.Label).Inc()
		if !sleepCtx(ctx, w.restartDelay) {
			return
		}
	}
}

// consumePing turns the subprocess's data lines into records until the stream
// ends. The ping interval is re-read from settings on every iteration, so
// changes take effect without a restart.
func (w *Worker) consumePing(ctx context.Context, lines LineReader) {
	for {
		line, err := lines.Next()
		if err != nil {
			return
		}
		if skipPingLine(line) {
			continue
		}

		line = strings.TrimSpace(line)
		latency, success := parsePingLine(line)
		w.emit(Record{
			Timestamp: w.now(),
			Target:    w.cfg.Target,
			Label:     w.cfg.Label,
			Kind:      KindPing,
			Raw:       line,
			LatencyMs: latency,
			Success:   success,
		})

		if !sleepCtx(ctx, w.settings().PingInterval) {
			return
		}
	}
}

// runTraceroute runs trace cycles forever: optional reachability pre-check,
// start marker, one record per hop line, short sleep, repeat.
func (w *Worker) runTraceroute(ctx context.Context) {
	for ctx.Err() == nil {
		if w.cfg.Internal && !w.precheckTarget(ctx) {
			if !sleepCtx(ctx, w.unreachableBackoff) {
				return
			}
			continue
		}

		w.traceOnce(ctx)

		if !sleepCtx(ctx, w.cycleDelay) {
			return
		}
	}
}

// precheckTarget reports whether the target answered the quick reachability
// probe, emitting a synthetic error record when it did not.
func (w *Worker) precheckTarget(ctx context.Context) bool {
	reachable, err := w.precheck.Reachable(ctx, w.cfg.Target, w.settings().ScanTimeout)
	if err != nil {
		return false // cancelled; loop boundary handles it
	}
	if reachable {
		return true
	}

	w.logger.Warn("target unreachable, backing off")
	w.emit(Record{
		Timestamp: w.now(),
		Target:    w.cfg.Target,
		Label:     w.cfg.Label,
		Kind:      KindTraceroute,
		Raw:       fmt.Sprintf("Target %s unreachable, traceroute skipped", w.cfg.Target),
		Success:   false,
	})
	return false
}

// traceOnce performs a single bounded traceroute run, streaming each hop line
// as a record.
func (w *Worker) traceOnce(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, tracerouteTimeout)
	defer cancel()

	start := w.now()
	w.emit(Record{
		Timestamp: start,
		Target:    w.cfg.Target,
		Label:     w.cfg.Label,
		Kind:      KindTraceroute,
		Raw:       fmt.Sprintf("--- Traceroute started at %s ---", start.Format(lineTimeFormat)),
		Success:   true,
	})

	name, args := tracerouteCommand(w.cfg.Target)
	lines, err := w.runner.Run(rctx, name, args...)
	if err != nil {
		w.logger.Warn("traceroute spawn failed", zap.Error(err))
		w.emit(Record{
			Timestamp: w.now(),
			Target:    w.cfg.Target,
			Label:     w.cfg.Label,
			Kind:      KindTraceroute,
			Raw:       fmt.Sprintf("Traceroute command failed: %v", err),
			Success:   false,
		})
		return
	}

	for {
		line, err := lines.Next()
		if err != nil {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		w.emit(Record{
			Timestamp: w.now(),
			Target:    w.cfg.Target,
			Label:     w.cfg.Label,
			Kind:      KindTraceroute,
			Raw:       strings.TrimSpace(line),
			Success:   true,
		})
	}
	if err := lines.Close(); err != nil && ctx.Err() == nil {
		w.logger.Warn("traceroute run ended with error", zap.Error(err))
	}
}

// emit writes a record to the log store and publishes it to the topic.
// Store failures are logged and skipped, never propagated.
func (w *Worker) emit(rec Record) {
	if err := w.store.Append(w.category, w.cfg.Label, rec.Raw); err != nil {
		w.logger.Warn("log append failed", zap.Error(err))
	}
	w.topic.Publish(topic.Event{
		Source:    w.cfg.Label,
		Timestamp: rec.Timestamp,
		Payload:   rec,
	})
}

// sleepCtx sleeps for d unless the context is cancelled first; it reports
// whether the caller should keep running.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
