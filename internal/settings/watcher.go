package settings

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Setting keys recognized by the watcher. Unknown keys in the repository are
// preserved but ignored here.
const (
	KeyPingInterval   = "ping_interval"   // seconds between ping log emissions
	KeyDeviceInterval = "device_interval" // seconds between device scans
	KeyAutoRestart    = "auto_restart"    // restart probe subprocesses on exit
	KeyAutoAlert      = "auto_alert"      // surface alerts for new devices
	KeyMaxLogSizeMB   = "max_log_size_mb" // size-rotation threshold
	KeyScanTimeout    = "scan_timeout"    // seconds allowed per scan/pre-check
)

// refreshInterval bounds how stale a snapshot can get between repository polls.
const refreshInterval = 5 * time.Second

// Snapshot is an immutable view of all tunables at one point in time. Workers
// read whole snapshots so a mid-cycle settings write never mixes old and new
// values.
type Snapshot struct {
	PingInterval   time.Duration
	DeviceInterval time.Duration
	AutoRestart    bool
	AutoAlert      bool
	MaxLogSizeMB   int
	ScanTimeout    time.Duration
}

// Defaults returns the snapshot used before the repository holds any values
// and as the fallback for malformed entries.
func Defaults() Snapshot {
	return Snapshot{
		PingInterval:   5 * time.Second,
		DeviceInterval: 15 * time.Second,
		AutoRestart:    true,
		AutoAlert:      false,
		MaxLogSizeMB:   100,
		ScanTimeout:    10 * time.Second,
	}
}

// Watcher polls the repository and exposes the latest snapshot without locks.
type Watcher struct {
	repo     Repository
	logger   *zap.Logger
	current  atomic.Pointer[Snapshot]
	onChange func(Snapshot)
}

// NewWatcher creates a watcher seeded with defaults. onChange, if non-nil, is
// invoked from the refresh goroutine whenever a refresh produces a snapshot
// that differs from the previous one.
func NewWatcher(repo Repository, logger *zap.Logger, onChange func(Snapshot)) *Watcher {
	w := &Watcher{
		repo:     repo,
		logger:   logger.With(zap.String("worker", "settings")),
		onChange: onChange,
	}
	def := Defaults()
	w.current.Store(&def)
	return w
}

// Current returns the latest snapshot. Safe for concurrent use.
func (w *Watcher) Current() Snapshot {
	return *w.current.Load()
}

// Refresh reloads the snapshot from the repository once. Malformed values are
// logged and replaced by their defaults; a repository failure keeps the
// previous snapshot.
func (w *Watcher) Refresh(ctx context.Context) error {
	all, err := w.repo.GetAll(ctx)
	if err != nil {
		return err
	}

	snap := Defaults()
	for _, s := range all {
		if err := applySetting(&snap, s.Key, s.Value); err != nil {
			w.logger.Warn("ignoring malformed setting",
				zap.String("key", s.Key),
				zap.String("value", s.Value),
				zap.Error(err))
		}
	}

	prev := *w.current.Load()
	w.current.Store(&snap)
	if snap != prev && w.onChange != nil {
		w.onChange(snap)
	}
	return nil
}

// Run refreshes immediately and then on a fixed cadence until cancelled.
func (w *Watcher) Run(ctx context.Context) {
	if err := w.Refresh(ctx); err != nil && ctx.Err() == nil {
		w.logger.Warn("settings refresh failed", zap.Error(err))
	}

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Refresh(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn("settings refresh failed", zap.Error(err))
			}
		}
	}
}

// Validate reports whether value parses for the given key. Unknown keys are
// accepted unchanged; they are stored but ignored by the watcher.
func Validate(key, value string) error {
	snap := Defaults()
	return applySetting(&snap, key, value)
}

// applySetting parses one repository entry into the snapshot.
func applySetting(snap *Snapshot, key, value string) error {
	switch key {
	case KeyPingInterval:
		d, err := parseSeconds(value)
		if err != nil {
			return err
		}
		snap.PingInterval = d
	case KeyDeviceInterval:
		d, err := parseSeconds(value)
		if err != nil {
			return err
		}
		snap.DeviceInterval = d
	case KeyScanTimeout:
		d, err := parseSeconds(value)
		if err != nil {
			return err
		}
		snap.ScanTimeout = d
	case KeyAutoRestart:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		snap.AutoRestart = b
	case KeyAutoAlert:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		snap.AutoAlert = b
	case KeyMaxLogSizeMB:
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		if n <= 0 {
			return strconv.ErrRange
		}
		snap.MaxLogSizeMB = n
	}
	return nil
}

// parseSeconds accepts a positive number of seconds, fractional allowed.
func parseSeconds(value string) (time.Duration, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, strconv.ErrRange
	}
	return time.Duration(f * float64(time.Second)), nil
}
