package discovery

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cfletcher/netwatch/internal/logstore"
	"github.com/cfletcher/netwatch/internal/metrics"
	"github.com/cfletcher/netwatch/internal/topic"
)

// Category is the log store category for device activity.
const Category = "device_monitor"

// TopicName is the rendezvous name of the discovery snapshot topic.
const TopicName = "devices.all"

// Device is one neighbor-table entry. New is valid for the snapshot's scan
// cycle only and is never carried over as true into the next cycle.
type Device struct {
	IP        string    `json:"ip"`
	MAC       string    `json:"mac"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	New       bool      `json:"is_new"`
}

// Snapshot is the full device list published after every scan, changed or not.
type Snapshot struct {
	Timestamp  time.Time `json:"timestamp"`
	Devices    []Device  `json:"devices"`
	TotalCount int       `json:"total_count"`
	NewCount   int       `json:"new_devices"`
}

// Settings are the hot-reloaded tunables the worker reads each cycle.
type Settings struct {
	Interval    time.Duration
	ScanTimeout time.Duration
}

// SettingsFunc returns the current settings snapshot without performing I/O.
type SettingsFunc func() Settings

// scanFunc produces raw neighbor-table output; replaced in tests.
type scanFunc func(ctx context.Context, timeout time.Duration) (string, error)

// Worker owns the known-device set and the scan loop. No other component
// reads or mutates the set.
type Worker struct {
	store    *logstore.Store
	topic    *topic.Topic
	settings SettingsFunc
	logger   *zap.Logger
	scan     scanFunc
	now      func() time.Time
	goos     string

	known  map[string]Device // keyed ip|mac, loop-goroutine only
	latest atomic.Pointer[Snapshot]
}

// NewWorker creates the discovery worker and registers its topic.
func NewWorker(store *logstore.Store, reg *topic.Registry, settings SettingsFunc, logger *zap.Logger) *Worker {
	return &Worker{
		store:    store,
		topic:    reg.Get(TopicName, topic.DeviceCapacity),
		settings: settings,
		logger:   logger.With(zap.String("worker", "discovery")),
		scan:     runARP,
		now:      time.Now,
		goos:     runtime.GOOS,
		known:    make(map[string]Device),
	}
}

// Topic returns the snapshot topic.
func (w *Worker) Topic() *topic.Topic { return w.topic }

// Latest returns the most recent snapshot, or nil before the first scan.
func (w *Worker) Latest() *Snapshot { return w.latest.Load() }

// Run scans immediately and then on every device interval until cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		w.scanOnce(ctx)

		interval := w.settings().Interval
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// scanOnce performs one neighbor-table scan cycle. A failed scan is logged to
// the device log and the cycle is skipped: the known set, latest snapshot,
// and topic are left untouched.
func (w *Worker) scanOnce(ctx context.Context) {
	out, err := w.scan(ctx, w.settings().ScanTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.ScanFailures.Inc()
		w.logger.Warn("device scan failed", zap.Error(err))
		if aerr := w.store.Append(Category, "", fmt.Sprintf("Device scan failed: %v", err)); aerr != nil {
			w.logger.Warn("device log append failed", zap.Error(aerr))
		}
		return
	}

	table := ParseNeighbors(out, w.goos)
	now := w.now()

	next := make(map[string]Device, len(table))
	devices := make([]Device, 0, len(table))
	var fresh []Device
	for ip, mac := range table {
		key := ip + "|" + mac
		d, seen := w.known[key]
		if !seen {
			d = Device{IP: ip, MAC: mac, FirstSeen: now, New: true}
			fresh = append(fresh, d)
		} else {
			d.New = false
		}
		d.LastSeen = now
		next[key] = d
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].IP < devices[j].IP })
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].IP < fresh[j].IP })

	if len(fresh) > 0 {
		w.logNewDevices(fresh)
	}

	// Replace, don't merge: entries absent from this scan are forgotten.
	w.known = next

	snap := Snapshot{
		Timestamp:  now,
		Devices:    devices,
		TotalCount: len(devices),
		NewCount:   len(fresh),
	}
	w.latest.Store(&snap)
	w.topic.Publish(topic.Event{
		Source:    "discovery",
		Timestamp: now,
		Payload:   snap,
	})
}

// logNewDevices writes the newly observed entries as a block to the device
// log: a header line followed by one line per device.
func (w *Worker) logNewDevices(fresh []Device) {
	if err := w.store.Append(Category, "", fmt.Sprintf("NEW DEVICES DETECTED (%d)", len(fresh))); err != nil {
		w.logger.Warn("device log append failed", zap.Error(err))
		return
	}
	for _, d := range fresh {
		line := fmt.Sprintf("  - IP: %s, MAC: %s", d.IP, d.MAC)
		if err := w.store.Append(Category, "", line); err != nil {
			w.logger.Warn("device log append failed", zap.Error(err))
		}
	}
}

// runARP shells out to the platform's arp table dump, bounded by timeout.
func runARP(ctx context.Context, timeout time.Duration) (string, error) {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(rctx, "arp", "-a").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("arp -a: %w", err)
	}
	return string(out), nil
}
