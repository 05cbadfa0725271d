// Package probe implements the per-target monitoring workers. A worker owns
// one (target, kind) pair and runs an unending loop: it streams output from an
// external probe subprocess, converts accepted lines into records, appends
// them to the log store, and publishes them to the worker's topic buffer.
package probe

import "time"

// Kind selects the probe mode of a worker.
type Kind string

const (
	KindPing       Kind = "ping"
	KindTraceroute Kind = "traceroute"
)

// Record is one parsed probe observation. Immutable once created; the worker
// owns it until it is handed to the log store and the topic buffer.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Target    string    `json:"target"`
	Label     string    `json:"label"`
	Kind      Kind      `json:"kind"`
	Raw       string    `json:"raw"`
	LatencyMs *float64  `json:"latency_ms,omitempty"`
	Success   bool      `json:"success"`
}

// Settings are the hot-reloaded tunables a worker reads once per loop
// iteration.
type Settings struct {
	PingInterval time.Duration
	ScanTimeout  time.Duration
}

// SettingsFunc returns the current settings snapshot without performing I/O.
type SettingsFunc func() Settings
