package probe

import (
	"context"
	"fmt"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// Prechecker answers a quick reachability question before an expensive probe
// run. Traceroute workers use it to avoid hammering an unreachable host.
type Prechecker interface {
	Reachable(ctx context.Context, target string, timeout time.Duration) (bool, error)
}

// icmpPrechecker sends a single ICMP echo via pro-bing.
type icmpPrechecker struct{}

func (icmpPrechecker) Reachable(ctx context.Context, target string, timeout time.Duration) (bool, error) {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		return false, fmt.Errorf("create pinger: %w", err)
	}

	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	// Run pinger in a goroutine for context cancellation.
	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case runErr := <-done:
		if runErr != nil {
			// A run error (socket, resolution) counts as unreachable, not
			// fatal; the worker backs off and retries.
			return false, nil
		}
		return pinger.Statistics().PacketsRecv > 0, nil
	case <-ctx.Done():
		pinger.Stop()
		return false, ctx.Err()
	}
}
