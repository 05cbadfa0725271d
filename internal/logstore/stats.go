package logstore

import (
	"os"
	"strconv"
	"strings"
)

// PingStats summarizes a ping category's log content for the current day.
type PingStats struct {
	PacketsSent     int     `json:"packets_sent"`
	PacketsReceived int     `json:"packets_received"`
	PacketLoss      float64 `json:"packet_loss"`
	AvgLatencyMs    float64 `json:"avg_latency"`
}

// Stats derives packet and latency statistics from the current day's log
// lines of (cat, sub). Every line counts as a sent packet; lines carrying a
// "time=" token count as received and contribute their latency. The
// derivation deliberately works over log text rather than structured records
// so numbers stay comparable with the historical log format, malformed probe
// output included.
func (s *Store) Stats(cat, sub string) (PingStats, error) {
	lines, err := readLines(s.currentPath(Key(cat, sub)))
	if err != nil {
		if os.IsNotExist(err) {
			return PingStats{}, nil
		}
		return PingStats{}, err
	}

	var st PingStats
	var total float64
	for _, line := range lines {
		st.PacketsSent++
		ms, ok := parseLatency(line)
		if !ok {
			continue
		}
		st.PacketsReceived++
		total += ms
	}
	if st.PacketsSent > 0 {
		st.PacketLoss = float64(st.PacketsSent-st.PacketsReceived) / float64(st.PacketsSent) * 100
	}
	if st.PacketsReceived > 0 {
		st.AvgLatencyMs = total / float64(st.PacketsReceived)
	}
	return st, nil
}

// parseLatency extracts the millisecond value from a "time=14ms" (Windows) or
// "time=14.2 ms" (Linux) token.
func parseLatency(line string) (float64, bool) {
	i := strings.Index(line, "time=")
	if i < 0 {
		return 0, false
	}
	rest := line[i+len("time="):]
	end := strings.Index(rest, "ms")
	if end < 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rest[:end]), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
