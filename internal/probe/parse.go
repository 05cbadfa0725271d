package probe

import (
	"strconv"
	"strings"
)

// noisePatterns mark ping output lines that carry no per-packet data:
// banners, summary blocks, and statistics footers, across the Windows, Linux,
// and macOS ping implementations.
var noisePatterns = []string{
	"Pinging ",
	"Ping statistics",
	"Packets:",
	"Approximate round trip",
	"Minimum =",
	"PING ",
	"ping statistics",
	"packets transmitted",
	"round-trip min/avg",
	"rtt min/avg",
	"---",
}

// skipPingLine reports whether a raw ping output line should be discarded
// rather than turned into a record.
func skipPingLine(line string) bool {
	if strings.TrimSpace(line) == "" {
		return true
	}
	for _, p := range noisePatterns {
		if strings.Contains(line, p) {
			return true
		}
	}
	return false
}

// parsePingLine extracts the reachability verdict from a ping data line.
// A line carrying a "time=" token is a successful reply with that latency:
//
//	Reply from 1.1.1.1: bytes=32 time=14ms TTL=58
//	64 bytes from 1.1.1.1: icmp_seq=1 ttl=58 time=14.2 ms
//
// Everything else (timeouts, unreachable notices, transmit failures) is a
// failed probe with no latency.
func parsePingLine(line string) (latency *float64, success bool) {
	i := strings.Index(line, "time=")
	if i < 0 {
		return nil, false
	}
	rest := line[i+len("time="):]
	end := strings.Index(rest, "ms")
	if end < 0 {
		return nil, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rest[:end]), 64)
	if err != nil {
		return nil, false
	}
	return &v, true
}
