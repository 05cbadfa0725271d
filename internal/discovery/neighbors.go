// Package discovery enumerates local-network neighbors by scanning the
// platform's address-resolution table on a fixed interval, diffing against
// the previously known set, and publishing full snapshots to a topic buffer.
package discovery

import (
	"net"
	"strings"
)

// ParseNeighbors normalizes `arp -a` output into an ip -> MAC table for the
// given platform. MACs are uppercased with ":" separators regardless of the
// platform's convention. Incomplete, all-zero, and broadcast entries are
// skipped.
func ParseNeighbors(output, goos string) map[string]string {
	switch goos {
	case "windows":
		return parseWindowsNeighbors(output)
	case "linux", "darwin":
		return parseUnixNeighbors(output)
	default:
		return map[string]string{}
	}
}

// parseWindowsNeighbors handles the columnar Windows format:
//
//	Interface: 192.168.1.100 --- 0x4
//	  Internet Address      Physical Address      Type
//	  192.168.1.1           aa-bb-cc-dd-ee-ff     dynamic
func parseWindowsNeighbors(output string) map[string]string {
	table := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		ip := net.ParseIP(fields[0])
		if ip == nil || ip.To4() == nil {
			continue
		}
		mac := normalizeMAC(fields[1])
		if !validMAC(mac) {
			continue
		}
		table[fields[0]] = mac
	}
	return table
}

// parseUnixNeighbors handles the BSD-style format shared by Linux and macOS:
//
//	? (192.168.1.1) at aa:bb:cc:dd:ee:ff [ether] on eth0
//	? (192.168.1.3) at (incomplete) on eth0
func parseUnixNeighbors(output string) map[string]string {
	table := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		open := strings.Index(line, "(")
		close := strings.Index(line, ")")
		if open < 0 || close <= open {
			continue
		}
		ipStr := line[open+1 : close]
		ip := net.ParseIP(ipStr)
		if ip == nil || ip.To4() == nil {
			continue
		}

		rest := line[close+1:]
		atIdx := strings.Index(rest, " at ")
		if atIdx < 0 {
			continue
		}
		macField := strings.Fields(rest[atIdx+len(" at "):])
		if len(macField) == 0 {
			continue
		}
		mac := normalizeMAC(macField[0])
		if !validMAC(mac) {
			continue
		}
		table[ipStr] = mac
	}
	return table
}

// normalizeMAC uppercases and converts dash separators to colons.
func normalizeMAC(mac string) string {
	return strings.ToUpper(strings.ReplaceAll(mac, "-", ":"))
}

// validMAC accepts a normalized six-octet MAC that is neither unresolved
// (all zeros) nor broadcast.
func validMAC(mac string) bool {
	if len(mac) != 17 || strings.Count(mac, ":") != 5 {
		return false
	}
	switch mac {
	case "00:00:00:00:00:00", "FF:FF:FF:FF:FF:FF":
		return false
	}
	if _, err := net.ParseMAC(mac); err != nil {
		return false
	}
	return true
}
