package logstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cfletcher/netwatch/internal/testutil"
)

func testStore(t *testing.T, opts ...Option) (*Store, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.Local))
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	s, err := New(t.TempDir(), testutil.Logger(), opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, clock
}

func TestAppend_LineFormat(t *testing.T) {
	s, _ := testStore(t)

	if err := s.Append("external_ping", "", "Reply from 1.1.1.1: bytes=32 time=14ms TTL=58"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	lines, err := s.Tail("external_ping", "", 0)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("line count = %d, want 1", len(lines))
	}
	want := "[2025-06-15 12:00:00] Reply from 1.1.1.1: bytes=32 time=14ms TTL=58"
	if lines[0] != want {
		t.Errorf("line = %q, want %q", lines[0], want)
	}
}

func TestAppend_TimestampsNonDecreasing(t *testing.T) {
	s, clock := testStore(t)

	for i := 0; i < 5; i++ {
		if err := s.Append("external_ping", "", "Reply from 1.1.1.1: bytes=32 time=14ms TTL=58"); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		clock.Advance(3 * time.Second)
	}

	lines, err := s.Tail("external_ping", "", 0)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	var prev time.Time
	for i, l := range lines {
		ts, ok := parseLineTime(l)
		if !ok {
			t.Fatalf("line %d has no parseable timestamp: %q", i, l)
		}
		if ts.Before(prev) {
			t.Errorf("line %d timestamp %v before previous %v", i, ts, prev)
		}
		prev = ts
	}
}

func TestAppend_DateRollover(t *testing.T) {
	s, clock := testStore(t)
	clock.Set(time.Date(2025, 6, 15, 23, 59, 59, 0, time.Local))

	if err := s.Append("internal_ping", "", "before midnight"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	clock.Advance(2 * time.Second) // 2025-06-16 00:00:01

	if err := s.Append("internal_ping", "", "after midnight"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	oldDay, err := readLines(filepath.Join(s.Dir(), "internal_ping_2025-06-15.log"))
	if err != nil {
		t.Fatalf("read old day: %v", err)
	}
	newDay, err := readLines(filepath.Join(s.Dir(), "internal_ping_2025-06-16.log"))
	if err != nil {
		t.Fatalf("read new day: %v", err)
	}

	if len(oldDay) != 1 || !strings.Contains(oldDay[0], "before midnight") {
		t.Errorf("old day lines = %v, want single pre-midnight record", oldDay)
	}
	if len(newDay) != 1 || !strings.Contains(newDay[0], "after midnight") {
		t.Errorf("new day lines = %v, want single post-midnight record", newDay)
	}
	for _, l := range oldDay {
		if strings.Contains(l, "after midnight") {
			t.Error("post-midnight record found in prior day's file")
		}
	}
}

func TestAppend_SizeRotation(t *testing.T) {
	// Each line is 64 bytes; three fit under the threshold, so the active
	// file crosses it only after the third append.
	s, _ := testStore(t, WithMaxFileSize(150))

	for i := 0; i < 3; i++ {
		if err := s.Append("external_traceroute", "", "  1    <1 ms    <1 ms    <1 ms  10.99.0.1"); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	active := filepath.Join(s.Dir(), "external_traceroute_2025-06-15.log")
	before, err := os.ReadFile(active)
	if err != nil {
		t.Fatalf("read active file: %v", err)
	}

	// Active file is now over the threshold; the next append rotates it.
	if err := s.Append("external_traceroute", "", "continuation line"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	rotated, err := filepath.Glob(active + ".*")
	if err != nil || len(rotated) != 1 {
		t.Fatalf("rotated files = %v (err %v), want exactly one", rotated, err)
	}
	after, err := os.ReadFile(rotated[0])
	if err != nil {
		t.Fatalf("read rotated file: %v", err)
	}
	if string(after) != string(before) {
		t.Error("rotated file content changed during rotation")
	}

	cont, err := readLines(active)
	if err != nil {
		t.Fatalf("read continuation file: %v", err)
	}
	if len(cont) != 1 || !strings.Contains(cont[0], "continuation line") {
		t.Errorf("continuation lines = %v, want only the post-rotation record", cont)
	}
}

func TestAppend_SizeRotationSameSecond(t *testing.T) {
	// With a tiny threshold every append after the first rotates. The clock
	// never advances, so all rotations happen within one second and must not
	// rename onto each other.
	s, _ := testStore(t, WithMaxFileSize(1))

	for _, msg := range []string{"line a", "line b", "line c"} {
		if err := s.Append("external_ping", "", msg); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	active := filepath.Join(s.Dir(), "external_ping_2025-06-15.log")
	rotated, err := filepath.Glob(active + ".*")
	if err != nil {
		t.Fatalf("glob rotated files: %v", err)
	}
	if len(rotated) != 2 {
		t.Fatalf("rotated files = %v, want 2 distinct files", rotated)
	}

	ts := time.Date(2025, 6, 15, 12, 0, 0, 0, time.Local)
	lines, err := s.Range("external_ping", "", ts, ts)
	if err != nil {
		t.Fatalf("Range() error = %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("surviving lines = %d, want all 3: %v", len(lines), lines)
	}
	for i, want := range []string{"line a", "line b", "line c"} {
		if !strings.HasSuffix(lines[i], want) {
			t.Errorf("lines[%d] = %q, want suffix %q", i, lines[i], want)
		}
	}
}

func TestAppend_TimeoutMirroring(t *testing.T) {
	s, _ := testStore(t)

	appends := []struct {
		cat, msg string
	}{
		{"external_ping", "Request timed out."},
		{"external_ping", "Reply from 1.1.1.1: bytes=32 time=14ms TTL=58"},
		{"internal_ping", "Request timeout for icmp_seq 4"},
		{"device_monitor", "Request timed out."}, // not a ping category
	}
	for _, a := range appends {
		if err := s.Append(a.cat, "", a.msg); err != nil {
			t.Fatalf("Append(%s) error = %v", a.cat, err)
		}
	}

	mirrored, err := s.Tail(TimeoutCategory, "", 0)
	if err != nil {
		t.Fatalf("Tail(timeouts) error = %v", err)
	}
	if len(mirrored) != 2 {
		t.Fatalf("mirrored count = %d, want 2: %v", len(mirrored), mirrored)
	}
	if !strings.Contains(mirrored[0], "external_ping_2025-06-15.log: Request timed out.") {
		t.Errorf("mirrored[0] = %q, want source base name prefix", mirrored[0])
	}
	if !strings.Contains(mirrored[1], "internal_ping_2025-06-15.log: Request timeout for icmp_seq 4") {
		t.Errorf("mirrored[1] = %q, want source base name prefix", mirrored[1])
	}
	for _, l := range mirrored {
		if strings.Contains(l, "Reply from") || strings.Contains(l, "device_monitor") {
			t.Errorf("unexpected mirrored line: %q", l)
		}
	}
}

func TestAppend_SubTarget(t *testing.T) {
	s, _ := testStore(t)

	if err := s.Append("ping", "EXTERNAL_A", "Reply from 1.1.1.1: bytes=32 time=14ms TTL=58"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "ping_external_a_2025-06-15.log")); err != nil {
		t.Errorf("expected sub-target file: %v", err)
	}
}

func TestTail_Limit(t *testing.T) {
	s, _ := testStore(t)

	for i := 0; i < 5; i++ {
		if err := s.Append("devices", "", "scan line"); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	lines, err := s.Tail("devices", "", 3)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(lines) != 3 {
		t.Errorf("Tail(3) returned %d lines, want 3", len(lines))
	}
}

func TestTail_MissingFile(t *testing.T) {
	s, _ := testStore(t)

	lines, err := s.Tail("never_written", "", 10)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if lines != nil {
		t.Errorf("Tail() = %v, want nil for missing file", lines)
	}
}

func TestRange_AcrossDays(t *testing.T) {
	s, clock := testStore(t)
	clock.Set(time.Date(2025, 6, 15, 22, 0, 0, 0, time.Local))

	times := []time.Time{
		time.Date(2025, 6, 15, 22, 0, 0, 0, time.Local),
		time.Date(2025, 6, 15, 23, 30, 0, 0, time.Local),
		time.Date(2025, 6, 16, 1, 0, 0, 0, time.Local),
		time.Date(2025, 6, 16, 8, 0, 0, 0, time.Local),
	}
	for i, ts := range times {
		clock.Set(ts)
		if err := s.Append("external_ping", "", "line "+string(rune('a'+i))); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	from := time.Date(2025, 6, 15, 23, 0, 0, 0, time.Local)
	to := time.Date(2025, 6, 16, 2, 0, 0, 0, time.Local)
	lines, err := s.Range("external_ping", "", from, to)
	if err != nil {
		t.Fatalf("Range() error = %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("Range() returned %d lines, want 2: %v", len(lines), lines)
	}
	if !strings.HasSuffix(lines[0], "line b") || !strings.HasSuffix(lines[1], "line c") {
		t.Errorf("Range() lines = %v, want [.. line b, .. line c]", lines)
	}
}

func TestRange_AcrossSizeRotations(t *testing.T) {
	// Several size rotations within one day: Range must return lines in
	// chronological order across every rotated file plus the continuation.
	s, clock := testStore(t, WithMaxFileSize(1))

	for _, msg := range []string{"line a", "line b", "line c", "line d"} {
		if err := s.Append("external_ping", "", msg); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		clock.Advance(time.Second)
	}

	from := time.Date(2025, 6, 15, 0, 0, 0, 0, time.Local)
	to := time.Date(2025, 6, 15, 23, 59, 59, 0, time.Local)
	lines, err := s.Range("external_ping", "", from, to)
	if err != nil {
		t.Fatalf("Range() error = %v", err)
	}
	if len(lines) != 4 {
		t.Fatalf("Range() returned %d lines, want 4: %v", len(lines), lines)
	}
	for i, want := range []string{"line a", "line b", "line c", "line d"} {
		if !strings.HasSuffix(lines[i], want) {
			t.Errorf("lines[%d] = %q, want suffix %q", i, lines[i], want)
		}
	}
}

func TestStats_Heuristic(t *testing.T) {
	s, _ := testStore(t)

	msgs := []string{
		"Reply from 1.1.1.1: bytes=32 time=14ms TTL=58",
		"64 bytes from 1.1.1.1: icmp_seq=1 ttl=58 time=20.5 ms",
		"Request timed out.",
		"Reply from 1.1.1.1: bytes=32 time=25ms TTL=58",
	}
	for _, m := range msgs {
		if err := s.Append("external_ping", "", m); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	st, err := s.Stats("external_ping", "")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.PacketsSent != 4 {
		t.Errorf("PacketsSent = %d, want 4", st.PacketsSent)
	}
	if st.PacketsReceived != 3 {
		t.Errorf("PacketsReceived = %d, want 3", st.PacketsReceived)
	}
	if st.PacketLoss < 24.9 || st.PacketLoss > 25.1 {
		t.Errorf("PacketLoss = %v, want 25", st.PacketLoss)
	}
	wantAvg := (14.0 + 20.5 + 25.0) / 3
	if st.AvgLatencyMs < wantAvg-0.01 || st.AvgLatencyMs > wantAvg+0.01 {
		t.Errorf("AvgLatencyMs = %v, want %v", st.AvgLatencyMs, wantAvg)
	}
}

func TestStats_EmptyCategory(t *testing.T) {
	s, _ := testStore(t)

	st, err := s.Stats("external_ping", "")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if st.PacketsSent != 0 || st.PacketLoss != 0 {
		t.Errorf("Stats() = %+v, want zero value", st)
	}
}
