package sweeper

import (
	"strings"
	"sync"
	"testing"

	"github.com/cfletcher/netwatch/internal/logstore"
	"github.com/cfletcher/netwatch/internal/testutil"
)

func testSweeper(t *testing.T) (*Sweeper, *logstore.Store) {
	t.Helper()
	store, err := logstore.New(t.TempDir(), testutil.Logger())
	if err != nil {
		t.Fatalf("logstore.New() error = %v", err)
	}
	return New(store, testutil.Logger()), store
}

func TestRunNow_CountsAndLogs(t *testing.T) {
	s, store := testSweeper(t)

	s.RunNow()
	s.RunNow()

	if got := s.Passes(); got != 2 {
		t.Errorf("Passes() = %d, want 2", got)
	}

	lines, err := store.Tail(Category, "", 0)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("system log lines = %d, want 2: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "Housekeeping pass #1: reclaimed ") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "Housekeeping pass #2: reclaimed ") {
		t.Errorf("second line = %q", lines[1])
	}
}

func TestRunNow_Concurrent(t *testing.T) {
	s, _ := testSweeper(t)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RunNow()
		}()
	}
	wg.Wait()

	if got := s.Passes(); got != n {
		t.Errorf("Passes() = %d, want %d", got, n)
	}
}
