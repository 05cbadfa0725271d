package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cfletcher/netwatch/internal/testutil"
)

// fakeRepo is an in-memory Repository for watcher tests.
type fakeRepo struct {
	values map[string]string
	err    error
}

func (f *fakeRepo) Get(ctx context.Context, key string) (*Setting, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &Setting{Key: key, Value: v}, nil
}

func (f *fakeRepo) GetAll(ctx context.Context) ([]Setting, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Setting
	for k, v := range f.values {
		out = append(out, Setting{Key: k, Value: v})
	}
	return out, nil
}

func (f *fakeRepo) Set(ctx context.Context, key, value string) error {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	f.values[key] = value
	return nil
}

func (f *fakeRepo) Delete(ctx context.Context, key string) error {
	delete(f.values, key)
	return nil
}

func TestWatcher_DefaultsBeforeRefresh(t *testing.T) {
	w := NewWatcher(&fakeRepo{}, testutil.Logger(), nil)

	got := w.Current()
	if got != Defaults() {
		t.Errorf("Current() = %+v, want defaults %+v", got, Defaults())
	}
}

func TestWatcher_RefreshAppliesValues(t *testing.T) {
	repo := &fakeRepo{values: map[string]string{
		KeyPingInterval:   "2.5",
		KeyDeviceInterval: "30",
		KeyAutoRestart:    "false",
		KeyAutoAlert:      "true",
		KeyMaxLogSizeMB:   "50",
		KeyScanTimeout:    "3",
	}}
	w := NewWatcher(repo, testutil.Logger(), nil)

	if err := w.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	got := w.Current()
	want := Snapshot{
		PingInterval:   2500 * time.Millisecond,
		DeviceInterval: 30 * time.Second,
		AutoRestart:    false,
		AutoAlert:      true,
		MaxLogSizeMB:   50,
		ScanTimeout:    3 * time.Second,
	}
	if got != want {
		t.Errorf("Current() = %+v, want %+v", got, want)
	}
}

func TestWatcher_MalformedValuesKeepDefaults(t *testing.T) {
	repo := &fakeRepo{values: map[string]string{
		KeyPingInterval: "soon",
		KeyAutoRestart:  "maybe",
		KeyMaxLogSizeMB: "-5",
		KeyScanTimeout:  "4",
	}}
	w := NewWatcher(repo, testutil.Logger(), nil)

	if err := w.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	got := w.Current()
	def := Defaults()
	if got.PingInterval != def.PingInterval {
		t.Errorf("PingInterval = %v, want default %v", got.PingInterval, def.PingInterval)
	}
	if got.AutoRestart != def.AutoRestart {
		t.Errorf("AutoRestart = %v, want default %v", got.AutoRestart, def.AutoRestart)
	}
	if got.MaxLogSizeMB != def.MaxLogSizeMB {
		t.Errorf("MaxLogSizeMB = %d, want default %d", got.MaxLogSizeMB, def.MaxLogSizeMB)
	}
	if got.ScanTimeout != 4*time.Second {
		t.Errorf("ScanTimeout = %v, want 4s (valid entries still apply)", got.ScanTimeout)
	}
}

func TestWatcher_UnknownKeysIgnored(t *testing.T) {
	repo := &fakeRepo{values: map[string]string{
		"theme":         "dark",
		KeyPingInterval: "7",
	}}
	w := NewWatcher(repo, testutil.Logger(), nil)

	if err := w.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := w.Current().PingInterval; got != 7*time.Second {
		t.Errorf("PingInterval = %v, want 7s", got)
	}
}

func TestWatcher_RepositoryErrorKeepsSnapshot(t *testing.T) {
	repo := &fakeRepo{values: map[string]string{KeyPingInterval: "9"}}
	w := NewWatcher(repo, testutil.Logger(), nil)

	if err := w.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	repo.err = errors.New("database is locked")
	if err := w.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() error = nil, want failure")
	}
	if got := w.Current().PingInterval; got != 9*time.Second {
		t.Errorf("PingInterval after failed refresh = %v, want 9s", got)
	}
}

func TestWatcher_OnChangeFiresOnlyOnChange(t *testing.T) {
	repo := &fakeRepo{values: map[string]string{KeyMaxLogSizeMB: "25"}}
	var calls []Snapshot
	w := NewWatcher(repo, testutil.Logger(), func(s Snapshot) {
		calls = append(calls, s)
	})

	ctx := context.Background()
	if err := w.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if err := w.Refresh(ctx); err != nil { // unchanged
		t.Fatalf("Refresh() error = %v", err)
	}
	repo.values[KeyMaxLogSizeMB] = "75"
	if err := w.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("onChange calls = %d, want 2", len(calls))
	}
	if calls[0].MaxLogSizeMB != 25 || calls[1].MaxLogSizeMB != 75 {
		t.Errorf("onChange snapshots = %d, %d; want 25, 75",
			calls[0].MaxLogSizeMB, calls[1].MaxLogSizeMB)
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	w := NewWatcher(&fakeRepo{}, testutil.Logger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on cancellation")
	}
}
