// Package logstore implements the durable, rotating append log that backs the
// monitoring engine. Each category (optionally qualified by a sub-target) gets
// one file per day; files exceeding the size threshold are renamed aside and a
// fresh file continues at the original name. Ping timeout lines are mirrored
// into a dedicated timeout log.
package logstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cfletcher/netwatch/internal/metrics"
)

const (
	// DefaultMaxFileSize is the rotation threshold: 100 MiB.
	DefaultMaxFileSize = 100 << 20

	// TimeoutCategory is the category receiving mirrored ping timeout lines.
	TimeoutCategory = "timeout_errors"

	lineTimeFormat   = "2006-01-02 15:04:05"
	dateFormat       = "2006-01-02"
	rotateTimeFormat = "20060102_150405"
)

// timeoutMarkers are the substrings identifying a ping timeout line.
// Both spellings appear in the wild depending on the ping implementation.
var timeoutMarkers = []string{"Request timed out", "Request timeout"}

// Store is a rotating append-only log keyed by category. It is safe for
// concurrent use: rotation state is guarded per category, never globally, so
// writers to different categories do not contend.
type Store struct {
	dir     string
	maxSize atomic.Int64
	now     func() time.Time
	logger  *zap.Logger

	mu   sync.Mutex // guards cats map only
	cats map[string]*category
}

// category holds the per-file rotation state. Its mutex makes append+rotate
// mutually exclusive across all writers to the same category.
type category struct {
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithMaxFileSize overrides the size-rotation threshold in bytes.
func WithMaxFileSize(n int64) Option {
	return func(s *Store) { s.maxSize.Store(n) }
}

// WithClock overrides the time source. Used by tests to exercise date
// rollover deterministically.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store writing under dir, creating it if necessary.
func New(dir string, logger *zap.Logger, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %q: %w", dir, err)
	}
	s := &Store{
		dir:    dir,
		now:    time.Now,
		logger: logger,
		cats:   make(map[string]*category),
	}
	s.maxSize.Store(DefaultMaxFileSize)
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// SetMaxFileSize updates the rotation threshold at runtime. Writers pick up
// the new value on their next append.
func (s *Store) SetMaxFileSize(n int64) {
	if n <= 0 {
		return
	}
	s.maxSize.Store(n)
}

// Dir returns the directory the store writes under.
func (s *Store) Dir() string { return s.dir }

// Key builds the logical file base for a category and optional sub-target,
// without the date suffix: "ping_external_a" or "device_monitor".
func Key(cat, sub string) string {
	if sub == "" {
		return cat
	}
	return cat + "_" + strings.ToLower(sub)
}

// Append writes one timestamped line to the active file for (cat, sub).
// The active path is resolved against the current date on every call, so a
// record produced after midnight always lands in the new day's file. One
// append is one write of one line; partial lines are never interleaved.
//
// A line written to a ping category that contains a timeout marker is also
// appended to the timeout log, prefixed with the source file's base name.
func (s *Store) Append(cat, sub, msg string) error {
	ts := s.now()
	path, err := s.appendLine(Key(cat, sub), ts, msg)
	if err != nil {
		return err
	}
	metrics.RecordsAppended.WithLabelValues(cat).Inc()

	if strings.Contains(cat, "ping") && isTimeoutLine(msg) {
		mirrored := filepath.Base(path) + ": " + msg
		if _, err := s.appendLine(TimeoutCategory, ts, mirrored); err != nil {
			// Mirror failures must not fail the primary append.
			s.logger.Warn("timeout mirror failed", zap.String("category", cat), zap.Error(err))
			return nil
		}
		metrics.TimeoutMirrors.Inc()
	}
	return nil
}

// appendLine performs the locked resolve/rotate/write cycle for one key and
// returns the path written to.
func (s *Store) appendLine(key string, ts time.Time, msg string) (string, error) {
	c := s.categoryState(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s.log", key, ts.Format(dateFormat)))

	if fi, err := os.Stat(path); err == nil && fi.Size() >= s.maxSize.Load() {
		rotated := path + "." + ts.Format(rotateTimeFormat)
		// A second rotation within the same second must not rename onto the
		// first rotated file. The fixed-width counter keeps name order
		// chronological.
		for seq := 1; fileExists(rotated); seq++ {
			rotated = fmt.Sprintf("%s.%s_%03d", path, ts.Format(rotateTimeFormat), seq)
		}
		if err := os.Rename(path, rotated); err != nil {
			return "", fmt.Errorf("rotate %q: %w", path, err)
		}
		metrics.SizeRotations.WithLabelValues(key).Inc()
		s.logger.Info("rotated log file",
			zap.String("from", filepath.Base(path)),
			zap.String("to", filepath.Base(rotated)),
		)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s\n", ts.Format(lineTimeFormat), msg)
	if _, err := f.WriteString(line); err != nil {
		return "", fmt.Errorf("append to %q: %w", path, err)
	}
	return path, nil
}

func (s *Store) categoryState(key string) *category {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cats[key]
	if !ok {
		c = &category{}
		s.cats[key] = c
	}
	return c
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isTimeoutLine(msg string) bool {
	for _, m := range timeoutMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
