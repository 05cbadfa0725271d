package logstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultTailLines is the line count returned by Tail when k <= 0.
const DefaultTailLines = 100

// Tail returns the last k lines of the current file for (cat, sub). A missing
// file is not an error: the category simply has no lines yet today.
func (s *Store) Tail(cat, sub string, k int) ([]string, error) {
	if k <= 0 {
		k = DefaultTailLines
	}
	lines, err := readLines(s.currentPath(Key(cat, sub)))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(lines) > k {
		lines = lines[len(lines)-k:]
	}
	return lines, nil
}

// currentPath resolves today's file for a key.
func (s *Store) currentPath(key string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.log", key, s.now().Format(dateFormat)))
}

// Range returns the lines of (cat, sub) whose leading [timestamp] token falls
// within [from, to], scanning every file (including size-rotated
// continuations) whose date falls in the range. Lines without a parseable
// timestamp prefix are skipped.
func (s *Store) Range(cat, sub string, from, to time.Time) ([]string, error) {
	paths, err := s.filesInRange(Key(cat, sub), from, to)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, p := range paths {
		lines, err := readLines(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, l := range lines {
			ts, ok := parseLineTime(l)
			if !ok {
				continue
			}
			if ts.Before(from) || ts.After(to) {
				continue
			}
			out = append(out, l)
		}
	}
	return out, nil
}

// filesInRange lists the store's files for key whose embedded date falls
// within the range, ordered by date then rotation suffix so size-rotated
// files sort before the continuation they were renamed from.
func (s *Store) filesInRange(key string, from, to time.Time) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read log dir: %w", err)
	}

	fromDay := from.Format(dateFormat)
	toDay := to.Format(dateFormat)
	prefix := key + "_"

	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := name[len(prefix):]
		if len(rest) < len(dateFormat) {
			continue
		}
		day := rest[:len(dateFormat)]
		if _, err := time.Parse(dateFormat, day); err != nil {
			continue // some other category sharing the prefix
		}
		if !strings.HasPrefix(rest[len(day):], ".log") {
			continue
		}
		if day < fromDay || day > toDay {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, name))
	}

	// Name order gives date order; "X.log.<suffix>" sorts after "X.log", but
	// rotated files hold the older lines, so flip within the same base.
	sort.Slice(paths, func(i, j int) bool {
		bi, bj := basePart(paths[i]), basePart(paths[j])
		if bi != bj {
			return bi < bj
		}
		ri := strings.HasSuffix(paths[i], ".log")
		rj := strings.HasSuffix(paths[j], ".log")
		if ri != rj {
			// Same day: plain .log (the continuation) goes last.
			return !ri
		}
		// Both rotated: the timestamp suffix sorts chronologically.
		return paths[i] < paths[j]
	})
	return paths, nil
}

// basePart strips a rotation suffix, leaving "key_date.log".
func basePart(path string) string {
	name := filepath.Base(path)
	if i := strings.Index(name, ".log"); i >= 0 {
		return name[:i+len(".log")]
	}
	return name
}

// parseLineTime extracts the "[YYYY-MM-DD HH:MM:SS]" prefix of a log line.
func parseLineTime(line string) (time.Time, bool) {
	if len(line) < len(lineTimeFormat)+2 || line[0] != '[' {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(lineTimeFormat, line[1:len(lineTimeFormat)+1], time.Local)
	if err != nil || line[len(lineTimeFormat)+1] != ']' {
		return time.Time{}, false
	}
	return ts, true
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
