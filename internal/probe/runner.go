package probe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
)

// Runner launches an external probe command and streams its combined output
// line by line. The production implementation shells out; tests substitute a
// scripted fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (LineReader, error)
}

// LineReader yields subprocess output lines. Next returns io.EOF once the
// process closes its output; Close reaps the process.
type LineReader interface {
	Next() (string, error)
	Close() error
}

// execRunner runs real subprocesses. Cancellation of the context kills the
// process, which unblocks Next with EOF, so worker loops stay responsive to
// shutdown while blocked on a read.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (LineReader, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	// The child holds its own copy of the write end.
	pw.Close()

	sc := bufio.NewScanner(pr)
	sc.Buffer(make([]byte, 0, 16*1024), 256*1024)
	return &execLines{cmd: cmd, r: pr, sc: sc}, nil
}

type execLines struct {
	cmd *exec.Cmd
	r   *os.File
	sc  *bufio.Scanner
}

func (l *execLines) Next() (string, error) {
	if l.sc.Scan() {
		return l.sc.Text(), nil
	}
	if err := l.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (l *execLines) Close() error {
	l.r.Close()
	return l.cmd.Wait()
}

// pingCommand returns the platform's continuous ping invocation. Windows
// needs -t to ping forever; Unix ping does so by default.
func pingCommand(target string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "ping", []string{"-t", target}
	}
	return "ping", []string{target}
}

// tracerouteCommand returns the platform's numeric (no reverse DNS) trace
// invocation.
func tracerouteCommand(target string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "tracert", []string{"-d", target}
	}
	return "traceroute", []string{"-n", target}
}
