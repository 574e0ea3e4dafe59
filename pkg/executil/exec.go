// Package executil provides subprocess execution primitives for driving
// external agent runtimes.
package executil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ExitError reports a non-zero subprocess exit code. Fake processes return
// it directly; real processes surface it via *exec.ExitError, which
// ExitCode also understands.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode extracts a subprocess exit code from a Wait error. The second
// return is false when err carries no exit code (start failure, kill).
func ExitCode(err error) (int, bool) {
	if err == nil {
		return 0, true
	}

	var xe *ExitError
	if errors.As(err, &xe) {
		return xe.Code, true
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if code := ee.ExitCode(); code >= 0 {
			return code, true
		}
	}

	return 0, false
}

// Process is a handle on a started subprocess.
type Process interface {
	// Stdin is the subprocess input stream. Callers write the prompt and
	// must close it; no further input follows.
	Stdin() io.WriteCloser
	// Stdout and Stderr stream the subprocess output channels.
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the process exits and returns its terminal error,
	// if any. Must be called exactly once.
	Wait() error
	// Kill forcibly terminates the process.
	Kill() error
	// PID returns the OS process id, or 0 for fakes.
	PID() int
}

// Starter launches subprocesses. Substituting a fake Starter lets the
// session state machine be tested without spawning real processes.
type Starter interface {
	Start(ctx context.Context, command string, args ...string) (Process, error)
}

// RealStarter launches actual OS processes.
type RealStarter struct {
	// GracePeriod bounds how long a cancelled process may linger between
	// SIGTERM and SIGKILL. Zero means 5 seconds.
	GracePeriod time.Duration
}

// Start launches command with piped stdin/stdout/stderr. Cancelling ctx
// sends SIGTERM, then SIGKILL after the grace period.
func (s *RealStarter) Start(ctx context.Context, command string, args ...string) (Process, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = os.Environ()

	grace := s.GracePeriod
	if grace == 0 {
		grace = 5 * time.Second
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = grace

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", command, err)
	}

	return &realProcess{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

type realProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func (p *realProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *realProcess) Stdout() io.Reader     { return p.stdout }
func (p *realProcess) Stderr() io.Reader     { return p.stderr }

func (p *realProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *realProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

func (p *realProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}
