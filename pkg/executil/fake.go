package executil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// StartedCommand captures a command passed to a FakeStarter.
type StartedCommand struct {
	Command string
	Args    []string
}

// FakeStarter hands out scripted processes for tests. Script is consulted
// per call in order; when exhausted, the last entry is reused.
type FakeStarter struct {
	mu      sync.Mutex
	Started []StartedCommand

	// Script builds the process for the nth Start call.
	Script []func() *FakeProcess

	// Err, when set, is returned from every Start call.
	Err error
}

// Start records the command and returns the next scripted process.
func (s *FakeStarter) Start(ctx context.Context, command string, args ...string) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Started = append(s.Started, StartedCommand{Command: command, Args: args})

	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Script) == 0 {
		return nil, errors.New("fake starter: no scripted process")
	}

	idx := len(s.Started) - 1
	if idx >= len(s.Script) {
		idx = len(s.Script) - 1
	}
	return s.Script[idx](), nil
}

// Calls returns how many processes were started.
func (s *FakeStarter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Started)
}

// FakeProcess is a scripted Process. Tests feed output through Emit/EmitErr
// and finish it with Exit; Kill unblocks Wait with a kill error.
type FakeProcess struct {
	mu        sync.Mutex
	stdin     closableBuffer
	outR      *io.PipeReader
	outW      *io.PipeWriter
	errR      *io.PipeReader
	errW      *io.PipeWriter
	waitCh    chan error
	done      bool
	killCount int
}

// ErrKilled is the Wait error produced after Kill on a fake process.
var ErrKilled = errors.New("signal: killed")

// NewFakeProcess returns a process whose streams stay open until Exit or
// Kill is called.
func NewFakeProcess() *FakeProcess {
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	return &FakeProcess{
		outR:   outR,
		outW:   outW,
		errR:   errR,
		errW:   errW,
		waitCh: make(chan error, 1),
	}
}

func (p *FakeProcess) Stdin() io.WriteCloser { return &p.stdin }
func (p *FakeProcess) Stdout() io.Reader     { return p.outR }
func (p *FakeProcess) Stderr() io.Reader     { return p.errR }
func (p *FakeProcess) PID() int              { return 0 }

// Emit writes s to the process stdout stream. Blocks until consumed.
func (p *FakeProcess) Emit(s string) {
	_, _ = p.outW.Write([]byte(s))
}

// EmitErr writes s to the process stderr stream. Blocks until consumed.
func (p *FakeProcess) EmitErr(s string) {
	_, _ = p.errW.Write([]byte(s))
}

// Exit closes the output streams and completes Wait with the given error.
// Use nil for a zero exit and &ExitError{Code: n} for non-zero exits.
func (p *FakeProcess) Exit(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.done = true

	_ = p.outW.Close()
	_ = p.errW.Close()
	p.waitCh <- err
}

// Kill terminates the fake process. Wait returns ErrKilled.
func (p *FakeProcess) Kill() error {
	p.mu.Lock()
	p.killCount++
	p.mu.Unlock()
	p.Exit(ErrKilled)
	return nil
}

// KillCount reports how many times Kill was invoked.
func (p *FakeProcess) KillCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killCount
}

// Wait blocks until Exit or Kill.
func (p *FakeProcess) Wait() error {
	return <-p.waitCh
}

// StdinString returns everything written to the process input stream.
func (p *FakeProcess) StdinString() string {
	return p.stdin.String()
}

// StdinClosed reports whether the input stream was closed after the prompt.
func (p *FakeProcess) StdinClosed() bool {
	return p.stdin.Closed()
}

// closableBuffer is a thread-safe write buffer that records Close.
type closableBuffer struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (b *closableBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, errors.New("write to closed stdin")
	}
	return b.buf.Write(p)
}

func (b *closableBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *closableBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *closableBuffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
