// Package session runs one external agent subprocess end-to-end: spawn,
// stream capture, freeze detection, outcome classification, and retry
// with reason-specific backoff.
package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/colonyops/forager/internal/core/agent"
	"github.com/colonyops/forager/pkg/executil"
	"github.com/colonyops/forager/pkg/randid"
	"github.com/rs/zerolog"
)

// Config holds the session retry and liveness policy.
type Config struct {
	// MaxAttempts bounds subprocess invocations per session, counting the
	// first attempt.
	MaxAttempts int
	// RetryDelay is the wait before retrying frozen or permission-denied
	// attempts. Seconds-scale.
	RetryDelay time.Duration
	// RateLimitCooldown is the wait before retrying rate-limited
	// attempts. Minutes-scale, much longer than RetryDelay.
	RateLimitCooldown time.Duration
	// FreezeTimeout is the inactivity window: if neither output stream
	// produces a chunk for this long, the process is killed and the
	// attempt classified frozen. Not a total-duration limit.
	FreezeTimeout time.Duration
	// LogDir receives one transcript artifact per attempt. Empty
	// disables persistence.
	LogDir string
}

// Result is the terminal state of a session: the last attempt's
// classification plus its captured output.
type Result struct {
	Outcome  Outcome
	ExitCode int
	Output   string
	Attempts int
	LogPath  string
}

// FailureError carries a classified failure to the caller once the
// session is out of attempts (or the outcome is non-retryable).
type FailureError struct {
	Outcome  Outcome
	ExitCode int
	Attempts int
	LogPath  string
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("agent failed: %s (exit code %d, %d attempt(s))", e.Outcome, e.ExitCode, e.Attempts)
}

// Runner executes agent sessions. The Starter is injectable so the
// per-attempt state machine is testable without real processes.
type Runner struct {
	starter executil.Starter
	cfg     Config
	log     zerolog.Logger
}

// NewRunner creates a Runner with the given process starter and policy.
func NewRunner(starter executil.Starter, cfg Config, log zerolog.Logger) *Runner {
	return &Runner{starter: starter, cfg: cfg, log: log}
}

// Run executes the invocation, feeding prompt on stdin, until an attempt
// succeeds, a non-retryable failure occurs, or attempts are exhausted.
// The returned error is nil only for a successful outcome.
func (r *Runner) Run(ctx context.Context, inv agent.Invocation, prompt string) (Result, error) {
	maxAttempts := r.cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	sessionID := randid.Generate(8)
	var res Result

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res = r.runAttempt(ctx, inv, prompt, sessionID, attempt)
		res.Attempts = attempt

		log := r.log.With().
			Str("label", inv.Label).
			Str("session", sessionID).
			Int("attempt", attempt).
			Str("outcome", string(res.Outcome)).
			Logger()

		switch {
		case res.Outcome == OutcomeSuccess:
			log.Info().Msg("agent attempt succeeded")
			return res, nil

		case !res.Outcome.Retryable():
			log.Error().Int("exit_code", res.ExitCode).Msg("agent attempt failed, not retryable")
			return res, &FailureError{Outcome: res.Outcome, ExitCode: res.ExitCode, Attempts: attempt, LogPath: res.LogPath}

		case attempt == maxAttempts:
			log.Error().Msg("agent attempts exhausted")
			return res, &FailureError{Outcome: res.Outcome, ExitCode: res.ExitCode, Attempts: attempt, LogPath: res.LogPath}
		}

		delay := r.cfg.RetryDelay
		if res.Outcome == OutcomeRateLimited {
			delay = r.cfg.RateLimitCooldown
		}

		log.Warn().Dur("backoff", delay).Msg("agent attempt failed, backing off before retry")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}

	// Unreachable; the loop always returns.
	return res, &FailureError{Outcome: res.Outcome, ExitCode: res.ExitCode, Attempts: maxAttempts, LogPath: res.LogPath}
}

// runAttempt drives one attempt through the state machine:
// spawned -> streaming -> closed | errored | killed (frozen).
func (r *Runner) runAttempt(ctx context.Context, inv agent.Invocation, prompt, sessionID string, attempt int) Result {
	started := time.Now()

	proc, err := r.starter.Start(ctx, inv.Command, inv.Args...)
	if err != nil {
		r.log.Error().Err(err).Str("command", inv.Command).Msg("failed to spawn agent process")
		out := fmt.Sprintf("spawn error: %v", err)
		logPath := r.persist(inv, sessionID, attempt, out, -1, started, false)
		return Result{Outcome: OutcomeOtherFailure, ExitCode: -1, Output: out, LogPath: logPath}
	}

	// Deliver the prompt and close stdin; no further input follows. The
	// write happens off the main goroutine so a process that never reads
	// cannot deadlock the session.
	go func() {
		stdin := proc.Stdin()
		if _, werr := io.WriteString(stdin, prompt); werr != nil {
			r.log.Debug().Err(werr).Msg("prompt write interrupted")
		}
		_ = stdin.Close()
	}()

	var (
		mu     sync.Mutex
		output []byte
		frozen bool
		closed bool
	)

	freeze := r.cfg.FreezeTimeout
	if freeze <= 0 {
		freeze = 2 * time.Minute
	}

	var killOnce sync.Once
	watchdog := time.AfterFunc(freeze, func() {
		killOnce.Do(func() {
			mu.Lock()
			if closed {
				// Streams already reached EOF; a clean exit is never
				// reclassified as frozen.
				mu.Unlock()
				return
			}
			frozen = true
			mu.Unlock()
			r.log.Warn().
				Str("label", inv.Label).
				Dur("freeze_timeout", freeze).
				Msg("no output within freeze window, killing agent process")
			_ = proc.Kill()
		})
	})

	consume := func(rd io.Reader) {
		buf := make([]byte, 4096)
		for {
			n, rerr := rd.Read(buf)
			if n > 0 {
				mu.Lock()
				output = append(output, buf[:n]...)
				stillLive := !frozen
				mu.Unlock()
				if stillLive {
					watchdog.Reset(freeze)
				}
			}
			if rerr != nil {
				return
			}
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); consume(proc.Stdout()) }()
	go func() { defer wg.Done(); consume(proc.Stderr()) }()
	wg.Wait()

	mu.Lock()
	closed = true
	mu.Unlock()
	watchdog.Stop()

	waitErr := proc.Wait()

	mu.Lock()
	capturedOutput := string(output)
	wasFrozen := frozen
	mu.Unlock()

	exitCode, ok := executil.ExitCode(waitErr)
	if !ok {
		exitCode = -1
	}

	// Persist the raw transcript before classification so post-mortems
	// work even for killed attempts.
	logPath := r.persist(inv, sessionID, attempt, capturedOutput, exitCode, started, wasFrozen)

	outcome := Classify(wasFrozen, exitCode, capturedOutput)

	return Result{
		Outcome:  outcome,
		ExitCode: exitCode,
		Output:   capturedOutput,
		LogPath:  logPath,
	}
}

// persist writes the attempt transcript with a small header and footer.
// Persistence failures are logged, never fatal.
func (r *Runner) persist(inv agent.Invocation, sessionID string, attempt int, output string, exitCode int, started time.Time, frozen bool) string {
	if r.cfg.LogDir == "" {
		return ""
	}

	path := filepath.Join(r.cfg.LogDir, fmt.Sprintf("%s-%s-attempt%d.log", inv.Label, sessionID, attempt))

	var b []byte
	b = fmt.Appendf(b, "=== Agent Attempt %d ===\n", attempt)
	b = fmt.Appendf(b, "Command: %s\n", inv.String())
	b = fmt.Appendf(b, "Started: %s\n", started.Format(time.RFC3339))
	b = fmt.Appendf(b, "Duration: %s\n", time.Since(started).Round(time.Millisecond))
	b = fmt.Appendf(b, "Frozen: %t\n", frozen)
	b = fmt.Appendf(b, "Exit code: %d\n", exitCode)
	b = fmt.Appendf(b, "%s\n\n", "==================================================")
	b = append(b, output...)

	if err := os.MkdirAll(r.cfg.LogDir, 0o755); err != nil {
		r.log.Warn().Err(err).Msg("failed to create session log dir")
		return ""
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		r.log.Warn().Err(err).Str("path", path).Msg("failed to persist attempt transcript")
		return ""
	}

	return path
}
