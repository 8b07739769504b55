package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strings"
	"time"

	"github.com/vefmedia/vef/internal/observability"
)

// Sentinel errors distinguishing why an encoder process died.
var (
	// ErrCanceled indicates the process was terminated by an external
	// cancellation (SIGTERM via the registry).
	ErrCanceled = errors.New("process canceled")
	// ErrTimeout indicates the process exceeded its run budget and was
	// killed (SIGKILL).
	ErrTimeout = errors.New("process timed out")
)

// ProcessError wraps a non-zero ffmpeg exit with enough stderr context to
// diagnose it.
type ProcessError struct {
	Args       []string
	Err        error
	StderrTail string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("ffmpeg %s: %v: %s", strings.Join(e.Args, " "), e.Err, e.StderrTail)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Progress maps the clock position of one ffmpeg invocation onto a job
// progress percentage. A scene encode covers only a sub-range of the job, so
// the mapping is offset+scale rather than a plain ratio.
type Progress struct {
	// SpanSeconds is the media duration this invocation processes.
	SpanSeconds float64
	// OffsetPercent is the job progress already completed before this
	// invocation.
	OffsetPercent float64
	// ScalePercent is the share of job progress this invocation covers.
	ScalePercent float64
	// Report receives each new percentage. Called only when the value
	// increased by at least one whole point, and never with more than 99;
	// 100 is reserved for terminal success.
	Report func(percent int)
}

// percent computes the capped progress value for a clock position.
func (p *Progress) percent(clock float64) int {
	ratio := 0.0
	if p.SpanSeconds > 0 {
		ratio = math.Min(1, clock/p.SpanSeconds)
	}
	pct := int(math.Floor(p.OffsetPercent + p.ScalePercent*ratio))
	if pct > 99 {
		pct = 99
	}
	return pct
}

// Command describes one supervised ffmpeg invocation.
type Command struct {
	// JobID keys the process in the registry for external cancellation.
	JobID string
	// Args is the full ffmpeg argument list, without the binary name.
	Args []string
	// MediaDuration (seconds) sizes the run budget. Zero or negative
	// falls back to the minimum budget.
	MediaDuration float64
	// Progress, when non-nil, enables progress reporting from the stderr
	// clock.
	Progress *Progress
}

// Result carries the stderr transcript, timing and resource usage of a
// finished invocation.
type Result struct {
	Stderr  string
	Elapsed time.Duration
	// PeakRSSBytes is the largest resident set size sampled while the
	// process ran; zero when it exited before the first sample.
	PeakRSSBytes uint64
}

// minRunBudget is the floor for the per-invocation timeout, so very short
// inputs still get time for process startup and muxing.
const minRunBudget = 30 * time.Second

// Supervisor runs ffmpeg processes with progress reporting, a duration-derived
// timeout and cooperative cancellation through a shared registry.
type Supervisor struct {
	bin           string
	timeoutFactor float64
	registry      *Registry
	logger        *slog.Logger
}

// NewSupervisor creates a Supervisor for the given ffmpeg binary.
func NewSupervisor(bin string, timeoutFactor float64, registry *Registry, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	logger = observability.WithComponent(logger, "ffmpeg")
	return &Supervisor{
		bin:           bin,
		timeoutFactor: timeoutFactor,
		registry:      registry,
		logger:        logger,
	}
}

// RunBudget returns the timeout applied to an invocation processing the given
// media duration: duration times the configured factor, floored at 30s.
func (s *Supervisor) RunBudget(mediaDuration float64) time.Duration {
	budget := time.Duration(mediaDuration * s.timeoutFactor * float64(time.Second))
	if budget < minRunBudget {
		budget = minRunBudget
	}
	return budget
}

// Run executes one ffmpeg invocation to completion. Stdout is discarded and
// stderr is accumulated; ffmpeg writes diagnostics, the status clock and
// filter output there. The returned error is ErrCanceled or ErrTimeout when
// the process was signaled, or a *ProcessError on a non-zero exit.
func (s *Supervisor) Run(ctx context.Context, cmd Command) (*Result, error) {
	proc := exec.Command(s.bin, cmd.Args...)
	proc.Stdout = io.Discard

	stderrPipe, err := proc.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stderr pipe: %w", err)
	}

	start := time.Now()
	if err := proc.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}

	h := &handle{process: proc.Process}
	s.registry.register(cmd.JobID, h)
	defer s.registry.deregister(cmd.JobID)

	budget := s.RunBudget(cmd.MediaDuration)
	killTimer := time.AfterFunc(budget, func() {
		s.logger.Warn("run budget exceeded, killing process",
			slog.String("job_id", cmd.JobID),
			slog.Duration("budget", budget),
		)
		s.registry.kill(cmd.JobID)
	})
	defer killTimer.Stop()

	// Context cancellation (shutdown) behaves like an external cancel.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			s.registry.Cancel(cmd.JobID)
		case <-watchDone:
		}
	}()

	monitor := NewProcessMonitor(proc.Process.Pid, s.logger)
	monitor.Start()

	stderr := s.consumeStderr(stderrPipe, cmd.Progress)

	waitErr := proc.Wait()
	monitor.Stop()
	result := &Result{
		Stderr:       stderr,
		Elapsed:      time.Since(start),
		PeakRSSBytes: monitor.PeakRSS(),
	}

	h.mu.Lock()
	timedOut, canceled := h.timedOut, h.canceled
	h.mu.Unlock()

	switch {
	case timedOut:
		return result, fmt.Errorf("%w after %s", ErrTimeout, budget)
	case canceled:
		return result, ErrCanceled
	case waitErr != nil:
		return result, &ProcessError{Args: cmd.Args, Err: waitErr, StderrTail: stderrTail(stderr)}
	}
	return result, nil
}

// consumeStderr reads stderr to EOF, accumulating the transcript and feeding
// the status clock into the progress mapping. ffmpeg separates status updates
// with carriage returns, so the scanner splits on both \r and \n.
func (s *Supervisor) consumeStderr(r io.Reader, progress *Progress) string {
	var buf strings.Builder
	lastReported := -1
	if progress != nil {
		lastReported = int(math.Floor(progress.OffsetPercent))
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanCRorLF)

	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')

		if progress == nil || progress.Report == nil {
			continue
		}
		clock, ok := ParseClock(line)
		if !ok {
			continue
		}
		if pct := progress.percent(clock); pct >= lastReported+1 {
			lastReported = pct
			progress.Report(pct)
		}
	}
	return buf.String()
}

// scanCRorLF is a bufio.SplitFunc splitting on either \r or \n.
func scanCRorLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// stderrTailLines bounds how much stderr is attached to process errors.
const stderrTailLines = 20

func stderrTail(stderr string) string {
	lines := strings.Split(strings.TrimRight(stderr, "\n"), "\n")
	if len(lines) > stderrTailLines {
		lines = lines[len(lines)-stderrTailLines:]
	}
	return strings.Join(lines, "\n")
}
