// Package transcode implements the encode executor, the scene-segmentation
// pipeline and the derived-output packaging for vef jobs.
package transcode

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Recorder accumulates the execution trace of one job in memory: every
// external command, notable events, errors and quality results. The trace is
// flushed next to the output file when the job ends, so a failed encode can
// be replayed by hand.
type Recorder struct {
	mu       sync.Mutex
	started  time.Time
	payload  string
	commands []string
	events   []string
}

// NewRecorder creates a Recorder. payload is the request description logged
// at the top of the trace, typically the job's parameters as JSON.
func NewRecorder(payload string) *Recorder {
	return &Recorder{
		started: time.Now(),
		payload: payload,
	}
}

// Command records one external invocation.
func (r *Recorder) Command(bin string, args []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, bin+" "+strings.Join(args, " "))
}

// Event records a free-form progress note.
func (r *Recorder) Event(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("[%s] %s",
		time.Since(r.started).Round(time.Millisecond),
		fmt.Sprintf(format, args...)))
}

// Error records a failure note.
func (r *Recorder) Error(err error) {
	if err == nil {
		return
	}
	r.Event("error: %v", err)
}

// Flush writes the trace to <outputPath>.commands.log (commands only) and
// <outputPath>.log (full event trace). Write failures are returned but
// callers treat them as advisory; the encode result matters more than the
// trace.
func (r *Recorder) Flush(outputPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	commands := strings.Join(r.commands, "\n") + "\n"
	if err := os.WriteFile(outputPath+".commands.log", []byte(commands), 0o644); err != nil {
		return fmt.Errorf("writing command log: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "started: %s\n", r.started.Format(time.RFC3339))
	if r.payload != "" {
		fmt.Fprintf(&b, "request: %s\n", r.payload)
	}
	b.WriteString("\ncommands:\n")
	for _, c := range r.commands {
		fmt.Fprintf(&b, "  %s\n", c)
	}
	b.WriteString("\nevents:\n")
	for _, e := range r.events {
		fmt.Fprintf(&b, "  %s\n", e)
	}
	if err := os.WriteFile(outputPath+".log", []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing event log: %w", err)
	}
	return nil
}
