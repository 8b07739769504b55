package ffmpeg

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBudget(t *testing.T) {
	s := NewSupervisor("ffmpeg", 5, NewRegistry(), nil)

	assert.Equal(t, 500*time.Second, s.RunBudget(100))
	// Short media still gets the floor.
	assert.Equal(t, 30*time.Second, s.RunBudget(1))
	assert.Equal(t, 30*time.Second, s.RunBudget(0))
	// The boundary sits where duration*factor crosses the floor.
	assert.Equal(t, 30*time.Second, s.RunBudget(6))
	assert.Equal(t, 35*time.Second, s.RunBudget(7))
}

func TestProgressPercent(t *testing.T) {
	full := &Progress{SpanSeconds: 100, OffsetPercent: 0, ScalePercent: 100}

	assert.Equal(t, 0, full.percent(0))
	assert.Equal(t, 50, full.percent(50))
	// Never reports 100 from the clock; completion is terminal-state only.
	assert.Equal(t, 99, full.percent(100))
	assert.Equal(t, 99, full.percent(500))

	// A scene covering 20..50% of the job.
	scene := &Progress{SpanSeconds: 30, OffsetPercent: 20, ScalePercent: 30}
	assert.Equal(t, 20, scene.percent(0))
	assert.Equal(t, 35, scene.percent(15))
	assert.Equal(t, 50, scene.percent(30))
	assert.Equal(t, 50, scene.percent(60))
}

func TestSupervisorRunSuccess(t *testing.T) {
	reg := NewRegistry()
	s := NewSupervisor("sh", 5, reg, nil)

	var reported []int
	result, err := s.Run(context.Background(), Command{
		JobID: "job-1",
		Args: []string{"-c", `printf 'time=00:00:02.00\ntime=00:00:05.00\ntime=00:00:10.00\n' 1>&2`},
		MediaDuration: 10,
		Progress: &Progress{
			SpanSeconds:   10,
			ScalePercent:  100,
			Report:        func(p int) { reported = append(reported, p) },
		},
	})
	require.NoError(t, err)

	assert.Contains(t, result.Stderr, "time=00:00:05.00")
	assert.Equal(t, []int{20, 50, 99}, reported)
	assert.False(t, reg.Running("job-1"))
}

func TestSupervisorRunProcessError(t *testing.T) {
	s := NewSupervisor("sh", 5, NewRegistry(), nil)

	_, err := s.Run(context.Background(), Command{
		JobID: "job-err",
		Args:  []string{"-c", "echo boom 1>&2; exit 3"},
	})
	require.Error(t, err)

	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Contains(t, procErr.StderrTail, "boom")
}

func TestSupervisorRunCanceled(t *testing.T) {
	reg := NewRegistry()
	s := NewSupervisor("sh", 5, reg, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background(), Command{
			JobID: "job-cancel",
			Args:  []string{"-c", "sleep 30"},
		})
		done <- err
	}()

	require.Eventually(t, func() bool {
		return reg.Running("job-cancel")
	}, 5*time.Second, 10*time.Millisecond)

	require.True(t, reg.Cancel("job-cancel"))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCanceled)
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after cancel")
	}
	assert.False(t, reg.Running("job-cancel"))
}

func TestSupervisorRunContextCancellation(t *testing.T) {
	s := NewSupervisor("sh", 5, NewRegistry(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := s.Run(ctx, Command{
		JobID: "job-ctx",
		Args:  []string{"-c", "sleep 30"},
	})
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestRegistryCancelUnknownJob(t *testing.T) {
	assert.False(t, NewRegistry().Cancel("missing"))
}

func TestStderrTail(t *testing.T) {
	assert.Equal(t, "a\nb", stderrTail("a\nb\n"))

	long := ""
	for i := 0; i < 50; i++ {
		long += "line\n"
	}
	tail := stderrTail(long)
	assert.Len(t, splitLines(tail), stderrTailLines)
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
