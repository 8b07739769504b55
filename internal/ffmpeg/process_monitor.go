package ffmpeg

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// monitorInterval is how often a running encoder is sampled.
const monitorInterval = 5 * time.Second

// ProcessMonitor samples CPU and memory usage of a running encoder process
// and logs it at debug level. Peak RSS is reported on the invocation result.
type ProcessMonitor struct {
	pid    int32
	logger *slog.Logger

	mu      sync.Mutex
	peakRSS uint64

	done chan struct{}
	wg   sync.WaitGroup
}

// NewProcessMonitor creates a monitor for the given PID.
func NewProcessMonitor(pid int, logger *slog.Logger) *ProcessMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessMonitor{
		pid:    int32(pid),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start begins sampling in the background.
func (m *ProcessMonitor) Start() {
	m.wg.Add(1)
	go m.loop()
}

// Stop ends sampling and waits for the sampler to exit.
func (m *ProcessMonitor) Stop() {
	close(m.done)
	m.wg.Wait()
}

// PeakRSS returns the largest resident set size observed, in bytes.
func (m *ProcessMonitor) PeakRSS() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakRSS
}

func (m *ProcessMonitor) loop() {
	defer m.wg.Done()

	proc, err := process.NewProcess(m.pid)
	if err != nil {
		// Short-lived processes can exit before the first sample.
		return
	}

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sample(proc)
		}
	}
}

func (m *ProcessMonitor) sample(proc *process.Process) {
	cpu, err := proc.CPUPercent()
	if err != nil {
		return
	}
	mem, err := proc.MemoryInfo()
	if err != nil || mem == nil {
		return
	}

	m.mu.Lock()
	if mem.RSS > m.peakRSS {
		m.peakRSS = mem.RSS
	}
	m.mu.Unlock()

	m.logger.Debug("encoder resource usage",
		slog.Int("pid", int(m.pid)),
		slog.Float64("cpu_percent", cpu),
		slog.Uint64("rss_bytes", mem.RSS),
	)
}
