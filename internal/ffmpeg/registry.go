package ffmpeg

import (
	"os"
	"sync"
	"syscall"
)

// handle tracks one live encoder process and why it was signaled.
type handle struct {
	process *os.Process

	mu       sync.Mutex
	canceled bool
	timedOut bool
}

func (h *handle) signal(sig syscall.Signal) error {
	return h.process.Signal(sig)
}

// Registry maps job IDs to their running encoder process. It is safe for
// concurrent use; the supervisor registers a process before waiting on it
// and deregisters it when it exits.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*handle
}

// NewRegistry creates an empty process registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*handle)}
}

func (r *Registry) register(jobID string, h *handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[jobID] = h
}

func (r *Registry) deregister(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, jobID)
}

// Cancel sends SIGTERM to the process owned by jobID, marking the exit as an
// external cancellation. Returns false when no process is registered for the
// job.
func (r *Registry) Cancel(jobID string) bool {
	r.mu.Lock()
	h, ok := r.handles[jobID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	h.mu.Lock()
	h.canceled = true
	h.mu.Unlock()

	_ = h.signal(syscall.SIGTERM)
	return true
}

// kill sends SIGKILL, marking the exit as a timeout.
func (r *Registry) kill(jobID string) {
	r.mu.Lock()
	h, ok := r.handles[jobID]
	r.mu.Unlock()
	if !ok {
		return
	}

	h.mu.Lock()
	h.timedOut = true
	h.mu.Unlock()

	_ = h.signal(syscall.SIGKILL)
}

// Running reports whether a process is registered for the job.
func (r *Registry) Running(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[jobID]
	return ok
}
