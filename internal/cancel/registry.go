// Package cancel tracks running jobs so they can be stopped on request.
//
// Cancellation is cooperative for job state: signalling only raises a flag
// that the pipeline polls. Process termination is forced: once the
// pipeline sees the flag it calls Kill, which terminates every attached
// process.
package cancel

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/jmylchreest/autoclip/internal/models"
)

// Handle is the cancellation entry of one running job.
type Handle struct {
	JobID       models.ULID
	RequesterID string

	requested atomic.Bool
	done      chan struct{}
	once      sync.Once

	mu    sync.Mutex
	procs []*os.Process
}

func newHandle(jobID models.ULID, requesterID string) *Handle {
	return &Handle{
		JobID:       jobID,
		RequesterID: requesterID,
		done:        make(chan struct{}),
	}
}

// Signal raises the cancel flag. It is idempotent.
func (h *Handle) Signal() {
	h.requested.Store(true)
	h.once.Do(func() { close(h.done) })
}

// Requested reports whether cancellation was signalled.
func (h *Handle) Requested() bool {
	return h.requested.Load()
}

// Done is closed on the first Signal.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Attach registers a process to be terminated by Kill.
func (h *Handle) Attach(p *os.Process) {
	if p == nil {
		return
	}
	h.mu.Lock()
	h.procs = append(h.procs, p)
	h.mu.Unlock()
}

// Kill forcibly terminates every attached process. Errors from processes
// that already exited are ignored.
func (h *Handle) Kill() {
	h.mu.Lock()
	procs := h.procs
	h.mu.Unlock()

	for _, p := range procs {
		_ = p.Kill()
	}
}

// Registry maps running job IDs to their handles.
type Registry struct {
	mu      sync.Mutex
	handles map[models.ULID]*Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[models.ULID]*Handle)}
}

// Register creates the entry for a job that is about to run. An existing
// entry for the same ID is replaced.
func (r *Registry) Register(jobID models.ULID, requesterID string) *Handle {
	h := newHandle(jobID, requesterID)
	r.mu.Lock()
	r.handles[jobID] = h
	r.mu.Unlock()
	return h
}

// Signal requests cancellation of a running job. It returns false when the
// job is not registered.
func (r *Registry) Signal(jobID models.ULID) bool {
	r.mu.Lock()
	h, ok := r.handles[jobID]
	r.mu.Unlock()

	if !ok {
		return false
	}
	h.Signal()
	return true
}

// SignalRequester cancels the running job owned by requesterID.
func (r *Registry) SignalRequester(requesterID string) (models.ULID, bool) {
	r.mu.Lock()
	var target *Handle
	for _, h := range r.handles {
		if h.RequesterID == requesterID {
			target = h
			break
		}
	}
	r.mu.Unlock()

	if target == nil {
		return models.ULID{}, false
	}
	target.Signal()
	return target.JobID, true
}

// Get returns the handle of a running job.
func (r *Registry) Get(jobID models.ULID) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[jobID]
	return h, ok
}

// Clear removes a job's entry. Clearing an unknown ID is a no-op.
func (r *Registry) Clear(jobID models.ULID) {
	r.mu.Lock()
	delete(r.handles, jobID)
	r.mu.Unlock()
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
