// Package queue is the FIFO holding area between intake and the worker.
// Any number of goroutines may enqueue; a single consumer dequeues.
package queue

import (
	"context"
	"sync"

	"github.com/jmylchreest/autoclip/internal/models"
)

// Queue is an unbounded FIFO of pending jobs.
type Queue struct {
	mu     sync.Mutex
	items  []*models.ClipJob
	signal chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Enqueue appends job and returns its 1-based position. It never blocks.
func (q *Queue) Enqueue(job *models.ClipJob) int {
	q.mu.Lock()
	q.items = append(q.items, job)
	pos := len(q.items)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return pos
}

// ClaimFunc runs while the queue lock is still held, so no other caller
// can observe the job between leaving the queue and being claimed.
type ClaimFunc func(job *models.ClipJob)

// TryDequeue removes and returns the head job, if any.
func (q *Queue) TryDequeue() (*models.ClipJob, bool) {
	return q.tryDequeue(nil)
}

func (q *Queue) tryDequeue(claim ClaimFunc) (*models.ClipJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	job := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if claim != nil {
		claim(job)
	}
	return job, true
}

// Dequeue blocks until a job is available or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (*models.ClipJob, error) {
	return q.DequeueWith(ctx, nil)
}

// DequeueWith is Dequeue with claim applied to the job before the queue
// lock is released.
func (q *Queue) DequeueWith(ctx context.Context, claim ClaimFunc) (*models.ClipJob, error) {
	for {
		if job, ok := q.tryDequeue(claim); ok {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.signal:
		}
	}
}

// Remove withdraws a pending job by ID.
func (q *Queue) Remove(id models.ULID) (*models.ClipJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, job := range q.items {
		if job.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return job, true
		}
	}
	return nil, false
}

// FindByRequester returns the oldest pending job of a requester.
func (q *Queue) FindByRequester(requesterID string) (*models.ClipJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.items {
		if job.RequesterID == requesterID {
			return job, true
		}
	}
	return nil, false
}

// Find returns a copy of a pending job and its 1-based position.
func (q *Queue) Find(id models.ULID) (models.ClipJob, int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, job := range q.items {
		if job.ID == id {
			return *job, i + 1, true
		}
	}
	return models.ClipJob{}, 0, false
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns copies of the pending jobs in order. The copies are
// taken under the queue lock, before the worker can dequeue and mutate
// any of them.
func (q *Queue) Snapshot() []models.ClipJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]models.ClipJob, len(q.items))
	for i, job := range q.items {
		out[i] = *job
	}
	return out
}

// Drain removes and returns every pending job.
func (q *Queue) Drain() []*models.ClipJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = nil
	return out
}
