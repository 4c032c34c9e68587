// Package repository defines data access for clip job history. The queue
// and the worker own live job state; the history table is a record of it
// that survives restarts.
package repository

import (
	"context"
	"time"

	"github.com/jmylchreest/autoclip/internal/models"
)

// JobRepository defines operations for clip job persistence.
type JobRepository interface {
	// Create inserts a newly accepted job.
	Create(ctx context.Context, job *models.ClipJob) error
	// Update saves the job's current lifecycle fields.
	Update(ctx context.Context, job *models.ClipJob) error
	// GetByID returns nil, nil when the job does not exist.
	GetByID(ctx context.Context, id models.ULID) (*models.ClipJob, error)
	// ListRecent returns the newest jobs first.
	ListRecent(ctx context.Context, limit int) ([]*models.ClipJob, error)
	// ListByRequester returns a requester's newest jobs first.
	ListByRequester(ctx context.Context, requesterID string, limit int) ([]*models.ClipJob, error)
	// GetUnfinished returns jobs still queued or running, oldest first.
	GetUnfinished(ctx context.Context) ([]*models.ClipJob, error)
	// CountByStatus returns the number of jobs per state.
	CountByStatus(ctx context.Context) (map[models.JobState]int64, error)
	// DeleteFinishedBefore deletes terminal jobs completed before the given time.
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}
