package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jmylchreest/autoclip/internal/models"
)

const defaultListLimit = 50

// jobRepo implements JobRepository using GORM.
type jobRepo struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *jobRepo {
	return &jobRepo{db: db}
}

// Create inserts a newly accepted job.
func (r *jobRepo) Create(ctx context.Context, job *models.ClipJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("creating job: %w", err)
	}
	return nil
}

// Update saves all fields of the job.
func (r *jobRepo) Update(ctx context.Context, job *models.ClipJob) error {
	if err := r.db.WithContext(ctx).Save(job).Error; err != nil {
		return fmt.Errorf("updating job: %w", err)
	}
	return nil
}

// GetByID retrieves a job by ID.
func (r *jobRepo) GetByID(ctx context.Context, id models.ULID) (*models.ClipJob, error) {
	var job models.ClipJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job by ID: %w", err)
	}
	return &job, nil
}

// ListRecent returns the newest jobs first.
func (r *jobRepo) ListRecent(ctx context.Context, limit int) ([]*models.ClipJob, error) {
	var jobs []*models.ClipJob
	if err := r.db.WithContext(ctx).
		Order("submitted_at DESC, id DESC").
		Limit(normalizeLimit(limit)).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("listing recent jobs: %w", err)
	}
	return jobs, nil
}

// ListByRequester returns a requester's newest jobs first.
func (r *jobRepo) ListByRequester(ctx context.Context, requesterID string, limit int) ([]*models.ClipJob, error) {
	var jobs []*models.ClipJob
	if err := r.db.WithContext(ctx).
		Where("requester_id = ?", requesterID).
		Order("submitted_at DESC, id DESC").
		Limit(normalizeLimit(limit)).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("listing jobs for requester: %w", err)
	}
	return jobs, nil
}

// GetUnfinished returns jobs still queued or running, oldest first.
func (r *jobRepo) GetUnfinished(ctx context.Context) ([]*models.ClipJob, error) {
	var jobs []*models.ClipJob
	if err := r.db.WithContext(ctx).
		Where("status IN (?, ?)", models.JobQueued, models.JobRunning).
		Order("submitted_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("getting unfinished jobs: %w", err)
	}
	return jobs, nil
}

// CountByStatus returns the number of jobs per state.
func (r *jobRepo) CountByStatus(ctx context.Context) (map[models.JobState]int64, error) {
	var rows []struct {
		Status models.JobState
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.ClipJob{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("counting jobs by status: %w", err)
	}

	counts := make(map[models.JobState]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// DeleteFinishedBefore deletes terminal jobs completed before the given time.
func (r *jobRepo) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN (?, ?, ?) AND completed_at < ?",
			models.JobCompleted, models.JobFailed, models.JobCancelled, before).
		Delete(&models.ClipJob{})

	if result.Error != nil {
		return 0, fmt.Errorf("deleting finished jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
