// Package service holds ClipService, the object every front-end talks to.
// It validates and enqueues requests, cancels jobs, and reports queue and
// statistics state. The worker reports the running job back through the
// JobStarted, JobProgress and JobFinished hooks.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/autoclip/internal/cancel"
	"github.com/jmylchreest/autoclip/internal/models"
	"github.com/jmylchreest/autoclip/internal/notify"
	"github.com/jmylchreest/autoclip/internal/observability"
	"github.com/jmylchreest/autoclip/internal/profile"
	"github.com/jmylchreest/autoclip/internal/queue"
	"github.com/jmylchreest/autoclip/internal/repository"
	"github.com/jmylchreest/autoclip/internal/stats"
	"github.com/jmylchreest/autoclip/pkg/timecode"
)

// Options bounds what intake accepts.
type Options struct {
	// MaxOutputMB is the estimated size ceiling. Zero disables the check.
	MaxOutputMB float64
	// MaxPending caps the queue length. Zero means unlimited.
	MaxPending int
	// DefaultJobEstimate is used for ETAs until a job has completed.
	DefaultJobEstimate time.Duration
}

// SubmitRequest is a clip request as typed by a user.
type SubmitRequest struct {
	RequesterID string
	SourceURL   string
	Start       string
	Duration    string
	Profile     string
}

// SubmitResult describes an accepted request.
type SubmitResult struct {
	JobID           models.ULID `json:"job_id"`
	Profile         string      `json:"profile"`
	EstimatedSizeMB float64     `json:"estimated_size_mb"`
	QueuePosition   int         `json:"queue_position"`
	ETASeconds      int         `json:"eta_seconds"`
}

// RunningJob is the job the worker is executing.
type RunningJob struct {
	Job      models.ClipJob `json:"job"`
	Progress int            `json:"progress"`
}

// PendingJob is a queued job with its place in line.
type PendingJob struct {
	Job        models.ClipJob `json:"job"`
	Position   int            `json:"position"`
	ETASeconds int            `json:"eta_seconds"`
}

// QueueStatus is a point-in-time view of the worker and queue.
type QueueStatus struct {
	Running *RunningJob  `json:"running,omitempty"`
	Pending []PendingJob `json:"pending"`
}

// ClipService is constructed once at startup and shared by all front-ends.
type ClipService struct {
	catalog  *profile.Catalog
	queue    *queue.Queue
	registry *cancel.Registry
	stats    *stats.Store
	repo     repository.JobRepository
	notifier notify.Notifier
	logger   *slog.Logger
	opts     Options

	// submitMu makes the queue-length check and the enqueue one step.
	submitMu sync.Mutex

	mu      sync.RWMutex
	running *RunningJob
}

// NewClipService creates a ClipService. History persistence and
// notifications are off until WithRepository and WithNotifier are called.
func NewClipService(catalog *profile.Catalog, q *queue.Queue, registry *cancel.Registry, st *stats.Store, opts Options) *ClipService {
	if opts.DefaultJobEstimate <= 0 {
		opts.DefaultJobEstimate = time.Minute
	}
	return &ClipService{
		catalog:  catalog,
		queue:    q,
		registry: registry,
		stats:    st,
		notifier: notify.Discard{},
		logger:   slog.Default(),
		opts:     opts,
	}
}

// WithRepository enables job history persistence.
func (s *ClipService) WithRepository(repo repository.JobRepository) *ClipService {
	s.repo = repo
	return s
}

// WithNotifier sets the notification sink.
func (s *ClipService) WithNotifier(n notify.Notifier) *ClipService {
	s.notifier = n
	return s
}

// WithLogger sets a custom logger.
func (s *ClipService) WithLogger(logger *slog.Logger) *ClipService {
	s.logger = observability.WithComponent(logger, "clip_service")
	return s
}

// Submit validates req and enqueues it. Rejections are *models.ValidationError
// values that match models.ErrValidation and the specific sentinel.
func (s *ClipService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := validateSource(req.RequesterID, req.SourceURL); err != nil {
		return nil, err
	}

	prof, err := s.catalog.Lookup(req.Profile)
	if err != nil {
		return nil, models.NewValidationError(models.CodeUnknownProfile, "profile", models.ErrUnknownProfile,
			"unknown profile %q, choose one of %s", req.Profile, strings.Join(s.catalog.Names(), ", "))
	}

	start := 0
	if strings.TrimSpace(req.Start) != "" {
		if start, err = timecode.Parse(req.Start); err != nil || start < 0 {
			return nil, models.NewValidationError(models.CodeInvalidDuration, "start", models.ErrInvalidDuration,
				"cannot read start time %q", req.Start)
		}
	}

	duration, err := timecode.Parse(req.Duration)
	if err != nil {
		return nil, models.NewValidationError(models.CodeInvalidDuration, "duration", models.ErrInvalidDuration,
			"cannot read duration %q", req.Duration)
	}
	if duration <= 0 {
		return nil, models.NewValidationError(models.CodeInvalidDuration, "duration", models.ErrInvalidDuration,
			"duration must be positive")
	}
	if duration > prof.MaxDurationSeconds {
		return nil, models.NewValidationError(models.CodeDurationExceedsLimit, "duration", models.ErrDurationExceedsLimit,
			"%s clips are limited to %s, got %s", prof.Name,
			timecode.Format(prof.MaxDurationSeconds), timecode.Format(duration))
	}

	estimate := profile.EstimateOutputSizeMB(prof, duration)
	if s.opts.MaxOutputMB > 0 && estimate > s.opts.MaxOutputMB {
		return nil, models.NewValidationError(models.CodeEstimatedSizeTooLarge, "duration", models.ErrEstimatedSizeTooLarge,
			"estimated size %.1f MB exceeds %.0f MB, try at most %s", estimate, s.opts.MaxOutputMB,
			timecode.Format(profile.MaxSecondsWithin(prof, s.opts.MaxOutputMB)))
	}

	job := models.NewClipJob(strings.TrimSpace(req.RequesterID), strings.TrimSpace(req.SourceURL),
		start, duration, prof.Name, estimate)

	s.submitMu.Lock()
	if s.opts.MaxPending > 0 && s.queue.Len() >= s.opts.MaxPending {
		s.submitMu.Unlock()
		return nil, models.NewValidationError(models.CodeQueueFull, "", models.ErrQueueFull,
			"%d clips are already waiting, try again later", s.opts.MaxPending)
	}
	s.createHistory(ctx, job)
	position := s.queue.Enqueue(job)
	s.submitMu.Unlock()

	if err := s.stats.RecordSubmitted(); err != nil {
		s.logger.Warn("failed to persist stats", slog.String("error", err.Error()))
	}

	eta := s.eta(position)
	s.logger.InfoContext(ctx, "clip queued",
		slog.String("job_id", job.ID.String()),
		slog.String("requester_id", job.RequesterID),
		slog.String("profile", job.Profile),
		slog.Int("duration_seconds", duration),
		slog.Int("position", position),
	)
	s.notifier.Notify(ctx, job.RequesterID, notify.Queued(position, eta, estimate))

	return &SubmitResult{
		JobID:           job.ID,
		Profile:         job.Profile,
		EstimatedSizeMB: estimate,
		QueuePosition:   position,
		ETASeconds:      int(eta / time.Second),
	}, nil
}

func validateSource(requesterID, sourceURL string) error {
	if strings.TrimSpace(requesterID) == "" {
		return models.NewValidationError(models.CodeInvalidSource, "requester_id", models.ErrInvalidSource,
			"requester is required")
	}
	u, err := url.Parse(strings.TrimSpace(sourceURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.NewValidationError(models.CodeInvalidSource, "source_url", models.ErrInvalidSource,
			"%q is not an http(s) link", sourceURL)
	}
	return nil
}

// eta estimates how long until the job at position finishes.
func (s *ClipService) eta(position int) time.Duration {
	per := time.Duration(s.stats.AverageProcessSeconds() * float64(time.Second))
	if per <= 0 {
		per = s.opts.DefaultJobEstimate
	}
	return time.Duration(position) * per
}

// CancelJob cancels a running or queued job. It returns false when the
// job is neither.
func (s *ClipService) CancelJob(ctx context.Context, id models.ULID) bool {
	if s.registry.Signal(id) {
		s.logger.InfoContext(ctx, "cancellation signalled", slog.String("job_id", id.String()))
		return true
	}

	job, ok := s.queue.Remove(id)
	if !ok {
		// The worker registers a job under the queue lock as it dequeues
		// it, so a job that left the queue after the first Signal is
		// registered by now.
		return s.registry.Signal(id)
	}

	if err := job.MarkCancelled(); err != nil {
		s.logger.Error("cancelling queued job", slog.String("job_id", id.String()), slog.String("error", err.Error()))
		return false
	}
	if err := s.stats.RecordCancelled(); err != nil {
		s.logger.Warn("failed to persist stats", slog.String("error", err.Error()))
	}
	s.updateHistory(ctx, job)
	s.logger.InfoContext(ctx, "queued clip withdrawn", slog.String("job_id", id.String()))
	s.notifier.Notify(ctx, job.RequesterID, notify.Cancelled())
	return true
}

// RequestCancel cancels the requester's running job, or else their oldest
// queued job. It returns the affected job ID.
func (s *ClipService) RequestCancel(ctx context.Context, requesterID string) (models.ULID, bool) {
	if id, ok := s.registry.SignalRequester(requesterID); ok {
		s.logger.InfoContext(ctx, "cancellation signalled",
			slog.String("job_id", id.String()),
			slog.String("requester_id", requesterID),
		)
		return id, true
	}

	job, ok := s.queue.FindByRequester(requesterID)
	if !ok {
		// The worker claims jobs atomically, so one dequeued since the
		// first lookup is registered by now.
		return s.registry.SignalRequester(requesterID)
	}
	if !s.CancelJob(ctx, job.ID) {
		return models.ULID{}, false
	}
	return job.ID, true
}

// Status returns the running job and the pending queue.
func (s *ClipService) Status() QueueStatus {
	st := QueueStatus{Pending: []PendingJob{}}

	s.mu.RLock()
	if s.running != nil {
		cp := *s.running
		st.Running = &cp
	}
	s.mu.RUnlock()

	for i, job := range s.queue.Snapshot() {
		pos := i + 1
		st.Pending = append(st.Pending, PendingJob{
			Job:        job,
			Position:   pos,
			ETASeconds: int(s.eta(pos) / time.Second),
		})
	}
	return st
}

// Stats returns a copy of the aggregate statistics.
func (s *ClipService) Stats() stats.Record {
	return s.stats.Snapshot()
}

// CountByStatus returns how many history rows are in each state.
func (s *ClipService) CountByStatus(ctx context.Context) (map[models.JobState]int64, error) {
	if s.repo == nil {
		return map[models.JobState]int64{}, nil
	}
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}
	return counts, nil
}

// MaxOutputMB is the intake size ceiling, zero when unlimited.
func (s *ClipService) MaxOutputMB() float64 {
	return s.opts.MaxOutputMB
}

// Profiles returns the available output profiles.
func (s *ClipService) Profiles() []profile.Profile {
	return s.catalog.List()
}

// GetJob finds a job in the worker, the queue, or the history.
func (s *ClipService) GetJob(ctx context.Context, id models.ULID) (*models.ClipJob, error) {
	s.mu.RLock()
	if s.running != nil && s.running.Job.ID == id {
		job := s.running.Job
		s.mu.RUnlock()
		return &job, nil
	}
	s.mu.RUnlock()

	if job, _, ok := s.queue.Find(id); ok {
		return &job, nil
	}

	if s.repo != nil {
		job, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("getting job %s: %w", id, err)
		}
		if job != nil {
			return job, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", models.ErrJobNotFound, id)
}

// ListJobs returns recent jobs from the history, optionally for one
// requester. Without a repository it returns nothing.
func (s *ClipService) ListJobs(ctx context.Context, requesterID string, limit int) ([]*models.ClipJob, error) {
	if s.repo == nil {
		return []*models.ClipJob{}, nil
	}
	if requesterID != "" {
		return s.repo.ListByRequester(ctx, requesterID, limit)
	}
	return s.repo.ListRecent(ctx, limit)
}

// JobStarted records the job the worker just picked up.
func (s *ClipService) JobStarted(job *models.ClipJob) {
	s.mu.Lock()
	s.running = &RunningJob{Job: *job}
	s.mu.Unlock()
}

// JobProgress updates the running job's progress. Updates for other jobs
// are ignored.
func (s *ClipService) JobProgress(id models.ULID, percent int) {
	s.mu.Lock()
	if s.running != nil && s.running.Job.ID == id {
		s.running.Progress = percent
	}
	s.mu.Unlock()
}

// JobFinished clears the running job.
func (s *ClipService) JobFinished(id models.ULID) {
	s.mu.Lock()
	if s.running != nil && s.running.Job.ID == id {
		s.running = nil
	}
	s.mu.Unlock()
}

func (s *ClipService) createHistory(ctx context.Context, job *models.ClipJob) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Create(ctx, job); err != nil {
		s.logger.Warn("failed to record job history",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ClipService) updateHistory(ctx context.Context, job *models.ClipJob) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Update(context.WithoutCancel(ctx), job); err != nil {
		s.logger.Warn("failed to update job history",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// IsValidation reports whether err is an intake rejection.
func IsValidation(err error) bool {
	return errors.Is(err, models.ErrValidation)
}
