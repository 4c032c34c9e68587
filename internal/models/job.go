package models

import (
	"fmt"
	"time"
)

// JobState is the lifecycle state of a clip job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// ClipJob is a validated clip request plus its lifecycle. The request
// fields are fixed at intake; the rest is advanced by the worker through
// the Mark* methods, which only move forward.
type ClipJob struct {
	ID              ULID      `gorm:"primarykey;type:varchar(26)" json:"id"`
	RequesterID     string    `gorm:"not null;size:255;index" json:"requester_id"`
	SourceURL       string    `gorm:"not null;size:2048" json:"source_url"`
	StartSeconds    int       `gorm:"not null" json:"start_seconds"`
	DurationSeconds int       `gorm:"not null" json:"duration_seconds"`
	Profile         string    `gorm:"not null;size:50;index" json:"profile"`
	EstimatedSizeMB float64   `json:"estimated_size_mb"`
	Status          JobState  `gorm:"not null;size:20;index" json:"status"`
	SubmittedAt     time.Time `gorm:"not null;index" json:"submitted_at"`

	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `gorm:"index" json:"completed_at,omitempty"`
	ElapsedMs       int64      `json:"elapsed_ms,omitempty"`
	OutputPath      string     `gorm:"size:1024" json:"output_path,omitempty"`
	OutputSizeBytes int64      `json:"output_size_bytes,omitempty"`
	LastError       string     `gorm:"size:4096" json:"last_error,omitempty"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// TableName returns the table name for ClipJob.
func (ClipJob) TableName() string {
	return "clip_jobs"
}

// NewClipJob creates a queued job with a fresh ID.
func NewClipJob(requesterID, sourceURL string, startSeconds, durationSeconds int, profile string, estimatedSizeMB float64) *ClipJob {
	return &ClipJob{
		ID:              NewULID(),
		RequesterID:     requesterID,
		SourceURL:       sourceURL,
		StartSeconds:    startSeconds,
		DurationSeconds: durationSeconds,
		Profile:         profile,
		EstimatedSizeMB: estimatedSizeMB,
		Status:          JobQueued,
		SubmittedAt:     time.Now(),
	}
}

// EndSeconds is the offset at which the clip stops.
func (j *ClipJob) EndSeconds() int {
	return j.StartSeconds + j.DurationSeconds
}

// IsFinished reports whether the job reached a terminal state.
func (j *ClipJob) IsFinished() bool {
	return j.Status.IsTerminal()
}

// Elapsed is the wall time spent running, zero until the job finished.
func (j *ClipJob) Elapsed() time.Duration {
	return time.Duration(j.ElapsedMs) * time.Millisecond
}

func (j *ClipJob) transition(to JobState, from ...JobState) error {
	for _, f := range from {
		if j.Status == f {
			j.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
}

// MarkRunning moves a queued job to running.
func (j *ClipJob) MarkRunning() error {
	if err := j.transition(JobRunning, JobQueued); err != nil {
		return err
	}
	now := time.Now()
	j.StartedAt = &now
	return nil
}

// MarkCompleted records the delivered artifact.
func (j *ClipJob) MarkCompleted(outputPath string, sizeBytes int64) error {
	if err := j.transition(JobCompleted, JobRunning); err != nil {
		return err
	}
	j.OutputPath = outputPath
	j.OutputSizeBytes = sizeBytes
	j.LastError = ""
	j.finish()
	return nil
}

// MarkFailed records a failure. Queued jobs may fail too, when a restart
// or shutdown interrupts them before they start.
func (j *ClipJob) MarkFailed(cause error) error {
	if err := j.transition(JobFailed, JobQueued, JobRunning); err != nil {
		return err
	}
	if cause != nil {
		j.LastError = cause.Error()
	}
	j.finish()
	return nil
}

// MarkCancelled records a cancellation of a queued or running job.
func (j *ClipJob) MarkCancelled() error {
	if err := j.transition(JobCancelled, JobQueued, JobRunning); err != nil {
		return err
	}
	j.finish()
	return nil
}

func (j *ClipJob) finish() {
	now := time.Now()
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.ElapsedMs = now.Sub(*j.StartedAt).Milliseconds()
	}
}
