// Package handlers provides HTTP API handlers for autoclip.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/autoclip/internal/models"
	"github.com/jmylchreest/autoclip/pkg/format"
)

// JobResponse represents a clip job in API responses.
type JobResponse struct {
	ID              models.ULID     `json:"id"`
	RequesterID     string          `json:"requester_id"`
	SourceURL       string          `json:"source_url"`
	StartSeconds    int             `json:"start_seconds"`
	DurationSeconds int             `json:"duration_seconds"`
	Profile         string          `json:"profile"`
	EstimatedSizeMB float64         `json:"estimated_size_mb"`
	Status          models.JobState `json:"status"`
	SubmittedAt     time.Time       `json:"submitted_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	ElapsedMs       int64           `json:"elapsed_ms,omitempty"`
	OutputSizeBytes int64           `json:"output_size_bytes,omitempty"`
	OutputSize      string          `json:"output_size,omitempty"`
	LastError       string          `json:"last_error,omitempty"`
}

// JobFromModel converts a model to a response. The output path is a
// server-local detail and is not exposed.
func JobFromModel(j *models.ClipJob) JobResponse {
	resp := JobResponse{
		ID:              j.ID,
		RequesterID:     j.RequesterID,
		SourceURL:       j.SourceURL,
		StartSeconds:    j.StartSeconds,
		DurationSeconds: j.DurationSeconds,
		Profile:         j.Profile,
		EstimatedSizeMB: j.EstimatedSizeMB,
		Status:          j.Status,
		SubmittedAt:     j.SubmittedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		ElapsedMs:       j.ElapsedMs,
		OutputSizeBytes: j.OutputSizeBytes,
		LastError:       j.LastError,
	}
	if j.OutputSizeBytes > 0 {
		resp.OutputSize = format.Bytes(j.OutputSizeBytes)
	}
	return resp
}

// RejectionError is returned when intake refuses a request. Code is the
// stable machine-readable reason.
type RejectionError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Code   string `json:"code"`
	Field  string `json:"field,omitempty"`
}

func (e *RejectionError) Error() string { return e.Detail }

// GetStatus implements huma.StatusError.
func (e *RejectionError) GetStatus() int { return e.Status }

// ContentType implements huma.ContentTypeFilter.
func (e *RejectionError) ContentType(ct string) string {
	if ct == "application/json" {
		return "application/problem+json"
	}
	return ct
}

// submitError maps a Submit error to an HTTP error: 503 when the queue is
// full, 422 for every other validation failure.
func submitError(err error) error {
	var vErr *models.ValidationError
	if !errors.As(err, &vErr) {
		return huma.Error500InternalServerError("failed to submit clip", err)
	}
	status := http.StatusUnprocessableEntity
	if errors.Is(err, models.ErrQueueFull) {
		status = http.StatusServiceUnavailable
	}
	return &RejectionError{
		Status: status,
		Title:  http.StatusText(status),
		Detail: vErr.Message,
		Code:   string(vErr.Code),
		Field:  vErr.Field,
	}
}

var _ huma.StatusError = (*RejectionError)(nil)
