package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/autoclip/internal/models"
	"github.com/jmylchreest/autoclip/internal/observability"
	"github.com/jmylchreest/autoclip/internal/service"
)

// ClipHandler handles clip submission and cancellation endpoints.
type ClipHandler struct {
	clipService *service.ClipService
}

// NewClipHandler creates a new clip handler.
func NewClipHandler(clipService *service.ClipService) *ClipHandler {
	return &ClipHandler{clipService: clipService}
}

// Register registers the clip routes with the API.
func (h *ClipHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "submitClip",
		Method:        http.MethodPost,
		Path:          "/api/v1/clips",
		Summary:       "Submit clip",
		Description:   "Validates a clip request and queues it for processing",
		Tags:          []string{"Clips"},
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusUnprocessableEntity, http.StatusServiceUnavailable},
	}, h.Submit)

	huma.Register(api, huma.Operation{
		OperationID: "listClips",
		Method:      http.MethodGet,
		Path:        "/api/v1/clips",
		Summary:     "List clips",
		Description: "Returns recent clip jobs, newest first",
		Tags:        []string{"Clips"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getClip",
		Method:      http.MethodGet,
		Path:        "/api/v1/clips/{id}",
		Summary:     "Get clip",
		Description: "Returns a clip job by ID",
		Tags:        []string{"Clips"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, h.GetByID)

	huma.Register(api, huma.Operation{
		OperationID: "cancelClip",
		Method:      http.MethodPost,
		Path:        "/api/v1/clips/{id}/cancel",
		Summary:     "Cancel clip",
		Description: "Cancels a queued or running clip job",
		Tags:        []string{"Clips"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, h.Cancel)

	huma.Register(api, huma.Operation{
		OperationID: "cancelRequesterClip",
		Method:      http.MethodPost,
		Path:        "/api/v1/cancel",
		Summary:     "Cancel requester's clip",
		Description: "Cancels the requester's running job, or else their oldest queued job",
		Tags:        []string{"Clips"},
		Errors:      []int{http.StatusNotFound},
	}, h.CancelByRequester)
}

// SubmitClipInput is the input for submitting a clip.
type SubmitClipInput struct {
	Body struct {
		RequesterID string `json:"requester_id" doc:"Opaque ID of the user asking for the clip"`
		SourceURL   string `json:"source_url" doc:"Video page URL passed to yt-dlp"`
		Start       string `json:"start,omitempty" doc:"Start offset: seconds, M:SS, H:MM:SS or 1m30s (default 0)"`
		Duration    string `json:"duration" doc:"Clip length in the same formats as start"`
		Profile     string `json:"profile" doc:"Output profile name" example:"low"`
	}
}

// SubmitClipOutput is the output for submitting a clip.
type SubmitClipOutput struct {
	Body service.SubmitResult
}

// Submit validates and queues a clip request.
func (h *ClipHandler) Submit(ctx context.Context, input *SubmitClipInput) (*SubmitClipOutput, error) {
	res, err := h.clipService.Submit(ctx, service.SubmitRequest{
		RequesterID: input.Body.RequesterID,
		SourceURL:   input.Body.SourceURL,
		Start:       input.Body.Start,
		Duration:    input.Body.Duration,
		Profile:     input.Body.Profile,
	})
	if err != nil {
		var vErr *models.ValidationError
		if errors.As(err, &vErr) {
			observability.LoggerFromContext(ctx).Info("clip rejected",
				slog.String("requester_id", input.Body.RequesterID),
				slog.String("code", string(vErr.Code)),
			)
		}
		return nil, submitError(err)
	}
	return &SubmitClipOutput{Body: *res}, nil
}

// ListClipsInput is the input for listing clips.
type ListClipsInput struct {
	RequesterID string `query:"requester_id" doc:"Only jobs of this requester"`
	Limit       int    `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Maximum number of jobs"`
}

// ListClipsOutput is the output for listing clips.
type ListClipsOutput struct {
	Body struct {
		Jobs []JobResponse `json:"jobs"`
	}
}

// List returns recent clip jobs.
func (h *ClipHandler) List(ctx context.Context, input *ListClipsInput) (*ListClipsOutput, error) {
	jobs, err := h.clipService.ListJobs(ctx, input.RequesterID, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list clips", err)
	}

	resp := &ListClipsOutput{}
	resp.Body.Jobs = make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp.Body.Jobs = append(resp.Body.Jobs, JobFromModel(j))
	}
	return resp, nil
}

// ClipIDInput identifies a clip job by path.
type ClipIDInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// GetClipOutput is the output for getting a clip.
type GetClipOutput struct {
	Body JobResponse
}

// GetByID returns a clip job by ID.
func (h *ClipHandler) GetByID(ctx context.Context, input *ClipIDInput) (*GetClipOutput, error) {
	job, err := h.lookup(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &GetClipOutput{Body: JobFromModel(job)}, nil
}

// CancelClipOutput is the output for cancel operations.
type CancelClipOutput struct {
	Body struct {
		JobID     models.ULID `json:"job_id"`
		Cancelled bool        `json:"cancelled"`
	}
}

// Cancel cancels a queued or running job.
func (h *ClipHandler) Cancel(ctx context.Context, input *ClipIDInput) (*CancelClipOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	if !h.clipService.CancelJob(ctx, id) {
		job, err := h.lookup(ctx, input.ID)
		if err != nil {
			return nil, err
		}
		return nil, huma.Error409Conflict(fmt.Sprintf("job %s is already %s", id, job.Status))
	}

	resp := &CancelClipOutput{}
	resp.Body.JobID = id
	resp.Body.Cancelled = true
	return resp, nil
}

// CancelByRequesterInput is the input for cancelling by requester.
type CancelByRequesterInput struct {
	Body struct {
		RequesterID string `json:"requester_id" minLength:"1" doc:"Requester whose job should be cancelled"`
	}
}

// CancelByRequester cancels the requester's current job.
func (h *ClipHandler) CancelByRequester(ctx context.Context, input *CancelByRequesterInput) (*CancelClipOutput, error) {
	id, ok := h.clipService.RequestCancel(ctx, input.Body.RequesterID)
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("no active job for requester %s", input.Body.RequesterID))
	}

	resp := &CancelClipOutput{}
	resp.Body.JobID = id
	resp.Body.Cancelled = true
	return resp, nil
}

func (h *ClipHandler) lookup(ctx context.Context, rawID string) (*models.ClipJob, error) {
	id, err := models.ParseULID(rawID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	job, err := h.clipService.GetJob(ctx, id)
	if errors.Is(err, models.ErrJobNotFound) {
		return nil, huma.Error404NotFound(fmt.Sprintf("job %s not found", rawID))
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get job", err)
	}
	return job, nil
}
