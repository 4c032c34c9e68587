package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/autoclip/internal/models"
	"github.com/jmylchreest/autoclip/internal/profile"
	"github.com/jmylchreest/autoclip/internal/service"
	"github.com/jmylchreest/autoclip/internal/stats"
	"github.com/jmylchreest/autoclip/pkg/format"
)

// QueueHandler exposes the queue, statistics and profile catalog.
type QueueHandler struct {
	clipService *service.ClipService
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(clipService *service.ClipService) *QueueHandler {
	return &QueueHandler{clipService: clipService}
}

// Register registers the queue routes with the API.
func (h *QueueHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getQueue",
		Method:      http.MethodGet,
		Path:        "/api/v1/queue",
		Summary:     "Get queue",
		Description: "Returns the running job with its progress and the pending queue",
		Tags:        []string{"Queue"},
	}, h.GetQueue)

	huma.Register(api, huma.Operation{
		OperationID: "getStats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Get statistics",
		Description: "Returns aggregate processing statistics",
		Tags:        []string{"Queue"},
	}, h.GetStats)

	huma.Register(api, huma.Operation{
		OperationID: "listProfiles",
		Method:      http.MethodGet,
		Path:        "/api/v1/profiles",
		Summary:     "List profiles",
		Description: "Returns the output profiles and the longest clip each accepts",
		Tags:        []string{"Queue"},
	}, h.ListProfiles)
}

// QueueInput is the input for the queue endpoint.
type QueueInput struct{}

// QueueOutput is the output for the queue endpoint.
type QueueOutput struct {
	Body struct {
		Running *RunningResponse  `json:"running,omitempty"`
		Pending []PendingResponse `json:"pending"`
		Length  int               `json:"length"`
	}
}

// RunningResponse is the job being processed.
type RunningResponse struct {
	Job      JobResponse `json:"job"`
	Progress int         `json:"progress"`
}

// PendingResponse is a queued job.
type PendingResponse struct {
	Job        JobResponse `json:"job"`
	Position   int         `json:"position"`
	ETASeconds int         `json:"eta_seconds"`
}

// GetQueue returns the worker and queue state.
func (h *QueueHandler) GetQueue(ctx context.Context, input *QueueInput) (*QueueOutput, error) {
	st := h.clipService.Status()

	resp := &QueueOutput{}
	if st.Running != nil {
		resp.Body.Running = &RunningResponse{
			Job:      JobFromModel(&st.Running.Job),
			Progress: st.Running.Progress,
		}
	}
	resp.Body.Pending = make([]PendingResponse, 0, len(st.Pending))
	for i := range st.Pending {
		p := st.Pending[i]
		resp.Body.Pending = append(resp.Body.Pending, PendingResponse{
			Job:        JobFromModel(&p.Job),
			Position:   p.Position,
			ETASeconds: p.ETASeconds,
		})
	}
	resp.Body.Length = len(resp.Body.Pending)
	return resp, nil
}

// StatsInput is the input for the statistics endpoint.
type StatsInput struct{}

// StatsOutput is the output for the statistics endpoint.
type StatsOutput struct {
	Body struct {
		stats.Record
		AverageProcess string                    `json:"average_process"`
		History        map[models.JobState]int64 `json:"history"`
	}
}

// GetStats returns aggregate statistics and history counts.
func (h *QueueHandler) GetStats(ctx context.Context, input *StatsInput) (*StatsOutput, error) {
	counts, err := h.clipService.CountByStatus(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to count jobs", err)
	}

	resp := &StatsOutput{}
	resp.Body.Record = h.clipService.Stats()
	resp.Body.AverageProcess = format.Decimal(resp.Body.Record.AverageProcessSeconds, 1) + "s"
	resp.Body.History = counts
	return resp, nil
}

// ProfilesInput is the input for the profiles endpoint.
type ProfilesInput struct{}

// ProfileResponse is a profile with its effective duration limit.
type ProfileResponse struct {
	profile.Profile
	// MaxSeconds is the longest clip that passes both the profile limit
	// and the output size ceiling.
	MaxSeconds int `json:"max_seconds"`
}

// ProfilesOutput is the output for the profiles endpoint.
type ProfilesOutput struct {
	Body struct {
		Profiles []ProfileResponse `json:"profiles"`
	}
}

// ListProfiles returns the profile catalog.
func (h *QueueHandler) ListProfiles(ctx context.Context, input *ProfilesInput) (*ProfilesOutput, error) {
	limit := h.clipService.MaxOutputMB()

	resp := &ProfilesOutput{}
	for _, p := range h.clipService.Profiles() {
		maxSecs := p.MaxDurationSeconds
		if limit > 0 {
			maxSecs = profile.MaxSecondsWithin(p, limit)
		}
		resp.Body.Profiles = append(resp.Body.Profiles, ProfileResponse{Profile: p, MaxSeconds: maxSecs})
	}
	return resp, nil
}
