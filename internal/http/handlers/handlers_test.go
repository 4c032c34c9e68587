package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/autoclip/internal/cancel"
	"github.com/jmylchreest/autoclip/internal/models"
	"github.com/jmylchreest/autoclip/internal/profile"
	"github.com/jmylchreest/autoclip/internal/queue"
	"github.com/jmylchreest/autoclip/internal/repository"
	"github.com/jmylchreest/autoclip/internal/service"
	"github.com/jmylchreest/autoclip/internal/stats"
)

type apiFixture struct {
	api      humatest.TestAPI
	svc      *service.ClipService
	queue    *queue.Queue
	registry *cancel.Registry
	repo     repository.JobRepository
}

func newAPIFixture(t *testing.T, opts service.Options) *apiFixture {
	t.Helper()

	st, err := stats.Open(filepath.Join(t.TempDir(), "stats.json"), nil)
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.ClipJob{}))
	repo := repository.NewJobRepository(db)

	if opts.MaxOutputMB == 0 {
		opts.MaxOutputMB = 48
	}
	q := queue.New()
	reg := cancel.NewRegistry()
	svc := service.NewClipService(profile.DefaultCatalog(), q, reg, st, opts).WithRepository(repo)

	_, api := humatest.New(t)
	NewClipHandler(svc).Register(api)
	NewQueueHandler(svc).Register(api)

	return &apiFixture{api: api, svc: svc, queue: q, registry: reg, repo: repo}
}

func decode(t *testing.T, body []byte, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body, v))
}

func clipBody(requester, prof, duration string) map[string]any {
	return map[string]any{
		"requester_id": requester,
		"source_url":   "https://www.youtube.com/watch?v=abc",
		"start":        "1:00",
		"duration":     duration,
		"profile":      prof,
	}
}

func TestClipHandler_Submit(t *testing.T) {
	f := newAPIFixture(t, service.Options{})

	resp := f.api.Post("/api/v1/clips", clipBody("alice", "low", "45"))
	require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())

	var res service.SubmitResult
	decode(t, resp.Body.Bytes(), &res)
	assert.Equal(t, 1, res.QueuePosition)
	assert.Equal(t, "low", res.Profile)
	assert.False(t, res.JobID.IsZero())
	assert.Equal(t, 1, f.queue.Len())
}

func TestClipHandler_SubmitRejections(t *testing.T) {
	tests := []struct {
		name     string
		body     map[string]any
		wantCode int
		wantErr  models.ValidationCode
	}{
		{"over profile limit", clipBody("alice", "low", "90"), http.StatusUnprocessableEntity, models.CodeDurationExceedsLimit},
		{"too large", clipBody("alice", "high", "30"), http.StatusUnprocessableEntity, models.CodeEstimatedSizeTooLarge},
		{"unknown profile", clipBody("alice", "ultra", "10"), http.StatusUnprocessableEntity, models.CodeUnknownProfile},
		{"bad duration", clipBody("alice", "low", "soon"), http.StatusUnprocessableEntity, models.CodeInvalidDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t, service.Options{})

			resp := f.api.Post("/api/v1/clips", tt.body)
			require.Equal(t, tt.wantCode, resp.Code, resp.Body.String())

			var rej RejectionError
			decode(t, resp.Body.Bytes(), &rej)
			assert.Equal(t, string(tt.wantErr), rej.Code)
			assert.Equal(t, tt.wantCode, rej.Status)
			assert.Equal(t, 0, f.queue.Len())
		})
	}
}

func TestClipHandler_SubmitQueueFull(t *testing.T) {
	f := newAPIFixture(t, service.Options{MaxPending: 1})

	require.Equal(t, http.StatusAccepted, f.api.Post("/api/v1/clips", clipBody("alice", "low", "10")).Code)

	resp := f.api.Post("/api/v1/clips", clipBody("bob", "low", "10"))
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	var rej RejectionError
	decode(t, resp.Body.Bytes(), &rej)
	assert.Equal(t, string(models.CodeQueueFull), rej.Code)
}

func TestClipHandler_GetAndList(t *testing.T) {
	f := newAPIFixture(t, service.Options{})
	res, err := f.svc.Submit(context.Background(), service.SubmitRequest{
		RequesterID: "alice", SourceURL: "https://example.com/v", Duration: "10", Profile: "low",
	})
	require.NoError(t, err)

	resp := f.api.Get("/api/v1/clips/" + res.JobID.String())
	require.Equal(t, http.StatusOK, resp.Code)
	var job JobResponse
	decode(t, resp.Body.Bytes(), &job)
	assert.Equal(t, res.JobID, job.ID)
	assert.Equal(t, models.JobQueued, job.Status)

	assert.Equal(t, http.StatusNotFound, f.api.Get("/api/v1/clips/"+models.NewULID().String()).Code)
	assert.Equal(t, http.StatusBadRequest, f.api.Get("/api/v1/clips/not-an-id").Code)

	resp = f.api.Get("/api/v1/clips?requester_id=alice")
	require.Equal(t, http.StatusOK, resp.Code)
	var list struct {
		Jobs []JobResponse `json:"jobs"`
	}
	decode(t, resp.Body.Bytes(), &list)
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, res.JobID, list.Jobs[0].ID)
}

func TestClipHandler_Cancel(t *testing.T) {
	f := newAPIFixture(t, service.Options{})
	res, err := f.svc.Submit(context.Background(), service.SubmitRequest{
		RequesterID: "alice", SourceURL: "https://example.com/v", Duration: "10", Profile: "low",
	})
	require.NoError(t, err)

	resp := f.api.Post("/api/v1/clips/" + res.JobID.String() + "/cancel")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, 0, f.queue.Len())

	// Already cancelled.
	assert.Equal(t, http.StatusConflict, f.api.Post("/api/v1/clips/"+res.JobID.String()+"/cancel").Code)
	assert.Equal(t, http.StatusNotFound, f.api.Post("/api/v1/clips/"+models.NewULID().String()+"/cancel").Code)
}

func TestClipHandler_CancelByRequester(t *testing.T) {
	f := newAPIFixture(t, service.Options{})

	running := models.NewULID()
	h := f.registry.Register(running, "alice")

	resp := f.api.Post("/api/v1/cancel", map[string]any{"requester_id": "alice"})
	require.Equal(t, http.StatusOK, resp.Code)
	var out struct {
		JobID     models.ULID `json:"job_id"`
		Cancelled bool        `json:"cancelled"`
	}
	decode(t, resp.Body.Bytes(), &out)
	assert.Equal(t, running, out.JobID)
	assert.True(t, out.Cancelled)
	assert.True(t, h.Requested())

	assert.Equal(t, http.StatusNotFound, f.api.Post("/api/v1/cancel", map[string]any{"requester_id": "bob"}).Code)
}

func TestQueueHandler(t *testing.T) {
	f := newAPIFixture(t, service.Options{})
	ctx := context.Background()

	for _, who := range []string{"alice", "bob"} {
		_, err := f.svc.Submit(ctx, service.SubmitRequest{
			RequesterID: who, SourceURL: "https://example.com/v", Duration: "10", Profile: "low",
		})
		require.NoError(t, err)
	}
	job, ok := f.queue.TryDequeue()
	require.True(t, ok)
	require.NoError(t, job.MarkRunning())
	f.svc.JobStarted(job)
	f.svc.JobProgress(job.ID, 40)

	t.Run("queue", func(t *testing.T) {
		resp := f.api.Get("/api/v1/queue")
		require.Equal(t, http.StatusOK, resp.Code)
		var out struct {
			Running *RunningResponse  `json:"running"`
			Pending []PendingResponse `json:"pending"`
			Length  int               `json:"length"`
		}
		decode(t, resp.Body.Bytes(), &out)
		require.NotNil(t, out.Running)
		assert.Equal(t, "alice", out.Running.Job.RequesterID)
		assert.Equal(t, 40, out.Running.Progress)
		require.Len(t, out.Pending, 1)
		assert.Equal(t, "bob", out.Pending[0].Job.RequesterID)
		assert.Equal(t, 1, out.Length)
	})

	t.Run("stats", func(t *testing.T) {
		resp := f.api.Get("/api/v1/stats")
		require.Equal(t, http.StatusOK, resp.Code)
		var out map[string]any
		decode(t, resp.Body.Bytes(), &out)
		assert.EqualValues(t, 2, out["total_submitted"])
		assert.Equal(t, "0.0s", out["average_process"])
		history, ok := out["history"].(map[string]any)
		require.True(t, ok)
		assert.EqualValues(t, 2, history["queued"])
	})

	t.Run("profiles", func(t *testing.T) {
		resp := f.api.Get("/api/v1/profiles")
		require.Equal(t, http.StatusOK, resp.Code)
		var out struct {
			Profiles []ProfileResponse `json:"profiles"`
		}
		decode(t, resp.Body.Bytes(), &out)
		require.Len(t, out.Profiles, 2)
		for _, p := range out.Profiles {
			assert.LessOrEqual(t, p.MaxSeconds, p.MaxDurationSeconds, p.Name)
			assert.Positive(t, p.MaxSeconds, p.Name)
		}
	})
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	_, api := humatest.New(t)
	NewHealthHandler("1.0.0").
		WithDB(fakePinger{}).
		WithWorker(func() string { return "idle" }, func() int { return 3 }).
		Register(api)

	resp := api.Get("/livez")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"ok"`)

	resp = api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)
	var out HealthResponse
	decode(t, resp.Body.Bytes(), &out)
	assert.Equal(t, "healthy", out.Status)
	assert.Equal(t, "1.0.0", out.Version)
	assert.NotEmpty(t, out.Uptime)
	assert.NotZero(t, out.CPUInfo.Cores)
	assert.Equal(t, "idle", out.Worker.State)
	assert.Equal(t, 3, out.Worker.QueueLength)
	assert.Equal(t, "ok", out.Checks["database"])
}

func TestHealthHandler_DatabaseDown(t *testing.T) {
	h := NewHealthHandler("dev").WithDB(fakePinger{err: errors.New("connection refused")})

	out, err := h.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)
	assert.Equal(t, "degraded", out.Body.Status)
	assert.Equal(t, "error", out.Body.Checks["database"])

	out, err = NewHealthHandler("dev").GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)
	assert.Equal(t, "not_configured", out.Body.Checks["database"])
}
