package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles liveness and health endpoints.
type HealthHandler struct {
	version     string
	startTime   time.Time
	db          Pinger
	workerState func() string
	queueLength func() int
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithDB sets the database checked by /health.
func (h *HealthHandler) WithDB(db Pinger) *HealthHandler {
	h.db = db
	return h
}

// WithWorker reports the worker loop state and queue length.
func (h *HealthHandler) WithWorker(state func() string, queueLength func() int) *HealthHandler {
	h.workerState = state
	h.queueLength = queueLength
	return h
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getLivez",
		Method:      http.MethodGet,
		Path:        "/livez",
		Summary:     "Liveness probe",
		Description: "Returns ok while the process is serving requests",
		Tags:        []string{"System"},
	}, h.GetLivez)

	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service including system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// LivezInput is the input for the liveness probe.
type LivezInput struct{}

// LivezOutput is the output for the liveness probe.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// GetLivez always reports ok.
func (h *HealthHandler) GetLivez(ctx context.Context, input *LivezInput) (*LivezOutput, error) {
	resp := &LivezOutput{}
	resp.Body.Status = "ok"
	return resp, nil
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	CPUInfo       CPUInfo           `json:"cpu_info"`
	Memory        MemoryInfo        `json:"memory"`
	Worker        WorkerHealth      `json:"worker"`
	Checks        map[string]string `json:"checks"`
}

// CPUInfo holds load averages.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo holds system and process memory figures in MB.
type MemoryInfo struct {
	TotalMemoryMB     float64           `json:"total_memory_mb"`
	UsedMemoryMB      float64           `json:"used_memory_mb"`
	AvailableMemoryMB float64           `json:"available_memory_mb"`
	ProcessMemory     ProcessMemoryInfo `json:"process_memory"`
}

// ProcessMemoryInfo covers this process and its children, which include
// the yt-dlp and ffmpeg processes of the running job.
type ProcessMemoryInfo struct {
	MainProcessMB      float64 `json:"main_process_mb"`
	ChildProcessesMB   float64 `json:"child_processes_mb"`
	TotalProcessTreeMB float64 `json:"total_process_tree_mb"`
	ChildProcessCount  int     `json:"child_process_count"`
}

// WorkerHealth describes the job worker.
type WorkerHealth struct {
	State       string `json:"state"`
	QueueLength int    `json:"queue_length"`
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	checks := map[string]string{"database": h.checkDatabase(ctx)}
	status := "healthy"
	if checks["database"] == "error" {
		status = "degraded"
	}

	var worker WorkerHealth
	if h.workerState != nil {
		worker.State = h.workerState()
	}
	if h.queueLength != nil {
		worker.QueueLength = h.queueLength()
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        status,
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			CPUInfo:       h.getCPUInfo(ctx),
			Memory:        h.getMemoryInfo(ctx),
			Worker:        worker,
			Checks:        checks,
		},
	}, nil
}

func (h *HealthHandler) checkDatabase(ctx context.Context) string {
	if h.db == nil {
		return "not_configured"
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		return "error"
	}
	return "ok"
}

// getCPUInfo returns CPU load information.
func (h *HealthHandler) getCPUInfo(ctx context.Context) CPUInfo {
	cores := runtime.NumCPU()
	info := CPUInfo{Cores: cores}

	loadAvg, err := load.AvgWithContext(ctx)
	if err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15
		if cores > 0 {
			info.LoadPercentage1Min = (loadAvg.Load1 / float64(cores)) * 100
		}
	}

	return info
}

// getMemoryInfo returns memory usage information.
func (h *HealthHandler) getMemoryInfo(ctx context.Context) MemoryInfo {
	info := MemoryInfo{}

	vmStat, err := mem.VirtualMemoryWithContext(ctx)
	if err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		info.UsedMemoryMB = float64(vmStat.Used) / 1024 / 1024
		info.AvailableMemoryMB = float64(vmStat.Available) / 1024 / 1024
	}

	info.ProcessMemory = h.getProcessMemoryInfo(ctx)
	return info
}

// getProcessMemoryInfo returns memory of this process tree.
func (h *HealthHandler) getProcessMemoryInfo(ctx context.Context) ProcessMemoryInfo {
	info := ProcessMemoryInfo{}

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return info
	}

	memInfo, err := proc.MemoryInfoWithContext(ctx)
	if err == nil && memInfo != nil {
		info.MainProcessMB = float64(memInfo.RSS) / 1024 / 1024
		info.TotalProcessTreeMB = info.MainProcessMB
	}

	children, err := proc.ChildrenWithContext(ctx)
	if err == nil {
		info.ChildProcessCount = len(children)
		for _, child := range children {
			childMem, err := child.MemoryInfoWithContext(ctx)
			if err == nil && childMem != nil {
				childMB := float64(childMem.RSS) / 1024 / 1024
				info.ChildProcessesMB += childMB
				info.TotalProcessTreeMB += childMB
			}
		}
	}

	return info
}
