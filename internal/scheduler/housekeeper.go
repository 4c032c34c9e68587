package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/autoclip/internal/cancel"
	"github.com/jmylchreest/autoclip/internal/models"
	"github.com/jmylchreest/autoclip/internal/repository"
	"github.com/jmylchreest/autoclip/internal/startup"
	"github.com/jmylchreest/autoclip/pkg/format"
)

// DefaultHousekeepingSchedule runs cleanup every fifteen minutes.
const DefaultHousekeepingSchedule = "0 */15 * * * *"

// HousekeeperConfig holds configuration for the housekeeper.
type HousekeeperConfig struct {
	// Schedule is a 6-field cron expression (with seconds).
	Schedule string

	TempDir   string
	OutputDir string

	// OrphanAge is how old a workspace must be before it is removed.
	OrphanAge time.Duration

	// OutputRetention is how long delivered clips are kept. When zero the
	// worker removes them itself; leftovers are pruned after OrphanAge.
	OutputRetention time.Duration

	// HistoryRetention is how long finished jobs stay in the history
	// table. Zero keeps them forever.
	HistoryRetention time.Duration
}

// HousekeepingResult counts what one pass removed.
type HousekeepingResult struct {
	Workspaces int
	Outputs    int
	History    int64
}

// Housekeeper periodically removes stale workspaces, old clips and old
// history rows.
type Housekeeper struct {
	mu sync.Mutex

	cfg      HousekeeperConfig
	registry *cancel.Registry
	repo     repository.JobRepository
	logger   *slog.Logger
	parser   cron.Parser

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHousekeeper creates a housekeeper. Workspaces of jobs present in
// registry are never removed. repo may be nil.
func NewHousekeeper(cfg HousekeeperConfig, registry *cancel.Registry, repo repository.JobRepository) *Housekeeper {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultHousekeepingSchedule
	}
	if cfg.OrphanAge <= 0 {
		cfg.OrphanAge = startup.DefaultCleanupAge
	}
	return &Housekeeper{
		cfg:      cfg,
		registry: registry,
		repo:     repo,
		logger:   slog.Default(),
		parser:   cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// WithLogger sets a custom logger.
func (h *Housekeeper) WithLogger(logger *slog.Logger) *Housekeeper {
	h.logger = logger.With(slog.String("component", "housekeeper"))
	return h
}

// Start schedules housekeeping passes.
func (h *Housekeeper) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ctx != nil {
		return fmt.Errorf("housekeeper already started")
	}

	sched, err := h.parser.Parse(h.cfg.Schedule)
	if err != nil {
		return fmt.Errorf("parsing housekeeping schedule %q: %w", h.cfg.Schedule, err)
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	runCtx := h.ctx
	cronLog := cronLogger{logger: h.logger}
	h.cron = cron.New(
		cron.WithParser(h.parser),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	h.cron.Schedule(sched, cron.FuncJob(func() {
		h.RunOnce(runCtx)
	}))
	h.cron.Start()

	h.logger.Info("housekeeper started",
		slog.String("schedule", h.cfg.Schedule),
		slog.String("description", format.CronDescription(h.cfg.Schedule)),
		slog.Time("next_run", sched.Next(time.Now())))

	return nil
}

// Stop cancels scheduling and waits for a pass in progress to finish.
func (h *Housekeeper) Stop() {
	h.mu.Lock()
	c := h.cron
	if h.cancel != nil {
		h.cancel()
	}
	h.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}

	h.mu.Lock()
	h.cron = nil
	h.ctx = nil
	h.cancel = nil
	h.mu.Unlock()

	h.logger.Info("housekeeper stopped")
}

// RunOnce performs a single housekeeping pass.
func (h *Housekeeper) RunOnce(ctx context.Context) HousekeepingResult {
	var res HousekeepingResult
	start := time.Now()

	if n, err := startup.PruneWorkspaces(h.logger, h.cfg.TempDir, h.cfg.OrphanAge, h.active); err == nil {
		res.Workspaces = n
	}

	retention := h.cfg.OutputRetention
	if retention <= 0 {
		retention = h.cfg.OrphanAge
	}
	res.Outputs = h.pruneOutputs(retention)

	if h.repo != nil && h.cfg.HistoryRetention > 0 && ctx.Err() == nil {
		n, err := h.repo.DeleteFinishedBefore(ctx, time.Now().Add(-h.cfg.HistoryRetention))
		if err != nil {
			h.logger.Warn("failed to prune job history", slog.String("error", err.Error()))
		}
		res.History = n
	}

	h.logger.Debug("housekeeping pass finished",
		slog.Int("workspaces", res.Workspaces),
		slog.Int("outputs", res.Outputs),
		slog.Int64("history", res.History),
		slog.Duration("duration", time.Since(start)))

	return res
}

func (h *Housekeeper) active(jobID string) bool {
	if h.registry == nil {
		return false
	}
	id, err := models.ParseULID(jobID)
	if err != nil {
		return false
	}
	_, ok := h.registry.Get(id)
	return ok
}

// pruneOutputs removes delivered clips older than maxAge.
func (h *Housekeeper) pruneOutputs(maxAge time.Duration) int {
	entries, err := os.ReadDir(h.cfg.OutputDir)
	if err != nil {
		if !os.IsNotExist(err) {
			h.logger.Warn("failed to read output directory",
				slog.String("path", h.cfg.OutputDir),
				slog.String("error", err.Error()))
		}
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	var removed int
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".mp4" {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(h.cfg.OutputDir, entry.Name())
		if err := os.Remove(path); err != nil {
			h.logger.Warn("failed to remove expired clip",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		removed++
	}
	if removed > 0 {
		h.logger.Info("removed expired clips", slog.Int("count", removed))
	}
	return removed
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
