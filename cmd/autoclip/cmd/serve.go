package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/autoclip/internal/cancel"
	"github.com/jmylchreest/autoclip/internal/config"
	"github.com/jmylchreest/autoclip/internal/database"
	"github.com/jmylchreest/autoclip/internal/ffmpeg"
	internalhttp "github.com/jmylchreest/autoclip/internal/http"
	"github.com/jmylchreest/autoclip/internal/http/handlers"
	"github.com/jmylchreest/autoclip/internal/notify"
	"github.com/jmylchreest/autoclip/internal/observability"
	"github.com/jmylchreest/autoclip/internal/pipeline"
	"github.com/jmylchreest/autoclip/internal/profile"
	"github.com/jmylchreest/autoclip/internal/queue"
	"github.com/jmylchreest/autoclip/internal/repository"
	"github.com/jmylchreest/autoclip/internal/scheduler"
	"github.com/jmylchreest/autoclip/internal/service"
	"github.com/jmylchreest/autoclip/internal/startup"
	"github.com/jmylchreest/autoclip/internal/stats"
	"github.com/jmylchreest/autoclip/internal/version"
	"github.com/jmylchreest/autoclip/pkg/format"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the clip worker and HTTP API",
	Long: `Start the clip worker, the housekeeping schedule and the HTTP API.

The server provides:
- REST API for submitting, inspecting and cancelling clip jobs
- Queue, statistics and profile endpoints
- Liveness (/livez) and health (/health) endpoints
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "host to bind to (overrides server.host)")
	serveCmd.Flags().Int("port", 0, "port to listen on (overrides server.port)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if host, ok := changedString(cmd.Flags(), "host"); ok {
		cfg.Server.Host = host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}

	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, dir := range []string{cfg.Storage.BaseDir, cfg.Storage.TempPath(), cfg.Storage.OutputPath()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	logToolVersions(ctx, logger, cfg.Tools)

	db, err := database.New(cfg.Database, observability.WithComponent(logger, "database"))
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close database", slog.String("error", err.Error()))
		}
	}()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	jobRepo := repository.NewJobRepository(db.DB)

	startupLogger := observability.WithComponent(logger, "startup")
	if removed, err := startup.CleanupOrphanedWorkspaces(startupLogger, cfg.Storage.TempPath(), 0); err != nil {
		logger.Warn("failed to clean orphaned workspaces", slog.String("error", err.Error()))
	} else if removed > 0 {
		logger.Info("cleaned orphaned workspaces on startup", slog.Int("removed_count", removed))
	}
	if _, err := startup.RecoverInterruptedJobs(ctx, startupLogger, jobRepo); err != nil {
		logger.Warn("failed to recover interrupted jobs", slog.String("error", err.Error()))
	}

	statsStore, err := stats.Open(cfg.Storage.StatsPath(), observability.WithComponent(logger, "stats"))
	if err != nil {
		return fmt.Errorf("opening stats: %w", err)
	}
	defer func() {
		if err := statsStore.Save(); err != nil {
			logger.Warn("failed to save stats", slog.String("error", err.Error()))
		}
	}()

	catalog, err := profile.FromConfig(cfg.Profiles)
	if err != nil {
		return fmt.Errorf("building profile catalog: %w", err)
	}

	notifier, closeNotifier, err := buildNotifier(ctx, logger, cfg.Notify)
	if err != nil {
		return err
	}
	defer closeNotifier()

	q := queue.New()
	registry := cancel.NewRegistry()

	runner := pipeline.NewRunner(pipeline.Config{
		YtDlpPath:      cfg.Tools.YtDlpPath,
		FFmpegPath:     cfg.Tools.FFmpegPath,
		FFmpegPreset:   cfg.Tools.FFmpegPreset,
		YtDlpExtraArgs: cfg.Tools.YtDlpExtraArgs,
		TempDir:        cfg.Storage.TempPath(),
		OutputDir:      cfg.Storage.OutputPath(),
		ProgressStep:   cfg.Pipeline.ProgressStep,
		PollInterval:   cfg.Pipeline.CancelPollInterval,
		MinFreeSpace:   uint64(cfg.Limits.MinFreeSpace.Bytes()),
	}, catalog, observability.WithComponent(logger, "pipeline"))

	clipService := service.NewClipService(catalog, q, registry, statsStore, service.Options{
		MaxOutputMB:        cfg.Limits.MaxOutputSize.Megabytes(),
		MaxPending:         cfg.Queue.MaxPending,
		DefaultJobEstimate: cfg.Worker.DefaultJobEstimate,
	}).
		WithRepository(jobRepo).
		WithNotifier(notifier).
		WithLogger(logger)

	worker := scheduler.NewWorker(q, registry, runner, statsStore).
		WithLogger(logger).
		WithConfig(scheduler.WorkerConfig{
			JobTimeout:      cfg.Worker.JobTimeout,
			OutputRetention: cfg.Storage.OutputRetention,
		}).
		WithRepository(jobRepo).
		WithNotifier(notifier).
		WithTracker(clipService)
	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}
	defer worker.Stop()

	if cfg.Housekeeping.Enabled {
		housekeeper := scheduler.NewHousekeeper(scheduler.HousekeeperConfig{
			Schedule:         cfg.Housekeeping.Cron,
			TempDir:          cfg.Storage.TempPath(),
			OutputDir:        cfg.Storage.OutputPath(),
			OrphanAge:        cfg.Housekeeping.OrphanAge,
			OutputRetention:  cfg.Storage.OutputRetention,
			HistoryRetention: cfg.Storage.HistoryRetention,
		}, registry, jobRepo).WithLogger(logger)
		if err := housekeeper.Start(ctx); err != nil {
			return fmt.Errorf("starting housekeeper: %w", err)
		}
		defer housekeeper.Stop()
	}

	server := internalhttp.NewServer(internalhttp.ServerConfigFrom(cfg.Server), logger, version.Version)
	handlers.NewClipHandler(clipService).Register(server.API())
	handlers.NewQueueHandler(clipService).Register(server.API())
	handlers.NewHealthHandler(version.Version).
		WithDB(db).
		WithWorker(func() string { return worker.State().String() }, q.Len).
		Register(server.API())

	logger.Info("starting autoclip server",
		slog.String("address", cfg.Server.Address()),
		slog.String("version", version.Version),
		slog.Int("profiles", len(catalog.Names())),
		slog.String("max_output", format.Megabytes(cfg.Limits.MaxOutputSize.Megabytes())),
	)

	// Deferred calls stop the housekeeper and then the worker before the
	// notifier, stats file and database are closed.
	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serving HTTP: %w", err)
	}
	logger.Info("shutting down")
	return nil
}

// buildNotifier fans events out to the log and, when enabled, Redis. The
// returned close function is always safe to call.
func buildNotifier(ctx context.Context, logger *slog.Logger, cfg config.NotifyConfig) (notify.Notifier, func(), error) {
	notifiers := notify.Fanout{notify.NewLogNotifier(observability.WithComponent(logger, "notify"))}
	closeFn := func() {}

	if cfg.Redis.Enabled {
		rn, err := notify.NewRedisNotifier(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, closeFn, fmt.Errorf("initializing redis notifier: %w", err)
		}
		logger.Info("publishing events to redis",
			slog.String("addr", cfg.Redis.Addr),
			slog.String("channel", rn.Channel()),
		)
		notifiers = append(notifiers, rn)
		closeFn = func() {
			if err := rn.Close(); err != nil {
				logger.Warn("failed to close redis notifier", slog.String("error", err.Error()))
			}
		}
	}
	return notifiers, closeFn, nil
}

// logToolVersions reports the yt-dlp and ffmpeg that jobs will use. Missing
// tools are not fatal here: each job fails with a spawn error instead.
func logToolVersions(ctx context.Context, logger *slog.Logger, tools config.ToolsConfig) {
	probes := []struct {
		name, envVar, configured, flag string
	}{
		{"yt-dlp", ffmpeg.YtDlpEnvVar, tools.YtDlpPath, "--version"},
		{"ffmpeg", ffmpeg.FFmpegEnvVar, tools.FFmpegPath, "-version"},
	}
	for _, p := range probes {
		path, err := ffmpeg.FindBinary(p.name, p.envVar, p.configured)
		if err != nil {
			logger.Warn("external tool not found", slog.String("tool", p.name), slog.String("error", err.Error()))
			continue
		}
		v, err := version.ToolVersion(ctx, path, p.flag)
		if err != nil {
			logger.Warn("could not read tool version",
				slog.String("tool", p.name),
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		logger.Info("external tool found",
			slog.String("tool", p.name),
			slog.String("path", path),
			slog.String("version", v),
		)
	}
}
