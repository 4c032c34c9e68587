// Package pipeline runs one clip job: yt-dlp streams the source into
// ffmpeg, which cuts and encodes the requested window into an MP4.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/autoclip/internal/cancel"
	"github.com/jmylchreest/autoclip/internal/ffmpeg"
	"github.com/jmylchreest/autoclip/internal/models"
	"github.com/jmylchreest/autoclip/internal/profile"
	"github.com/jmylchreest/autoclip/pkg/timecode"
)

const (
	stderrTailLines  = 20
	processWaitDelay = 5 * time.Second
)

// Config holds runner settings.
type Config struct {
	YtDlpPath      string
	FFmpegPath     string
	FFmpegPreset   string
	YtDlpExtraArgs []string

	TempDir   string
	OutputDir string

	ProgressStep int
	PollInterval time.Duration
	MinFreeSpace uint64
}

// ProgressFunc receives throttled completion percentages.
type ProgressFunc func(percent int)

// Runner executes clip jobs. It is safe to use from one goroutine at a time
// per job; the worker runs jobs sequentially.
type Runner struct {
	cfg       Config
	catalog   *profile.Catalog
	logger    *slog.Logger
	freeSpace FreeSpaceFunc
}

// NewRunner creates a runner.
func NewRunner(cfg Config, catalog *profile.Catalog, logger *slog.Logger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.ProgressStep <= 0 {
		cfg.ProgressStep = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:       cfg,
		catalog:   catalog,
		logger:    logger,
		freeSpace: DiskFree,
	}
}

// WithFreeSpace replaces the free space probe.
func (r *Runner) WithFreeSpace(fn FreeSpaceFunc) *Runner {
	r.freeSpace = fn
	return r
}

// Config returns the runner settings.
func (r *Runner) Config() Config {
	return r.cfg
}

// TranscodeCommand builds the ffmpeg invocation for a job.
func (r *Runner) TranscodeCommand(ffmpegPath string, job *models.ClipJob, p profile.Profile, output string) *ffmpeg.Command {
	return ffmpeg.NewCommandBuilder(ffmpegPath).
		HideBanner().
		NoStats().
		ProgressPipe(1).
		Overwrite().
		Seek(job.StartSeconds).
		Input("pipe:0").
		Duration(job.DurationSeconds).
		VideoFilter(p.ScaleFilter()).
		VideoCodec("libx264").
		VideoPreset(r.cfg.FFmpegPreset).
		VideoBitrate(p.VideoBitrateKbps).
		AudioCodec("aac").
		AudioBitrate(p.AudioBitrateKbps).
		FastStart().
		Output(output).
		Build()
}

// Run executes job and blocks until it completes, fails or is cancelled.
// The job's workspace is removed before Run returns.
func (r *Runner) Run(ctx context.Context, job *models.ClipJob, h *cancel.Handle, onProgress ProgressFunc) (out Outcome) {
	start := time.Now()
	defer func() { out.Elapsed = time.Since(start) }()

	logger := r.logger.With(slog.String("job_id", job.ID.String()))
	onProgress = guardProgress(logger, onProgress)

	prof, err := r.catalog.Lookup(job.Profile)
	if err != nil {
		return failed(newError(KindSpawnFailure, StagePrepare, err, ""))
	}

	ytdlp, err := ffmpeg.FindBinary("yt-dlp", ffmpeg.YtDlpEnvVar, r.cfg.YtDlpPath)
	if err != nil {
		return failed(newError(KindSpawnFailure, StagePrepare, err, ""))
	}
	ffmpegPath, err := ffmpeg.FindBinary("ffmpeg", ffmpeg.FFmpegEnvVar, r.cfg.FFmpegPath)
	if err != nil {
		return failed(newError(KindSpawnFailure, StagePrepare, err, ""))
	}

	if requested(h) {
		return cancelled()
	}

	if err := os.MkdirAll(r.cfg.TempDir, 0o755); err != nil {
		return failed(newError(KindResourceExhausted, StagePrepare, fmt.Errorf("creating temp dir: %w", err), ""))
	}
	if err := checkFreeSpace(ctx, r.freeSpace, r.cfg.TempDir, r.cfg.MinFreeSpace); err != nil {
		var spaceErr *InsufficientSpaceError
		if errors.As(err, &spaceErr) {
			return failed(newError(KindResourceExhausted, StagePrepare, err, ""))
		}
		logger.Warn("free space check failed, continuing", slog.String("error", err.Error()))
	}

	ws, err := NewWorkspace(r.cfg.TempDir, job.ID.String())
	if err != nil {
		return failed(newError(KindResourceExhausted, StagePrepare, err, ""))
	}
	defer func() {
		if err := ws.Close(); err != nil {
			logger.Warn("failed to remove workspace", slog.String("dir", ws.Dir), slog.String("error", err.Error()))
		}
	}()

	encoded := ws.Path(job.ID.String() + ".mp4")
	tcCommand := r.TranscodeCommand(ffmpegPath, job, prof, encoded)

	dl := exec.CommandContext(ctx, ytdlp, DownloadArgs(prof, job.SourceURL, r.cfg.YtDlpExtraArgs)...)
	tc := tcCommand.Cmd(ctx)
	dl.WaitDelay = processWaitDelay
	tc.WaitDelay = processWaitDelay

	dlStderr := ffmpeg.NewTailBuffer(stderrTailLines)
	tcStderr := ffmpeg.NewTailBuffer(stderrTailLines)
	dl.Stderr = dlStderr
	tc.Stderr = tcStderr

	pr, pw, err := os.Pipe()
	if err != nil {
		return failed(newError(KindResourceExhausted, StagePrepare, fmt.Errorf("creating pipe: %w", err), ""))
	}
	dl.Stdout = pw
	tc.Stdin = pr

	progressOut, err := tc.StdoutPipe()
	if err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return failed(newError(KindSpawnFailure, StageTranscode, err, ""))
	}

	logger.Debug("starting pipeline",
		slog.String("downloader", ytdlp),
		slog.String("transcoder", tcCommand.String()),
	)

	if err := dl.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return failed(newError(KindSpawnFailure, StageDownload, err, ""))
	}
	if h != nil {
		h.Attach(dl.Process)
	}

	if err := tc.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		_ = dl.Process.Kill()
		_ = dl.Wait()
		return failed(newError(KindSpawnFailure, StageTranscode, err, ""))
	}
	if h != nil {
		h.Attach(tc.Process)
	}

	// The children hold their own copies now.
	_ = pr.Close()
	_ = pw.Close()

	var (
		dlErr, tcErr     error
		dlOrder, tcOrder int32
		seq              atomic.Int32
		lastOut          atomic.Int64
		wasCancelled     atomic.Bool
		dlKilled         atomic.Bool
	)
	dlDone := make(chan struct{})
	tcDone := make(chan struct{})
	total := timecode.ToDuration(job.DurationSeconds)
	throttle := ffmpeg.NewThrottle(r.cfg.ProgressStep)

	stop := func() {
		if wasCancelled.CompareAndSwap(false, true) {
			logger.Info("cancellation requested, stopping pipeline")
			if h != nil {
				h.Kill()
			}
		}
	}

	var g errgroup.Group

	g.Go(func() error {
		dlErr = dl.Wait()
		dlOrder = seq.Add(1)
		close(dlDone)
		return nil
	})

	g.Go(func() error {
		readErr := ffmpeg.ReadProgress(progressOut, func(p ffmpeg.Progress) {
			if requested(h) {
				stop()
				return
			}
			if !p.HasOutTime {
				return
			}
			lastOut.Store(int64(p.OutTime))
			if pct := ffmpeg.Percent(p.OutTime, total); throttle.Update(pct) {
				onProgress(pct)
			}
		})
		if readErr != nil {
			logger.Debug("progress stream ended with error", slog.String("error", readErr.Error()))
			_, _ = io.Copy(io.Discard, progressOut)
		}
		tcErr = tc.Wait()
		tcOrder = seq.Add(1)
		close(tcDone)
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(r.cfg.PollInterval)
		defer ticker.Stop()
		signalled := done(h)

		for {
			select {
			case <-tcDone:
				select {
				case <-dlDone:
				default:
					dlKilled.Store(true)
					_ = dl.Process.Kill()
				}
				return nil
			case <-signalled:
				signalled = nil
				stop()
			case <-ticker.C:
				if requested(h) {
					stop()
				}
			}
		}
	})

	_ = g.Wait()

	if wasCancelled.Load() || requested(h) {
		return cancelled()
	}

	if ctx.Err() != nil && (tcErr != nil || dlErr != nil) {
		return failed(newError(KindAborted, StageTranscode, ctx.Err(), tcStderr.String()))
	}

	if tcErr != nil {
		if dlErr != nil && !dlKilled.Load() && dlOrder < tcOrder {
			return failed(newError(KindNonZeroExit, StageDownload, dlErr, dlStderr.String()))
		}
		return failed(newError(KindNonZeroExit, StageTranscode, tcErr, tcStderr.String()))
	}

	if dlErr != nil && !dlKilled.Load() && time.Duration(lastOut.Load()) < total-time.Second {
		err := fmt.Errorf("download interrupted at %s of %s: %w",
			time.Duration(lastOut.Load()).Round(time.Second), total, dlErr)
		return failed(newError(KindNonZeroExit, StageDownload, err, dlStderr.String()))
	}

	info, err := os.Stat(encoded)
	if err != nil || info.Size() == 0 {
		if err == nil {
			err = fmt.Errorf("output %s is empty", filepath.Base(encoded))
		}
		return failed(newError(KindMissingOutput, StageTranscode, err, tcStderr.String()))
	}

	dest := filepath.Join(r.cfg.OutputDir, job.ID.String()+".mp4")
	if err := moveFile(encoded, dest); err != nil {
		return failed(newError(KindMissingOutput, StageDeliver, err, ""))
	}

	if throttle.Last() < 100 {
		onProgress(100)
	}

	logger.Info("clip encoded",
		slog.String("output", dest),
		slog.Int64("size_bytes", info.Size()),
	)
	return completed(dest, info.Size())
}

// guardProgress never returns nil. The returned func is called from the
// progress reader goroutine, so a panicking callback is logged and dropped
// there rather than taking the process down.
func guardProgress(logger *slog.Logger, fn ProgressFunc) ProgressFunc {
	if fn == nil {
		return func(int) {}
	}
	return func(percent int) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("progress callback panicked", slog.String("error", fmt.Sprint(r)))
			}
		}()
		fn(percent)
	}
}

func requested(h *cancel.Handle) bool {
	return h != nil && h.Requested()
}

func done(h *cancel.Handle) <-chan struct{} {
	if h == nil {
		return nil
	}
	return h.Done()
}
