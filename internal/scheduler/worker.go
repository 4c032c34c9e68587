// Package scheduler drives clip jobs through the pipeline and keeps the
// working directories tidy. The Worker is the single consumer of the job
// queue; the Housekeeper runs periodic cleanup on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/autoclip/internal/cancel"
	"github.com/jmylchreest/autoclip/internal/models"
	"github.com/jmylchreest/autoclip/internal/notify"
	"github.com/jmylchreest/autoclip/internal/observability"
	"github.com/jmylchreest/autoclip/internal/pipeline"
	"github.com/jmylchreest/autoclip/internal/queue"
	"github.com/jmylchreest/autoclip/internal/repository"
	"github.com/jmylchreest/autoclip/internal/stats"
)

// ErrInterruptedByShutdown is recorded on jobs the worker abandons on stop.
var ErrInterruptedByShutdown = errors.New("interrupted by shutdown")

// JobRunner executes one job. *pipeline.Runner implements it.
type JobRunner interface {
	Run(ctx context.Context, job *models.ClipJob, h *cancel.Handle, onProgress pipeline.ProgressFunc) pipeline.Outcome
}

// Tracker is told which job is running and how far along it is.
// *service.ClipService implements it.
type Tracker interface {
	JobStarted(job *models.ClipJob)
	JobProgress(id models.ULID, percent int)
	JobFinished(id models.ULID)
}

// State is the worker loop state.
type State int32

const (
	StateIdle State = iota
	StateDispatching
)

func (s State) String() string {
	if s == StateDispatching {
		return "dispatching"
	}
	return "idle"
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	// JobTimeout bounds a single pipeline run. Zero means no limit.
	JobTimeout time.Duration

	// OutputRetention is how long delivered clips stay on disk. Zero
	// removes them right after delivery.
	OutputRetention time.Duration
}

// Worker pulls jobs off the queue one at a time and runs them.
type Worker struct {
	mu sync.Mutex

	queue    *queue.Queue
	registry *cancel.Registry
	runner   JobRunner
	stats    *stats.Store
	repo     repository.JobRepository
	notifier notify.Notifier
	tracker  Tracker
	logger   *slog.Logger

	jobTimeout      time.Duration
	outputRetention time.Duration

	state atomic.Int32

	// Running state
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a worker. Repository, notifier and tracker are optional.
func NewWorker(q *queue.Queue, registry *cancel.Registry, runner JobRunner, st *stats.Store) *Worker {
	return &Worker{
		queue:    q,
		registry: registry,
		runner:   runner,
		stats:    st,
		notifier: notify.Discard{},
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (w *Worker) WithLogger(logger *slog.Logger) *Worker {
	w.logger = observability.WithComponent(logger, "worker")
	return w
}

// WithConfig applies configuration to the worker.
func (w *Worker) WithConfig(config WorkerConfig) *Worker {
	w.jobTimeout = config.JobTimeout
	w.outputRetention = config.OutputRetention
	return w
}

// WithRepository records job history in repo.
func (w *Worker) WithRepository(repo repository.JobRepository) *Worker {
	w.repo = repo
	return w
}

// WithNotifier sets the notification sink.
func (w *Worker) WithNotifier(n notify.Notifier) *Worker {
	if n != nil {
		w.notifier = n
	}
	return w
}

// WithTracker sets the in-memory progress view.
func (w *Worker) WithTracker(t Tracker) *Worker {
	w.tracker = t
	return w
}

// State returns whether a job is currently being dispatched.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Start begins the worker loop.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctx != nil {
		return fmt.Errorf("worker already started")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.loop(w.ctx)

	w.logger.Info("worker started",
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Duration("output_retention", w.outputRetention))

	return nil
}

// Stop aborts the running job, fails everything still queued and waits
// for the loop to exit.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()

	w.wg.Wait()

	w.mu.Lock()
	w.ctx = nil
	w.cancel = nil
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		// Registering under the queue lock leaves no moment where a job is
		// neither queued nor cancellable.
		var handle *cancel.Handle
		job, err := w.queue.DequeueWith(ctx, func(j *models.ClipJob) {
			handle = w.registry.Register(j.ID, j.RequesterID)
		})
		if err != nil {
			break
		}
		w.state.Store(int32(StateDispatching))
		w.process(ctx, job, handle)
		w.state.Store(int32(StateIdle))
		if ctx.Err() != nil {
			break
		}
	}

	w.abandonQueued(context.WithoutCancel(ctx))
}

// abandonQueued fails the jobs left behind at shutdown.
func (w *Worker) abandonQueued(ctx context.Context) {
	for _, job := range w.queue.Drain() {
		if err := job.MarkFailed(ErrInterruptedByShutdown); err != nil {
			continue
		}
		w.saveHistory(ctx, job)
		w.notifier.Notify(ctx, job.RequesterID, notify.Failed(ErrInterruptedByShutdown.Error()))
		observability.WithJobID(w.logger, job.ID.String()).Info("queued job abandoned",
			slog.String("requester_id", job.RequesterID))
	}
}

// process runs one job from dequeue to terminal state. A panic anywhere
// in the job, including notifier and stats calls, fails that job only.
func (w *Worker) process(ctx context.Context, job *models.ClipJob, handle *cancel.Handle) {
	logger := observability.WithJobID(w.logger, job.ID.String()).With(
		slog.String("requester_id", job.RequesterID),
		slog.String("profile", job.Profile))
	// History and notifications must survive shutdown.
	bg := context.WithoutCancel(ctx)

	defer w.registry.Clear(job.ID)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err := fmt.Errorf("internal error: %v", r)
		logger.Error("job panicked",
			slog.String("error", err.Error()),
			slog.String("stack", string(debug.Stack())))
		if job.MarkFailed(err) == nil {
			w.guard(logger, "history", func() { w.saveHistory(bg, job) })
			w.guard(logger, "notifier", func() {
				w.notifier.Notify(bg, job.RequesterID, notify.Failed(err.Error()))
			})
		}
	}()

	w.execute(ctx, bg, logger, job, handle)
}

// guard runs fn and logs a panic instead of propagating it.
func (w *Worker) guard(logger *slog.Logger, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(what+" panicked", slog.String("error", fmt.Sprint(r)))
		}
	}()
	fn()
}

func (w *Worker) execute(ctx, bg context.Context, logger *slog.Logger, job *models.ClipJob, handle *cancel.Handle) {
	if err := job.MarkRunning(); err != nil {
		observability.WithError(logger, err).Warn("skipping job")
		return
	}
	// Runs last, once the job no longer shows as running anywhere.
	defer w.saveHistory(bg, job)

	if w.tracker != nil {
		w.tracker.JobStarted(job)
		defer w.tracker.JobFinished(job.ID)
	}

	w.saveHistory(bg, job)
	w.notifier.Notify(bg, job.RequesterID, notify.Started(job))
	logger.Info("job started",
		slog.Int("start_seconds", job.StartSeconds),
		slog.Int("duration_seconds", job.DurationSeconds))

	// Runners may report progress from their own goroutines, out of reach
	// of the recover in process.
	onProgress := func(percent int) {
		w.guard(logger, "progress reporting", func() {
			if w.tracker != nil {
				w.tracker.JobProgress(job.ID, percent)
			}
			w.notifier.NotifyProgress(bg, job.RequesterID, job.ID, percent)
		})
	}

	out := w.run(ctx, job, handle, onProgress)

	switch {
	case out.Status == pipeline.StatusCompleted:
		w.complete(bg, logger, job, out)

	case out.Status == pipeline.StatusCancelled:
		_ = job.MarkCancelled()
		if err := w.stats.RecordCancelled(); err != nil {
			logger.Warn("failed to persist stats", slog.String("error", err.Error()))
		}
		w.notifier.Notify(bg, job.RequesterID, notify.Cancelled())
		logger.Info("job cancelled", slog.Duration("elapsed", out.Elapsed))

	case ctx.Err() != nil:
		_ = job.MarkFailed(ErrInterruptedByShutdown)
		w.notifier.Notify(bg, job.RequesterID, notify.Failed(ErrInterruptedByShutdown.Error()))
		logger.Warn("job interrupted by shutdown")

	default:
		reason := "unknown error"
		var cause error = errors.New(reason)
		if out.Err != nil {
			reason = out.Err.Diagnostic()
			cause = out.Err
		}
		_ = job.MarkFailed(cause)
		w.notifier.Notify(bg, job.RequesterID, notify.Failed(reason))
		logger.Error("job failed",
			slog.String("error", reason),
			slog.Duration("elapsed", out.Elapsed))
	}
}

// run executes the pipeline, bounded by the job timeout when one is set.
func (w *Worker) run(ctx context.Context, job *models.ClipJob, h *cancel.Handle, onProgress pipeline.ProgressFunc) pipeline.Outcome {
	if w.jobTimeout > 0 {
		var cancelRun context.CancelFunc
		ctx, cancelRun = context.WithTimeout(ctx, w.jobTimeout)
		defer cancelRun()
	}
	return w.runner.Run(ctx, job, h, onProgress)
}

func (w *Worker) complete(ctx context.Context, logger *slog.Logger, job *models.ClipJob, out pipeline.Outcome) {
	w.notifier.Notify(ctx, job.RequesterID, notify.Completed(out.OutputSize, out.Elapsed))
	w.notifier.DeliverArtifact(ctx, job.RequesterID, job.ID, out.OutputPath)

	if err := w.stats.RecordCompleted(job.Profile, job.RequesterID, job.DurationSeconds, out.Elapsed); err != nil {
		logger.Warn("failed to persist stats", slog.String("error", err.Error()))
	}
	_ = job.MarkCompleted(out.OutputPath, out.OutputSize)

	if w.outputRetention == 0 {
		if err := os.Remove(out.OutputPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove delivered clip",
				slog.String("path", out.OutputPath),
				slog.String("error", err.Error()))
		}
	}

	logger.Info("job completed",
		slog.Int64("size_bytes", out.OutputSize),
		slog.Duration("elapsed", out.Elapsed))
}

func (w *Worker) saveHistory(ctx context.Context, job *models.ClipJob) {
	if w.repo == nil {
		return
	}
	if err := w.repo.Update(ctx, job); err != nil {
		observability.WithError(observability.WithJobID(w.logger, job.ID.String()), err).
			Warn("failed to update job history")
	}
}
