// Package startup provides utilities for application startup tasks.
package startup

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/autoclip/internal/observability"
	"github.com/jmylchreest/autoclip/internal/pipeline"
	"github.com/jmylchreest/autoclip/internal/repository"
)

// DefaultCleanupAge is the default maximum age for orphaned workspaces.
const DefaultCleanupAge = 1 * time.Hour

// ErrInterruptedByRestart is recorded on jobs a previous process left unfinished.
var ErrInterruptedByRestart = errors.New("interrupted by restart")

// CleanupOrphanedWorkspaces removes job workspaces under baseDir that are
// older than maxAge. Only directories named "autoclip-job-*" are touched.
//
// Returns the number of directories removed and any error encountered.
func CleanupOrphanedWorkspaces(logger *slog.Logger, baseDir string, maxAge time.Duration) (int, error) {
	return PruneWorkspaces(logger, baseDir, maxAge, nil)
}

// PruneWorkspaces is CleanupOrphanedWorkspaces with an extra filter: a
// workspace whose job ID makes active return true is always preserved.
func PruneWorkspaces(logger *slog.Logger, baseDir string, maxAge time.Duration, active func(jobID string) bool) (int, error) {
	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		logger.Debug("workspace directory does not exist, skipping cleanup",
			"path", baseDir,
		)
		return 0, nil
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		logger.Error("failed to read directory for cleanup",
			"path", baseDir,
			"error", err,
		)
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	var removed int

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), pipeline.WorkspacePrefix) {
			continue
		}

		dirPath := filepath.Join(baseDir, entry.Name())
		jobID := strings.TrimPrefix(entry.Name(), pipeline.WorkspacePrefix)
		if active != nil && active(jobID) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			logger.Warn("failed to get workspace info",
				"path", dirPath,
				"error", err,
			)
			continue
		}

		if info.ModTime().After(cutoff) {
			logger.Debug("preserving recent workspace",
				"path", dirPath,
				"age", time.Since(info.ModTime()).Round(time.Second),
			)
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			logger.Warn("failed to remove orphaned workspace",
				"path", dirPath,
				"error", err,
			)
			continue
		}

		logger.Info("removed orphaned workspace",
			"path", dirPath,
			"age", time.Since(info.ModTime()).Round(time.Second),
		)
		removed++
	}

	return removed, nil
}

// RecoverInterruptedJobs marks history rows still queued or running as
// failed. The queue lives in memory, so after a restart nothing will ever
// pick those jobs up again.
//
// Returns the number of jobs recovered and any error encountered.
func RecoverInterruptedJobs(ctx context.Context, logger *slog.Logger, repo repository.JobRepository) (recovered int, err error) {
	defer observability.TimedOperation(ctx, logger, "recover_jobs", &err)()

	jobs, err := repo.GetUnfinished(ctx)
	if err != nil {
		return 0, err
	}

	for _, job := range jobs {
		logger.Warn("recovering interrupted job",
			"job_id", job.ID.String(),
			"requester_id", job.RequesterID,
			"status", job.Status,
		)

		if err := job.MarkFailed(ErrInterruptedByRestart); err != nil {
			continue
		}
		if err := repo.Update(ctx, job); err != nil {
			logger.Error("failed to recover interrupted job",
				"job_id", job.ID.String(),
				"error", err,
			)
			continue
		}

		recovered++
	}

	return recovered, nil
}
