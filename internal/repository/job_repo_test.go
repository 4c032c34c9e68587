package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/autoclip/internal/models"
)

func setupJobTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.ClipJob{})
	require.NoError(t, err)

	return db
}

func newJob(requester string, submitted time.Time) *models.ClipJob {
	job := models.NewClipJob(requester, "https://example.com/v", 0, 30, "low", 18.8)
	job.SubmittedAt = submitted
	return job
}

func TestJobRepo_CreateAndGet(t *testing.T) {
	repo := NewJobRepository(setupJobTestDB(t))
	ctx := context.Background()

	job := newJob("alice", time.Now())
	require.NoError(t, repo.Create(ctx, job))

	found, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, job.ID, found.ID)
	assert.Equal(t, "alice", found.RequesterID)
	assert.Equal(t, models.JobQueued, found.Status)
	assert.InDelta(t, 18.8, found.EstimatedSizeMB, 0.001)
}

func TestJobRepo_GetByID_NotFound(t *testing.T) {
	repo := NewJobRepository(setupJobTestDB(t))

	found, err := repo.GetByID(context.Background(), models.NewULID())
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestJobRepo_Update(t *testing.T) {
	repo := NewJobRepository(setupJobTestDB(t))
	ctx := context.Background()

	job := newJob("alice", time.Now())
	require.NoError(t, repo.Create(ctx, job))

	require.NoError(t, job.MarkRunning())
	require.NoError(t, job.MarkCompleted("/out/clip.mp4", 1234))
	require.NoError(t, repo.Update(ctx, job))

	found, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, found.Status)
	assert.Equal(t, "/out/clip.mp4", found.OutputPath)
	assert.Equal(t, int64(1234), found.OutputSizeBytes)
	require.NotNil(t, found.CompletedAt)
	require.NotNil(t, found.StartedAt)
}

func TestJobRepo_ListRecentAndByRequester(t *testing.T) {
	repo := NewJobRepository(setupJobTestDB(t))
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	a1 := newJob("alice", base)
	b1 := newJob("bob", base.Add(time.Minute))
	a2 := newJob("alice", base.Add(2*time.Minute))
	for _, j := range []*models.ClipJob{a1, b1, a2} {
		require.NoError(t, repo.Create(ctx, j))
	}

	recent, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, a2.ID, recent[0].ID)
	assert.Equal(t, b1.ID, recent[1].ID)

	all, err := repo.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	alice, err := repo.ListByRequester(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.Equal(t, a2.ID, alice[0].ID)
	assert.Equal(t, a1.ID, alice[1].ID)
}

func TestJobRepo_GetUnfinishedAndCounts(t *testing.T) {
	repo := NewJobRepository(setupJobTestDB(t))
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	queued := newJob("a", base)
	running := newJob("b", base.Add(time.Second))
	require.NoError(t, running.MarkRunning())
	failed := newJob("c", base.Add(2*time.Second))
	require.NoError(t, failed.MarkFailed(errors.New("boom")))

	for _, j := range []*models.ClipJob{queued, running, failed} {
		require.NoError(t, repo.Create(ctx, j))
	}

	unfinished, err := repo.GetUnfinished(ctx)
	require.NoError(t, err)
	require.Len(t, unfinished, 2)
	assert.Equal(t, queued.ID, unfinished[0].ID)
	assert.Equal(t, running.ID, unfinished[1].ID)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.JobQueued])
	assert.Equal(t, int64(1), counts[models.JobRunning])
	assert.Equal(t, int64(1), counts[models.JobFailed])
}

func TestJobRepo_DeleteFinishedBefore(t *testing.T) {
	repo := NewJobRepository(setupJobTestDB(t))
	ctx := context.Background()

	old := newJob("a", time.Now().Add(-48*time.Hour))
	require.NoError(t, old.MarkCancelled())
	longAgo := time.Now().Add(-48 * time.Hour)
	old.CompletedAt = &longAgo

	recent := newJob("a", time.Now())
	require.NoError(t, recent.MarkCancelled())

	pending := newJob("a", time.Now().Add(-72*time.Hour))

	for _, j := range []*models.ClipJob{old, recent, pending} {
		require.NoError(t, repo.Create(ctx, j))
	}

	deleted, err := repo.DeleteFinishedBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	gone, err := repo.GetByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := repo.GetByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, normalizeLimit(0))
	assert.Equal(t, defaultListLimit, normalizeLimit(-3))
	assert.Equal(t, 7, normalizeLimit(7))
}
