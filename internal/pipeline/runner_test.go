package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/autoclip/internal/cancel"
	"github.com/jmylchreest/autoclip/internal/ffmpeg"
	"github.com/jmylchreest/autoclip/internal/models"
	"github.com/jmylchreest/autoclip/internal/profile"
)

// encodeOK consumes stdin, reports 25/50/100% of a 30s clip and writes the
// output file named by the last argument.
const encodeOK = `for last; do true; done
cat > /dev/null
printf 'frame=10\nout_time_us=7500000\nprogress=continue\n'
printf 'frame=20\nout_time_us=15000000\nprogress=continue\n'
printf 'encoded' > "$last"
printf 'frame=40\nout_time_us=30000000\nprogress=end\n'`

type harness struct {
	t      *testing.T
	dir    string
	runner *Runner
	job    *models.ClipJob
}

func newHarness(t *testing.T, downloader, encoder string) *harness {
	t.Helper()
	t.Setenv(ffmpeg.YtDlpEnvVar, "")
	t.Setenv(ffmpeg.FFmpegEnvVar, "")

	dir := t.TempDir()
	cfg := Config{
		YtDlpPath:    writeScript(t, dir, "yt-dlp", downloader),
		FFmpegPath:   writeScript(t, dir, "ffmpeg", encoder),
		FFmpegPreset: "veryfast",
		TempDir:      filepath.Join(dir, "temp"),
		OutputDir:    filepath.Join(dir, "output"),
		ProgressStep: 5,
		PollInterval: 20 * time.Millisecond,
	}

	return &harness{
		t:      t,
		dir:    dir,
		runner: NewRunner(cfg, profile.DefaultCatalog(), nil),
		job:    models.NewClipJob("user-1", "https://example.com/watch?v=1", 10, 30, "low", 5),
	}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func (h *harness) run(handle *cancel.Handle, onProgress ProgressFunc) Outcome {
	h.t.Helper()
	ctx, cancelFn := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelFn()
	return h.runner.Run(ctx, h.job, handle, onProgress)
}

func (h *harness) assertWorkspaceRemoved() {
	h.t.Helper()
	entries, err := os.ReadDir(h.runner.Config().TempDir)
	require.NoError(h.t, err)
	assert.Empty(h.t, entries)
}

type progressLog struct {
	mu  sync.Mutex
	pct []int
}

func (p *progressLog) record(pct int) {
	p.mu.Lock()
	p.pct = append(p.pct, pct)
	p.mu.Unlock()
}

func (p *progressLog) values() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.pct...)
}

func TestRunner_Completes(t *testing.T) {
	h := newHarness(t, `printf 'source-bytes'`, encodeOK)
	var progress progressLog

	out := h.run(nil, progress.record)

	require.Equal(t, StatusCompleted, out.Status, "err: %v", out.Err)
	assert.Equal(t, filepath.Join(h.runner.Config().OutputDir, h.job.ID.String()+".mp4"), out.OutputPath)
	assert.Equal(t, int64(len("encoded")), out.OutputSize)
	assert.Equal(t, []int{25, 50, 100}, progress.values())
	assert.Positive(t, out.Elapsed)

	data, err := os.ReadFile(out.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "encoded", string(data))
	h.assertWorkspaceRemoved()
}

func TestRunner_ProgressCallbackPanics(t *testing.T) {
	h := newHarness(t, `printf 'source-bytes'`, encodeOK)
	var calls progressLog

	out := h.run(nil, func(pct int) {
		calls.record(pct)
		panic("sink exploded")
	})

	require.Equal(t, StatusCompleted, out.Status, "err: %v", out.Err)
	assert.Equal(t, []int{25, 50, 100}, calls.values())
	h.assertWorkspaceRemoved()
}

func TestRunner_CompletesWhileDownloaderStillRunning(t *testing.T) {
	encoder := `for last; do true; done
printf 'encoded' > "$last"
printf 'out_time_us=30000000\nprogress=end\n'`
	h := newHarness(t, `exec sleep 30`, encoder)

	out := h.run(nil, nil)

	require.Equal(t, StatusCompleted, out.Status, "err: %v", out.Err)
	assert.Less(t, out.Elapsed, 5*time.Second)
}

func TestRunner_CancelWhileRunning(t *testing.T) {
	encoder := `printf 'out_time_us=3000000\nprogress=continue\n'
exec sleep 30`
	h := newHarness(t, `exec sleep 30`, encoder)

	registry := cancel.NewRegistry()
	handle := registry.Register(h.job.ID, h.job.RequesterID)

	out := h.run(handle, func(int) {
		registry.Signal(h.job.ID)
	})

	assert.Equal(t, StatusCancelled, out.Status)
	assert.Nil(t, out.Err)
	assert.Less(t, out.Elapsed, 5*time.Second)
	h.assertWorkspaceRemoved()
}

func TestRunner_CancelledBeforeStart(t *testing.T) {
	h := newHarness(t, `printf 'source-bytes'`, `touch "$(dirname "$0")/ran"`+"\n"+encodeOK)

	registry := cancel.NewRegistry()
	handle := registry.Register(h.job.ID, h.job.RequesterID)
	handle.Signal()

	out := h.run(handle, nil)

	assert.Equal(t, StatusCancelled, out.Status)
	assert.NoFileExists(t, filepath.Join(h.dir, "ran"))
}

func TestRunner_TranscodeFailure(t *testing.T) {
	encoder := `cat > /dev/null
echo "pipe:0: Invalid data found when processing input" >&2
exit 1`
	h := newHarness(t, `printf 'source-bytes'`, encoder)

	out := h.run(nil, nil)

	require.Equal(t, StatusFailed, out.Status)
	require.NotNil(t, out.Err)
	assert.Equal(t, KindNonZeroExit, out.Err.Kind)
	assert.Equal(t, StageTranscode, out.Err.Stage)
	assert.Equal(t, 1, out.Err.ExitCode())
	assert.Contains(t, out.Err.Diagnostic(), "Invalid data found")
	h.assertWorkspaceRemoved()
}

func TestRunner_DownloadFailure(t *testing.T) {
	downloader := `echo "ERROR: Unsupported URL" >&2
exit 1`
	encoder := `cat > /dev/null
sleep 0.3
echo "pipe:0: End of file" >&2
exit 1`
	h := newHarness(t, downloader, encoder)

	out := h.run(nil, nil)

	require.Equal(t, StatusFailed, out.Status)
	require.NotNil(t, out.Err)
	assert.Equal(t, KindNonZeroExit, out.Err.Kind)
	assert.Equal(t, StageDownload, out.Err.Stage)
	assert.Contains(t, out.Err.Stderr, "Unsupported URL")
}

func TestRunner_DownloadInterrupted(t *testing.T) {
	downloader := `printf 'partial'
echo "ERROR: connection reset" >&2
exit 1`
	encoder := `for last; do true; done
cat > /dev/null
sleep 0.3
printf 'encoded' > "$last"
printf 'out_time_us=10000000\nprogress=end\n'`
	h := newHarness(t, downloader, encoder)

	out := h.run(nil, nil)

	require.Equal(t, StatusFailed, out.Status)
	require.NotNil(t, out.Err)
	assert.Equal(t, StageDownload, out.Err.Stage)
	assert.Contains(t, out.Err.Error(), "download interrupted")
	assert.NoFileExists(t, filepath.Join(h.runner.Config().OutputDir, h.job.ID.String()+".mp4"))
}

func TestRunner_MissingOutput(t *testing.T) {
	h := newHarness(t, `printf 'source-bytes'`, `cat > /dev/null`)

	out := h.run(nil, nil)

	require.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, KindMissingOutput, out.Err.Kind)
}

func TestRunner_SpawnFailure(t *testing.T) {
	h := newHarness(t, `printf 'source-bytes'`, encodeOK)
	bad := filepath.Join(h.dir, "broken-yt-dlp")
	require.NoError(t, os.WriteFile(bad, []byte("#!/nonexistent/interpreter\n"), 0o755))
	h.runner.cfg.YtDlpPath = bad

	out := h.run(nil, nil)

	require.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, KindSpawnFailure, out.Err.Kind)
	assert.Equal(t, StageDownload, out.Err.Stage)
	h.assertWorkspaceRemoved()
}

func TestRunner_MissingBinary(t *testing.T) {
	h := newHarness(t, `printf 'source-bytes'`, encodeOK)
	h.runner.cfg.FFmpegPath = filepath.Join(h.dir, "does-not-exist")

	out := h.run(nil, nil)

	require.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, KindSpawnFailure, out.Err.Kind)
	assert.Equal(t, StagePrepare, out.Err.Stage)
}

func TestRunner_InsufficientSpace(t *testing.T) {
	h := newHarness(t, `printf 'source-bytes'`, encodeOK)
	h.runner.cfg.MinFreeSpace = 1 << 30
	h.runner.WithFreeSpace(func(context.Context, string) (uint64, error) {
		return 1 << 20, nil
	})

	out := h.run(nil, nil)

	require.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, KindResourceExhausted, out.Err.Kind)
	var spaceErr *InsufficientSpaceError
	assert.True(t, errors.As(out.Err, &spaceErr))
}

func TestRunner_FreeSpaceProbeErrorIsNotFatal(t *testing.T) {
	h := newHarness(t, `printf 'source-bytes'`, encodeOK)
	h.runner.cfg.MinFreeSpace = 1 << 30
	h.runner.WithFreeSpace(func(context.Context, string) (uint64, error) {
		return 0, errors.New("statfs unsupported")
	})

	out := h.run(nil, nil)

	assert.Equal(t, StatusCompleted, out.Status)
}

func TestRunner_ContextAborts(t *testing.T) {
	h := newHarness(t, `exec sleep 30`, `exec sleep 30`)

	ctx, cancelFn := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancelFn()

	out := h.runner.Run(ctx, h.job, nil, nil)

	require.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, KindAborted, out.Err.Kind)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
}

func TestRunner_UnknownProfile(t *testing.T) {
	h := newHarness(t, `printf 'source-bytes'`, encodeOK)
	h.job.Profile = "ultra"

	out := h.run(nil, nil)

	require.Equal(t, StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, models.ErrUnknownProfile)
}

func TestTranscodeCommand(t *testing.T) {
	r := NewRunner(Config{FFmpegPreset: "veryfast"}, profile.DefaultCatalog(), nil)
	p, err := profile.DefaultCatalog().Lookup("high")
	require.NoError(t, err)
	job := models.NewClipJob("u", "https://example.com", 75, 20, "high", 1)

	cmd := r.TranscodeCommand("ffmpeg", job, p, "/tmp/out.mp4")

	assert.Equal(t, []string{
		"-loglevel", "error", "-hide_banner", "-nostats", "-progress", "pipe:1", "-y",
		"-ss", "00:01:15", "-i", "pipe:0",
		"-vf", p.ScaleFilter(),
		"-t", "00:00:20",
		"-c:v", "libx264", "-preset", "veryfast",
		"-b:v", "14000k", "-maxrate", "14000k", "-bufsize", "28000k",
		"-c:a", "aac", "-b:a", "192k",
		"-movflags", "+faststart",
		"/tmp/out.mp4",
	}, cmd.Args)
}

func TestDownloadArgs(t *testing.T) {
	p, err := profile.DefaultCatalog().Lookup("low")
	require.NoError(t, err)

	args := DownloadArgs(p, "https://example.com/v", []string{"--socket-timeout", "10"})

	assert.Equal(t, []string{
		"-f", p.DownloadFormat, "-o", "-",
		"--no-playlist", "--no-part", "--quiet", "--no-warnings",
		"--socket-timeout", "10",
		"--", "https://example.com/v",
	}, args)
}

func TestError_Diagnostic(t *testing.T) {
	err := newError(KindNonZeroExit, StageTranscode, errors.New("exit status 1"), "first\nlast line\n")
	assert.Equal(t, "transcode non_zero_exit: exit status 1: last line", err.Diagnostic())
	assert.Equal(t, -1, err.ExitCode())

	bare := newError(KindAborted, StagePrepare, context.Canceled, "")
	assert.Equal(t, "prepare aborted: context canceled", bare.Diagnostic())
}

func TestWorkspace(t *testing.T) {
	base := t.TempDir()
	ws, err := NewWorkspace(base, "abc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, WorkspacePrefix+"abc"), ws.Dir)

	require.NoError(t, os.WriteFile(ws.Path("x"), []byte("1"), 0o644))

	again, err := NewWorkspace(base, "abc")
	require.NoError(t, err)
	assert.NoFileExists(t, again.Path("x"))

	require.NoError(t, again.Close())
	assert.NoDirExists(t, again.Dir)
}
