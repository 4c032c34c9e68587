package ffmpeg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	return p
}

func TestFindBinary_EnvVar(t *testing.T) {
	p := writeExecutable(t, t.TempDir(), "my-ffmpeg")
	t.Setenv(FFmpegEnvVar, p)

	got, err := FindBinary("ffmpeg-not-on-path", FFmpegEnvVar, "")
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestFindBinary_Configured(t *testing.T) {
	t.Setenv(YtDlpEnvVar, "")
	p := writeExecutable(t, t.TempDir(), "yt")

	got, err := FindBinary("yt-dlp", YtDlpEnvVar, p)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestFindBinary_ConfiguredNotExecutable(t *testing.T) {
	t.Setenv(YtDlpEnvVar, "")
	p := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	_, err := FindBinary("yt-dlp", YtDlpEnvVar, p)
	assert.Error(t, err)
}

func TestFindBinary_Path(t *testing.T) {
	dir := t.TempDir()
	writeExecutable(t, dir, "autoclip-fake-tool")
	t.Setenv("PATH", dir)

	got, err := FindBinary("autoclip-fake-tool", "", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "autoclip-fake-tool"), got)
}

func TestFindBinary_NotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	_, err := FindBinary("definitely-missing-tool", "", "")
	assert.Error(t, err)
}

func TestIsExecutable_Directory(t *testing.T) {
	assert.False(t, isExecutable(t.TempDir()))
}
