package ffmpeg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandBuilder_ClipTranscode(t *testing.T) {
	cmd := NewCommandBuilder("/usr/bin/ffmpeg").
		HideBanner().
		NoStats().
		ProgressPipe(1).
		Overwrite().
		Seek(75).
		Input("pipe:0").
		Duration(45).
		VideoFilter("scale=720:1280").
		VideoCodec("libx264").
		VideoPreset("veryfast").
		VideoBitrate(5000).
		AudioCodec("aac").
		AudioBitrate(128).
		FastStart().
		Output("/tmp/out.mp4").
		Build()

	assert.Equal(t, "/usr/bin/ffmpeg", cmd.Binary)
	assert.Equal(t, []string{
		"-loglevel", "error",
		"-hide_banner", "-nostats", "-progress", "pipe:1",
		"-y",
		"-ss", "00:01:15",
		"-i", "pipe:0",
		"-vf", "scale=720:1280",
		"-t", "00:00:45",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-b:v", "5000k", "-maxrate", "5000k", "-bufsize", "10000k",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"/tmp/out.mp4",
	}, cmd.Args)
}

func TestCommandBuilder_ZeroSeekAndEmptyFilter(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		Seek(0).
		Input("in.mp4").
		VideoFilter("").
		VideoPreset("").
		Output("out.mp4").
		Build()

	assert.Equal(t, []string{"-loglevel", "error", "-i", "in.mp4", "out.mp4"}, cmd.Args)
}

func TestCommandBuilder_MultipleFilters(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		LogLevel("warning").
		Input("in").
		VideoFilter("scale=1:1").
		VideoFilter("fps=30").
		Output("out").
		Build()

	assert.Contains(t, cmd.String(), "-vf scale=1:1,fps=30")
	assert.Contains(t, cmd.String(), "-loglevel warning")
}

func TestCommand_Cmd(t *testing.T) {
	cmd := (&Command{Binary: "ffmpeg", Args: []string{"-version"}}).Cmd(context.Background())
	assert.Equal(t, []string{"ffmpeg", "-version"}, cmd.Args)
}
