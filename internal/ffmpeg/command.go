// Package ffmpeg builds ffmpeg command lines and reads the machine-readable
// progress stream ffmpeg writes with -progress.
package ffmpeg

import (
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jmylchreest/autoclip/pkg/timecode"
)

// Command is a fully built ffmpeg invocation.
type Command struct {
	Binary string
	Args   []string
}

// String returns the command line as a single string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Cmd returns an exec.Cmd bound to ctx.
func (c *Command) Cmd(ctx context.Context) *exec.Cmd {
	return exec.CommandContext(ctx, c.Binary, c.Args...)
}

// CommandBuilder builds ffmpeg commands with a fluent API.
type CommandBuilder struct {
	binary     string
	logLevel   string
	globalArgs []string
	inputArgs  []string
	input      string
	filters    []string
	outputArgs []string
	output     string
	overwrite  bool
}

// NewCommandBuilder creates a builder for the given ffmpeg binary.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the ffmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner hides the ffmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// NoStats disables the human-readable stats line on stderr.
func (b *CommandBuilder) NoStats() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-nostats")
	return b
}

// ProgressPipe makes ffmpeg write key=value progress blocks to file
// descriptor fd (1 for stdout).
func (b *CommandBuilder) ProgressPipe(fd int) *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-progress", "pipe:"+strconv.Itoa(fd))
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// Seek skips to the given offset before decoding. On a non-seekable input
// ffmpeg reads and discards up to the offset.
func (b *CommandBuilder) Seek(seconds int) *CommandBuilder {
	if seconds > 0 {
		b.inputArgs = append(b.inputArgs, "-ss", timecode.FFmpeg(seconds))
	}
	return b
}

// InputArgs adds arbitrary input arguments.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, args...)
	return b
}

// Input sets the input source. "pipe:0" reads stdin.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// Duration limits the output length.
func (b *CommandBuilder) Duration(seconds int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-t", timecode.FFmpeg(seconds))
	return b
}

// VideoFilter adds a video filter; filters are joined into one -vf chain.
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	if filter != "" {
		b.filters = append(b.filters, filter)
	}
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// VideoPreset sets the encoder preset.
func (b *CommandBuilder) VideoPreset(preset string) *CommandBuilder {
	if preset != "" {
		b.outputArgs = append(b.outputArgs, "-preset", preset)
	}
	return b
}

// VideoBitrate sets a capped average bitrate in kbps, with a buffer of
// twice the rate.
func (b *CommandBuilder) VideoBitrate(kbps int) *CommandBuilder {
	rate := strconv.Itoa(kbps) + "k"
	b.outputArgs = append(b.outputArgs,
		"-b:v", rate,
		"-maxrate", rate,
		"-bufsize", strconv.Itoa(kbps*2)+"k",
	)
	return b
}

// AudioCodec sets the audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// AudioBitrate sets the audio bitrate in kbps.
func (b *CommandBuilder) AudioBitrate(kbps int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-b:a", strconv.Itoa(kbps)+"k")
	return b
}

// FastStart moves the moov atom to the front so clips play while loading.
func (b *CommandBuilder) FastStart() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-movflags", "+faststart")
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build assembles the arguments in ffmpeg's positional order: global
// options, input options, input, filters, output options, output.
func (b *CommandBuilder) Build() *Command {
	args := []string{"-loglevel", b.logLevel}
	args = append(args, b.globalArgs...)
	if b.overwrite {
		args = append(args, "-y")
	}

	args = append(args, b.inputArgs...)
	args = append(args, "-i", b.input)

	if len(b.filters) > 0 {
		args = append(args, "-vf", strings.Join(b.filters, ","))
	}

	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{Binary: b.binary, Args: args}
}
