package ffmpeg

import (
	"bytes"
	"strings"
	"sync"
)

// TailBuffer is an io.Writer that keeps the last few lines written to it.
// It is used to capture a child process's stderr for error reports.
type TailBuffer struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial []byte
}

// NewTailBuffer keeps up to max complete lines.
func NewTailBuffer(max int) *TailBuffer {
	if max < 1 {
		max = 1
	}
	return &TailBuffer{max: max, lines: make([]string, 0, max)}
}

func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data := append(t.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		t.push(string(bytes.TrimRight(data[:i], "\r")))
		data = data[i+1:]
	}
	t.partial = append([]byte(nil), data...)
	return len(p), nil
}

func (t *TailBuffer) push(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	if len(t.lines) == t.max {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:t.max-1]
	}
	t.lines = append(t.lines, line)
}

// Lines returns the retained lines, oldest first, including an
// unterminated trailing line.
func (t *TailBuffer) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, len(t.lines), len(t.lines)+1)
	copy(out, t.lines)
	if s := strings.TrimSpace(string(t.partial)); s != "" {
		out = append(out, s)
	}
	return out
}

// String joins the retained lines with newlines.
func (t *TailBuffer) String() string {
	return strings.Join(t.Lines(), "\n")
}
