package ffmpeg

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// Progress is one block of ffmpeg's -progress output.
type Progress struct {
	Frame   int64
	FPS     float64
	OutTime time.Duration
	// HasOutTime is false while ffmpeg still reports N/A.
	HasOutTime bool
	Speed      float64
	TotalSize  int64
	// Done is set on the final block (progress=end).
	Done bool
}

// time source precedence inside a block
const (
	srcNone = iota
	srcOutTime
	srcOutTimeMs
	srcOutTimeUs
)

// ReadProgress consumes key=value lines from r and calls fn once per
// block, i.e. at every "progress=continue" or "progress=end" line. It
// returns when r is exhausted. Unknown keys and malformed values are
// ignored.
//
// The time fields are taken in order of preference out_time_us,
// out_time_ms, out_time. ffmpeg writes microseconds under out_time_ms too.
func ReadProgress(r io.Reader, fn func(Progress)) error {
	scanner := bufio.NewScanner(r)
	var cur Progress
	src := srcNone

	setTime := func(d time.Duration, s int) {
		if s >= src {
			cur.OutTime = d
			cur.HasOutTime = true
			src = s
		}
	}

	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case "frame":
			cur.Frame, _ = strconv.ParseInt(value, 10, 64)
		case "fps":
			cur.FPS, _ = strconv.ParseFloat(value, 64)
		case "total_size":
			cur.TotalSize, _ = strconv.ParseInt(value, 10, 64)
		case "speed":
			cur.Speed, _ = strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64)
		case "out_time_us":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				setTime(time.Duration(us)*time.Microsecond, srcOutTimeUs)
			}
		case "out_time_ms":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				setTime(time.Duration(us)*time.Microsecond, srcOutTimeMs)
			}
		case "out_time":
			if d, ok := parseClock(value); ok {
				setTime(d, srcOutTime)
			}
		case "progress":
			cur.Done = value == "end"
			fn(cur)
			cur = Progress{}
			src = srcNone
		}
	}
	return scanner.Err()
}

// parseClock parses HH:MM:SS.micro as written in out_time.
func parseClock(s string) (time.Duration, bool) {
	if s == "" || s == "N/A" {
		return 0, false
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil || h < 0 || m < 0 || sec < 0 {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec*float64(time.Second)), true
}

// Percent converts an output position into a percentage of total,
// clamped to [0, 100].
func Percent(outTime, total time.Duration) int {
	if total <= 0 {
		return 0
	}
	pct := int(outTime * 100 / total)
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// Throttle suppresses progress updates smaller than a step and never
// lets the reported value go backwards.
type Throttle struct {
	step int
	last int
}

// NewThrottle creates a throttle; steps below 1 are treated as 1.
func NewThrottle(step int) *Throttle {
	if step < 1 {
		step = 1
	}
	return &Throttle{step: step}
}

// Update returns true when pct advanced at least one step past the last
// reported value.
func (t *Throttle) Update(pct int) bool {
	if pct-t.last < t.step {
		return false
	}
	t.last = pct
	return true
}

// Last returns the last reported percentage.
func (t *Throttle) Last() int {
	return t.last
}
