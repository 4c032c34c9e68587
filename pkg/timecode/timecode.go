// Package timecode parses and formats the short clock-style offsets users
// type when asking for a clip.
//
// Supported forms (surrounding whitespace is ignored):
//   - "H:MM:SS" e.g. "1:02:03"
//   - "M:SS" e.g. "1:30"
//   - bare seconds e.g. "90"
//   - compact units e.g. "90s", "2m", "2m30s"
//
// In the colon forms every field after the first must be below 60.
package timecode

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is returned when text is not a recognisable timecode.
var ErrInvalid = errors.New("invalid timecode")

// Leading clock fields above these would overflow int once the trailing
// fields (each below 60) are added.
const (
	maxMinutes = math.MaxInt/60 - 1
	maxHours   = math.MaxInt/3600 - 1
)

var (
	clockPattern   = regexp.MustCompile(`^(\d+):(\d{1,2})(?::(\d{1,2}))?$`)
	secondsPattern = regexp.MustCompile(`^\d+$`)
	compactPattern = regexp.MustCompile(`(?i)^(?:(\d+)\s*m)?\s*(?:(\d+)\s*s)?$`)
)

// Parse converts a timecode into whole seconds.
func Parse(text string) (int, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalid)
	}

	if secondsPattern.MatchString(s) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalid, text)
		}
		return n, nil
	}

	if m := clockPattern.FindStringSubmatch(s); m != nil {
		return parseClock(m, text)
	}

	if m := compactPattern.FindStringSubmatch(s); m != nil && (m[1] != "" || m[2] != "") {
		minutes, err := atoiOrZero(m[1])
		if err != nil {
			return 0, fmt.Errorf("%w: %q out of range", ErrInvalid, text)
		}
		seconds, err := atoiOrZero(m[2])
		if err != nil || minutes > (math.MaxInt-seconds)/60 {
			return 0, fmt.Errorf("%w: %q out of range", ErrInvalid, text)
		}
		return minutes*60 + seconds, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalid, text)
}

// parseClock handles M:SS (two groups) and H:MM:SS (three groups).
func parseClock(m []string, text string) (int, error) {
	first, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalid, text)
	}
	second, _ := strconv.Atoi(m[2])
	if second >= 60 {
		return 0, fmt.Errorf("%w: %q field out of range", ErrInvalid, text)
	}

	if m[3] == "" {
		if first > maxMinutes {
			return 0, fmt.Errorf("%w: %q out of range", ErrInvalid, text)
		}
		return first*60 + second, nil
	}

	third, _ := strconv.Atoi(m[3])
	if third >= 60 {
		return 0, fmt.Errorf("%w: %q field out of range", ErrInvalid, text)
	}
	if first > maxHours {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalid, text)
	}
	return first*3600 + second*60 + third, nil
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// Format renders seconds as M:SS, or H:MM:SS once an hour is reached.
// Negative input is treated as zero.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// ToDuration converts whole seconds to a time.Duration.
func ToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// FFmpeg renders seconds in the HH:MM:SS form accepted by ffmpeg's -ss and -t.
func FFmpeg(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
