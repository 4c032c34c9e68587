// Package bytesize parses and formats byte quantities such as output size
// ceilings and free-space thresholds. Units are binary (1024) based and
// case-insensitive: B, KB/K/KiB, MB/M/MiB, GB/G/GiB, TB/T/TiB.
// A value without a unit is a byte count.
package bytesize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Size is a quantity of bytes.
type Size int64

const (
	B  Size = 1
	KB Size = 1024
	MB Size = 1024 * KB
	GB Size = 1024 * MB
	TB Size = 1024 * GB
)

var units = map[string]Size{
	"": B, "b": B, "byte": B, "bytes": B,
	"k": KB, "kb": KB, "kib": KB,
	"m": MB, "mb": MB, "mib": MB,
	"g": GB, "gb": GB, "gib": GB,
	"t": TB, "tb": TB, "tib": TB,
}

var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-z]*)\s*$`)

// Parse reads strings like "48MB", "1.5 GB" or "1024".
func Parse(s string) (Size, error) {
	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("bytesize: invalid format %q", s)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number %q: %w", m[1], err)
	}

	mult, ok := units[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("bytesize: unknown unit %q", m[2])
	}

	return Size(value * float64(mult)), nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Size {
	size, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return size
}

// FromMegabytes converts a (possibly fractional) megabyte figure to a Size.
func FromMegabytes(mb float64) Size {
	return Size(math.Round(mb * float64(MB)))
}

// Megabytes returns the size expressed in megabytes.
func (s Size) Megabytes() float64 {
	return float64(s) / float64(MB)
}

// Bytes returns the raw byte count.
func (s Size) Bytes() int64 {
	return int64(s)
}

func (s Size) String() string {
	return Format(s)
}

// MarshalText writes the size in the form Parse reads back.
func (s Size) MarshalText() ([]byte, error) {
	return []byte(Format(s)), nil
}

// UnmarshalText lets config decoders read sizes such as "48MB".
func (s *Size) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Format renders s using the largest unit that keeps the value at least 1.
func Format(s Size) string {
	if s < 0 {
		return "-" + Format(-s)
	}

	switch {
	case s >= TB:
		return trim(float64(s)/float64(TB), "TB")
	case s >= GB:
		return trim(float64(s)/float64(GB), "GB")
	case s >= MB:
		return trim(float64(s)/float64(MB), "MB")
	case s >= KB:
		return trim(float64(s)/float64(KB), "KB")
	default:
		return fmt.Sprintf("%dB", int64(s))
	}
}

func trim(value float64, unit string) string {
	out := strconv.FormatFloat(value, 'f', 2, 64)
	out = strings.TrimRight(out, "0")
	out = strings.TrimRight(out, ".")
	return out + unit
}
