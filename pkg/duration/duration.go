// Package duration parses and formats the long durations used for
// retention settings. It accepts everything time.ParseDuration does plus
// day and week units, with optional spaces between terms:
//
//	"30d", "2w", "1w2d12h", "30 days", "1 week 3 days", "90m"
package duration

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	// Day represents 24 hours.
	Day = 24 * time.Hour
	// Week represents 7 days.
	Week = 7 * Day
)

var units = map[string]time.Duration{
	"ns": time.Nanosecond,
	"us": time.Microsecond, "µs": time.Microsecond,
	"ms": time.Millisecond,
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": Day, "day": Day, "days": Day,
	"w": Week, "wk": Week, "wks": Week, "week": Week, "weeks": Week,
}

// Parse reads a duration such as "30d" or "1 week 2 days". A bare "0" is
// zero; any other number needs a unit.
func Parse(s string) (time.Duration, error) {
	in := strings.TrimSpace(s)
	if in == "" {
		return 0, fmt.Errorf("duration: empty string")
	}
	if in == "0" {
		return 0, nil
	}

	negative := strings.HasPrefix(in, "-")
	rest := strings.TrimSpace(strings.TrimPrefix(in, "-"))

	var total time.Duration
	for rest != "" {
		numEnd := strings.IndexFunc(rest, func(r rune) bool { return !unicode.IsDigit(r) && r != '.' })
		if numEnd <= 0 {
			return 0, fmt.Errorf("duration: expected a number in %q", s)
		}
		value, err := strconv.ParseFloat(rest[:numEnd], 64)
		if err != nil {
			return 0, fmt.Errorf("duration: invalid number in %q", s)
		}
		rest = strings.TrimLeft(rest[numEnd:], " ")

		unitEnd := strings.IndexFunc(rest, func(r rune) bool { return !unicode.IsLetter(r) })
		if unitEnd < 0 {
			unitEnd = len(rest)
		}
		unit, ok := units[strings.ToLower(rest[:unitEnd])]
		if !ok {
			return 0, fmt.Errorf("duration: unknown unit %q in %q", rest[:unitEnd], s)
		}
		total += time.Duration(value * float64(unit))
		rest = strings.TrimLeft(rest[unitEnd:], " ,")
	}

	if negative {
		total = -total
	}
	return total, nil
}

// MustParse is like Parse but panics if the string cannot be parsed.
func MustParse(s string) time.Duration {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Format renders d with the largest units first and zero parts omitted,
// so 30*Day is "30d" rather than "720h0m0s". Sub-second parts are
// dropped unless d is shorter than a second.
func Format(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	sign := ""
	if d < 0 {
		sign, d = "-", -d
	}
	if d < time.Second {
		return sign + d.String()
	}

	var b strings.Builder
	for _, part := range []struct {
		unit   time.Duration
		suffix string
	}{
		{Week, "w"}, {Day, "d"}, {time.Hour, "h"}, {time.Minute, "m"}, {time.Second, "s"},
	} {
		if n := d / part.unit; n > 0 {
			b.WriteString(strconv.FormatInt(int64(n), 10))
			b.WriteString(part.suffix)
			d -= n * part.unit
		}
	}
	return sign + b.String()
}
