// Package format renders numbers, sizes and durations for people.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Number formats an integer with thousand separators.
// Example: Number(1234567) => "1,234,567"
func Number(n int64) string {
	return printer.Sprintf("%d", n)
}

// Decimal formats a float with thousand separators and fixed decimals.
// Example: Decimal(1234.5, 1) => "1,234.5"
func Decimal(v float64, decimals int) string {
	return printer.Sprintf("%."+strconv.Itoa(decimals)+"f", v)
}

// Bytes formats a byte count using binary units.
// Example: Bytes(1536) => "1.5 KB"
func Bytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit && exp < 3; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %s", float64(n)/float64(div), []string{"KB", "MB", "GB", "TB"}[exp])
}

// Megabytes formats an estimate already expressed in MB.
// Example: Megabytes(12.345) => "12.3 MB"
func Megabytes(mb float64) string {
	return Decimal(mb, 1) + " MB"
}

// Percent formats a whole percentage.
func Percent(p int) string {
	return strconv.Itoa(p) + "%"
}

// Clock formats a duration as M:SS, or H:MM:SS from one hour up.
// Example: Clock(65*time.Second) => "1:05"
func Clock(d time.Duration) string {
	total := int(d.Round(time.Second) / time.Second)
	if total < 0 {
		total = 0
	}
	h, m, s := total/3600, total/60%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// Approx describes a wait in rough words.
// Example: Approx(150*time.Second) => "about 3 minutes"
func Approx(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "less than a minute"
	case d < 90*time.Second:
		return "about a minute"
	case d < time.Hour:
		return fmt.Sprintf("about %d minutes", int(d.Round(time.Minute)/time.Minute))
	case d < 90*time.Minute:
		return "about an hour"
	default:
		return fmt.Sprintf("about %d hours", int(d.Round(time.Hour)/time.Hour))
	}
}

// CronDescription describes the common shapes of a 6-field cron
// expression (seconds first). Anything else is returned unchanged.
// Example: CronDescription("0 */15 * * * *") => "Every 15 minutes"
func CronDescription(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) != 6 {
		return expr
	}
	sec, min, hour, dom, mon, dow := fields[0], fields[1], fields[2], fields[3], fields[4], fields[5]
	if dom != "*" || mon != "*" || dow != "*" {
		return expr
	}

	if n, ok := every(sec); ok && min == "*" && hour == "*" {
		return plural(n, "second")
	}
	if sec != "0" {
		return expr
	}
	if n, ok := every(min); ok && hour == "*" {
		return plural(n, "minute")
	}
	m, err := strconv.Atoi(min)
	if err != nil {
		return expr
	}
	if n, ok := every(hour); ok {
		if m == 0 {
			return plural(n, "hour")
		}
		return fmt.Sprintf("%s at :%02d", plural(n, "hour"), m)
	}
	if h, err := strconv.Atoi(hour); err == nil {
		return fmt.Sprintf("Daily at %02d:%02d", h, m)
	}
	return expr
}

// every parses "*" and "*/n" fields.
func every(field string) (int, bool) {
	if field == "*" {
		return 1, true
	}
	step, ok := strings.CutPrefix(field, "*/")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(step)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func plural(n int, unit string) string {
	if n == 1 {
		return "Every " + unit
	}
	return fmt.Sprintf("Every %d %ss", n, unit)
}
