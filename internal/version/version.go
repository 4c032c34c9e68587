// Package version provides build-time version information for autoclip.
//
// Version, Commit, and Date are injected at build time via ldflags:
//
//	go build -ldflags "-X github.com/jmylchreest/autoclip/internal/version.Version=x.y.z \
//	                   -X github.com/jmylchreest/autoclip/internal/version.Commit=$(git rev-parse HEAD) \
//	                   -X github.com/jmylchreest/autoclip/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Build-time variables injected via ldflags.
var (
	// Version is the semantic version, "dev" for local builds.
	Version = "dev"

	// Commit is the full git commit SHA.
	Commit = "unknown"

	// Date is the build timestamp in RFC3339 format.
	Date = "unknown"
)

// ApplicationName is the canonical name of this application.
const ApplicationName = "autoclip"

const toolProbeTimeout = 5 * time.Second

// Info contains structured version information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo returns all version information as a structured type.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func shortCommit() (string, bool) {
	if Commit == "unknown" || len(Commit) < 8 {
		return "", false
	}
	return Commit[:8], true
}

// String returns a human-readable version string.
func String() string {
	info := GetInfo()
	if c, ok := shortCommit(); ok {
		return fmt.Sprintf("%s version %s (commit: %s, built: %s, %s, %s)",
			ApplicationName, info.Version, c, info.Date, info.GoVersion, info.Platform)
	}
	return fmt.Sprintf("%s version %s (%s, %s)", ApplicationName, info.Version, info.GoVersion, info.Platform)
}

// Short returns the version for cobra's --version flag.
func Short() string {
	if c, ok := shortCommit(); ok {
		return fmt.Sprintf("%s (%s)", Version, c)
	}
	return Version
}

// JSON returns the version information as indented JSON.
func JSON() string {
	data, err := json.MarshalIndent(GetInfo(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// UserAgent identifies autoclip to external services.
func UserAgent() string {
	return ApplicationName + "/" + Version
}

// ToolVersion runs "<path> <flag>" and returns the first line of output
// with the tool's own name prefix trimmed. yt-dlp prints a bare date
// version for --version; ffmpeg prints "ffmpeg version N ..." for -version.
func ToolVersion(ctx context.Context, path, flag string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, toolProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, flag).Output()
	if err != nil {
		return "", fmt.Errorf("running %s %s: %w", path, flag, err)
	}

	sc := bufio.NewScanner(strings.NewReader(string(out)))
	if !sc.Scan() {
		return "", fmt.Errorf("%s printed no version", path)
	}
	line := strings.TrimSpace(sc.Text())
	if rest, ok := strings.CutPrefix(line, "ffmpeg version "); ok {
		if fields := strings.Fields(rest); len(fields) > 0 {
			return fields[0], nil
		}
	}
	return line, nil
}
