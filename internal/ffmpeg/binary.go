package ffmpeg

import (
	"fmt"
	"os"
	"os/exec"
)

// Environment variables that override tool discovery.
const (
	FFmpegEnvVar = "AUTOCLIP_FFMPEG_BINARY"
	YtDlpEnvVar  = "AUTOCLIP_YTDLP_BINARY"
)

// FindBinary locates an executable. Search order:
//  1. the environment variable envVar, when set
//  2. configured, when non-empty
//  3. ./name
//  4. name on PATH
//
// Every candidate must exist and be executable.
func FindBinary(name, envVar, configured string) (string, error) {
	if envVar != "" {
		if p := os.Getenv(envVar); p != "" && isExecutable(p) {
			return p, nil
		}
	}

	if configured != "" {
		if isExecutable(configured) {
			return configured, nil
		}
		return "", fmt.Errorf("binary %s not executable at configured path %s", name, configured)
	}

	if local := "./" + name; isExecutable(local) {
		return local, nil
	}

	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}

	return "", fmt.Errorf("binary %s not found", name)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
