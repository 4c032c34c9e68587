package pipeline

import "github.com/jmylchreest/autoclip/internal/profile"

// DownloadArgs builds the yt-dlp arguments that stream the source to
// stdout in the profile's format.
func DownloadArgs(p profile.Profile, sourceURL string, extra []string) []string {
	args := []string{
		"-f", p.DownloadFormat,
		"-o", "-",
		"--no-playlist",
		"--no-part",
		"--quiet",
		"--no-warnings",
	}
	args = append(args, extra...)
	return append(args, "--", sourceURL)
}
