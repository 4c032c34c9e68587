// Package profile holds the catalog of named output presets and the size
// estimate used to reject oversized clips before any work is done.
package profile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jmylchreest/autoclip/internal/config"
	"github.com/jmylchreest/autoclip/internal/models"
)

// Profile is an immutable output preset.
type Profile struct {
	Name               string `json:"name"`
	Width              int    `json:"width"`
	Height             int    `json:"height"`
	VideoBitrateKbps   int    `json:"video_bitrate_kbps"`
	AudioBitrateKbps   int    `json:"audio_bitrate_kbps"`
	MaxDurationSeconds int    `json:"max_duration_seconds"`
	DownloadFormat     string `json:"download_format"`
}

// ScaleFilter letterboxes the source into the profile's frame.
func (p Profile) ScaleFilter() string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		p.Width, p.Height, p.Width, p.Height,
	)
}

// TotalBitrateKbps is the combined video and audio bitrate.
func (p Profile) TotalBitrateKbps() int {
	return p.VideoBitrateKbps + p.AudioBitrateKbps
}

// EstimateOutputSizeMB predicts the output size for a clip of the given
// length: (video + audio kbps) * seconds / 8 / 1024. It ignores container
// overhead and encoder variance.
func EstimateOutputSizeMB(p Profile, seconds int) float64 {
	if seconds <= 0 {
		return 0
	}
	return float64(p.TotalBitrateKbps()) * float64(seconds) / 8 / 1024
}

// MaxSecondsWithin returns the longest clip whose estimate stays at or
// under limitMB, capped by the profile's own maximum.
func MaxSecondsWithin(p Profile, limitMB float64) int {
	if p.TotalBitrateKbps() <= 0 {
		return p.MaxDurationSeconds
	}
	secs := int(limitMB * 1024 * 8 / float64(p.TotalBitrateKbps()))
	if secs > p.MaxDurationSeconds {
		return p.MaxDurationSeconds
	}
	return secs
}

// formatForHeight picks a single-file format so yt-dlp can stream to stdout.
func formatForHeight(h int) string {
	return fmt.Sprintf("best[height<=%d][ext=mp4]/best[height<=%d]/best", h, h)
}

// Defaults returns the built-in profiles. "high" is 1080p vertical and
// capped at 30s; "low" is 720p vertical and capped at 60s.
func Defaults() []Profile {
	return []Profile{
		{
			Name:               "high",
			Width:              1080,
			Height:             1920,
			VideoBitrateKbps:   14000,
			AudioBitrateKbps:   192,
			MaxDurationSeconds: 30,
			DownloadFormat:     formatForHeight(1080),
		},
		{
			Name:               "low",
			Width:              720,
			Height:             1280,
			VideoBitrateKbps:   5000,
			AudioBitrateKbps:   128,
			MaxDurationSeconds: 60,
			DownloadFormat:     formatForHeight(720),
		},
	}
}

// Catalog is a read-only set of profiles keyed by lower-case name.
type Catalog struct {
	profiles map[string]Profile
}

// NewCatalog builds a catalog. Names are case-insensitive and must be unique.
func NewCatalog(profiles ...Profile) (*Catalog, error) {
	c := &Catalog{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		key := strings.ToLower(strings.TrimSpace(p.Name))
		if key == "" {
			return nil, fmt.Errorf("profile name is required")
		}
		if _, dup := c.profiles[key]; dup {
			return nil, fmt.Errorf("duplicate profile %q", p.Name)
		}
		p.Name = key
		c.profiles[key] = p
	}
	return c, nil
}

// DefaultCatalog returns a catalog of Defaults.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(Defaults()...)
	if err != nil {
		panic(err)
	}
	return c
}

// FromConfig builds the catalog from configuration, falling back to the
// built-in profiles when none are configured.
func FromConfig(cfgs []config.ProfileConfig) (*Catalog, error) {
	if len(cfgs) == 0 {
		return DefaultCatalog(), nil
	}

	profiles := make([]Profile, 0, len(cfgs))
	for _, pc := range cfgs {
		p := Profile{
			Name:               pc.Name,
			Width:              pc.Width,
			Height:             pc.Height,
			VideoBitrateKbps:   pc.VideoBitrateKbps,
			AudioBitrateKbps:   pc.AudioBitrateKbps,
			MaxDurationSeconds: pc.MaxDurationSeconds,
			DownloadFormat:     pc.DownloadFormat,
		}
		if p.DownloadFormat == "" {
			p.DownloadFormat = formatForHeight(p.Height)
		}
		profiles = append(profiles, p)
	}
	return NewCatalog(profiles...)
}

// Lookup resolves a profile by name.
func (c *Catalog) Lookup(name string) (Profile, error) {
	p, ok := c.profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", models.ErrUnknownProfile, name)
	}
	return p, nil
}

// List returns all profiles sorted by name.
func (c *Catalog) List() []Profile {
	out := make([]Profile, 0, len(c.profiles))
	for _, p := range c.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the profile names sorted alphabetically.
func (c *Catalog) Names() []string {
	list := c.List()
	names := make([]string, len(list))
	for i, p := range list {
		names[i] = p.Name
	}
	return names
}
