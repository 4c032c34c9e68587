package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/autoclip/internal/profile"
	"github.com/jmylchreest/autoclip/pkg/format"
	"github.com/jmylchreest/autoclip/pkg/timecode"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List output profiles",
	Long: `List the configured output profiles.

"Max clip" is the longest duration intake accepts for the profile: the
profile's own limit, or less when the estimated output would exceed
limits.max_output_size.`,
	RunE: runProfiles,
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}

func runProfiles(cmd *cobra.Command, _ []string) error {
	catalog, err := profile.FromConfig(cfg.Profiles)
	if err != nil {
		return fmt.Errorf("building profile catalog: %w", err)
	}
	return printProfiles(cmd.OutOrStdout(), catalog.List(), cfg.Limits.MaxOutputSize.Megabytes())
}

func printProfiles(w io.Writer, profiles []profile.Profile, limitMB float64) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tRESOLUTION\tVIDEO\tAUDIO\tLIMIT\tMAX CLIP\tMAX SIZE")
	for _, p := range profiles {
		maxSecs := p.MaxDurationSeconds
		if limitMB > 0 {
			maxSecs = profile.MaxSecondsWithin(p, limitMB)
		}
		fmt.Fprintf(tw, "%s\t%dx%d\t%d kbps\t%d kbps\t%s\t%s\t%s\n",
			p.Name,
			p.Width, p.Height,
			p.VideoBitrateKbps,
			p.AudioBitrateKbps,
			timecode.Format(p.MaxDurationSeconds),
			timecode.Format(maxSecs),
			format.Megabytes(profile.EstimateOutputSizeMB(p, maxSecs)),
		)
	}
	return tw.Flush()
}
