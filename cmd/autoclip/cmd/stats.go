package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/autoclip/internal/stats"
	"github.com/jmylchreest/autoclip/pkg/format"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print processing statistics",
	Long: `Print the aggregate statistics kept in the stats file.

The file is read without locking it, so this is safe to run while the
server is up. A missing file prints zeroed statistics.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().String("file", "", "stats file (default is storage.stats_file)")
	statsCmd.Flags().Bool("json", false, "output the raw statistics as JSON")
	statsCmd.Flags().Int("top", 5, "number of requesters to list")
}

func runStats(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		path = cfg.Storage.StatsPath()
	}

	rec, err := stats.ReadFile(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	top, _ := cmd.Flags().GetInt("top")
	return printStats(out, rec, top)
}

func printStats(w io.Writer, rec stats.Record, top int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Submitted:\t%s\n", format.Number(rec.TotalSubmitted))
	fmt.Fprintf(tw, "Completed:\t%s\n", format.Number(rec.TotalJobs))
	fmt.Fprintf(tw, "Cancelled:\t%s\n", format.Number(rec.CancelledJobs))
	fmt.Fprintf(tw, "Clip time:\t%s\n", format.Clock(time.Duration(rec.TotalDurationSeconds)*time.Second))
	fmt.Fprintf(tw, "Average processing:\t%ss\n", format.Decimal(rec.AverageProcessSeconds, 1))
	if !rec.UpdatedAt.IsZero() {
		fmt.Fprintf(tw, "Updated:\t%s\n", rec.UpdatedAt.Local().Format(time.DateTime))
	}

	if len(rec.CountByProfile) > 0 {
		fmt.Fprintln(tw, "\nProfile\tClips")
		for _, name := range slices.Sorted(maps.Keys(rec.CountByProfile)) {
			fmt.Fprintf(tw, "%s\t%s\n", name, format.Number(rec.CountByProfile[name]))
		}
	}

	if len(rec.PerUserJobCount) > 0 && top > 0 {
		fmt.Fprintln(tw, "\nRequester\tClips")
		for _, id := range topRequesters(rec.PerUserJobCount, top) {
			fmt.Fprintf(tw, "%s\t%s\n", id, format.Number(rec.PerUserJobCount[id]))
		}
	}

	return tw.Flush()
}

// topRequesters returns up to n requester IDs, busiest first. Ties are
// ordered by ID.
func topRequesters(counts map[string]int64, n int) []string {
	ids := slices.SortedFunc(maps.Keys(counts), func(a, b string) int {
		if counts[a] != counts[b] {
			if counts[a] > counts[b] {
				return -1
			}
			return 1
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}
