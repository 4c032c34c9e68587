package cmd

import (
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/autoclip/internal/config"
	"github.com/jmylchreest/autoclip/internal/profile"
	"github.com/jmylchreest/autoclip/pkg/bytesize"
	"github.com/jmylchreest/autoclip/pkg/duration"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing autoclip configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration in YAML format.

With no config file this shows every option with its default value, and
the built-in profile catalog. Redirect the output to create a template:

  autoclip config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml in ., ./configs, /etc/autoclip or --config)
  - Environment variables (AUTOCLIP_SERVER_PORT, AUTOCLIP_DATABASE_DSN, etc.)
  - Command-line flags (for some options)

Environment variables use the AUTOCLIP_ prefix and underscores for nesting.
Example: limits.max_output_size -> AUTOCLIP_LIMITS_MAX_OUTPUT_SIZE`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	byteSizeType = reflect.TypeOf(bytesize.Size(0))
)

// toMap converts a config struct to a map keyed by mapstructure tags, with
// durations and sizes written the way the loader reads them back.
func toMap(v any) map[string]any {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	result := make(map[string]any, val.NumField())
	for i := 0; i < val.NumField(); i++ {
		key := typ.Field(i).Tag.Get("mapstructure")
		if key == "" || key == "-" {
			continue
		}
		result[key] = toValue(val.Field(i))
	}
	return result
}

func toValue(field reflect.Value) any {
	switch {
	case field.Type() == durationType:
		return duration.Format(time.Duration(field.Int()))
	case field.Type() == byteSizeType:
		return bytesize.Format(bytesize.Size(field.Int()))
	case field.Kind() == reflect.Struct:
		return toMap(field.Interface())
	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.Struct:
		items := make([]map[string]any, 0, field.Len())
		for i := 0; i < field.Len(); i++ {
			items = append(items, toMap(field.Index(i).Interface()))
		}
		return items
	default:
		return field.Interface()
	}
}

// profileConfigs expresses the built-in catalog as config entries.
func profileConfigs(profiles []profile.Profile) []config.ProfileConfig {
	out := make([]config.ProfileConfig, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, config.ProfileConfig{
			Name:               p.Name,
			Width:              p.Width,
			Height:             p.Height,
			VideoBitrateKbps:   p.VideoBitrateKbps,
			AudioBitrateKbps:   p.AudioBitrateKbps,
			MaxDurationSeconds: p.MaxDurationSeconds,
			DownloadFormat:     p.DownloadFormat,
		})
	}
	return out
}

func dumpConfig(w io.Writer, c config.Config) error {
	if len(c.Profiles) == 0 {
		c.Profiles = profileConfigs(profile.Defaults())
	}

	yamlData, err := yaml.Marshal(toMap(c))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Fprintln(w, "# autoclip Configuration File")
	fmt.Fprintln(w, "# ============================")
	fmt.Fprintln(w, "#")
	fmt.Fprintln(w, "# Duration format: 30s, 5m, 1h, 30d, 2w")
	fmt.Fprintln(w, "# Size format: 48MB, 1GB")
	fmt.Fprintln(w, "# Housekeeping cron has six fields, seconds first.")
	fmt.Fprintln(w, "#")
	fmt.Fprintln(w, "# Environment variable overrides:")
	fmt.Fprintln(w, "#   AUTOCLIP_SERVER_HOST, AUTOCLIP_SERVER_PORT")
	fmt.Fprintln(w, "#   AUTOCLIP_DATABASE_DRIVER, AUTOCLIP_DATABASE_DSN")
	fmt.Fprintln(w, "#   AUTOCLIP_STORAGE_BASE_DIR, AUTOCLIP_LIMITS_MAX_OUTPUT_SIZE")
	fmt.Fprintln(w, "#   AUTOCLIP_LOGGING_LEVEL, AUTOCLIP_LOGGING_FORMAT")
	fmt.Fprintln(w, "#   etc.")
	fmt.Fprintln(w, "")
	_, err = w.Write(yamlData)
	return err
}

func runConfigDump(cmd *cobra.Command, _ []string) error {
	return dumpConfig(cmd.OutOrStdout(), *cfg)
}
