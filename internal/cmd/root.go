// Package cmd wires the ingrain command tree.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coppermind/ingrain/internal/config"
	"github.com/coppermind/ingrain/internal/observability"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo is called from main with values injected at link time.
func SetVersionInfo(version, commit, buildDate string) {
	if version != "" {
		versionInfo.Version = version
	}
	if commit != "" {
		versionInfo.Commit = commit
	}
	if buildDate != "" {
		versionInfo.BuildDate = buildDate
	}
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)",
		versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
}

var (
	flagDataDir  string
	flagLogLevel string
	flagLogFile  string
)

var rootCmd = &cobra.Command{
	Use:   "ingrain",
	Short: "Sync content sources into a vector-store index",
	Long: `ingrain keeps a vector-store index in step with a content source.

Each run lists the source, diffs it against the per-source ledger from the
previous run, and applies only the changes: new and modified items are
uploaded, renamed items are re-addressed, and deleted items are removed.
Running jobs are observable and controllable (pause/resume/cancel) from
other processes via 'ingrain jobs' or the HTTP control surface.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if _, err := observability.Init(observability.Config{
			Level: cfg.Logging.Level,
			File:  cfg.Logging.File,
		}); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Directory for job markers and ledgers")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "Also write logs to this file (rotated)")
}

// loadConfig layers persistent flag values over env/file/defaults.
// Command-specific overrides, when given, are applied on top.
func loadConfig(extra ...map[string]any) (*config.Config, error) {
	overrides := map[string]any{}
	if flagDataDir != "" {
		overrides["data_dir"] = flagDataDir
	}
	logging := map[string]any{}
	if flagLogLevel != "" {
		logging["level"] = flagLogLevel
	}
	if flagLogFile != "" {
		logging["file"] = flagLogFile
	}
	if len(logging) > 0 {
		overrides["logging"] = logging
	}
	layers := append([]map[string]any{overrides}, extra...)
	return config.Load(layers...)
}

// Execute runs the command tree.
func Execute() error {
	defer observability.Sync()
	return rootCmd.Execute()
}
