// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"learnplay/internal/config"
	"learnplay/internal/log"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagDownload  string
	flagLanguage  string
	flagNoSubs    bool
	flagQuality   string
	flagPlayer    string
	flagEngine    string
	flagMaxHeight int
	flagMetrics   string
	flagContinue  bool
	flagJSON      bool
	flagDebug     bool
)

// cfg holds the loaded configuration (merged: defaults < config file < flags).
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "learnplay [page-url | descriptor.toml | media-file]",
	Short: "Play course videos with adaptive quality from the terminal",
	Long: `learnplay plays lesson videos described by a web page, a TOML descriptor
or a plain media URL. Adaptive streams are played through a software HLS
engine when possible, falling back to native playback and then to fixed
progressive renditions.`,
	Args:              cobra.MaximumNArgs(1),
	PersistentPreRunE: loadConfig,
	RunE:              playRun,
	SilenceUsage:      true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagDownload, "download", "d", "", "Download the progressive source to path instead of playing")
	rootCmd.PersistentFlags().StringVarP(&flagLanguage, "language", "l", "", "Caption language (default: english)")
	rootCmd.PersistentFlags().BoolVarP(&flagNoSubs, "no-subs", "n", false, "Disable captions")
	rootCmd.PersistentFlags().StringVarP(&flagQuality, "quality", "q", "", "Preferred progressive quality: 360 | 480 | 720 | 1080")
	rootCmd.PersistentFlags().StringVar(&flagPlayer, "player", "", "Playback element: mpv")
	rootCmd.PersistentFlags().StringVar(&flagEngine, "engine", "", "Adaptive engine: software | native | off")
	rootCmd.PersistentFlags().IntVar(&flagMaxHeight, "max-height", 0, "Cap automatic adaptive quality at this height")
	rootCmd.PersistentFlags().StringVar(&flagMetrics, "metrics-addr", "", "Serve Prometheus metrics on this address while playing")
	rootCmd.PersistentFlags().BoolVarP(&flagContinue, "continue", "c", false, "Resume from the saved position")
	rootCmd.PersistentFlags().BoolVarP(&flagJSON, "json", "j", false, "Print JSON instead of starting the interface")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")

	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(latencyCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and merges configuration: defaults < config file < CLI flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file values
	if flagPlayer != "" {
		cfg.Player = flagPlayer
	}
	if flagQuality != "" {
		cfg.Quality = flagQuality
	}
	if flagLanguage != "" {
		cfg.SubsLanguage = flagLanguage
	}
	if flagEngine != "" {
		cfg.AdaptiveEngine = flagEngine
	}
	if cmd.Flags().Changed("max-height") {
		cfg.MaxHeight = flagMaxHeight
	}
	if flagMetrics != "" {
		cfg.MetricsAddr = flagMetrics
	}
	if flagDebug {
		cfg.Debug = true
	}

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logCfg := log.Config{Pretty: true}
	if cfg.Debug {
		logCfg.Level = "debug"
	}
	log.Configure(logCfg)
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "learnplay %s\n", Version)
	},
}
