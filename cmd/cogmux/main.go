package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cogmux/internal/config"
	"cogmux/internal/logging"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	noColor    bool

	// Loaded configuration, populated by the root PersistentPreRunE.
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cogmux",
	Short: "cogmux - cognitive mode dispatch engine",
	Long: `cogmux multiplexes conversational input across a registry of
cognitive modes (summarizing, debugging, architecting, ...).

Every input is scored by all registered modes; the best fit wins and
its handler processes the input. An auto-switch policy with a
hysteresis threshold keeps sessions from flapping between modes.

Run without arguments to start the interactive chat interface.`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: launch interactive chat
		return runInteractiveChat()
	},
}

func init() {
	// Assigned here rather than in the literal: the closure compares
	// against rootCmd, which would be an initialization cycle inside
	// rootCmd's own initializer.
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if workspace == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("resolving workspace: %w", err)
			}
			workspace = wd
		}

		if configPath == "" {
			configPath = config.DefaultPath(workspace)
		}
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = loaded

		// Console logging would tear up the chat TUI, so it is only
		// enabled for one-shot subcommands.
		console := cfg.Logging.Console || verbose
		if cmd == rootCmd {
			console = false
		}
		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		return logging.Init(logging.Options{
			Dir:        config.ResolvePath(workspace, cfg.Logging.Dir),
			Level:      level,
			Console:    console,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		})
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <workspace>/.cogmux/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(modesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
