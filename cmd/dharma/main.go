package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/myspacecornelius/Dharma/internal/config"
	"github.com/myspacecornelius/Dharma/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg       *config.Config
	logger    *log.Logger
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "dharma",
	Short: "Terminal client for the Dharma sneaker platform",
	Long: `dharma talks to a Dharma backend over REST and its real-time event channel.

Run "dharma tui" for the live dashboard, or use the subcommands to drive
monitors and checkout tasks from scripts.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "dharma.yaml", "config file (missing file means defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// setup loads the configuration and builds the logger. The dashboard logs to
// the configured file only, never to the terminal it draws on.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	if verbose {
		loaded.Log.Level = "debug"
	}

	var fallback io.Writer = cmd.ErrOrStderr()
	if cmd.Name() == "tui" {
		fallback = io.Discard
	}
	l, closer, err := logging.New(loaded.Log, fallback)
	if err != nil {
		return err
	}
	cfg, logger, logCloser = loaded, l, closer
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}
