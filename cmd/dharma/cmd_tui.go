package main

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/myspacecornelius/Dharma/internal/app"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the live dashboard",
	Long: `Opens the full-screen dashboard: monitor and checkout cards, the community
activity feed, the LACES balance and a command prompt.

Logs go to log.file from the config; nothing is logged when it is unset.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return errors.New("tui needs an interactive terminal; try \"dharma watch\" instead")
	}

	b := newBackend()
	ch, err := newChannel()
	if err != nil {
		return err
	}

	m := app.New(app.Options{
		Channel:    ch,
		Auth:       b.store,
		API:        b.api,
		Credential: b.cred,
		Logger:     logger,
	})
	defer ch.Close()
	defer m.Shutdown()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return errors.Wrap(err, "dashboard")
	}
	return nil
}
