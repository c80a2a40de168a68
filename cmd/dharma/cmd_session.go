package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/myspacecornelius/Dharma/internal/client"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Create a session and store it in api.session_file",
	Args:  cobra.NoArgs,
	RunE:  runLogin,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the backend health endpoint",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show health, dashboard metrics and LACES balance",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(loginCmd, healthCmd, statusCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	b := newBackend()
	b.store.Invalidate()
	sess, err := b.store.Authenticate(cmd.Context(), b.cred)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	successColor.Fprintln(w, "Signed in")
	field(w, "user", sess.UserID)
	field(w, "device", b.store.DeviceID())
	if cfg.API.SessionFile != "" {
		field(w, "saved to", cfg.API.SessionFile)
	}
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	h, err := newBackend().api.Health(cmd.Context())
	if err != nil {
		return err
	}
	printHealth(cmd, h)
	if !h.Healthy() {
		return fmt.Errorf("backend is %s (redis %s)", h.Status, h.Redis)
	}
	return nil
}

func printHealth(cmd *cobra.Command, h *client.Health) {
	w := cmd.OutOrStdout()
	titleColor.Fprintln(w, "Health")
	field(w, "status", statusColor(h.Status).Sprint(h.Status))
	field(w, "redis", statusColor(h.Redis).Sprint(h.Redis))
	field(w, "environment", h.Environment)
}

// runStatus fetches health, metrics and balance concurrently.
func runStatus(cmd *cobra.Command, args []string) error {
	b := newBackend()
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.API.Timeout+5*time.Second)
	defer cancel()
	if err := b.ensureSession(ctx); err != nil {
		return err
	}

	var (
		health  *client.Health
		metrics *client.Metrics
		balance *client.LacesBalance
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		health, err = b.api.Health(ctx)
		return err
	})
	g.Go(func() error {
		return b.call(ctx, func(ctx context.Context) (err error) {
			metrics, err = b.api.Metrics(ctx)
			return err
		})
	})
	g.Go(func() error {
		return b.call(ctx, func(ctx context.Context) (err error) {
			balance, err = b.api.LacesBalance(ctx)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return err
	}

	printHealth(cmd, health)
	printMetrics(cmd, metrics)
	printBalance(cmd, balance)
	return nil
}
