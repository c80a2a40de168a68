package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/myspacecornelius/Dharma/internal/client"
)

var (
	monitorRetailer string
	monitorInterval int

	checkoutProfile  string
	checkoutMode     string
	checkoutRetailer string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Start, stop and list product monitors",
}

var monitorStartCmd = &cobra.Command{
	Use:   "start <sku>",
	Short: "Start monitoring a product",
	Args:  cobra.ExactArgs(1),
	RunE:  runMonitorStart,
}

var monitorStopCmd = &cobra.Command{
	Use:   "stop <monitor-id>...",
	Short: "Stop monitors",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMonitorStop,
}

var monitorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List running monitors",
	Args:  cobra.NoArgs,
	RunE:  runMonitorList,
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Fire and list checkout tasks",
}

var checkoutFireCmd = &cobra.Command{
	Use:   "fire [count]",
	Short: "Create a batch of checkout tasks (default 1)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheckoutFire,
}

var checkoutListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkout tasks",
	Args:  cobra.NoArgs,
	RunE:  runCheckoutList,
}

func init() {
	monitorStartCmd.Flags().StringVar(&monitorRetailer, "retailer", "shopify", "retailer to poll")
	monitorStartCmd.Flags().IntVar(&monitorInterval, "interval", 200, "poll interval in milliseconds")
	monitorCmd.AddCommand(monitorStartCmd, monitorStopCmd, monitorListCmd)

	checkoutFireCmd.Flags().StringVar(&checkoutProfile, "profile", "default", "checkout profile id")
	checkoutFireCmd.Flags().StringVar(&checkoutMode, "mode", "request", "checkout mode")
	checkoutFireCmd.Flags().StringVar(&checkoutRetailer, "retailer", "shopify", "retailer")
	checkoutCmd.AddCommand(checkoutFireCmd, checkoutListCmd)

	rootCmd.AddCommand(monitorCmd, checkoutCmd)
}

func runMonitorStart(cmd *cobra.Command, args []string) error {
	b := newBackend()
	sku := strings.ToUpper(args[0])
	var res *client.MonitorResult
	err := b.call(cmd.Context(), func(ctx context.Context) (err error) {
		res, err = b.api.StartMonitor(ctx, client.MonitorRequest{
			SKU:        sku,
			Retailer:   monitorRetailer,
			IntervalMS: monitorInterval,
		})
		return err
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("start monitor: %s", res.Error)
	}
	successColor.Fprintf(cmd.OutOrStdout(), "Started monitoring %s (%s)\n", sku, res.MonitorID)
	return nil
}

func runMonitorStop(cmd *cobra.Command, args []string) error {
	b := newBackend()
	w := cmd.OutOrStdout()
	var failed int
	for _, id := range args {
		err := b.call(cmd.Context(), func(ctx context.Context) error {
			return b.api.StopMonitor(ctx, id)
		})
		if err != nil {
			failed++
			errorColor.Fprintf(w, "%s: %v\n", id, err)
			continue
		}
		successColor.Fprintf(w, "Stopped %s\n", id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d monitors could not be stopped", failed, len(args))
	}
	return nil
}

func runMonitorList(cmd *cobra.Command, args []string) error {
	b := newBackend()
	var list []client.Monitor
	err := b.call(cmd.Context(), func(ctx context.Context) (err error) {
		list, err = b.api.ListMonitors(ctx)
		return err
	})
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(list) == 0 {
		dimColor.Fprintln(w, "No monitors running.")
		return nil
	}
	titleColor.Fprintf(w, "%-38s %-14s %-10s %-10s %s\n", "ID", "SKU", "RETAILER", "STATUS", "STARTED")
	for _, m := range list {
		fmt.Fprintf(w, "%-38s %-14s %-10s %s %s\n",
			m.MonitorID, m.SKU, m.Retailer,
			statusColor(m.Status).Sprintf("%-10s", m.Status),
			stamp(m.CreatedAt))
	}
	return nil
}

func runCheckoutFire(cmd *cobra.Command, args []string) error {
	count := 1
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("count must be a positive integer, got %q", args[0])
		}
		count = n
	}
	b := newBackend()
	var res *client.TaskBatchResult
	err := b.call(cmd.Context(), func(ctx context.Context) (err error) {
		res, err = b.api.CreateCheckoutTasks(ctx, client.TaskBatchRequest{
			Count:     count,
			ProfileID: checkoutProfile,
			Mode:      checkoutMode,
			Retailer:  checkoutRetailer,
		})
		return err
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("create checkout tasks: %s", res.Error)
	}
	w := cmd.OutOrStdout()
	successColor.Fprintf(w, "Fired %d checkout tasks\n", len(res.TaskIDs))
	for _, id := range res.TaskIDs {
		fmt.Fprintf(w, "  %s\n", id)
	}
	return nil
}

func runCheckoutList(cmd *cobra.Command, args []string) error {
	b := newBackend()
	var list []client.Task
	err := b.call(cmd.Context(), func(ctx context.Context) (err error) {
		list, err = b.api.ListTasks(ctx)
		return err
	})
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(list) == 0 {
		dimColor.Fprintln(w, "No checkout tasks.")
		return nil
	}
	titleColor.Fprintf(w, "%-38s %-10s %-10s %-8s %s\n", "ID", "STATUS", "PROFILE", "MODE", "CREATED")
	for _, t := range list {
		fmt.Fprintf(w, "%-38s %s %-10s %-8s %s\n",
			t.TaskID,
			statusColor(t.Status).Sprintf("%-10s", t.Status),
			t.ProfileID, t.Mode, stamp(t.CreatedAt))
	}
	return nil
}
