package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/myspacecornelius/Dharma/internal/client"
)

var (
	heatType string
	heatLat  float64
	heatLng  float64
	heatSKU  string
	heatName string
)

var heatSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Share a drop, restock or find on the heatmap",
	Args:  cobra.NoArgs,
	RunE:  runHeatSubmit,
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show the LACES leaderboard",
	Args:  cobra.NoArgs,
	RunE:  runLeaderboard,
}

var releasesCmd = &cobra.Command{
	Use:   "releases",
	Short: "List upcoming sneaker releases",
	Args:  cobra.NoArgs,
	RunE:  runReleases,
}

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Checkout outcomes per retailer",
	Args:  cobra.NoArgs,
	RunE:  runAnalytics,
}

func init() {
	f := heatSubmitCmd.Flags()
	f.StringVar(&heatType, "type", "drop", "drop, restock or find")
	f.Float64Var(&heatLat, "lat", 40.7209, "latitude")
	f.Float64Var(&heatLng, "lng", -73.9901, "longitude")
	f.StringVar(&heatSKU, "sku", "", "product SKU")
	f.StringVar(&heatName, "name", "", "short description")
	heatmapCmd.AddCommand(heatSubmitCmd)

	rootCmd.AddCommand(leaderboardCmd, releasesCmd, analyticsCmd)
}

func runHeatSubmit(cmd *cobra.Command, args []string) error {
	switch heatType {
	case "drop", "restock", "find":
	default:
		return errors.Errorf("unknown spot type %q", heatType)
	}
	spot := client.HeatSpot{
		Type: heatType,
		Lat:  heatLat,
		Lng:  heatLng,
		SKU:  strings.ToUpper(strings.TrimSpace(heatSKU)),
		Name: strings.TrimSpace(heatName),
	}

	b := newBackend()
	var res *client.HeatSpotResult
	err := b.call(cmd.Context(), func(ctx context.Context) (err error) {
		res, err = b.api.SubmitHeat(ctx, spot)
		return err
	})
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	successColor.Fprintf(w, "Shared %s at %.4f, %.4f\n", spot.Type, spot.Lat, spot.Lng)
	field(w, "event", res.EventID)
	if res.Reward > 0 {
		field(w, "earned", infoColor.Sprintf("+%d LACES", res.Reward))
	}
	return nil
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	b := newBackend()
	var rows []client.LeaderboardEntry
	err := b.call(cmd.Context(), func(ctx context.Context) (err error) {
		rows, err = b.api.Leaderboard(ctx)
		return err
	})
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(rows) == 0 {
		dimColor.Fprintln(w, "Nobody has earned LACES yet.")
		return nil
	}
	me, _ := b.store.Current()
	titleColor.Fprintln(w, "LACES Leaderboard")
	for _, r := range rows {
		name := r.UserID
		if r.UserID == me.UserID {
			name = successColor.Sprint(name + " (you)")
		}
		fmt.Fprintf(w, "  %s %-28s %s\n", dimColor.Sprintf("#%-3d", r.Rank), name, infoColor.Sprint(r.Score))
	}
	return nil
}

func runReleases(cmd *cobra.Command, args []string) error {
	b := newBackend()
	var list []client.Release
	err := b.call(cmd.Context(), func(ctx context.Context) (err error) {
		list, err = b.api.UpcomingReleases(ctx)
		return err
	})
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(list) == 0 {
		dimColor.Fprintln(w, "No upcoming releases.")
		return nil
	}
	for _, r := range list {
		fmt.Fprintf(w, "%s %-10s %s %s\n", dimColor.Sprint(r.ReleaseDate.Local().Format("Mon Jan 02")),
			r.Brand, r.SneakerName, infoColor.Sprintf("$%.0f", r.RetailPrice))
	}
	return nil
}

func runAnalytics(cmd *cobra.Command, args []string) error {
	b := newBackend()
	var stats []client.RetailerStats
	err := b.call(cmd.Context(), func(ctx context.Context) (err error) {
		stats, err = b.api.AnalyticsSummary(ctx)
		return err
	})
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(stats) == 0 {
		dimColor.Fprintln(w, "No finished checkouts yet.")
		return nil
	}
	for _, st := range stats {
		rate := 0.0
		if total := st.Success + st.Fail; total > 0 {
			rate = float64(st.Success) / float64(total) * 100
		}
		fmt.Fprintf(w, "  %-12s %s %s %s\n", st.Name,
			successColor.Sprintf("%6d ok", st.Success), errorColor.Sprintf("%6d failed", st.Fail),
			dimColor.Sprintf("%5.1f%%", rate))
	}
	return nil
}
