package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/myspacecornelius/Dharma/internal/client"
	"github.com/myspacecornelius/Dharma/internal/commands"
	"github.com/myspacecornelius/Dharma/internal/events"
)

var (
	metricsTimeframe string
	metricsCosts     bool

	historyLimit int

	nearbyLat    float64
	nearbyLng    float64
	nearbyRadius float64
	nearbyType   string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show dashboard metrics",
	Args:  cobra.NoArgs,
	RunE:  runMetrics,
}

var lacesCmd = &cobra.Command{
	Use:   "laces",
	Short: "LACES token balance and history",
}

var lacesBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show your LACES balance",
	Args:  cobra.NoArgs,
	RunE:  runLacesBalance,
}

var lacesHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent LACES transactions",
	Args:  cobra.NoArgs,
	RunE:  runLacesHistory,
}

var heatmapCmd = &cobra.Command{
	Use:     "heatmap",
	Aliases: []string{"heat"},
	Short:   "Community sightings on the heatmap",
}

var heatmapNearbyCmd = &cobra.Command{
	Use:   "nearby",
	Short: "List sightings around a point",
	Args:  cobra.NoArgs,
	RunE:  runHeatmapNearby,
}

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Show the public feed",
	Args:  cobra.NoArgs,
	RunE:  runPosts,
}

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Run a natural-language command, e.g. \"monitor DZ5485-612\"",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	metricsCmd.Flags().StringVar(&metricsTimeframe, "timeframe", "", "window such as 1h, 24h or 7d (default: live snapshot)")
	metricsCmd.Flags().BoolVar(&metricsCosts, "costs", false, "include cost breakdown")

	lacesHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of transactions")
	lacesCmd.AddCommand(lacesBalanceCmd, lacesHistoryCmd)

	heatmapNearbyCmd.Flags().Float64Var(&nearbyLat, "lat", 40.7209, "latitude")
	heatmapNearbyCmd.Flags().Float64Var(&nearbyLng, "lng", -73.9901, "longitude")
	heatmapNearbyCmd.Flags().Float64Var(&nearbyRadius, "radius", 10, "radius in km")
	heatmapNearbyCmd.Flags().StringVar(&nearbyType, "type", "all", "drop, restock, find or all")
	heatmapCmd.AddCommand(heatmapNearbyCmd)

	rootCmd.AddCommand(metricsCmd, lacesCmd, heatmapCmd, postsCmd, askCmd)
}

func runMetrics(cmd *cobra.Command, args []string) error {
	b := newBackend()
	var m *client.Metrics
	err := b.call(cmd.Context(), func(ctx context.Context) (err error) {
		if metricsTimeframe == "" && !metricsCosts {
			m, err = b.api.Metrics(ctx)
			return err
		}
		m, err = b.api.QueryMetrics(ctx, client.MetricsQuery{Timeframe: metricsTimeframe, IncludeCosts: metricsCosts})
		return err
	})
	if err != nil {
		return err
	}
	printMetrics(cmd, m)
	return nil
}

func printMetrics(cmd *cobra.Command, m *client.Metrics) {
	w := cmd.OutOrStdout()
	titleColor.Fprintln(w, "Metrics")
	field(w, "active monitors", m.ActiveMonitors)
	field(w, "running tasks", m.RunningTasks)
	field(w, "completed tasks", m.CompletedTasks)
	field(w, "success rate", fmt.Sprintf("%.1f%%", m.SuccessRate))
	field(w, "avg checkout", time.Duration(m.AvgCheckoutTimeMS*float64(time.Millisecond)).Round(time.Millisecond))
	field(w, "proxies", fmt.Sprintf("%d active, %d burned, health %.0f, %s today",
		m.ProxyHealth.Active, m.ProxyHealth.Burned, m.ProxyHealth.HealthScore, m.ProxyHealth.CostToday))
	for i, p := range m.TopProducts {
		field(w, fmt.Sprintf("top #%d", i+1), fmt.Sprintf("%s %s (%d)", p.SKU, p.Name, p.CheckoutCount))
	}
	if m.Costs != nil {
		field(w, "costs", fmt.Sprintf("proxy $%.2f, total $%.2f", m.Costs.Proxy, m.Costs.Total))
	}
	if m.Host != nil {
		field(w, "host", fmt.Sprintf("%s cpu %.0f%% mem %.0f%% up %s", m.Host.Hostname, m.Host.CPUPercent, m.Host.MemPercent,
			time.Duration(m.Host.UptimeSecs)*time.Second))
	}
}

func runLacesBalance(cmd *cobra.Command, args []string) error {
	b := newBackend()
	var bal *client.LacesBalance
	err := b.call(cmd.Context(), func(ctx context.Context) (err error) {
		bal, err = b.api.LacesBalance(ctx)
		return err
	})
	if err != nil {
		return err
	}
	printBalance(cmd, bal)
	return nil
}

func printBalance(cmd *cobra.Command, bal *client.LacesBalance) {
	w := cmd.OutOrStdout()
	titleColor.Fprintln(w, "LACES")
	field(w, "balance", infoColor.Sprint(bal.Balance))
	field(w, "lifetime", fmt.Sprintf("+%d / -%d", bal.LifetimeEarned, bal.LifetimeSpent))
	if bal.Rank > 0 {
		field(w, "rank", fmt.Sprintf("#%d (p%.0f)", bal.Rank, bal.Percentile))
	}
}

func runLacesHistory(cmd *cobra.Command, args []string) error {
	b := newBackend()
	var txs []client.LacesTransaction
	err := b.call(cmd.Context(), func(ctx context.Context) (err error) {
		txs, err = b.api.LacesTransactions(ctx, historyLimit)
		return err
	})
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(txs) == 0 {
		dimColor.Fprintln(w, "No transactions yet.")
		return nil
	}
	for _, tx := range txs {
		amount := successColor.Sprintf("%+5d", tx.Amount)
		if tx.Amount < 0 {
			amount = errorColor.Sprintf("%+5d", tx.Amount)
		}
		fmt.Fprintf(w, "%s %s %s\n", dimColor.Sprint(stamp(tx.Timestamp)), amount, events.LacesReasonText(tx.Reason))
	}
	return nil
}

func runHeatmapNearby(cmd *cobra.Command, args []string) error {
	b := newBackend()
	var list []client.HeatmapEvent
	err := b.call(cmd.Context(), func(ctx context.Context) (err error) {
		list, err = b.api.NearbyEvents(ctx, client.NearbyQuery{
			Lat:       nearbyLat,
			Lng:       nearbyLng,
			RadiusKM:  nearbyRadius,
			EventType: nearbyType,
		})
		return err
	})
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(list) == 0 {
		dimColor.Fprintf(w, "No sightings within %.1f km.\n", nearbyRadius)
		return nil
	}
	for _, ev := range list {
		dist := "-"
		if ev.DistanceKM != nil {
			dist = fmt.Sprintf("%.2fkm", *ev.DistanceKM)
		}
		fmt.Fprintf(w, "%s %-8s %-7s %s\n", dimColor.Sprint(stamp(ev.Timestamp)),
			statusColor(ev.Type).Sprint(strings.ToUpper(ev.Type)), dist, ev.Title)
	}
	return nil
}

func runPosts(cmd *cobra.Command, args []string) error {
	posts, err := newBackend().api.Posts(cmd.Context())
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	for _, p := range posts {
		loc := ""
		if p.Location.Name != "" {
			loc = dimColor.Sprint(" @ " + p.Location.Name)
		}
		fmt.Fprintf(w, "%s%s\n  %s\n", fieldColor.Sprint(p.User.DisplayName), loc, p.ContentText)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	b := newBackend()
	exec := commands.NewExecutor(b.api, logger)
	prompt := strings.Join(args, " ")

	var res commands.Result
	err := b.call(cmd.Context(), func(ctx context.Context) error {
		// Track what is running so "clear" can stop it.
		running, err := b.api.ListMonitors(ctx)
		if err != nil {
			return err
		}
		for _, m := range running {
			exec.Track(commands.MonitorRef{ID: m.MonitorID, SKU: m.SKU})
		}
		res, err = exec.Run(ctx, prompt)
		return err
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	switch res.Kind {
	case commands.KindError:
		return fmt.Errorf("%s", res.Message)
	case commands.KindChat:
		fmt.Fprintln(w, renderMarkdown(res.Message))
	default:
		successColor.Fprintln(w, res.Message)
		for _, id := range res.TaskIDs {
			fmt.Fprintf(w, "  %s\n", id)
		}
	}
	return nil
}

func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}
