package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/myspacecornelius/Dharma/internal/channel"
	"github.com/myspacecornelius/Dharma/internal/eventfilter"
	"github.com/myspacecornelius/Dharma/internal/events"
)

var (
	watchFilter string
	watchCount  int
)

var watchCmd = &cobra.Command{
	Use:   "watch [types...]",
	Short: "Stream real-time events to stdout",
	Long: `Connects to the event channel and prints every event as one line of JSON.
With no types, every known event type is printed.

The --filter flag takes a boolean expression over "type" and "payload":
  dharma watch --filter 'type == "monitor.update" && payload.in_stock'
  dharma watch task.update --filter 'payload.progress >= 50'`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchFilter, "filter", "f", "", "expression selecting events to print")
	watchCmd.Flags().IntVarP(&watchCount, "count", "n", 0, "exit after printing this many events")
	rootCmd.AddCommand(watchCmd)
}

var allEventTypes = []string{
	events.MonitorUpdate,
	events.TaskUpdate,
	events.Alert,
	events.StockAlert,
	events.NewEvent,
	events.LacesEarned,
}

func runWatch(cmd *cobra.Command, args []string) error {
	filter, err := eventfilter.Compile(watchFilter)
	if err != nil {
		return err
	}
	types := args
	if len(types) == 0 {
		types = allEventTypes
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token, err := newBackend().validSession(ctx)
	if err != nil {
		return err
	}

	ch, err := newChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	return watch(ctx, ch, token, types, filter, watchCount, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// watch prints matching events until ctx is done, limit events were printed
// or the channel gives up reconnecting.
func watch(ctx context.Context, ch *channel.Client, token string, types []string, filter *eventfilter.Filter, limit int, out, errOut io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		printed int
		gaveUp  error
	)
	emit := func(typ string, payload json.RawMessage) {
		ok, err := filter.Match(typ, payload)
		if err != nil {
			logger.Warn("filter", "type", typ, "err", err)
			return
		}
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if limit > 0 && printed >= limit {
			return
		}
		printed++
		fmt.Fprintf(out, "%s %s %s\n",
			dimColor.Sprint(time.Now().Format(time.TimeOnly)),
			statusColor(typ).Sprintf("%-15s", typ),
			compact(payload))
		if limit > 0 && printed == limit {
			cancel()
		}
	}

	var regs []channel.Registration
	for _, typ := range types {
		regs = append(regs, ch.On(typ, func(p json.RawMessage) { emit(typ, p) }))
	}
	regs = append(regs, ch.On(events.ChannelExhausted, func(p json.RawMessage) {
		ex, _ := events.Decode[events.Exhausted](p)
		mu.Lock()
		gaveUp = errors.Wrapf(channel.ErrExhausted, "after %d attempts", ex.Attempts)
		mu.Unlock()
		cancel()
	}))
	defer func() {
		for _, r := range regs {
			ch.Off(r)
		}
	}()

	ch.OnStateChange(func(st channel.Status) {
		switch {
		case st.State == channel.Connected:
			infoColor.Fprintln(errOut, "connected")
		case st.RetryIn > 0:
			infoColor.Fprintf(errOut, "connection lost, retry %d in %s\n", st.Attempt, st.RetryIn)
		}
	})

	if err := ch.Connect(token); err != nil {
		return err
	}
	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return gaveUp
}

// compact renders payload on one line.
func compact(payload json.RawMessage) string {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return string(payload)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return string(payload)
	}
	return string(data)
}
