// Command dharma-mock serves the development backend: sessions, REST
// resources and a live event channel fed by a random generator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/myspacecornelius/Dharma/internal/config"
	"github.com/myspacecornelius/Dharma/internal/logging"
	"github.com/myspacecornelius/Dharma/internal/mockapi"
)

var (
	configPath string
	host       string
	port       int
	apiKeys    []string
	seed       int64
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:           "dharma-mock",
	Short:         "Run the Dharma development backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          runServe,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&configPath, "config", "c", "dharma.yaml", "config file")
	f.StringVar(&host, "host", "", "override mock.host")
	f.IntVarP(&port, "port", "p", 0, "override mock.port")
	f.StringSliceVar(&apiKeys, "api-key", nil, "accepted API keys (default: any)")
	f.Int64Var(&seed, "seed", 0, "seed the event generator")
	f.BoolVarP(&quiet, "quiet", "q", false, "disable the event generator")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if host != "" {
		cfg.Mock.Host = host
	}
	if port > 0 {
		cfg.Mock.Port = port
	}

	logger, closer, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

func serve(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	srv := mockapi.NewServer(mockapi.Options{
		Environment: cfg.Mock.Environment,
		SessionTTL:  cfg.Mock.SessionTTL,
		APIKeys:     apiKeys,
		Logger:      logger,
	})
	defer srv.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(ctx, cfg.MockAddr()) })
	if !quiet {
		gen := mockapi.NewGenerator(srv.State(), srv.Broadcaster(), cfg.Mock.EventRate, cfg.Mock.EventInterval, logger)
		if seed != 0 {
			gen.Seed(seed)
		}
		g.Go(func() error { return gen.Run(ctx) })
	}

	logger.Info("mock backend starting", "addr", cfg.MockAddr(), "env", cfg.Mock.Environment, "generator", !quiet)
	err := g.Wait()
	logger.Info("mock backend stopped")
	return err
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}
