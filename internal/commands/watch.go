package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/telhawk-systems/ctidoc/internal/logging"
	"github.com/telhawk-systems/ctidoc/internal/metrics"
	"github.com/telhawk-systems/ctidoc/internal/output"
	"github.com/telhawk-systems/ctidoc/internal/stats"
	"github.com/telhawk-systems/ctidoc/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch <source> [output]",
	Short: "Convert a directory, then keep converting files as they change",
	Long: `Convert <source> once, then watch it and convert every source file that
is created or modified. Runs until interrupted.

With --metrics-addr the Prometheus metrics are served on /metrics.`,
	Example: `  ctidoc watch ./feeds ./docs --metrics-addr :9108`,
	Args:    cobra.RangeArgs(1, 2),
	RunE:    runWatch,
}

func init() {
	addConversionFlags(watchCmd)
	watchCmd.Flags().Duration("debounce", watch.DefaultDebounce, "quiet period before a changed file is converted")
	watchCmd.Flags().String("metrics-addr", "", "serve /metrics on this address")
	watchCmd.Flags().Bool("no-initial", false, "skip the initial full conversion")
	bind(watchCmd, "metrics-addr", "metrics.listen_addr")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if len(args) == 2 {
		setOutputDir(cfg, args[1])
	}
	debounce, _ := cmd.Flags().GetDuration("debounce")
	noInitial, _ := cmd.Flags().GetBool("no-initial")

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	env, err := openEnv(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := env.Close(); err != nil {
			logger.Warn("close failed", logging.Error(err))
		}
	}()

	report := func(ctx context.Context, sum *stats.Summary) {
		env.report(ctx, cfg, logger, sum)
		output.Info("%s  %d converted, %d skipped, %d failed (%s)",
			time.Now().Format(time.TimeOnly), sum.Converted, sum.Skipped, sum.Failed,
			sum.Duration.Round(time.Millisecond))
	}

	if !noInitial {
		runCtx := logging.WithRunID(ctx, logging.NewRunID())
		sum, err := env.driver.Run(runCtx, args[0])
		if err != nil {
			return err
		}
		report(runCtx, sum)
	}

	var srv *metrics.Server
	if cfg.Metrics.ListenAddr != "" {
		if srv, err = metrics.Listen(cfg.Metrics.ListenAddr); err != nil {
			return err
		}
	}

	w, err := watch.New(args[0], env.driver,
		watch.WithDebounce(debounce),
		watch.WithLogger(logger),
		watch.WithReport(report))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if srv != nil {
		logger.Info("serving metrics", "addr", srv.Addr())
		g.Go(func() error { return srv.Serve(gctx) })
	}
	g.Go(func() error { return w.Run(gctx) })

	output.Info("watching %s (Ctrl+C to stop)", args[0])
	return g.Wait()
}
