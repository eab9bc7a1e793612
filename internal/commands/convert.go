package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/ctidoc/internal/logging"
	"github.com/telhawk-systems/ctidoc/internal/output"
	"github.com/telhawk-systems/ctidoc/pkg/chunking"
)

var convertCmd = &cobra.Command{
	Use:   "convert <source> [output]",
	Short: "Convert a file or directory of CTI JSON to Markdown",
	Long: `Convert every .json, .jsonl and .ndjson file under <source> into Markdown
files grouped by category under [output] (default: output.dir).

Records that fail are counted, logged and written to the dead letter queue;
they never stop the run.`,
	Example: `  # Convert a directory with the defaults
  ctidoc convert ./feeds

  # Larger chunks, no overlap, four workers
  ctidoc convert ./feeds ./docs --budget 1200 --overlap 0 --workers 4

  # Rerun, rewriting only records that changed
  ctidoc convert ./feeds ./docs --skip-unchanged`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConvert,
}

func init() {
	addConversionFlags(convertCmd)
	rootCmd.AddCommand(convertCmd)
}

// addConversionFlags registers the flags shared by convert and watch.
func addConversionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("budget", chunking.DefaultBudget, "maximum tokens per chunk, overlap included")
	f.Float64("overlap", chunking.DefaultOverlapRatio, "share of the budget repeated from the previous chunk")
	f.Bool("no-chunk", false, "write whole documents, never split")
	f.Int("workers", 0, "conversion workers (default: number of CPUs)")
	f.String("aliases", "", "YAML file with field alias overrides")
	f.Duration("timeout", 0, "stop the run after this long (0 = no limit)")
	f.Bool("skip-unchanged", false, "skip records whose output already matches")
	f.Bool("no-frontmatter", false, "omit the YAML frontmatter header")
	f.Bool("no-split", false, "treat top-level arrays as one record")

	bind(cmd, "budget", "chunking.budget")
	bind(cmd, "overlap", "chunking.overlap_ratio")
	bind(cmd, "workers", "batch.workers")
	bind(cmd, "aliases", "aliases.file")
	bind(cmd, "timeout", "batch.timeout")
	bind(cmd, "skip-unchanged", "batch.skip_unchanged")
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runConvert(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd, output.FormatTable, output.FormatJSON)
	if err != nil {
		return err
	}
	if len(args) == 2 {
		setOutputDir(cfg, args[1])
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	ctx = logging.WithRunID(ctx, logging.NewRunID())
	log := logger.With(logging.RunID(logging.RunIDFrom(ctx)))

	env, err := openEnv(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := env.Close(); err != nil {
			log.Warn("close failed", logging.Error(err))
		}
	}()

	log.Info("converting", logging.Path(args[0]), "output", cfg.Output.Dir,
		"chunking", cfg.Chunking.Enabled, "budget", cfg.Chunking.Budget)

	sum, runErr := env.driver.Run(ctx, args[0])
	env.report(ctx, cfg, log, sum)

	switch format {
	case output.FormatJSON:
		err = output.JSON(sum)
	default:
		sum.Print(output.Writer())
		if sum.Failed > 0 && env.queue != nil {
			output.Warn("%d record(s) failed, see %s", sum.Failed, env.queue.Path())
		}
	}
	if runErr != nil {
		return runErr
	}
	return err
}
