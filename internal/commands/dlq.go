package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/ctidoc/internal/dlq"
	"github.com/telhawk-systems/ctidoc/internal/output"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect the dead letter queue of failed records",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List failed records, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd, output.FormatTable, output.FormatJSON)
		if err != nil {
			return err
		}
		q, err := openQueue()
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		records, err := q.List(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if format == output.FormatJSON {
			if records == nil {
				records = []dlq.FailedRecord{}
			}
			return output.JSON(records)
		}

		if len(records) == 0 {
			output.Success("No failed records in %s", q.Path())
			return nil
		}
		table := output.NewTable([]string{"TIME", "SOURCE", "CONDITION", "ERROR", "FILE"})
		for _, r := range records {
			table.AddRow([]string{
				r.Timestamp.Local().Format(time.DateTime),
				r.Source,
				r.Condition,
				truncate(r.Error, 60),
				r.File,
			})
		}
		table.Render()
		output.Plain("\n%d failed record(s)\n", len(records))
		return nil
	},
}

var dlqPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every failed record",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := openQueue()
		if err != nil {
			return err
		}
		n, err := q.Purge(cmd.Context())
		if err != nil {
			return err
		}
		output.Success("Purged %d failed record(s) from %s", n, q.Path())
		return nil
	},
}

func init() {
	dlqCmd.PersistentFlags().String("path", "", "DLQ directory (default: dlq.path)")
	bindPersistent(dlqCmd, "path", "dlq.path")
	dlqListCmd.Flags().Int("limit", 0, "maximum number of records (0 = all)")
	dlqCmd.AddCommand(dlqListCmd, dlqPurgeCmd)
	rootCmd.AddCommand(dlqCmd)
}

func openQueue() (*dlq.Queue, error) {
	return dlq.NewQueue(cfg.DLQ.Path, logger)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
