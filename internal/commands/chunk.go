package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/ctidoc/internal/output"
	"github.com/telhawk-systems/ctidoc/pkg/chunking"
)

var chunkCmd = &cobra.Command{
	Use:   "chunk [file|-]",
	Short: "Split a Markdown document into overlapping chunks",
	Long: `Split Markdown read from a file or stdin into chunks that fit the token
budget, preferring section and paragraph boundaries. Each chunk after the
first repeats the end of the previous one.`,
	Example: `  ctidoc chunk report.md --budget 400
  cat report.md | ctidoc chunk - -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChunk,
}

func init() {
	chunkCmd.Flags().Int("budget", chunking.DefaultBudget, "maximum tokens per chunk, overlap included")
	chunkCmd.Flags().Float64("overlap", chunking.DefaultOverlapRatio, "share of the budget repeated from the previous chunk")
	bind(chunkCmd, "budget", "chunking.budget")
	bind(chunkCmd, "overlap", "chunking.overlap_ratio")
	rootCmd.AddCommand(chunkCmd)
}

func runChunk(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd, output.FormatTable, output.FormatText, output.FormatJSON)
	if err != nil {
		return err
	}

	var path string
	if len(args) == 1 {
		path = args[0]
	}
	in, err := openInput(cmd, path)
	if err != nil {
		return err
	}
	defer in.Close()
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	chunker, err := chunking.New(cfg.Chunking.ChunkConfig())
	if err != nil {
		return err
	}
	chunks := chunker.Split(string(data))

	if format == output.FormatJSON {
		if chunks == nil {
			chunks = []chunking.Chunk{}
		}
		return output.JSON(chunks)
	}
	for i, c := range chunks {
		if i > 0 {
			output.Plain("\n")
		}
		output.Plain("%s", c.Markdown())
	}
	return nil
}
