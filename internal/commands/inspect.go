package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/ctidoc/internal/batch"
	"github.com/telhawk-systems/ctidoc/internal/output"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.md>",
	Short: "Show the frontmatter of a generated Markdown file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd, output.FormatTable, output.FormatJSON, output.FormatYAML)
		if err != nil {
			return err
		}
		fm, body, err := batch.ReadFrontMatter(args[0])
		if err != nil {
			return err
		}

		switch format {
		case output.FormatJSON:
			return output.JSON(fm)
		case output.FormatYAML:
			return output.YAML(fm)
		}

		table := output.NewTable([]string{"KEY", "VALUE"})
		table.AddRow([]string{"title", fm.Title})
		table.AddRow([]string{"category", fm.Category})
		table.AddRow([]string{"source", fm.Source})
		table.AddRow([]string{"source_sha256", fm.SourceSHA256})
		if fm.Chunks > 0 {
			table.AddRow([]string{"chunk", strconv.Itoa(fm.Chunk) + " of " + strconv.Itoa(fm.Chunks)})
			table.AddRow([]string{"overlap", strconv.FormatBool(fm.Overlap)})
		}
		table.AddRow([]string{"tokens", strconv.Itoa(fm.Tokens)})
		table.AddRow([]string{"body_bytes", strconv.Itoa(len(body))})
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
