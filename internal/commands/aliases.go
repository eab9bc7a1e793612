package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/ctidoc/internal/output"
	"github.com/telhawk-systems/ctidoc/pkg/fields"
)

var aliasesCmd = &cobra.Command{
	Use:   "aliases",
	Short: "Print the effective field alias table",
	Long: `Print the canonical fields and, for each, the record keys that may supply
it, highest priority first. The table includes the adjustments from
aliases.file and the inline aliases.override and aliases.extend settings.

The YAML output can be edited and passed back with --aliases.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd, output.FormatTable, output.FormatJSON, output.FormatYAML)
		if err != nil {
			return err
		}
		table, err := cfg.AliasTable()
		if err != nil {
			return err
		}

		switch format {
		case output.FormatJSON:
			return output.JSON(table.Mappings())
		case output.FormatYAML:
			return output.YAML(map[string]any{"override": overrideMap(table.Mappings())})
		}

		t := output.NewTable([]string{"FIELD", "ALIASES"})
		for _, m := range table.Mappings() {
			t.AddRow([]string{m.Field, strings.Join(m.Aliases, ", ")})
		}
		t.Render()
		return nil
	},
}

func init() {
	aliasesCmd.Flags().String("aliases", "", "YAML file with field alias overrides")
	bind(aliasesCmd, "aliases", "aliases.file")
	rootCmd.AddCommand(aliasesCmd)
}

// overrideMap turns mappings into an aliases file that reproduces them.
func overrideMap(mappings []fields.Mapping) map[string][]string {
	out := make(map[string][]string, len(mappings))
	for _, m := range mappings {
		out[m.Field] = m.Aliases
	}
	return out
}
