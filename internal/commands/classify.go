package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/ctidoc/internal/output"
	"github.com/telhawk-systems/ctidoc/pkg/jsonvalue"
	"github.com/telhawk-systems/ctidoc/pkg/pipeline"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <file.json|->",
	Short: "Show how a record is classified and which fields resolve",
	Args:  cobra.ExactArgs(1),
	RunE:  runClassify,
}

var previewCmd = &cobra.Command{
	Use:   "preview <file.json|->",
	Short: "Render a record's Markdown in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreview,
}

func init() {
	previewCmd.Flags().Bool("raw", false, "print the Markdown source")
	previewCmd.Flags().Int("width", 100, "word wrap width")
	previewCmd.Flags().String("style", "auto", "glamour style: auto, dark, light, notty")
	rootCmd.AddCommand(classifyCmd, previewCmd)
}

// classification is the result printed by classify.
type classification struct {
	Source   string          `json:"source" yaml:"source"`
	Category string          `json:"category" yaml:"category"`
	Rule     string          `json:"rule" yaml:"rule"`
	Title    string          `json:"title" yaml:"title"`
	Path     string          `json:"path" yaml:"path"`
	Warnings []string        `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Fields   []resolvedField `json:"fields" yaml:"fields"`
}

type resolvedField struct {
	Field string `json:"field" yaml:"field"`
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// convertOne reads a single record and converts it with the configured table.
// A JSON array is not split.
func convertOne(cmd *cobra.Command, path string) (*pipeline.Result, error) {
	in, err := openInput(cmd, path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	record, err := jsonvalue.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	conv, err := newConverter(cfg)
	if err != nil {
		return nil, err
	}
	return conv.Convert(record)
}

func runClassify(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd, output.FormatTable, output.FormatJSON, output.FormatYAML)
	if err != nil {
		return err
	}
	res, err := convertOne(cmd, args[0])
	if err != nil {
		return err
	}

	c := classification{
		Source:   args[0],
		Category: res.Category.String(),
		Rule:     res.Rule,
		Title:    res.Document.Title,
		Path:     pipeline.SuggestOutputPath(res.Record, res.Resolved, res.Category, pipeline.NoChunk),
		Fields:   []resolvedField{},
	}
	for _, w := range res.Warnings {
		c.Warnings = append(c.Warnings, w.Error())
	}
	for _, e := range res.Resolved.Entries() {
		c.Fields = append(c.Fields, resolvedField{Field: e.Field, Key: e.Key, Value: fieldText(e.Value)})
	}

	switch format {
	case output.FormatJSON:
		return output.JSON(c)
	case output.FormatYAML:
		return output.YAML(c)
	}

	output.Info("%s (%s)", c.Category, c.Rule)
	output.Plain("Title: %s\nPath:  %s\n\n", c.Title, c.Path)
	for _, w := range c.Warnings {
		output.Warn("%s", w)
	}
	table := output.NewTable([]string{"FIELD", "KEY", "VALUE"})
	for _, f := range c.Fields {
		table.AddRow([]string{f.Field, f.Key, f.Value})
	}
	table.Render()
	return nil
}

// fieldText shortens a value to one table line.
func fieldText(v jsonvalue.Value) string {
	var s string
	if v.IsContainer() {
		s = string(v.AppendJSON(nil))
	} else {
		s = v.Text()
	}
	return truncate(strings.Join(strings.Fields(s), " "), 60)
}

func runPreview(cmd *cobra.Command, args []string) error {
	res, err := convertOne(cmd, args[0])
	if err != nil {
		return err
	}
	md := res.Document.Markdown()

	if raw, _ := cmd.Flags().GetBool("raw"); raw {
		output.Plain("%s", md)
		return nil
	}

	width, _ := cmd.Flags().GetInt("width")
	style, _ := cmd.Flags().GetString("style")
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}
	rendered, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("render preview: %w", err)
	}
	output.Plain("%s", rendered)
	return nil
}
