// Package commands implements the ctidoc command line.
package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/telhawk-systems/ctidoc/internal/config"
	"github.com/telhawk-systems/ctidoc/internal/logging"
	"github.com/telhawk-systems/ctidoc/internal/output"
)

// configKey is the flag annotation naming the config key a flag overrides.
const configKey = "ctidoc.config_key"

// Exit codes.
const (
	ExitOK     = 0
	ExitFailed = 1
	// ExitConfig reports an invalid configuration or flag value.
	ExitConfig = 2
)

var (
	cfgFile string
	cfg     *config.Config
	logger  = logging.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "ctidoc",
	Short: "Convert CTI JSON into LLM-ready Markdown",
	Long: `ctidoc turns heterogeneous cyber threat intelligence JSON (MITRE ATT&CK,
STIX bundles, OpenCTI exports, vendor feeds, security bulletins) into
Markdown documents, one per record, split into overlapping chunks sized
for retrieval pipelines.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err != nil {
		output.Error("%v", err)
	}
	return ExitCode(err)
}

// ExitCode maps a command error to an exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, config.ErrInvalidConfig), errors.Is(err, errUsage):
		return ExitConfig
	default:
		return ExitFailed
	}
}

// errUsage marks bad arguments or flag values.
var errUsage = errors.New("usage")

func usageErr(format string, a ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, a...))
}

func init() {
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", errUsage, err)
	})

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./ctidoc.yaml, then $HOME/.ctidoc/config.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text, json")
	pf.StringP("output", "o", "table", "output format: table, json, yaml")
	bindPersistent(rootCmd, "log-level", "logging.level")
	bindPersistent(rootCmd, "log-format", "logging.format")
}

// bind marks a local flag as overriding a config key.
func bind(cmd *cobra.Command, flag, key string) {
	if err := cmd.Flags().SetAnnotation(flag, configKey, []string{key}); err != nil {
		panic(err)
	}
}

func bindPersistent(cmd *cobra.Command, flag, key string) {
	if err := cmd.PersistentFlags().SetAnnotation(flag, configKey, []string{key}); err != nil {
		panic(err)
	}
}

// setup loads the configuration with the flags of the running command
// bound over it, and builds the logger.
func setup(cmd *cobra.Command, _ []string) error {
	output.SetWriters(cmd.OutOrStdout(), cmd.ErrOrStderr())

	var bindings []config.Binding
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if keys := f.Annotations[configKey]; len(keys) == 1 {
			bindings = append(bindings, config.Bind(keys[0], f))
		}
	})

	loaded, err := config.Load(cfgFile, bindings...)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	applyNegations(cmd, loaded)
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded

	logger = logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)
	if cfg.File != "" {
		logger.Debug("configuration loaded", logging.Path(cfg.File))
	}
	return nil
}

// applyNegations applies the --no-* switches, which turn off settings that
// default to on.
func applyNegations(cmd *cobra.Command, c *config.Config) {
	if changed(cmd, "no-chunk") {
		c.Chunking.Enabled = false
	}
	if changed(cmd, "no-frontmatter") {
		c.Output.Frontmatter = false
	}
	if changed(cmd, "no-split") {
		c.Batch.SplitArrays = false
	}
}

func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	if f == nil || !f.Changed {
		return false
	}
	v, err := cmd.Flags().GetBool(name)
	return err == nil && v
}

// setOutputDir points output.dir at dir. A DLQ path derived from the old
// output directory follows it.
func setOutputDir(c *config.Config, dir string) {
	if c.DLQ.Path == filepath.Join(c.Output.Dir, ".dlq") {
		c.DLQ.Path = filepath.Join(dir, ".dlq")
	}
	c.Output.Dir = dir
}

func outputFormat(cmd *cobra.Command, allowed ...output.Format) (output.Format, error) {
	s, _ := cmd.Flags().GetString("output")
	f, err := output.ParseFormat(s, allowed...)
	if err != nil {
		return "", usageErr("%v", err)
	}
	return f, nil
}

// openInput opens path, or the command's stdin for "" and "-".
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}
