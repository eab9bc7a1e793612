package commands

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/ctidoc/internal/output"
)

// Set at build time with -ldflags "-X ...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd, output.FormatTable, output.FormatJSON, output.FormatYAML)
		if err != nil {
			return err
		}
		info := versionInfo{Version: Version, Commit: Commit, BuildTime: BuildTime, GoVersion: runtime.Version()}
		switch format {
		case output.FormatJSON:
			return output.JSON(info)
		case output.FormatYAML:
			return output.YAML(info)
		}
		output.Plain("ctidoc %s (commit %s, built %s, %s)\n", info.Version, info.Commit, info.BuildTime, info.GoVersion)
		return nil
	},
}

func init() {
	rootCmd.Version = Version
	rootCmd.AddCommand(versionCmd)
}
