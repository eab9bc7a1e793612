package commands

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/ctidoc/internal/output"
	"github.com/telhawk-systems/ctidoc/internal/seeder"
)

var seedCmd = &cobra.Command{
	Use:   "seed <dir>",
	Short: "Generate a synthetic CTI corpus for testing",
	Long: `Write fake records of every kind (MITRE techniques, groups and
mitigations, STIX bundles, OpenCTI exports, threat actors, security
bulletins and unrecognized records) into <dir>. The same --seed always
produces the same corpus.`,
	Example: `  ctidoc seed ./corpus --count 50
  ctidoc seed ./corpus --kinds technique,bulletin --arrays`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		seed, _ := cmd.Flags().GetInt64("seed")
		kindList, _ := cmd.Flags().GetStringSlice("kinds")
		arrays, _ := cmd.Flags().GetBool("arrays")

		if count <= 0 {
			return usageErr("--count must be positive")
		}
		for _, k := range kindList {
			if !slices.Contains(seeder.Kinds(), k) {
				return usageErr("unknown kind %q (want %s)", k, strings.Join(seeder.Kinds(), ", "))
			}
		}
		if seed == 0 {
			seed = time.Now().UnixNano()
		}

		paths, err := seeder.New(seed).WriteCorpus(args[0], seeder.CorpusOptions{
			Count:      count,
			Kinds:      kindList,
			ArrayFiles: arrays,
		})
		if err != nil {
			return fmt.Errorf("write corpus: %w", err)
		}
		output.Success("Wrote %d file(s) to %s (seed %d)", len(paths), args[0], seed)
		return nil
	},
}

func init() {
	seedCmd.Flags().Int("count", 10, "records per kind")
	seedCmd.Flags().Int64("seed", 0, "random seed (0 = time based)")
	seedCmd.Flags().StringSlice("kinds", nil, "record kinds to generate (default: all)")
	seedCmd.Flags().Bool("arrays", false, "write one JSON array file per kind")
	rootCmd.AddCommand(seedCmd)
}
