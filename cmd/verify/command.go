// Package verify provides the "verify" command, which reports whether two
// directory trees are identical by comparing their combined content
// digests. Grounded on the teacher's cmd/diff command, adapted from a
// Merkle-root comparison to scan.TreeDigest over the flat scan entry list.
package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/lucho00cuba/patcher/internal/ignore"
	"github.com/lucho00cuba/patcher/internal/logger"
	"github.com/lucho00cuba/patcher/internal/scan"

	"github.com/lucho00cuba/patcher/cmd"
	"github.com/spf13/cobra"
)

// verifyCmd represents the verify command for whole-tree comparison.
var verifyCmd = &cobra.Command{
	Use:   "verify [pathA] [pathB]",
	Short: "Report whether two directory trees are identical",
	Args:  cobra.ExactArgs(2),
	Example: `  # Confirm an applied patch reproduced the expected tree
  patcher verify ./v1 ./v2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pathA, pathB := args[0], args[1]
		log := logger.With("pathA", pathA, "pathB", pathB, "command", "verify")

		excludePatterns, err := cmd.Flags().GetStringArray("exclude")
		if err != nil {
			log.Warn("Failed to read exclude patterns", "error", err)
			excludePatterns = []string{}
		}
		customIgnoreFile, err := cmd.Flags().GetString("ignore-file")
		if err != nil {
			log.Warn("Failed to read ignore-file flag", "error", err)
			customIgnoreFile = ""
		}

		matcher, err := ignore.NewMatcher(excludePatterns, pathA, true, customIgnoreFile)
		if err != nil {
			log.Error("Failed to build exclusion matcher", "error", err)
			return fmt.Errorf("failed to build exclusion matcher: %w", err)
		}

		log.Info("Starting tree verification")
		start := time.Now()
		ctx := context.Background()
		scanOpts := scan.Options{Matcher: matcher}

		entriesA, err := scan.ScanWithOptions(ctx, pathA, scanOpts)
		if err != nil {
			log.Error("Failed to scan pathA", "error", err)
			return err
		}
		entriesB, err := scan.ScanWithOptions(ctx, pathB, scanOpts)
		if err != nil {
			log.Error("Failed to scan pathB", "error", err)
			return err
		}

		digestA := scan.TreeDigest(entriesA)
		digestB := scan.TreeDigest(entriesB)
		identical := digestA == digestB

		duration := time.Since(start)
		log.Info("Tree verification completed", "duration", duration, "identical", identical)

		out := cmd.OutOrStdout()
		if identical {
			fmt.Fprintf(out, "identical: %x\n", digestA)
			return nil
		}
		fmt.Fprintf(out, "differs:\n  %s: %x\n  %s: %x\n", pathA, digestA, pathB, digestB)
		return fmt.Errorf("trees differ")
	},
}

func init() {
	verifyCmd.Flags().StringArrayP("exclude", "e", []string{}, "Exclude patterns (e.g., 'node_modules', '.git'). Can be specified multiple times.")
	verifyCmd.Flags().StringP("ignore-file", "i", "", "Path to a custom ignore file whose patterns are added to the exclusions. .patcherignore and .gitignore are always loaded automatically from the working directory and its parents.")

	cmd.Register(verifyCmd)
}
