// Package create provides the "create" command for computing a patch
// container between two directory trees.
package create

import (
	"context"
	"fmt"
	"time"

	"github.com/lucho00cuba/patcher/internal/ignore"
	"github.com/lucho00cuba/patcher/internal/logger"

	"github.com/lucho00cuba/patcher"

	"github.com/lucho00cuba/patcher/cmd"
	"github.com/spf13/cobra"
)

// createCmd represents the create command for building a patch container.
var createCmd = &cobra.Command{
	Use:   "create [old-dir] [new-dir] [output-file]",
	Short: "Create a patch that transforms old-dir into new-dir",
	Args:  cobra.ExactArgs(3),
	Example: `  # Create a patch from v1 to v2
  patcher create ./v1 ./v2 release.patch

  # Exclude build artifacts from both trees
  patcher create ./v1 ./v2 release.patch -e node_modules -e .git`,
	RunE: func(cmd *cobra.Command, args []string) error {
		oldDir, newDir, outputPath := args[0], args[1], args[2]
		log := logger.With("old", oldDir, "new", newDir, "output", outputPath, "command", "create")

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
		workers, err := cmd.Flags().GetInt("workers")
		if err != nil {
			log.Warn("Failed to read workers flag", "error", err)
			workers = 0
		}
		blockSize, err := cmd.Flags().GetInt("block-size")
		if err != nil {
			log.Warn("Failed to read block-size flag", "error", err)
			blockSize = 0
		}

		matcher, err := ignore.NewMatcher(excludePatterns, newDir, true, customIgnoreFile)
		if err != nil {
			log.Error("Failed to build exclusion matcher", "error", err)
			return fmt.Errorf("failed to build exclusion matcher: %w", err)
		}

		log.Info("Starting patch creation")
		start := time.Now()

		err = patcher.CreatePatch(context.Background(), oldDir, newDir, outputPath, patcher.CreateOptions{
			BlockSize:  blockSize,
			MaxWorkers: workers,
			Matcher:    matcher,
		})
		if err != nil {
			log.Error("Patch creation failed", "error", err, "duration", time.Since(start))
			return err
		}

		log.Info("Patch creation completed", "duration", time.Since(start))
		fmt.Fprintf(cmd.OutOrStdout(), "patch written to %s\n", outputPath)
		return nil
	},
}

func init() {
	createCmd.Flags().StringArrayP("exclude", "e", []string{}, "Exclude patterns (e.g., 'node_modules', '.git'). Can be specified multiple times.")
	createCmd.Flags().StringP("ignore-file", "i", "", "Path to a custom ignore file whose patterns are added to the exclusions. .patcherignore and .gitignore are always loaded automatically from the working directory and its parents.")
	createCmd.Flags().Int("workers", 0, "Maximum concurrent scan/delta workers (0 selects the package default).")
	createCmd.Flags().Int("block-size", 0, "Delta block size in bytes (0 selects the default of 4096).")

	cmd.Register(createCmd)
}
