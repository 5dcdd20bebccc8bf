// Package apply provides the "apply" command for replaying a patch
// container against a target directory tree.
package apply

import (
	"context"
	"fmt"
	"time"

	"github.com/lucho00cuba/patcher/internal/logger"

	"github.com/lucho00cuba/patcher"

	"github.com/lucho00cuba/patcher/cmd"
	"github.com/spf13/cobra"
)

// applyCmd represents the apply command for replaying a patch.
var applyCmd = &cobra.Command{
	Use:   "apply [target-dir] [patch-file]",
	Short: "Apply a patch to a target directory",
	Args:  cobra.ExactArgs(2),
	Example: `  # Apply a previously created patch
  patcher apply ./v1 release.patch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		targetDir, patchPath := args[0], args[1]
		log := logger.With("target", targetDir, "patch", patchPath, "command", "apply")

		workers, err := cmd.Flags().GetInt("workers")
		if err != nil {
			log.Warn("Failed to read workers flag", "error", err)
			workers = 0
		}

		log.Info("Starting patch apply")
		start := time.Now()

		err = patcher.ApplyPatch(context.Background(), targetDir, patchPath, patcher.ApplyOptions{
			MaxWorkers: workers,
		})
		if err != nil {
			log.Error("Patch apply failed", "error", err, "duration", time.Since(start))
			return err
		}

		log.Info("Patch apply completed", "duration", time.Since(start))
		fmt.Fprintf(cmd.OutOrStdout(), "patch applied to %s\n", targetDir)
		return nil
	},
}

func init() {
	applyCmd.Flags().Int("workers", 0, "Maximum concurrent apply workers (0 selects the package default).")

	cmd.Register(applyCmd)
}
