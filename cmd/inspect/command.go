// Package inspect provides the "inspect" command, which prints a patch
// container's summary without applying it. Grounded on the header-peek
// pattern of Sky-ey-HexDiff's pkg/patch IsDirPatch/GetDirPatchInfo helpers:
// confirm the magic and report structure before committing to a full
// decode-and-apply.
package inspect

import (
	"fmt"
	"os"

	"github.com/lucho00cuba/patcher/internal/container"
	"github.com/lucho00cuba/patcher/internal/logger"
	"github.com/lucho00cuba/patcher/internal/manifest"

	"github.com/lucho00cuba/patcher/cmd"
	"github.com/spf13/cobra"
)

// inspectCmd represents the inspect command for summarizing a patch file.
var inspectCmd = &cobra.Command{
	Use:   "inspect [patch-file]",
	Short: "Print a summary of a patch container without applying it",
	Args:  cobra.ExactArgs(1),
	Example: `  # Inspect a patch before applying it
  patcher inspect release.patch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		patchPath := args[0]
		log := logger.With("patch", patchPath, "command", "inspect")

		f, err := os.Open(patchPath)
		if err != nil {
			log.Error("Failed to open patch file", "error", err)
			return fmt.Errorf("failed to open patch file %q: %w", patchPath, err)
		}
		defer f.Close()

		ok, err := container.Peek(f)
		if err != nil {
			log.Error("Failed to peek patch file", "error", err)
			return fmt.Errorf("failed to read patch file %q: %w", patchPath, err)
		}
		if !ok {
			return fmt.Errorf("%q does not look like a patch container (bad magic)", patchPath)
		}
		if _, err := f.Seek(0, 0); err != nil {
			return fmt.Errorf("failed to rewind patch file %q: %w", patchPath, err)
		}

		m, err := container.Decode(f)
		if err != nil {
			log.Error("Failed to decode patch file", "error", err)
			return err
		}

		counts := summarize(m)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "format_version: %d\n", m.FormatVersion)
		fmt.Fprintf(out, "operations: %d\n", len(m.Operations))
		fmt.Fprintf(out, "  create_dir:   %d\n", counts[manifest.OpCreateDir])
		fmt.Fprintf(out, "  add_file:     %d\n", counts[manifest.OpAddFile])
		fmt.Fprintf(out, "  modify_file:  %d\n", counts[manifest.OpModifyFile])
		fmt.Fprintf(out, "  delete_file:  %d\n", counts[manifest.OpDeleteFile])
		fmt.Fprintf(out, "  delete_dir:   %d\n", counts[manifest.OpDeleteDir])

		return nil
	},
}

func summarize(m *manifest.PatchManifest) map[manifest.OpTag]int {
	counts := make(map[manifest.OpTag]int)
	for _, op := range m.Operations {
		counts[op.Tag]++
	}
	return counts
}

func init() {
	cmd.Register(inspectCmd)
}
