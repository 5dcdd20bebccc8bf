// Package patcher implements the top-level orchestration described in
// spec.md's overview: CreatePatch scans two directory trees, plans the
// difference between them, and encodes the result to a patch container;
// ApplyPatch decodes a container and replays it against a target tree. It
// wires together internal/scan, internal/plan, internal/container, and
// internal/apply the way the teacher's cmd/diff and cmd/hash commands wire
// together internal/merkle and internal/ignore.
package patcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lucho00cuba/patcher/internal/apply"
	"github.com/lucho00cuba/patcher/internal/container"
	"github.com/lucho00cuba/patcher/internal/ignore"
	"github.com/lucho00cuba/patcher/internal/logger"
	"github.com/lucho00cuba/patcher/internal/perr"
	"github.com/lucho00cuba/patcher/internal/plan"
	"github.com/lucho00cuba/patcher/internal/scan"
)

// CreateOptions configures CreatePatch.
type CreateOptions struct {
	// BlockSize is the delta block size; zero selects delta.DefaultBlockSize.
	BlockSize int
	// MaxWorkers bounds scan/plan concurrency; zero selects the package
	// defaults.
	MaxWorkers int
	// Matcher excludes paths from both scans, e.g. a .patcherignore-derived
	// matcher from internal/ignore.
	Matcher ignore.Matcher
}

// CreatePatch scans oldDir and newDir, plans the patch that transforms one
// into the other, and writes the encoded container to outputPath. On any
// failure outputPath is left untouched: the container is encoded into a
// temp file in outputPath's directory, which is removed on failure and
// renamed onto outputPath only after it is fully written and synced, per
// spec.md §7's side-effect-free-on-failure guarantee.
func CreatePatch(ctx context.Context, oldDir, newDir, outputPath string, opts CreateOptions) error {
	scanOpts := scan.Options{MaxWorkers: opts.MaxWorkers, Matcher: opts.Matcher}

	logger.Info("scanning old tree", "path", oldDir)
	oldEntries, err := scan.ScanWithOptions(ctx, oldDir, scanOpts)
	if err != nil {
		return fmt.Errorf("%w: scan old tree: %v", perr.ErrIO, err)
	}

	logger.Info("scanning new tree", "path", newDir)
	newEntries, err := scan.ScanWithOptions(ctx, newDir, scanOpts)
	if err != nil {
		return fmt.Errorf("%w: scan new tree: %v", perr.ErrIO, err)
	}

	logger.Info("planning patch", "old_entries", len(oldEntries), "new_entries", len(newEntries))
	m, err := plan.Build(ctx, oldDir, newDir, oldEntries, newEntries, plan.Options{
		BlockSize:  opts.BlockSize,
		MaxWorkers: opts.MaxWorkers,
	})
	if err != nil {
		return fmt.Errorf("plan patch: %w", err)
	}
	logger.Info("patch planned", "operations", len(m.Operations))

	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".patcher-create-*")
	if err != nil {
		return fmt.Errorf("%w: create temp output: %v", perr.ErrIO, err)
	}
	tmpPath := tmp.Name()
	succeeded := false
	defer func() {
		tmp.Close()
		if !succeeded {
			os.Remove(tmpPath)
		}
	}()

	if err := container.Encode(tmp, m); err != nil {
		return fmt.Errorf("encode patch container: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync patch output: %v", perr.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close patch output: %v", perr.ErrIO, err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return fmt.Errorf("%w: finalize patch output: %v", perr.ErrIO, err)
	}
	succeeded = true

	logger.Info("patch written", "path", outputPath)
	return nil
}

// ApplyOptions configures ApplyPatch.
type ApplyOptions struct {
	MaxWorkers int
	FileMode   os.FileMode
}

// ApplyPatch decodes the patch container at patchPath and replays it
// against targetDir, which must match the "old" tree the patch was
// created from.
func ApplyPatch(ctx context.Context, targetDir, patchPath string, opts ApplyOptions) error {
	f, err := os.Open(patchPath)
	if err != nil {
		return fmt.Errorf("%w: open patch file: %v", perr.ErrIO, err)
	}
	defer f.Close()

	logger.Info("decoding patch", "path", patchPath)
	m, err := container.Decode(f)
	if err != nil {
		return fmt.Errorf("decode patch container: %w", err)
	}
	logger.Info("applying patch", "target", targetDir, "operations", len(m.Operations))

	if err := apply.Apply(ctx, targetDir, m, apply.Options{
		MaxWorkers: opts.MaxWorkers,
		FileMode:   opts.FileMode,
	}); err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}

	logger.Info("patch applied", "target", targetDir)
	return nil
}
