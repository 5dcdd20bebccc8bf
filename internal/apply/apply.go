// Package apply implements the Apply Executor (spec.md §4.E): it replays a
// PatchManifest's operations against a target tree, verifying file hashes
// before and after each write. Operations run in the manifest's fixed group
// order (CreateDir, then Add/ModifyFile, then DeleteFile, then DeleteDir);
// within the Add/ModifyFile and DeleteFile groups independent paths are
// dispatched across an errgroup.Group, the same bounded-concurrency shape
// scan and plan use for hashing and delta work. CreateDir and DeleteDir run
// sequentially because their correctness depends on the parent/child order
// the planner already established.
package apply

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/lucho00cuba/patcher/internal/delta"
	"github.com/lucho00cuba/patcher/internal/hashing"
	"github.com/lucho00cuba/patcher/internal/manifest"
	"github.com/lucho00cuba/patcher/internal/mmapfile"
	"github.com/lucho00cuba/patcher/internal/perr"
)

// DefaultMaxWorkers bounds concurrent per-file apply work.
const DefaultMaxWorkers = 8

// DefaultFileMode is the permission bits given to files created by AddFile
// or rewritten by ModifyFile, when Options.FileMode is unset.
const DefaultFileMode = os.FileMode(0o644)

// Options configures an Apply call.
type Options struct {
	// MaxWorkers bounds concurrent per-file work. Zero or negative selects
	// DefaultMaxWorkers.
	MaxWorkers int
	// FileMode is the permission bits for written files. Zero selects
	// DefaultFileMode.
	FileMode os.FileMode
}

// opClass buckets an operation tag into the group it belongs to, since
// AddFile and ModifyFile interleave by path within a single logical group
// (spec.md §4.C) but carry distinct tags.
type opClass int

const (
	classCreateDir opClass = iota
	classFileOp
	classDeleteFile
	classDeleteDir
	classUnknown
)

func classify(tag manifest.OpTag) opClass {
	switch tag {
	case manifest.OpCreateDir:
		return classCreateDir
	case manifest.OpAddFile, manifest.OpModifyFile:
		return classFileOp
	case manifest.OpDeleteFile:
		return classDeleteFile
	case manifest.OpDeleteDir:
		return classDeleteDir
	default:
		return classUnknown
	}
}

// Apply replays m's operations against targetRoot, which must match the
// "old" tree the manifest was planned from.
func Apply(ctx context.Context, targetRoot string, m *manifest.PatchManifest, opts Options) error {
	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	mode := opts.FileMode
	if mode == 0 {
		mode = DefaultFileMode
	}

	for i := 0; i < len(m.Operations); {
		class := classify(m.Operations[i].Tag)
		j := i
		for j < len(m.Operations) && classify(m.Operations[j].Tag) == class {
			j++
		}
		group := m.Operations[i:j]

		var err error
		switch class {
		case classCreateDir:
			err = applyCreateDirs(targetRoot, group)
		case classFileOp:
			err = applyFileOps(ctx, targetRoot, group, mode, maxWorkers)
		case classDeleteFile:
			err = applyDeleteFiles(ctx, targetRoot, group, maxWorkers)
		case classDeleteDir:
			err = applyDeleteDirs(targetRoot, group)
		default:
			err = fmt.Errorf("%w: unknown operation tag %d", perr.ErrCorrupt, m.Operations[i].Tag)
		}
		if err != nil {
			return err
		}
		i = j
	}
	return nil
}

func applyCreateDirs(targetRoot string, ops []manifest.Op) error {
	for _, op := range ops {
		abs := filepath.Join(targetRoot, filepath.FromSlash(op.Path))
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return fmt.Errorf("%w: create directory %q: %v", perr.ErrIO, op.Path, err)
		}
	}
	return nil
}

func applyFileOps(ctx context.Context, targetRoot string, ops []manifest.Op, mode os.FileMode, maxWorkers int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for _, op := range ops {
		op := op
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			switch op.Tag {
			case manifest.OpAddFile:
				return applyAddFile(targetRoot, op, mode)
			case manifest.OpModifyFile:
				return applyModifyFile(targetRoot, op, mode)
			default:
				return fmt.Errorf("%w: unexpected tag %d in file-op group", perr.ErrCorrupt, op.Tag)
			}
		})
	}
	return g.Wait()
}

func applyAddFile(targetRoot string, op manifest.Op, mode os.FileMode) error {
	if got := hashing.Sum(op.Content); got != op.NewHash {
		return fmt.Errorf("%w: %q: manifest content does not match its own new_hash", perr.ErrCorrupt, op.Path)
	}
	abs := filepath.Join(targetRoot, filepath.FromSlash(op.Path))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("%w: create parent of %q: %v", perr.ErrIO, op.Path, err)
	}
	if err := mmapfile.WriteFileDurable(abs, op.Content, mode); err != nil {
		return fmt.Errorf("%w: write %q: %v", perr.ErrIO, op.Path, err)
	}
	return verifyWritten(abs, op.Path, op.NewHash)
}

func applyModifyFile(targetRoot string, op manifest.Op, mode os.FileMode) error {
	abs := filepath.Join(targetRoot, filepath.FromSlash(op.Path))

	m, err := mmapfile.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("%w: read %q: %v", perr.ErrIO, op.Path, err)
	}
	old := append([]byte(nil), m.Bytes()...)
	m.Close()

	if hashing.Sum(old) != op.ExpectedOldHash {
		return fmt.Errorf("%w: %q does not match the patch's expected prior content", perr.ErrStaleTarget, op.Path)
	}

	newContent, err := delta.Apply(old, op.Delta)
	if err != nil {
		return fmt.Errorf("%w: reconstruct %q: %v", perr.ErrCorrupt, op.Path, err)
	}
	if got := hashing.Sum(newContent); got != op.NewHash {
		return fmt.Errorf("%w: %q: reconstructed content does not match new_hash", perr.ErrHashMismatch, op.Path)
	}

	if err := mmapfile.WriteFileDurable(abs, newContent, mode); err != nil {
		return fmt.Errorf("%w: write %q: %v", perr.ErrIO, op.Path, err)
	}
	return verifyWritten(abs, op.Path, op.NewHash)
}

// verifyWritten re-reads abs from disk and confirms its hash matches want,
// catching any corruption introduced between the durable write and the
// rename landing, per spec.md §4.E's post-write verification step.
func verifyWritten(abs, relPath string, want hashing.Hash) error {
	m, err := mmapfile.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("%w: re-read %q after write: %v", perr.ErrIO, relPath, err)
	}
	defer m.Close()
	if got := hashing.Sum(m.Bytes()); got != want {
		return fmt.Errorf("%w: %q after write", perr.ErrHashMismatch, relPath)
	}
	return nil
}

func applyDeleteFiles(ctx context.Context, targetRoot string, ops []manifest.Op, maxWorkers int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for _, op := range ops {
		op := op
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			abs := filepath.Join(targetRoot, filepath.FromSlash(op.Path))
			if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("%w: delete %q: %v", perr.ErrIO, op.Path, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// applyDeleteDirs removes directories sequentially, in the deepest-first
// order the planner already established, failing with ErrDirNotEmpty
// rather than recursively deleting anything the manifest didn't account
// for.
func applyDeleteDirs(targetRoot string, ops []manifest.Op) error {
	for _, op := range ops {
		abs := filepath.Join(targetRoot, filepath.FromSlash(op.Path))

		entries, err := os.ReadDir(abs)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("%w: read directory %q: %v", perr.ErrIO, op.Path, err)
		}
		if len(entries) > 0 {
			return fmt.Errorf("%w: %q", perr.ErrDirNotEmpty, op.Path)
		}
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: remove directory %q: %v", perr.ErrIO, op.Path, err)
		}
	}
	return nil
}
