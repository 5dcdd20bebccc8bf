// Package plan implements the Diff Planner (spec.md §4.C): given two tree
// scans, it computes the ordered PatchManifest that transforms old into
// new. Per-file delta/hash work is dispatched across an errgroup.Group for
// throughput, the same pattern scan.ScanWithOptions uses for hashing, but
// merged back into the manifest in a fixed sort order rather than
// completion order so the resulting manifest is deterministic regardless
// of scheduling.
package plan

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lucho00cuba/patcher/internal/delta"
	"github.com/lucho00cuba/patcher/internal/hashing"
	"github.com/lucho00cuba/patcher/internal/manifest"
	"github.com/lucho00cuba/patcher/internal/mmapfile"
	"github.com/lucho00cuba/patcher/internal/scan"
)

// Options configures a Build call.
type Options struct {
	// BlockSize is the delta block size passed to delta.Diff. Zero or
	// negative selects delta.DefaultBlockSize.
	BlockSize int
	// MaxWorkers bounds concurrent per-file delta/hash work. Zero or
	// negative selects scan.DefaultMaxWorkers.
	MaxWorkers int
}

// Build computes the ordered PatchManifest that turns oldRoot's tree
// (described by oldEntries) into newRoot's tree (described by newEntries).
// Operations are emitted in the fixed group order from spec.md §4.C:
// CreateDir (parents before children), AddFile+ModifyFile (by path),
// DeleteFile (by path), DeleteDir (children before parents).
//
// A type change (file<->dir at the same path) is not routed through the
// general four groups independently, since that can reorder the pair
// relative to each other (e.g. an AddFile for the new kind landing before
// the DeleteDir for the old kind, which the Apply Executor cannot satisfy:
// a rename onto a path that is still an existing directory, or MkdirAll
// onto a path that is still an existing file, both fail). Instead each
// type-change path's old-kind delete is merged into the directory-ordered
// list for its own new/old kind, immediately adjacent to its paired
// create, so the couplet keeps delete-before-create while still
// respecting parent-before-child ordering against any other directories
// being created or removed in the same patch.
func Build(ctx context.Context, oldRoot, newRoot string, oldEntries, newEntries []scan.Entry, opts Options) (*manifest.PatchManifest, error) {
	blockSize := opts.BlockSize
	if blockSize <= 0 {
		blockSize = delta.DefaultBlockSize
	}
	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = scan.DefaultMaxWorkers
	}

	oldByPath := indexByPath(oldEntries)
	newByPath := indexByPath(newEntries)

	var createDirs, deleteDirs, deleteFiles []string
	var tasks []fileTask

	// becomesDir[p]: p was a file, is now a dir; delete the file immediately
	// before creating the dir. becomesFile[p]: p was a dir, is now a file;
	// add the file immediately after deleting the dir.
	becomesDir := make(map[string]bool)
	becomesFile := make(map[string]bool)

	for _, p := range unionPaths(oldEntries, newEntries) {
		oldEntry, inOld := oldByPath[p]
		newEntry, inNew := newByPath[p]

		switch {
		case inNew && !inOld:
			if newEntry.Kind == scan.Dir {
				createDirs = append(createDirs, p)
			} else {
				tasks = append(tasks, fileTask{path: p, isAdd: true})
			}
		case inOld && !inNew:
			if oldEntry.Kind == scan.Dir {
				deleteDirs = append(deleteDirs, p)
			} else {
				deleteFiles = append(deleteFiles, p)
			}
		case inOld && inNew && oldEntry.Kind != newEntry.Kind:
			// Type change (file<->dir): delete the old node and create the new
			// one, per spec.md §4.C's delete-then-create policy. The old-kind
			// half is merged into whichever directory-ordered list matches the
			// *new* kind, so the couplet sorts alongside (and keeps its
			// adjacency with) its own paired create/delete below.
			if newEntry.Kind == scan.Dir {
				createDirs = append(createDirs, p)
				becomesDir[p] = true
			} else {
				deleteDirs = append(deleteDirs, p)
				becomesFile[p] = true
			}
		case inOld && inNew && oldEntry.Kind == scan.File && oldEntry.Hash != newEntry.Hash:
			tasks = append(tasks, fileTask{path: p, isAdd: false})
		}
		// Identical directories and identical-hash files require no operation.
	}

	sort.Slice(createDirs, func(i, j int) bool { return lessDepthThenPath(createDirs[i], createDirs[j]) })
	sort.Strings(deleteFiles)
	sort.Slice(deleteDirs, func(i, j int) bool { return lessDepthThenPath(deleteDirs[j], deleteDirs[i]) })
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].path < tasks[j].path })

	fileOps, err := buildFileOps(ctx, oldRoot, newRoot, tasks, oldByPath, newByPath, blockSize, maxWorkers)
	if err != nil {
		return nil, err
	}

	ops := make([]manifest.Op, 0, len(createDirs)+len(fileOps)+len(deleteFiles)+len(deleteDirs)+len(becomesDir)+len(becomesFile))
	for _, p := range createDirs {
		if becomesDir[p] {
			ops = append(ops, manifest.DeleteFile(p))
		}
		ops = append(ops, manifest.CreateDir(p))
	}
	ops = append(ops, fileOps...)
	for _, p := range deleteFiles {
		ops = append(ops, manifest.DeleteFile(p))
	}
	for _, p := range deleteDirs {
		ops = append(ops, manifest.DeleteDir(p))
		if becomesFile[p] {
			content, err := readEntryBytes(newRoot, p)
			if err != nil {
				return nil, fmt.Errorf("plan type-change add %q: %w", p, err)
			}
			ops = append(ops, manifest.AddFile(p, content))
		}
	}

	return manifest.New(ops), nil
}

// fileTask is one pending AddFile or ModifyFile computation.
type fileTask struct {
	path  string
	isAdd bool
}

// buildFileOps computes the manifest.Op for each task concurrently, bounded
// by maxWorkers, and returns them in tasks' order (which the caller has
// already sorted by path) regardless of which goroutine finishes first.
func buildFileOps(ctx context.Context, oldRoot, newRoot string, tasks []fileTask, oldByPath, newByPath map[string]scan.Entry, blockSize, maxWorkers int) ([]manifest.Op, error) {
	results := make([]manifest.Op, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			if task.isAdd {
				op, err := buildAddOp(newRoot, task.path)
				if err != nil {
					return fmt.Errorf("plan add %q: %w", task.path, err)
				}
				results[i] = op
				return nil
			}
			op, err := buildModifyOp(oldRoot, newRoot, task.path, oldByPath[task.path], newByPath[task.path], blockSize)
			if err != nil {
				return fmt.Errorf("plan modify %q: %w", task.path, err)
			}
			results[i] = op
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func buildAddOp(newRoot, relPath string) (manifest.Op, error) {
	content, err := readEntryBytes(newRoot, relPath)
	if err != nil {
		return manifest.Op{}, err
	}
	return manifest.AddFile(relPath, content), nil
}

func buildModifyOp(oldRoot, newRoot, relPath string, oldEntry, newEntry scan.Entry, blockSize int) (manifest.Op, error) {
	oldContent, err := readEntryBytes(oldRoot, relPath)
	if err != nil {
		return manifest.Op{}, err
	}
	newContent, err := readEntryBytes(newRoot, relPath)
	if err != nil {
		return manifest.Op{}, err
	}

	instrs, err := delta.Diff(oldContent, newContent, blockSize)
	if err != nil {
		return manifest.Op{}, fmt.Errorf("compute delta: %w", err)
	}

	oldHash := oldEntry.Hash
	if oldHash.IsZero() {
		oldHash = hashing.Sum(oldContent)
	}
	newHash := newEntry.Hash
	if newHash.IsZero() {
		newHash = hashing.Sum(newContent)
	}

	return manifest.ModifyFile(relPath, instrs, oldHash, newHash), nil
}

func readEntryBytes(root, relPath string) ([]byte, error) {
	m, err := mmapfile.ReadFile(filepath.Join(root, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, err
	}
	defer m.Close()
	data := m.Bytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func indexByPath(entries []scan.Entry) map[string]scan.Entry {
	m := make(map[string]scan.Entry, len(entries))
	for _, e := range entries {
		m[e.RelPath] = e
	}
	return m
}

func unionPaths(oldEntries, newEntries []scan.Entry) []string {
	seen := make(map[string]struct{}, len(oldEntries)+len(newEntries))
	for _, e := range oldEntries {
		seen[e.RelPath] = struct{}{}
	}
	for _, e := range newEntries {
		seen[e.RelPath] = struct{}{}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func depth(path string) int {
	return strings.Count(path, "/")
}

func lessDepthThenPath(a, b string) bool {
	da, db := depth(a), depth(b)
	if da != db {
		return da < db
	}
	return a < b
}
