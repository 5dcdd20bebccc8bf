// Package scan implements the Tree Scanner (spec.md §4.A): it walks a
// directory and produces a canonical, sorted list of (relpath, kind, size,
// hash) entries. Hashing is parallelized across files through an
// errgroup.Group bounded by a worker count, following the same "semaphore
// around heavy hashing" shape as the teacher's merkle.Engine, generalized
// from a single combined root hash to per-path entries.
package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/lucho00cuba/patcher/internal/hashing"
	"github.com/lucho00cuba/patcher/internal/ignore"
	"github.com/lucho00cuba/patcher/internal/logger"
	"github.com/lucho00cuba/patcher/internal/mmapfile"
)

// Kind distinguishes a directory entry from a file entry in a scan.
type Kind int

const (
	// Dir marks a directory entry.
	Dir Kind = iota
	// File marks a regular file entry.
	File
)

// String implements fmt.Stringer for Kind, mainly for log messages.
func (k Kind) String() string {
	if k == Dir {
		return "dir"
	}
	return "file"
}

// Entry is one node of a tree scan: a relative path plus its kind, and for
// files its size and BLAKE3 content hash.
type Entry struct {
	RelPath string
	Kind    Kind
	Size    int64
	Hash    hashing.Hash
}

// DefaultMaxWorkers bounds the number of files hashed concurrently, mirroring
// the teacher's merkle.DefaultMaxWorkers.
const DefaultMaxWorkers = 8

// Options configures a Scan call.
type Options struct {
	// MaxWorkers bounds file-hashing concurrency. Zero or negative selects
	// DefaultMaxWorkers.
	MaxWorkers int
	// Matcher, if non-nil, excludes matching paths from the scan entirely
	// (no operation is emitted for an excluded path).
	Matcher ignore.Matcher
}

// Scan walks root and returns its entries sorted lexicographically by
// relpath, using default options (no exclusions, DefaultMaxWorkers).
func Scan(ctx context.Context, root string) ([]Entry, error) {
	return ScanWithOptions(ctx, root, Options{})
}

// ScanWithOptions walks root with the given options. Fails with an error if
// root is absent, unreadable, or not a directory: per spec.md §4.A, an
// unreadable entry fails the whole scan rather than silently omitting it.
func ScanWithOptions(ctx context.Context, root string, opts Options) ([]Entry, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", root)
	}

	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	if maxWorkers > runtime.NumCPU()*4 {
		maxWorkers = runtime.NumCPU() * 4
	}

	w := &walker{
		root:    absRoot,
		matcher: opts.Matcher,
	}

	entries, err := w.collect()
	if err != nil {
		return nil, err
	}

	// Hash files concurrently; directories need no content hash.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for i := range entries {
		i := i
		if entries[i].Kind != File {
			continue
		}
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			abs := filepath.Join(w.root, filepath.FromSlash(entries[i].RelPath))
			h, size, err := hashFileAt(abs)
			if err != nil {
				return fmt.Errorf("hash %q: %w", entries[i].RelPath, err)
			}
			entries[i].Hash = h
			entries[i].Size = size
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RelPath < entries[j].RelPath
	})

	return entries, nil
}

// hashFileAt hashes path, memory-mapping it at or above
// mmapfile.MmapThreshold and reading it into a heap buffer below it, per
// spec.md §4.A/§5.
func hashFileAt(path string) (hashing.Hash, int64, error) {
	m, err := mmapfile.ReadFile(path)
	if err != nil {
		return hashing.Hash{}, 0, err
	}
	defer m.Close()

	data := m.Bytes()
	return hashing.Sum(data), int64(len(data)), nil
}

// walker performs the recursive directory traversal that produces the
// (unhashed) entry list, applying exclusion patterns and skipping symlinks
// (spec.md §9's chosen policy: skip with warning).
type walker struct {
	root    string
	matcher ignore.Matcher
	entries []Entry
}

func (w *walker) collect() ([]Entry, error) {
	if err := w.walkDir(""); err != nil {
		return nil, err
	}
	return w.entries, nil
}

// walkDir recursively visits the directory at root+relDir, appending an
// Entry for every descendant. relDir is "" for the root itself (whose own
// entry is never emitted, per spec.md §3's scan-entry definition).
func (w *walker) walkDir(relDir string) error {
	absDir := w.root
	if relDir != "" {
		absDir = filepath.Join(w.root, filepath.FromSlash(relDir))
	}

	dirEntries, err := os.ReadDir(absDir)
	if err != nil {
		return fmt.Errorf("read directory %q: %w", absDir, err)
	}

	sort.Slice(dirEntries, func(i, j int) bool {
		return dirEntries[i].Name() < dirEntries[j].Name()
	})

	for _, de := range dirEntries {
		rel := de.Name()
		if relDir != "" {
			rel = relDir + "/" + de.Name()
		}
		abs := filepath.Join(w.root, filepath.FromSlash(rel))

		info, err := os.Lstat(abs)
		if err != nil {
			return fmt.Errorf("lstat %q: %w", abs, err)
		}

		if info.Mode()&os.ModeSymlink != 0 {
			logger.Warn("skipping symlink", "path", rel)
			continue
		}

		isDir := info.IsDir()
		if w.matcher != nil && w.matcher.Match(rel, isDir) {
			logger.Debug("excluding path", "path", rel)
			continue
		}

		if info.Mode()&(os.ModeNamedPipe|os.ModeSocket|os.ModeDevice) != 0 {
			logger.Debug("skipping special file", "path", rel)
			continue
		}

		if isDir {
			w.entries = append(w.entries, Entry{RelPath: rel, Kind: Dir})
			if err := w.walkDir(rel); err != nil {
				return err
			}
			continue
		}

		w.entries = append(w.entries, Entry{RelPath: rel, Kind: File, Size: info.Size()})
	}

	return nil
}
