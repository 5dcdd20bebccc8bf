// Package mmapfile provides the file I/O primitives the Rolling-Hash Delta
// Engine and Apply Executor need: reading a file's bytes (memory-mapped
// above a size threshold, buffered below it) and writing a file's bytes
// durably (temp file, fsync, atomic rename). Mapping is done through
// golang.org/x/sys/unix on POSIX platforms; other platforms fall back to a
// plain read, matching the teacher's buffered-read style for hashFile.
package mmapfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// MmapThreshold is the file size above which ReadFile memory-maps instead
// of reading into a heap buffer, per spec.md §4.A's reference value.
const MmapThreshold = 4 * 1024 * 1024

// Mapping is an open view of a file's bytes, either memory-mapped or held
// in a heap buffer. Callers must call Close when done.
type Mapping struct {
	data    []byte
	mmapped bool
	closer  func() error
}

// Bytes returns the mapped content. The slice is valid until Close is
// called; the caller must not retain it past that point.
func (m *Mapping) Bytes() []byte { return m.data }

// Close releases the mapping's resources.
func (m *Mapping) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}

// ReadFile opens path and returns a Mapping over its full content. Files at
// or above MmapThreshold are memory-mapped; smaller files are read into a
// heap buffer. The caller owns the returned Mapping and must Close it.
func ReadFile(path string) (*Mapping, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", path, err)
	}

	if info.Size() == 0 {
		return &Mapping{data: nil}, nil
	}

	if info.Size() >= MmapThreshold {
		m, err := mapFile(path, info.Size())
		if err == nil {
			return m, nil
		}
		// Fall through to a buffered read if mapping failed (e.g. on a
		// filesystem that does not support mmap for this file).
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	return &Mapping{data: data}, nil
}

// WriteFileDurable writes data to a temp file in dir (the target's parent
// directory), fsyncs it, and atomically renames it to target. This is the
// write path used for every AddFile and ModifyFile apply in spec.md §4.E:
// each file update is atomic at the filesystem level via temp-file-plus-rename.
func WriteFileDurable(target string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".patcher-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %q: %w", dir, err)
	}
	tmpName := tmp.Name()

	// Best-effort cleanup: if anything below fails before the rename, the
	// temp file is unlinked rather than left behind (spec.md §5
	// cancellation/failure cleanup contract).
	succeeded := false
	defer func() {
		if !succeeded {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file %q: %w", tmpName, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file %q: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fsync temp file %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file %q: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("rename %q to %q: %w", tmpName, target, err)
	}
	succeeded = true
	return nil
}
