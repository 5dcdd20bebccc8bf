//go:build unix

package mmapfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mapFile memory-maps the full content of path, sized at length, using
// mmap(2) via golang.org/x/sys/unix.
func mapFile(path string, length int64) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	data, err := unix.Mmap(int(f.Fd()), 0, int(length), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %q: %w", path, err)
	}

	return &Mapping{
		data:    data,
		mmapped: true,
		closer: func() error {
			return unix.Munmap(data)
		},
	}, nil
}
