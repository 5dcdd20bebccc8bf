//go:build !unix

package mmapfile

import "fmt"

// mapFile is unavailable on non-POSIX platforms; ReadFile falls back to a
// buffered read whenever this returns an error.
func mapFile(path string, length int64) (*Mapping, error) {
	return nil, fmt.Errorf("mmap not supported on this platform")
}
