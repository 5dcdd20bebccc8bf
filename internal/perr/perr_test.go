package perr

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"hash mismatch", fmt.Errorf("write failed: %w", ErrHashMismatch), 4},
		{"stale target", fmt.Errorf("check failed: %w", ErrStaleTarget), 4},
		{"bad magic", fmt.Errorf("decode: %w", ErrBadMagic), 3},
		{"unsupported version", ErrUnsupportedVersion, 3},
		{"corrupt", fmt.Errorf("frame: %w", ErrCorrupt), 3},
		{"io", fmt.Errorf("open: %w", ErrIO), 2},
		{"dir not empty", ErrDirNotEmpty, 2},
		{"cancelled", ErrCancelled, 2},
		{"unknown", errors.New("boom"), 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExitCode(tc.err); got != tc.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}
