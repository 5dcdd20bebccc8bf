// Package container implements the Container Codec (spec.md §4.D): the
// outer framing that wraps an encoded PatchManifest in a magic-tagged,
// zstd-compressed patch file. Grounded on Sky-ey-HexDiff's pkg/patch
// header-peek pattern (magic bytes checked before touching the payload) and
// on the teacher corpus's use of klauspost/compress for the compression
// layer itself rather than a hand-rolled codec.
package container

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/lucho00cuba/patcher/internal/manifest"
	"github.com/lucho00cuba/patcher/internal/perr"
)

// Magic is the 8-byte identifier every patch container begins with, per
// spec.md §6.
const Magic = "PATCHV01"

// maxDecompressedSize bounds zstd decoder memory use, guarding against a
// decompression-bomb patch file claiming an unbounded output size.
const maxDecompressedSize = 4 << 30 // 4 GiB

// Encode writes m as a framed, compressed patch container to w: the 8-byte
// magic, followed by a zstd frame containing m's canonical binary encoding.
func Encode(w io.Writer, m *manifest.PatchManifest) error {
	if _, err := io.WriteString(w, Magic); err != nil {
		return fmt.Errorf("%w: write magic: %v", perr.ErrIO, err)
	}

	var plain bytes.Buffer
	if err := manifest.Encode(&plain, m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("%w: create zstd encoder: %v", perr.ErrIO, err)
	}
	if _, err := enc.Write(plain.Bytes()); err != nil {
		enc.Close()
		return fmt.Errorf("%w: write compressed payload: %v", perr.ErrIO, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("%w: flush compressed payload: %v", perr.ErrIO, err)
	}
	return nil
}

// Decode reads a framed patch container from r and returns its manifest.
// It validates the magic before attempting decompression, and rejects a
// mismatched magic with perr.ErrBadMagic rather than handing malformed
// bytes to the zstd decoder.
func Decode(r io.Reader) (*manifest.PatchManifest, error) {
	magicBuf := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magicBuf); err != nil {
		return nil, fmt.Errorf("%w: read magic: %v", perr.ErrBadMagic, err)
	}
	if string(magicBuf) != Magic {
		return nil, fmt.Errorf("%w: got %q", perr.ErrBadMagic, magicBuf)
	}

	dec, err := zstd.NewReader(r, zstd.WithDecoderMaxMemory(maxDecompressedSize))
	if err != nil {
		return nil, fmt.Errorf("%w: create zstd decoder: %v", perr.ErrCorrupt, err)
	}
	defer dec.Close()

	m, err := manifest.Decode(dec)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Peek reports whether r begins with the patch container magic, without
// decompressing or decoding the rest of the stream. Grounded on
// Sky-ey-HexDiff's IsDirPatch/GetDirPatchInfo header-peek pattern; used by
// the inspect command to fail fast on a non-patch file.
func Peek(r io.Reader) (bool, error) {
	magicBuf := make([]byte, len(Magic))
	n, err := io.ReadFull(r, magicBuf)
	if err != nil && n == 0 {
		return false, nil
	}
	if err != nil && err != io.ErrUnexpectedEOF {
		return false, fmt.Errorf("%w: %v", perr.ErrIO, err)
	}
	return string(magicBuf[:n]) == Magic, nil
}
