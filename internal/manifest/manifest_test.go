package manifest

import (
	"bytes"
	"errors"
	"testing"

	"github.com/lucho00cuba/patcher/internal/delta"
	"github.com/lucho00cuba/patcher/internal/hashing"
	"github.com/lucho00cuba/patcher/internal/perr"
)

func roundTripManifest(t *testing.T, m *PatchManifest) *PatchManifest {
	t.Helper()
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return got
}

func TestEncodeDecodeEmptyManifest(t *testing.T) {
	m := New(nil)
	got := roundTripManifest(t, m)
	if got.FormatVersion != FormatVersion {
		t.Errorf("FormatVersion = %d, want %d", got.FormatVersion, FormatVersion)
	}
	if len(got.Operations) != 0 {
		t.Errorf("expected no operations, got %d", len(got.Operations))
	}
}

func TestEncodeDecodeAllOpKinds(t *testing.T) {
	content := []byte("hello, new file")
	oldHash := hashing.Sum([]byte("previous content"))
	newHash := hashing.Sum([]byte("updated content"))

	ops := []Op{
		CreateDir("assets"),
		CreateDir("assets/img"),
		AddFile("assets/new.txt", content),
		ModifyFile("src/main.go", []delta.Instruction{
			{Kind: delta.OpCopy, SrcOffset: 0, Length: 4096},
			{Kind: delta.OpInsert, Data: []byte("patched bytes")},
		}, oldHash, newHash),
		DeleteFile("old/unused.txt"),
		DeleteDir("old"),
	}

	got := roundTripManifest(t, New(ops))

	if len(got.Operations) != len(ops) {
		t.Fatalf("got %d operations, want %d", len(got.Operations), len(ops))
	}

	for i, want := range ops {
		gotOp := got.Operations[i]
		if gotOp.Tag != want.Tag {
			t.Errorf("op %d: tag = %d, want %d", i, gotOp.Tag, want.Tag)
		}
		if gotOp.Path != want.Path {
			t.Errorf("op %d: path = %q, want %q", i, gotOp.Path, want.Path)
		}
	}

	addOp := got.Operations[2]
	if !bytes.Equal(addOp.Content, content) {
		t.Errorf("AddFile content = %q, want %q", addOp.Content, content)
	}
	if addOp.NewHash != hashing.Sum(content) {
		t.Errorf("AddFile new_hash mismatch")
	}

	modOp := got.Operations[3]
	if modOp.ExpectedOldHash != oldHash {
		t.Errorf("ModifyFile expected_old_hash mismatch")
	}
	if modOp.NewHash != newHash {
		t.Errorf("ModifyFile new_hash mismatch")
	}
	if len(modOp.Delta) != 2 {
		t.Fatalf("ModifyFile delta length = %d, want 2", len(modOp.Delta))
	}
	if modOp.Delta[0].Kind != delta.OpCopy || modOp.Delta[0].Length != 4096 {
		t.Errorf("ModifyFile delta[0] = %+v", modOp.Delta[0])
	}
	if modOp.Delta[1].Kind != delta.OpInsert || string(modOp.Delta[1].Data) != "patched bytes" {
		t.Errorf("ModifyFile delta[1] = %+v", modOp.Delta[1])
	}
}

func TestEncodeDecodeEmptyContentAndDelta(t *testing.T) {
	ops := []Op{
		AddFile("empty.txt", nil),
		ModifyFile("noop.bin", nil, hashing.Hash{}, hashing.Hash{}),
	}
	got := roundTripManifest(t, New(ops))
	if len(got.Operations[0].Content) != 0 {
		t.Errorf("expected empty content to round-trip as empty, got %d bytes", len(got.Operations[0].Content))
	}
	if len(got.Operations[1].Delta) != 0 {
		t.Errorf("expected empty delta to round-trip as empty, got %d instructions", len(got.Operations[1].Delta))
	}
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, New(nil)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	raw := buf.Bytes()
	bad := make([]byte, len(raw))
	copy(bad, raw)
	bad[0] = 0xFF // corrupt the low byte of the little-endian format_version

	_, err := Decode(bytes.NewReader(bad))
	if err == nil {
		t.Fatal("expected an error for an unsupported format version")
	}
	if !errors.Is(err, perr.ErrUnsupportedVersion) {
		t.Errorf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, New([]Op{AddFile("a.txt", []byte("content"))})); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()-5]

	_, err := Decode(bytes.NewReader(truncated))
	if err == nil {
		t.Fatal("expected an error for truncated input")
	}
	if !errors.Is(err, perr.ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestDecodeRejectsUnknownOpTag(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, New([]Op{CreateDir("x")})); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	raw := buf.Bytes()
	// byte 12 is the tag of the first (only) operation: u32 version + u64 count.
	const tagOffset = 4 + 8
	raw[tagOffset] = 0xEE

	_, err := Decode(bytes.NewReader(raw))
	if err == nil {
		t.Fatal("expected an error for an unknown operation tag")
	}
	if !errors.Is(err, perr.ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}
