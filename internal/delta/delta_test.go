package delta

import (
	"bytes"
	"math/rand"
	"testing"
)

func roundTrip(t *testing.T, old, want []byte, blockSize int) []Instruction {
	t.Helper()
	instrs, err := Diff(old, want, blockSize)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	got, err := Apply(old, instrs)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(want))
	}
	return instrs
}

func TestDiffEmptyNew(t *testing.T) {
	instrs, err := Diff([]byte("old content"), nil, DefaultBlockSize)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(instrs) != 0 {
		t.Fatalf("expected empty instruction sequence for empty new, got %d", len(instrs))
	}
}

func TestDiffEmptyOld(t *testing.T) {
	newBytes := []byte("brand new content")
	instrs := roundTrip(t, nil, newBytes, DefaultBlockSize)
	if len(instrs) != 1 || instrs[0].Kind != OpInsert {
		t.Fatalf("expected a single Insert for empty old, got %+v", instrs)
	}
}

func TestDiffNewShorterThanBlock(t *testing.T) {
	old := bytes.Repeat([]byte{0xAA}, 10000)
	newBytes := []byte("short")
	instrs := roundTrip(t, old, newBytes, DefaultBlockSize)
	if len(instrs) != 1 || instrs[0].Kind != OpInsert {
		t.Fatalf("expected a single Insert when new is shorter than block size, got %+v", instrs)
	}
}

func TestDiffLargeSharedPrefix(t *testing.T) {
	// Mirrors spec.md §8 scenario 2: old = A*8192+X, new = A*8192+Y.
	old := append(bytes.Repeat([]byte{'A'}, 8192), 'X')
	newBytes := append(bytes.Repeat([]byte{'A'}, 8192), 'Y')

	instrs := roundTrip(t, old, newBytes, 4096)

	var literalBytes int
	var copyCount int
	for _, ins := range instrs {
		if ins.Kind == OpInsert {
			literalBytes += len(ins.Data)
		} else {
			copyCount++
		}
	}
	if literalBytes != 1 {
		t.Errorf("expected exactly 1 literal byte, got %d", literalBytes)
	}
	if copyCount == 0 {
		t.Errorf("expected at least one Copy instruction")
	}
}

func TestDiffIdenticalContent(t *testing.T) {
	data := bytes.Repeat([]byte("identical-block-"), 1000)
	instrs := roundTrip(t, data, data, 4096)
	for _, ins := range instrs {
		if ins.Kind == OpInsert {
			t.Errorf("identical content should require no literal bytes, got Insert of %d bytes", len(ins.Data))
		}
	}
}

func TestDiffMiddleByteChange(t *testing.T) {
	// Mirrors spec.md §8 scenario 6, scaled down for test speed.
	old := make([]byte, 200*1024)
	rng := rand.New(rand.NewSource(1))
	rng.Read(old)
	newBytes := append([]byte(nil), old...)
	mid := len(newBytes) / 2
	newBytes[mid] ^= 0xFF

	instrs := roundTrip(t, old, newBytes, DefaultBlockSize)

	var literalBytes int
	for _, ins := range instrs {
		if ins.Kind == OpInsert {
			literalBytes += len(ins.Data)
		}
	}
	if literalBytes > 2*DefaultBlockSize+8 {
		t.Errorf("delta literal size %d exceeds ~2*blockSize bound", literalBytes)
	}
}

func TestDiffInsertionShiftsContent(t *testing.T) {
	old := bytes.Repeat([]byte("0123456789"), 2000)
	newBytes := append([]byte("INSERTED-PREFIX-"), old...)
	roundTrip(t, old, newBytes, 256)
}

func TestDiffTruncation(t *testing.T) {
	old := bytes.Repeat([]byte("x"), 50000)
	newBytes := old[:10000]
	roundTrip(t, old, newBytes, DefaultBlockSize)
}

func TestApplyRejectsOutOfRangeCopy(t *testing.T) {
	_, err := Apply([]byte("short"), []Instruction{{Kind: OpCopy, SrcOffset: 0, Length: 100}})
	if err == nil {
		t.Fatal("expected an error for an out-of-range Copy instruction")
	}
}

func TestMergeInstructionsCombinesAdjacentCopies(t *testing.T) {
	in := []Instruction{
		{Kind: OpCopy, SrcOffset: 0, Length: 4096},
		{Kind: OpCopy, SrcOffset: 4096, Length: 4096},
	}
	out := mergeInstructions(in)
	if len(out) != 1 {
		t.Fatalf("expected adjacent copies to merge into one, got %d", len(out))
	}
	if out[0].SrcOffset != 0 || out[0].Length != 8192 {
		t.Errorf("merged copy = %+v, want offset=0 length=8192", out[0])
	}
}

func TestMergeInstructionsCombinesAdjacentInserts(t *testing.T) {
	in := []Instruction{
		{Kind: OpInsert, Data: []byte("ab")},
		{Kind: OpInsert, Data: []byte("cd")},
	}
	out := mergeInstructions(in)
	if len(out) != 1 || string(out[0].Data) != "abcd" {
		t.Fatalf("expected merged insert \"abcd\", got %+v", out)
	}
}

func TestDiffDeterministic(t *testing.T) {
	old := bytes.Repeat([]byte("deterministic-content-"), 500)
	newBytes := append(bytes.Repeat([]byte("deterministic-content-"), 300), []byte("tail")...)

	a, err := Diff(old, newBytes, DefaultBlockSize)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	b, err := Diff(old, newBytes, DefaultBlockSize)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("non-deterministic instruction count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Kind != b[i].Kind || a[i].SrcOffset != b[i].SrcOffset || a[i].Length != b[i].Length || !bytes.Equal(a[i].Data, b[i].Data) {
			t.Fatalf("instruction %d differs across runs", i)
		}
	}
}
