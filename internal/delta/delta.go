// Package delta implements the Rolling-Hash Delta Engine (spec.md §4.B): an
// rsync-style block-matching diff between two byte sequences, emitting a
// compact sequence of Copy/Insert instructions. The shape — a block
// signature table keyed by a rolling weak hash, confirmed by a strong hash,
// with a pending-literal accumulator that flushes on match — is grounded on
// the rsync implementations in the reference corpus (notably the kitty
// tools/rsync package and rdiff), adapted to use BLAKE3 as the strong hash
// per spec.md's explicit requirement and a block size fixed at the call
// site rather than negotiated over a wire protocol.
package delta

import (
	"fmt"

	"github.com/lucho00cuba/patcher/internal/hashing"
)

// DefaultBlockSize is the reference block size B from spec.md §4.B.
const DefaultBlockSize = 4096

// OpKind tags an Instruction's variant.
type OpKind uint8

const (
	// OpCopy references a byte range of the old content.
	OpCopy OpKind = iota
	// OpInsert carries literal new bytes.
	OpInsert
)

// Instruction is one step of reconstructing new content from old content.
// For OpCopy, SrcOffset and Length describe a byte range of the old
// content; for OpInsert, Data carries the literal bytes to append.
type Instruction struct {
	Kind      OpKind
	SrcOffset uint64
	Length    uint64
	Data      []byte
}

// blockSig is one entry of the old content's block signature table.
type blockSig struct {
	index  int
	strong hashing.Hash
}

// Diff computes the instruction sequence that reconstructs new from old,
// using block size B. Diff(old, apply) round-trips for every input,
// including empty old or new, per spec.md §4.B/§8 (P2).
func Diff(old, newBytes []byte, blockSize int) ([]Instruction, error) {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	if len(newBytes) == 0 {
		return nil, nil
	}
	if len(old) == 0 || len(newBytes) < blockSize {
		return []Instruction{insertInstr(newBytes)}, nil
	}

	table := buildSignatureTable(old, blockSize)

	var instrs []Instruction
	literalStart := 0
	pos := 0
	rh := newRollingHash(newBytes[0:blockSize])

	for pos+blockSize <= len(newBytes) {
		window := newBytes[pos : pos+blockSize]

		if idx, ok := findMatch(table, rh.sum(), window); ok {
			if literalStart < pos {
				instrs = append(instrs, insertInstr(newBytes[literalStart:pos]))
			}

			start := idx * blockSize
			length := blockSize
			if start+length > len(old) {
				length = len(old) - start
			}
			instrs = append(instrs, Instruction{
				Kind:      OpCopy,
				SrcOffset: uint64(start),
				Length:    uint64(length),
			})

			pos += blockSize
			literalStart = pos
			if pos+blockSize <= len(newBytes) {
				rh = newRollingHash(newBytes[pos : pos+blockSize])
			}
			continue
		}

		if pos+blockSize < len(newBytes) {
			rh.roll(newBytes[pos], newBytes[pos+blockSize])
		}
		pos++
	}

	// The old content's final short block is only comparable against an
	// equally short suffix of new, which the full-size window never covers.
	if tail := len(old) % blockSize; tail > 0 && len(newBytes)-tail >= literalStart {
		start, suffix := len(old)-tail, len(newBytes)-tail
		if hashing.Sum(newBytes[suffix:]) == hashing.Sum(old[start:]) {
			if literalStart < suffix {
				instrs = append(instrs, insertInstr(newBytes[literalStart:suffix]))
			}
			instrs = append(instrs, Instruction{Kind: OpCopy, SrcOffset: uint64(start), Length: uint64(tail)})
			literalStart = len(newBytes)
		}
	}

	if literalStart < len(newBytes) {
		instrs = append(instrs, insertInstr(newBytes[literalStart:]))
	}

	return mergeInstructions(instrs), nil
}

// Apply reconstructs the new content described by instrs against old.
// apply_delta(old, diff(old, new)) == new for every input (spec.md §8, P2).
func Apply(old []byte, instrs []Instruction) ([]byte, error) {
	out := make([]byte, 0)
	for i, ins := range instrs {
		switch ins.Kind {
		case OpCopy:
			end := ins.SrcOffset + ins.Length
			if end > uint64(len(old)) || end < ins.SrcOffset {
				return nil, fmt.Errorf("instruction %d: copy range [%d,%d) exceeds old content of length %d",
					i, ins.SrcOffset, end, len(old))
			}
			out = append(out, old[ins.SrcOffset:end]...)
		case OpInsert:
			out = append(out, ins.Data...)
		default:
			return nil, fmt.Errorf("instruction %d: unknown kind %d", i, ins.Kind)
		}
	}
	return out, nil
}

// buildSignatureTable partitions old into non-overlapping blockSize blocks
// (the final short block included at its actual length) and computes a
// (weak, strong) pair for each, keyed by weak hash for O(1) candidate
// lookup during the new-bytes scan.
func buildSignatureTable(old []byte, blockSize int) map[uint32][]blockSig {
	table := make(map[uint32][]blockSig)
	for i, start := 0, 0; start < len(old); i, start = i+1, start+blockSize {
		end := start + blockSize
		if end > len(old) {
			end = len(old)
		}
		block := old[start:end]
		weak := newRollingHash(block).sum()
		table[weak] = append(table[weak], blockSig{index: i, strong: hashing.Sum(block)})
	}
	return table
}

// findMatch looks up weak in table and, on any hit, confirms with a BLAKE3
// comparison over window. Ties on weak hash are broken by strong-hash
// equality, per spec.md §4.B.
func findMatch(table map[uint32][]blockSig, weak uint32, window []byte) (int, bool) {
	candidates, ok := table[weak]
	if !ok {
		return 0, false
	}
	strong := hashing.Sum(window)
	for _, c := range candidates {
		if c.strong == strong {
			return c.index, true
		}
	}
	return 0, false
}

func insertInstr(b []byte) Instruction {
	data := make([]byte, len(b))
	copy(data, b)
	return Instruction{Kind: OpInsert, Data: data}
}

// mergeInstructions merges adjacent Inserts and adjacent Copies that
// reference contiguous old-content ranges, per spec.md §4.B's "merging
// yields compact output" closing note.
func mergeInstructions(in []Instruction) []Instruction {
	if len(in) == 0 {
		return in
	}
	out := make([]Instruction, 0, len(in))
	for _, ins := range in {
		if len(out) > 0 {
			last := &out[len(out)-1]
			switch {
			case last.Kind == OpInsert && ins.Kind == OpInsert:
				last.Data = append(last.Data, ins.Data...)
				continue
			case last.Kind == OpCopy && ins.Kind == OpCopy && last.SrcOffset+last.Length == ins.SrcOffset:
				last.Length += ins.Length
				continue
			}
		}
		out = append(out, ins)
	}
	return out
}
