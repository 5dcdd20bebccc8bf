// Package manifest defines the PatchManifest data model and its canonical
// binary encoding (spec.md §3, §6): a tagged sequence of patch operations
// (CreateDir/AddFile/ModifyFile/DeleteFile/DeleteDir), each carrying the
// bytes a consumer needs to apply it without re-reading either tree. The
// wire format is a hand-rolled, length-prefixed, little-endian binary
// layout in the style of Sky-ey-HexDiff's pkg/patch header/entry marshaling
// rather than a generic serialization library, because spec.md §6 specifies
// an exact fixed byte layout, not a self-describing schema.
package manifest

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/lucho00cuba/patcher/internal/delta"
	"github.com/lucho00cuba/patcher/internal/hashing"
	"github.com/lucho00cuba/patcher/internal/perr"
)

// FormatVersion is the only format_version this build knows how to encode
// and decode. Decoders reject any other value with perr.ErrUnsupportedVersion.
const FormatVersion uint32 = 1

// OpTag is the small-integer discriminant for a patch operation's variant.
type OpTag uint8

const (
	OpCreateDir  OpTag = 0
	OpAddFile    OpTag = 1
	OpModifyFile OpTag = 2
	OpDeleteFile OpTag = 3
	OpDeleteDir  OpTag = 4
)

// Op is a tagged patch operation. Which fields are meaningful depends on
// Tag; see spec.md §3's "Patch operation (tagged variant)".
type Op struct {
	Tag  OpTag
	Path string

	// AddFile
	Content []byte
	NewHash hashing.Hash

	// ModifyFile
	ExpectedOldHash hashing.Hash
	Delta           []delta.Instruction
}

// CreateDir builds a CreateDir operation.
func CreateDir(path string) Op { return Op{Tag: OpCreateDir, Path: path} }

// AddFile builds an AddFile operation, computing new_hash from content.
func AddFile(path string, content []byte) Op {
	return Op{Tag: OpAddFile, Path: path, Content: content, NewHash: hashing.Sum(content)}
}

// ModifyFile builds a ModifyFile operation from a precomputed delta.
func ModifyFile(path string, d []delta.Instruction, expectedOldHash, newHash hashing.Hash) Op {
	return Op{Tag: OpModifyFile, Path: path, Delta: d, ExpectedOldHash: expectedOldHash, NewHash: newHash}
}

// DeleteFile builds a DeleteFile operation.
func DeleteFile(path string) Op { return Op{Tag: OpDeleteFile, Path: path} }

// DeleteDir builds a DeleteDir operation.
func DeleteDir(path string) Op { return Op{Tag: OpDeleteDir, Path: path} }

// PatchManifest is an ordered list of patch operations plus a format
// version, per spec.md §3.
type PatchManifest struct {
	FormatVersion uint32
	Operations    []Op
}

// New builds a manifest at the current FormatVersion.
func New(ops []Op) *PatchManifest {
	return &PatchManifest{FormatVersion: FormatVersion, Operations: ops}
}

var byteOrder = binary.LittleEndian

// Encode writes m's canonical binary encoding to w, per spec.md §6.
func Encode(w io.Writer, m *PatchManifest) error {
	bw := bufio.NewWriter(w)

	if err := writeU32(bw, m.FormatVersion); err != nil {
		return err
	}
	if err := writeU64(bw, uint64(len(m.Operations))); err != nil {
		return err
	}
	for i, op := range m.Operations {
		if err := encodeOp(bw, op); err != nil {
			return fmt.Errorf("encode operation %d (%q): %w", i, op.Path, err)
		}
	}
	return bw.Flush()
}

func encodeOp(w *bufio.Writer, op Op) error {
	if err := w.WriteByte(byte(op.Tag)); err != nil {
		return err
	}
	pathBytes := []byte(op.Path)
	if err := writeU32(w, uint32(len(pathBytes))); err != nil {
		return err
	}
	if _, err := w.Write(pathBytes); err != nil {
		return err
	}

	switch op.Tag {
	case OpCreateDir, OpDeleteFile, OpDeleteDir:
		return nil
	case OpAddFile:
		if err := writeU64(w, uint64(len(op.Content))); err != nil {
			return err
		}
		if _, err := w.Write(op.Content); err != nil {
			return err
		}
		_, err := w.Write(op.NewHash[:])
		return err
	case OpModifyFile:
		if _, err := w.Write(op.ExpectedOldHash[:]); err != nil {
			return err
		}
		if _, err := w.Write(op.NewHash[:]); err != nil {
			return err
		}
		if err := writeU64(w, uint64(len(op.Delta))); err != nil {
			return err
		}
		for _, instr := range op.Delta {
			if err := encodeInstruction(w, instr); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown operation tag %d", op.Tag)
	}
}

func encodeInstruction(w *bufio.Writer, instr delta.Instruction) error {
	switch instr.Kind {
	case delta.OpCopy:
		if err := w.WriteByte(0); err != nil {
			return err
		}
		if err := writeU64(w, instr.SrcOffset); err != nil {
			return err
		}
		return writeU64(w, instr.Length)
	case delta.OpInsert:
		if err := w.WriteByte(1); err != nil {
			return err
		}
		if err := writeU64(w, uint64(len(instr.Data))); err != nil {
			return err
		}
		_, err := w.Write(instr.Data)
		return err
	default:
		return fmt.Errorf("unknown instruction kind %d", instr.Kind)
	}
}

// Decode reads a canonical binary manifest from r, per spec.md §6. It
// rejects unknown format versions with perr.ErrUnsupportedVersion and any
// framing/structural problem with perr.ErrCorrupt.
func Decode(r io.Reader) (*PatchManifest, error) {
	br := bufio.NewReader(r)

	version, err := readU32(br)
	if err != nil {
		return nil, fmt.Errorf("read format_version: %w: %v", perr.ErrCorrupt, err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("format_version %d: %w", version, perr.ErrUnsupportedVersion)
	}

	count, err := readU64(br)
	if err != nil {
		return nil, fmt.Errorf("read operation_count: %w: %v", perr.ErrCorrupt, err)
	}

	ops := make([]Op, 0, count)
	for i := uint64(0); i < count; i++ {
		op, err := decodeOp(br)
		if err != nil {
			return nil, fmt.Errorf("decode operation %d: %w", i, err)
		}
		ops = append(ops, op)
	}

	return &PatchManifest{FormatVersion: version, Operations: ops}, nil
}

func decodeOp(r *bufio.Reader) (Op, error) {
	tagByte, err := r.ReadByte()
	if err != nil {
		return Op{}, fmt.Errorf("%w: read tag: %v", perr.ErrCorrupt, err)
	}
	tag := OpTag(tagByte)

	pathLen, err := readU32(r)
	if err != nil {
		return Op{}, fmt.Errorf("%w: read path_len: %v", perr.ErrCorrupt, err)
	}
	path, err := readExact(r, int(pathLen))
	if err != nil {
		return Op{}, fmt.Errorf("%w: read path: %v", perr.ErrCorrupt, err)
	}

	op := Op{Tag: tag, Path: string(path)}

	switch tag {
	case OpCreateDir, OpDeleteFile, OpDeleteDir:
		return op, nil
	case OpAddFile:
		size, err := readU64(r)
		if err != nil {
			return Op{}, fmt.Errorf("%w: read size: %v", perr.ErrCorrupt, err)
		}
		content, err := readExact(r, int(size))
		if err != nil {
			return Op{}, fmt.Errorf("%w: read content: %v", perr.ErrCorrupt, err)
		}
		op.Content = content
		if err := readHash(r, &op.NewHash); err != nil {
			return Op{}, err
		}
		return op, nil
	case OpModifyFile:
		if err := readHash(r, &op.ExpectedOldHash); err != nil {
			return Op{}, err
		}
		if err := readHash(r, &op.NewHash); err != nil {
			return Op{}, err
		}
		instrCount, err := readU64(r)
		if err != nil {
			return Op{}, fmt.Errorf("%w: read instr_count: %v", perr.ErrCorrupt, err)
		}
		instrs := make([]delta.Instruction, 0, instrCount)
		for i := uint64(0); i < instrCount; i++ {
			instr, err := decodeInstruction(r)
			if err != nil {
				return Op{}, fmt.Errorf("instruction %d: %w", i, err)
			}
			instrs = append(instrs, instr)
		}
		op.Delta = instrs
		return op, nil
	default:
		return Op{}, fmt.Errorf("%w: unknown operation tag %d", perr.ErrCorrupt, tag)
	}
}

func decodeInstruction(r *bufio.Reader) (delta.Instruction, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return delta.Instruction{}, fmt.Errorf("%w: read kind: %v", perr.ErrCorrupt, err)
	}
	switch kindByte {
	case 0:
		offset, err := readU64(r)
		if err != nil {
			return delta.Instruction{}, fmt.Errorf("%w: read src_offset: %v", perr.ErrCorrupt, err)
		}
		length, err := readU64(r)
		if err != nil {
			return delta.Instruction{}, fmt.Errorf("%w: read length: %v", perr.ErrCorrupt, err)
		}
		return delta.Instruction{Kind: delta.OpCopy, SrcOffset: offset, Length: length}, nil
	case 1:
		length, err := readU64(r)
		if err != nil {
			return delta.Instruction{}, fmt.Errorf("%w: read length: %v", perr.ErrCorrupt, err)
		}
		data, err := readExact(r, int(length))
		if err != nil {
			return delta.Instruction{}, fmt.Errorf("%w: read payload: %v", perr.ErrCorrupt, err)
		}
		return delta.Instruction{Kind: delta.OpInsert, Data: data}, nil
	default:
		return delta.Instruction{}, fmt.Errorf("%w: unknown instruction kind %d", perr.ErrCorrupt, kindByte)
	}
}

func readHash(r *bufio.Reader, h *hashing.Hash) error {
	b, err := readExact(r, hashing.Size)
	if err != nil {
		return fmt.Errorf("%w: read hash: %v", perr.ErrCorrupt, err)
	}
	copy(h[:], b)
	return nil
}

func readExact(r io.Reader, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if n < 0 {
		return nil, fmt.Errorf("negative length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	byteOrder.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeU64(w io.Writer, v uint64) error {
	var buf [8]byte
	byteOrder.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return byteOrder.Uint32(buf[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return byteOrder.Uint64(buf[:]), nil
}
