package scan

import "github.com/lucho00cuba/patcher/internal/hashing"

// TreeDigest folds a sorted entry list into a single content digest,
// adapted from the teacher's merkle.Engine.hashDir combine step (which
// folded each child's hash into its parent directory's node hash). Entries
// are already in canonical sorted order from Scan/ScanWithOptions, so this
// combines them with one incremental BLAKE3 hasher instead of recursing
// directory by directory; the result changes if any path, kind, or file
// hash in the tree changes.
//
// TreeDigest is not used by CreatePatch/ApplyPatch — it backs a
// supplementary whole-tree verification check a caller can run before or
// after applying a patch to confirm two trees are identical.
func TreeDigest(entries []Entry) hashing.Hash {
	var buf []byte
	for _, e := range entries {
		buf = append(buf, e.RelPath...)
		buf = append(buf, 0, byte(e.Kind), 0)
		if e.Kind == File {
			buf = append(buf, e.Hash[:]...)
		}
	}
	return hashing.Sum(buf)
}
