package delta

// modulus bounds the two rolling-sum components, per the classic rsync
// rolling checksum (Tridgell & Mackerras, "The rsync algorithm", §3):
// a(k,l) = (Σ c_i) mod M, b(k,l) = (Σ (l-i+1)·c_i) mod M over window [k,l].
const modulus = 1 << 16

// rollingHash is the weak (cheap, O(1)-per-byte-updatable) checksum used to
// find candidate block matches before a BLAKE3 strong-hash confirmation,
// per spec.md §4.B. It is hand-rolled rather than imported because no
// library in the corpus exposes an incrementally updatable Adler32-style
// checksum — stdlib hash/adler32 recomputes over the whole window on every
// slide, which is exactly the O(block) cost this structure exists to avoid.
type rollingHash struct {
	a, b   int64
	length int64
}

// newRollingHash computes the initial checksum over window from scratch.
func newRollingHash(window []byte) *rollingHash {
	n := int64(len(window))
	var a, b int64
	for i, c := range window {
		a += int64(c)
		b += (n - int64(i)) * int64(c)
	}
	return &rollingHash{a: a % modulus, b: b % modulus, length: n}
}

// sum returns the combined weak hash value for the current window.
func (r *rollingHash) sum() uint32 {
	return uint32(r.a + modulus*r.b)
}

// roll advances the window by one byte: outgoing is the byte leaving the
// window (its current first byte), incoming is the byte entering it (the
// new last byte). The window length is unchanged.
func (r *rollingHash) roll(outgoing, incoming byte) {
	r.a = mod(r.a - int64(outgoing) + int64(incoming))
	r.b = mod(r.b - r.length*int64(outgoing) + r.a)
}

func mod(v int64) int64 {
	v %= modulus
	if v < 0 {
		v += modulus
	}
	return v
}
