// Package signature maps text to fixed-width bit signatures built from
// overlapping 3-byte shingles. Signatures are a pure function of the
// normalised text and the constants below, so a server holding precomputed
// signatures can estimate overlap with a query without seeing its text.
package signature

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"strings"
	"unicode"
)

// Shingle length in bytes.
const Q = 3

const (
	seed uint64 = 0x9e3779b97f4a7c15
	mulA uint64 = 0xff51afd7ed558ccd
	mulB uint64 = 0xc4ceb9fe1a85ec53

	// bits set per shingle
	projections = 4
)

// Width is a supported signature size in bits.
type Width int

const (
	Width256  Width = 256
	Width4096 Width = 4096
)

// ParseWidth accepts 256 or 4096.
func ParseWidth(n int) (Width, error) {
	switch Width(n) {
	case Width256, Width4096:
		return Width(n), nil
	}
	return 0, fmt.Errorf("unsupported signature width %d (want 256 or 4096)", n)
}

// Words returns the number of 64-bit words in a signature of this width.
func (w Width) Words() int { return int(w) / 64 }

func (w Width) mask() uint64 { return uint64(w) - 1 }

// Signature is a bit vector stored as little-endian-ordered 64-bit words:
// bit i lives in word i/64 at position i%64.
type Signature []uint64

// Normalize lower-cases s and replaces every rune that is neither a letter,
// a number nor a space with a space. U+0130 lower-cases to "i" plus a
// combining dot above, and the dot is then replaced, so it yields "i ".
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\u0130' {
			b.WriteString("i ")
			continue
		}
		r = unicode.ToLower(r)
		if r == ' ' || unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// ASCII drops every non-ASCII rune from s.
func ASCII(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] < 0x80 {
			out = append(out, s[i])
		}
	}
	return out
}

// Shingles normalises text and returns all overlapping Q-byte windows of its
// ASCII form. Text shorter than Q bytes after normalisation has none.
func Shingles(text string) [][]byte {
	b := ASCII(Normalize(text))
	if len(b) < Q {
		return nil
	}
	out := make([][]byte, 0, len(b)-Q+1)
	for i := 0; i+Q <= len(b); i++ {
		out = append(out, b[i:i+Q])
	}
	return out
}

// Hash64 mixes up to eight bytes of gram, zero padded and read little-endian,
// into a 64-bit avalanche hash.
func Hash64(gram []byte) uint64 {
	var buf [8]byte
	copy(buf[:], gram)
	a := seed ^ binary.LittleEndian.Uint64(buf[:])
	a = (a ^ a>>33) * mulA
	a = (a ^ a>>33) * mulB
	a ^= a >> 33
	return a
}

// New returns an all-zero signature of the given width.
func New(w Width) Signature {
	return make(Signature, w.Words())
}

// Encode builds the signature of text at width w.
func Encode(text string, w Width) Signature {
	sig := New(w)
	for _, g := range Shingles(text) {
		sig.add(Hash64(g), w.mask())
	}
	return sig
}

func (s Signature) add(x uint64, mask uint64) {
	for i := 0; i < projections; i++ {
		bit := x & mask
		s[bit>>6] |= 1 << (bit & 63)
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
	}
}

// Width returns the width of s in bits.
func (s Signature) Width() Width { return Width(len(s) * 64) }

// Has reports whether bit i is set.
func (s Signature) Has(i int) bool {
	return s[i>>6]&(1<<(uint(i)&63)) != 0
}

// PopCount returns the number of set bits.
func (s Signature) PopCount() int {
	n := 0
	for _, w := range s {
		n += bits.OnesCount64(w)
	}
	return n
}

// Jaccard estimates set similarity as |s∧o| / |s∨o|. Two empty signatures
// have similarity 0. Signatures of different widths are not comparable.
func (s Signature) Jaccard(o Signature) (float64, error) {
	if len(s) != len(o) {
		return 0, fmt.Errorf("width mismatch: %d vs %d bits", len(s)*64, len(o)*64)
	}
	var inter, union int
	for i := range s {
		inter += bits.OnesCount64(s[i] & o[i])
		union += bits.OnesCount64(s[i] | o[i])
	}
	if union == 0 {
		return 0, nil
	}
	return float64(inter) / float64(union), nil
}

// Contains reports whether every bit of o is also set in s.
func (s Signature) Contains(o Signature) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if o[i]&^s[i] != 0 {
			return false
		}
	}
	return true
}

// Words returns the signature as a plain word slice for the wire codec.
func (s Signature) Words() []uint64 { return []uint64(s) }

// String renders the words as hex, most significant word last.
func (s Signature) String() string {
	parts := make([]string, len(s))
	for i, w := range s {
		parts[i] = fmt.Sprintf("%016x", w)
	}
	return strings.Join(parts, ":")
}
