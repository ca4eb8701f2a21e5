// Package tree implements the append-only zero-knowledge set: the
// sparse prefix tree keyed by pseudorandom labels, its persisted node
// store, and the membership / non-membership / append-only proofs built
// on it.
package tree

import (
	"encoding/binary"

	"github.com/bits-and-blooms/bitset"
)

// MaxLabelBits is the maximum bit-width of a NodeLabel.
const MaxLabelBits = 256

// NodeLabel is a fixed-width bit string of up to MaxLabelBits bits with
// an explicit length. Bits are ordered MSB-first, matching the left-to-
// right ordering used everywhere labels are compared.
//
// The underlying storage is a bitset.BitSet rather than a hand-rolled
// byte buffer: longest-common-prefix and "bit at position" are exactly
// the operations a bit-vector library exists for.
type NodeLabel struct {
	bits   *bitset.BitSet
	length uint
}

// EmptyLabel is the label (0...0, 0): the root's label, and the
// placeholder used everywhere a child slot is empty. bits is left nil
// (rather than an allocated all-zero bitset) so IsEmpty can tell
// "the empty label" apart from "a real, merely-all-zero-bits label" by
// identity rather than by value.
var EmptyLabel = NodeLabel{bits: nil, length: 0}

// NodeLabelFromBytes interprets buf (left-justified, big-endian within
// each byte) as a label of the given bit length.
func NodeLabelFromBytes(buf []byte, length int) NodeLabel {
	if length < 0 {
		length = 0
	}
	if length > MaxLabelBits {
		length = MaxLabelBits
	}
	bs := bitset.New(MaxLabelBits)
	for i := 0; i < length; i++ {
		byteIdx := i / 8
		if byteIdx >= len(buf) {
			break
		}
		bitIdx := 7 - (i % 8)
		if buf[byteIdx]&(1<<uint(bitIdx)) != 0 {
			bs.Set(uint(i))
		}
	}
	return NodeLabel{bits: bs, length: uint(length)}
}

// Len returns the label's bit length.
func (l NodeLabel) Len() int {
	return int(l.length)
}

// BitAt returns the bit at position i (0-indexed, MSB-first). i must be
// less than l.Len().
func (l NodeLabel) BitAt(i int) bool {
	if l.bits == nil || i < 0 || uint(i) >= l.length {
		return false
	}
	return l.bits.Test(uint(i))
}

// Bytes returns the canonical encoding used for hashing and wire
// transfer: the 32-byte left-justified value followed by a 2-byte
// big-endian bit length. The length suffix disambiguates labels whose
// meaningful bits coincide but whose lengths differ (e.g. "1010" vs.
// "10100...0").
func (l NodeLabel) Bytes() []byte {
	buf := make([]byte, 32+2)
	for i := 0; i < l.Len(); i++ {
		if l.BitAt(i) {
			buf[i/8] |= 1 << uint(7-i%8)
		}
	}
	binary.BigEndian.PutUint16(buf[32:], uint16(l.length))
	return buf
}

// Value returns the left-justified 32-byte value with only the first
// Len() bits meaningful, as label_val is specified.
func (l NodeLabel) Value() [32]byte {
	var out [32]byte
	b := l.Bytes()
	copy(out[:], b[:32])
	return out
}

// Equal reports whether two labels have the same length and bits.
func (l NodeLabel) Equal(other NodeLabel) bool {
	if l.length != other.length {
		return false
	}
	if l.length == 0 {
		return true
	}
	return commonPrefixLen(l, other) >= int(l.length)
}

// IsEmpty reports whether l is the zero-value label (no bitset
// allocated, length 0) — the value produced by reading an absent child.
func (l NodeLabel) IsEmpty() bool {
	return l.length == 0 && l.bits == nil
}

// CommonPrefixLen returns the length of the longest common prefix of l
// and other, bounded by the shorter of the two lengths.
func (l NodeLabel) CommonPrefixLen(other NodeLabel) int {
	return commonPrefixLen(l, other)
}

func commonPrefixLen(a, b NodeLabel) int {
	bound := int(a.length)
	if int(b.length) < bound {
		bound = int(b.length)
	}
	if bound == 0 || a.bits == nil || b.bits == nil {
		return 0
	}
	diff := a.bits.SymmetricDifference(b.bits)
	if idx, found := diff.NextSet(0); found && int(idx) < bound {
		return int(idx)
	}
	return bound
}

// HasPrefix reports whether prefix is a prefix of l (prefix.Len() <= l.Len()
// and every bit of prefix matches the corresponding bit of l).
func (l NodeLabel) HasPrefix(prefix NodeLabel) bool {
	if prefix.Len() > l.Len() {
		return false
	}
	if prefix.Len() == 0 {
		return true
	}
	return commonPrefixLen(l, prefix) >= prefix.Len()
}

// Truncate returns the prefix of l consisting of its first n bits.
func (l NodeLabel) Truncate(n int) NodeLabel {
	if n >= l.Len() {
		return l
	}
	if n <= 0 {
		return EmptyLabel
	}
	bs := bitset.New(MaxLabelBits)
	for i := 0; i < n; i++ {
		if l.BitAt(i) {
			bs.Set(uint(i))
		}
	}
	return NodeLabel{bits: bs, length: uint(n)}
}

// Compare orders two labels left-to-right, bit-by-bit, MSB-first: a
// label that is a strict prefix of another sorts before it.
func (l NodeLabel) Compare(other NodeLabel) int {
	bound := l.Len()
	if other.Len() < bound {
		bound = other.Len()
	}
	cpl := commonPrefixLen(l, other)
	if cpl < bound {
		if l.BitAt(cpl) {
			return 1
		}
		return -1
	}
	switch {
	case l.Len() < other.Len():
		return -1
	case l.Len() > other.Len():
		return 1
	default:
		return 0
	}
}
