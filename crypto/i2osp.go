package crypto

import "encoding/binary"

// I2OSPArray encodes a byte string as its 8-byte big-endian length
// followed by the string itself: len(x) || x.
func I2OSPArray(x []byte) []byte {
	out := make([]byte, 8+len(x))
	binary.BigEndian.PutUint64(out[:8], uint64(len(x)))
	copy(out[8:], x)
	return out
}

// BE64 encodes v as 8 big-endian bytes.
func BE64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}
