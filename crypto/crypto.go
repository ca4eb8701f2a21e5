// Package crypto implements the AZKS primitives: the digest function H,
// the verifiable random function used to derive tree labels, and the
// group arithmetic helpers the VRF is built on.
package crypto

import (
	"errors"

	"github.com/crate-crypto/go-ipa/bandersnatch/fr"
	"github.com/crate-crypto/go-ipa/banderwagon"
)

type (
	// Fr is a scalar in the bandersnatch scalar field.
	Fr = fr.Element
	// Point is an element of the banderwagon group.
	Point = banderwagon.Element
)

func frFromBytes(dst *Fr, data []byte) {
	var aligned [32]byte
	copy(aligned[32-len(data):], data)
	dst.SetBytes(aligned[:])
}

func generator() Point {
	return banderwagon.Generator
}

func negate(dst, src *Point) {
	dst.Neg(src)
}

func subPoints(dst, a, b *Point) {
	var negB Point
	negate(&negB, b)
	dst.Add(a, &negB)
}

// errHashToCurveExhausted is returned when try-and-increment hashing to a
// curve point fails to land on a valid point within the attempt budget.
// This should not happen in practice; it exists so hashToCurve stays total.
var errHashToCurveExhausted = errors.New("akd/crypto: hash-to-curve exhausted attempts")
