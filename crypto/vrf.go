package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

// ErrVRFVerificationFailed is returned by Verifier.Verify when a proof does
// not correspond to (pk, msg).
var ErrVRFVerificationFailed = errors.New("akd/crypto: vrf verification failed")

// Proof is a non-interactive Schnorr-style proof of knowledge of the VRF
// secret scalar, binding the public key to the claimed VRF output point
// (gamma = sk * hashToCurve(msg)).
type Proof struct {
	Gamma Point
	C     Fr
	S     Fr
}

// Signer holds a VRF secret key and evaluates the VRF.
type Signer struct {
	sk Fr
	pk Point
}

// Verifier holds a VRF public key and verifies proofs against it.
type Verifier struct {
	pk Point
}

// NewSigner derives the public key from sk and returns a ready Signer.
func NewSigner(sk Fr) *Signer {
	s := &Signer{sk: sk}
	g := generator()
	s.pk.ScalarMul(&g, &s.sk)
	return s
}

// PublicKey returns the VRF public key, to be exported as vrf_pk.
func (s *Signer) PublicKey() Point {
	return s.pk
}

// Verifier returns a Verifier bound to this signer's public key, for
// tests that want to round-trip evaluate/verify in one process.
func (s *Signer) Verifier() *Verifier {
	return NewVerifier(s.pk)
}

// NewVerifier wraps an already-known public key.
func NewVerifier(pk Point) *Verifier {
	return &Verifier{pk: pk}
}

// NewDeterministicSigner returns the fixed, non-secret test VRF signer
// seeded from a 32-byte value, as used to reproduce the published test
// vectors (spec §8: "Seed all with VRF and commitment key = [0u8; 32]").
// The secret scalar is SHA-256(seed), so an all-zero seed still yields a
// non-zero key. Production deployments must substitute a real,
// secret-keyed Signer.
func NewDeterministicSigner(seed [32]byte) *Signer {
	var sk Fr
	d := sha256.Sum256(seed[:])
	frFromBytes(&sk, d[:])
	return NewSigner(sk)
}

// Evaluate computes the VRF proof and output hash for msg.
func (s *Signer) Evaluate(msg []byte) (Proof, Digest, error) {
	h, err := hashToCurve(msg)
	if err != nil {
		return Proof{}, Digest{}, err
	}

	var gamma Point
	gamma.ScalarMul(&h, &s.sk)

	k := deterministicNonce(s.sk, msg)
	g := generator()
	var kG, kH Point
	kG.ScalarMul(&g, &k)
	kH.ScalarMul(&h, &k)

	c := challenge(s.pk, h, gamma, kG, kH)

	var cSk, sVal Fr
	cSk.Mul(&c, &s.sk)
	sVal.Add(&k, &cSk)

	return Proof{Gamma: gamma, C: c, S: sVal}, ProofToHash(gamma), nil
}

// Verify checks proof against (v.pk, msg) and returns the VRF output hash
// on success. It fails with ErrVRFVerificationFailed when the proof does
// not correspond to (pk, msg); it never panics on a malformed proof.
func (v *Verifier) Verify(msg []byte, proof Proof) (Digest, error) {
	h, err := hashToCurve(msg)
	if err != nil {
		return Digest{}, err
	}

	g := generator()
	var sG, cPk, kG Point
	sG.ScalarMul(&g, &proof.S)
	cPk.ScalarMul(&v.pk, &proof.C)
	subPoints(&kG, &sG, &cPk)

	var sH, cGamma, kH Point
	sH.ScalarMul(&h, &proof.S)
	cGamma.ScalarMul(&proof.Gamma, &proof.C)
	subPoints(&kH, &sH, &cGamma)

	expectedC := challenge(v.pk, h, proof.Gamma, kG, kH)
	if !expectedC.Equal(&proof.C) {
		return Digest{}, ErrVRFVerificationFailed
	}
	return ProofToHash(proof.Gamma), nil
}

// ProofToHash derives the VRF output hash from gamma alone, per vrf_proof_to_hash.
func ProofToHash(gamma Point) Digest {
	b := gamma.Bytes()
	return sha256.Sum256(b[:])
}

// hashToCurve maps an arbitrary message onto a banderwagon group element
// via try-and-increment: hash msg with an incrementing counter until the
// digest deserializes as a valid compressed point. 256 attempts is far
// beyond what is ever needed in practice (failure probability halves per
// attempt).
func hashToCurve(msg []byte) (Point, error) {
	var p Point
	for ctr := uint32(0); ctr < 256; ctr++ {
		hh := sha256.New()
		hh.Write(msg)
		var ctrBytes [4]byte
		binary.BigEndian.PutUint32(ctrBytes[:], ctr)
		hh.Write(ctrBytes[:])
		if err := p.SetBytes(hh.Sum(nil), false); err == nil {
			return p, nil
		}
	}
	return Point{}, errHashToCurveExhausted
}

// challenge hashes the Schnorr transcript (pk, h, gamma, kG, kH) into a
// scalar.
func challenge(pk, h, gamma, kG, kH Point) Fr {
	hh := sha256.New()
	for _, p := range [...]Point{pk, h, gamma, kG, kH} {
		b := p.Bytes()
		hh.Write(b[:])
	}
	var c Fr
	frFromBytes(&c, hh.Sum(nil))
	return c
}

// deterministicNonce derives the Schnorr commitment scalar from (sk, msg)
// so Evaluate is fully deterministic and reproducible, matching the
// directory's no-secrecy-of-randomness requirements for test vectors.
func deterministicNonce(sk Fr, msg []byte) Fr {
	skBytes := sk.Bytes()
	hh := sha256.New()
	hh.Write(skBytes[:])
	hh.Write([]byte("akd-vrf-nonce"))
	hh.Write(msg)
	var k Fr
	frFromBytes(&k, hh.Sum(nil))
	return k
}
