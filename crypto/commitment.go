package crypto

// Commitment scheme: a per-(label, version, value) nonce and value
// commitment derived from a server-held commitment key. Grounded on
// original_source/akd_core/src/crypto.rs's get_commitment_nonce /
// compute_fresh_azks_value / stale_azks_value (the currently-active,
// pre-FIXME(#344) construction; see SPEC_FULL.md Design Notes).

// Nonce derives the commitment nonce for (label, version, value) from the
// server-held commitment key:
//
//	nonce = H(commitment_key || label_bytes || be64(version) || i2osp_array(value))
func Nonce(h Hasher, commitmentKey, labelBytes []byte, version uint64, value []byte) Digest {
	buf := make([]byte, 0, len(commitmentKey)+len(labelBytes)+8+8+len(value))
	buf = append(buf, commitmentKey...)
	buf = append(buf, labelBytes...)
	buf = append(buf, BE64(version)...)
	buf = append(buf, I2OSPArray(value)...)
	return h.Digest(buf)
}

// Commit computes the hiding, binding value commitment:
//
//	commitment = H(i2osp_array(value) || i2osp_array(nonce))
//
// This is the single function both the server (who knows commitment_key
// and derives nonce via Nonce) and the client (who is only ever handed
// the nonce) use to arrive at the same commitment.
func Commit(h Hasher, value, nonce []byte) Digest {
	buf := make([]byte, 0, 8+len(value)+8+len(nonce))
	buf = append(buf, I2OSPArray(value)...)
	buf = append(buf, I2OSPArray(nonce)...)
	return h.Digest(buf)
}

// LeafHash computes a leaf's snapshot hash for the given epoch:
//
//	leaf_hash = H(commitment || be64(epoch))
func LeafHash(h Hasher, commitment Digest, epoch uint64) Digest {
	buf := make([]byte, 0, DigestBytes+8)
	buf = append(buf, commitment.Bytes()...)
	buf = append(buf, BE64(epoch)...)
	return h.Digest(buf)
}

// StaleCommitment is the fixed commitment recorded for a retired version:
// H(EMPTY_VALUE). It needs no hiding, since it signals retirement rather
// than carrying a value.
func StaleCommitment(h Hasher) Digest {
	return h.Digest(EmptyValue)
}
