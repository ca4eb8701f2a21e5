package directory

import (
	"context"
	"fmt"

	"github.com/openakd/akd/crypto"
	"github.com/openakd/akd/tree"
)

// Audit returns one append-only proof per epoch step in [eStart+1, eEnd],
// covering the whole range [eStart, eEnd] when chained in order.
func (d *Directory) Audit(ctx context.Context, eStart, eEnd uint64) ([]tree.AppendOnlyProof, error) {
	if eEnd <= eStart {
		return nil, fmt.Errorf("akd/directory: audit range [%d, %d] is empty or inverted", eStart, eEnd)
	}
	proofs := make([]tree.AppendOnlyProof, 0, eEnd-eStart)
	for e := eStart + 1; e <= eEnd; e++ {
		p, err := d.tree.AppendOnlyProofAt(ctx, e)
		if err != nil {
			return nil, fmt.Errorf("akd/directory: append-only proof for epoch %d: %w", e, err)
		}
		proofs = append(proofs, p)
	}
	return proofs, nil
}

// AuditVerify chains VerifyAppendOnlyProof across proofs, checking each
// step's recomputed root against both rootHashes[i] (the predecessor
// root it must honestly extend) and rootHashes[i+1] (the claimed new
// root). rootHashes must list the published root hash for every epoch
// from eStart through eEnd, inclusive, in order —
// len(rootHashes) == len(proofs)+1.
func AuditVerify(h crypto.Hasher, rootHashes []crypto.Digest, proofs []tree.AppendOnlyProof) error {
	if len(rootHashes) != len(proofs)+1 {
		return fmt.Errorf("akd/directory: expected %d root hashes for %d proofs, got %d: %w", len(proofs)+1, len(proofs), len(rootHashes), ErrAppendOnlyViolation)
	}
	for i, p := range proofs {
		if err := tree.VerifyAppendOnlyProof(h, tree.DefaultChildHasher, rootHashes[i], rootHashes[i+1], p); err != nil {
			return fmt.Errorf("akd/directory: append-only step to epoch %d: %w", p.Epoch, err)
		}
	}
	return nil
}
