package directory

import (
	"context"
	"fmt"

	"github.com/openakd/akd/crypto"
	"github.com/openakd/akd/tree"
)

// HistoryParamsKind selects which versions key_history returns.
type HistoryParamsKind int

const (
	// Complete returns every published version.
	Complete HistoryParamsKind = iota
	// MostRecentK returns only the K most recent versions (K == 0
	// returns every version).
	MostRecentK
	// SinceEpoch returns only versions published at or after SinceEpoch.
	SinceEpoch
)

// HistoryParams selects the version range key_history returns.
type HistoryParams struct {
	Kind       HistoryParamsKind
	K          uint64
	SinceEpoch uint64
}

// VersionNonMembership pairs a non-membership proof for (user, Fresh, V)
// with the VRF proof binding V to the proof's label.
type VersionNonMembership struct {
	Version  uint64
	VRFProof crypto.Proof
	Proof    tree.NonMembershipProof
}

// UpdateProof is the evidence for a single published version, per
// spec §4.5's key_history.
type UpdateProof struct {
	Version         uint64
	Epoch           uint64
	Value           []byte
	CommitmentNonce crypto.Digest

	VRFProofFresh  crypto.Proof
	ExistenceProof tree.MembershipProof

	// HasStaleness is false iff Version == 1.
	HasStaleness bool
	VRFProofStale crypto.Proof
	StaleProof    tree.MembershipProof

	// HasPriorNonMembership is false iff Epoch == 1.
	HasPriorNonMembership  bool
	PriorNonMembershipProof tree.NonMembershipProof

	// NoSkippedVersions proves no (user, Fresh, v') for v' strictly
	// between Version and 2*marker(Version) was written, checked at
	// BoundEpoch. NoFutureMarkers proves the same for every power-of-two
	// marker strictly above marker(Version) up to marker(current epoch).
	BoundEpoch        uint64
	NoSkippedVersions []VersionNonMembership
	NoFutureMarkers   []VersionNonMembership
}

// HistoryProof is the ordered (most recent first) list of UpdateProofs
// key_history returns.
type HistoryProof struct {
	Updates []UpdateProof
}

// KeyHistory assembles a HistoryProof for user, selecting versions per
// params. The most recent version's "no skipped version / no future
// marker" checks are made against the directory's current epoch; an
// older version's are made against the epoch just before the next
// version was published, the last epoch at which it was current.
func (d *Directory) KeyHistory(ctx context.Context, user string, params HistoryParams) (HistoryProof, error) {
	d.mu.Lock()
	boundEpoch := d.epoch
	d.mu.Unlock()

	rec, err := d.users.Get(ctx, user)
	if err != nil || len(rec.Versions) == 0 {
		return HistoryProof{}, ErrUserDoesNotExist
	}

	versions := append([]VersionEntry(nil), rec.Versions...)
	for i, j := 0, len(versions)-1; i < j; i, j = i+1, j-1 {
		versions[i], versions[j] = versions[j], versions[i]
	}

	switch params.Kind {
	case MostRecentK:
		if params.K > 0 && uint64(len(versions)) > params.K {
			versions = versions[:params.K]
		}
	case SinceEpoch:
		filtered := versions[:0:0]
		for _, v := range versions {
			if v.Epoch >= params.SinceEpoch {
				filtered = append(filtered, v)
			}
		}
		versions = filtered
	}

	markerBound := marker(boundEpoch)

	var updates []UpdateProof
	for _, v := range versions {
		bound := boundEpoch
		if int(v.Version) < len(rec.Versions) {
			bound = rec.Versions[v.Version].Epoch - 1
		}
		up := UpdateProof{
			Version:         v.Version,
			Epoch:           v.Epoch,
			Value:           append([]byte(nil), v.Value...),
			CommitmentNonce: v.Nonce,
			BoundEpoch:      bound,
		}

		freshLabel, vrfFresh, err := d.vrfLabel(user, crypto.Fresh, v.Version)
		if err != nil {
			return HistoryProof{}, err
		}
		up.VRFProofFresh = vrfFresh
		up.ExistenceProof, err = d.tree.MembershipProof(ctx, freshLabel, v.Epoch)
		if err != nil {
			return HistoryProof{}, fmt.Errorf("akd/directory: existence proof for %q v%d: %w", user, v.Version, err)
		}

		if v.Version > 1 {
			up.HasStaleness = true
			staleLabel, vrfStale, err := d.vrfLabel(user, crypto.Stale, v.Version-1)
			if err != nil {
				return HistoryProof{}, err
			}
			up.VRFProofStale = vrfStale
			up.StaleProof, err = d.tree.MembershipProof(ctx, staleLabel, v.Epoch)
			if err != nil {
				return HistoryProof{}, fmt.Errorf("akd/directory: staleness proof for %q v%d: %w", user, v.Version, err)
			}
		}

		if v.Epoch > 1 {
			up.HasPriorNonMembership = true
			up.PriorNonMembershipProof, err = d.tree.NonMembershipProof(ctx, freshLabel, v.Epoch-1)
			if err != nil {
				return HistoryProof{}, fmt.Errorf("akd/directory: prior non-membership for %q v%d: %w", user, v.Version, err)
			}
		}

		m := marker(v.Version)
		for vp := v.Version + 1; vp < 2*m; vp++ {
			vn, err := d.versionNonMembership(ctx, user, vp, bound)
			if err != nil {
				return HistoryProof{}, err
			}
			up.NoSkippedVersions = append(up.NoSkippedVersions, vn)
		}
		for fm := 2 * m; fm <= markerBound; fm *= 2 {
			vn, err := d.versionNonMembership(ctx, user, fm, bound)
			if err != nil {
				return HistoryProof{}, err
			}
			up.NoFutureMarkers = append(up.NoFutureMarkers, vn)
		}

		updates = append(updates, up)
	}

	return HistoryProof{Updates: updates}, nil
}

func (d *Directory) versionNonMembership(ctx context.Context, user string, version, epoch uint64) (VersionNonMembership, error) {
	label, vrfProof, err := d.vrfLabel(user, crypto.Fresh, version)
	if err != nil {
		return VersionNonMembership{}, err
	}
	proof, err := d.tree.NonMembershipProof(ctx, label, epoch)
	if err != nil {
		return VersionNonMembership{}, fmt.Errorf("akd/directory: non-membership proof for %q v%d: %w", user, version, err)
	}
	return VersionNonMembership{Version: version, VRFProof: vrfProof, Proof: proof}, nil
}

// HistoryVerificationParams configures KeyHistoryVerify.
type HistoryVerificationParams struct {
	// AllowMissingValues relaxes the "no gap" check between consecutive
	// returned versions; false rejects any gap in the version sequence.
	AllowMissingValues bool
}

// KeyHistoryVerify checks every sub-proof of a HistoryProof and the
// ordering/staleness invariants of spec §4.5. rootHashAt resolves an
// epoch to its published root hash (e.g. backed by a cache of EpochHash
// values the client has already fetched and trusts).
func KeyHistoryVerify(h crypto.Hasher, vrfPK crypto.Point, rootHashAt func(epoch uint64) (crypto.Digest, bool), user string, proof HistoryProof, params HistoryVerificationParams) error {
	verifier := crypto.NewVerifier(vrfPK)

	var prevVersion, prevEpoch uint64
	for i, up := range proof.Updates {
		if i > 0 {
			if up.Version >= prevVersion {
				return fmt.Errorf("akd/directory: history versions are not strictly decreasing: %w", tree.ErrProofVerificationFailed)
			}
			if up.Epoch >= prevEpoch {
				return fmt.Errorf("akd/directory: history epochs are not strictly decreasing: %w", tree.ErrProofVerificationFailed)
			}
			if !params.AllowMissingValues && prevVersion-up.Version != 1 {
				return fmt.Errorf("akd/directory: gap in history between v%d and v%d: %w", up.Version, prevVersion, tree.ErrProofVerificationFailed)
			}
		}
		if up.Version == 1 && up.HasStaleness {
			return fmt.Errorf("akd/directory: version 1 must not carry a staleness proof: %w", tree.ErrProofVerificationFailed)
		}
		if up.Version > 1 && !up.HasStaleness {
			return fmt.Errorf("akd/directory: version %d is missing its staleness proof: %w", up.Version, tree.ErrProofVerificationFailed)
		}

		root, ok := rootHashAt(up.Epoch)
		if !ok {
			return fmt.Errorf("akd/directory: no root hash known for epoch %d: %w", up.Epoch, ErrEpochNotPublished)
		}

		freshLabel, err := verifyLabel(h, verifier, user, crypto.Fresh, up.Version, up.VRFProofFresh)
		if err != nil {
			return err
		}
		if !freshLabel.Equal(up.ExistenceProof.Label) {
			return fmt.Errorf("akd/directory: existence label mismatch for v%d: %w", up.Version, ErrVrfVerificationFail)
		}
		commitment := crypto.Commit(h, up.Value, up.CommitmentNonce.Bytes())
		if crypto.LeafHash(h, commitment, up.Epoch) != up.ExistenceProof.LeafHash {
			return fmt.Errorf("akd/directory: commitment mismatch for v%d: %w", up.Version, ErrCommitmentMismatch)
		}
		if err := tree.VerifyMembership(h, tree.DefaultChildHasher, root, up.ExistenceProof); err != nil {
			return fmt.Errorf("akd/directory: existence proof for v%d: %w", up.Version, err)
		}

		if up.HasStaleness {
			staleLabel, err := verifyLabel(h, verifier, user, crypto.Stale, up.Version-1, up.VRFProofStale)
			if err != nil {
				return err
			}
			if !staleLabel.Equal(up.StaleProof.Label) {
				return fmt.Errorf("akd/directory: staleness label mismatch for v%d: %w", up.Version, ErrVrfVerificationFail)
			}
			if err := tree.VerifyMembership(h, tree.DefaultChildHasher, root, up.StaleProof); err != nil {
				return fmt.Errorf("akd/directory: staleness proof for v%d: %w", up.Version, err)
			}
		}

		if up.HasPriorNonMembership {
			priorRoot, ok := rootHashAt(up.Epoch - 1)
			if !ok {
				return fmt.Errorf("akd/directory: no root hash known for epoch %d: %w", up.Epoch-1, ErrEpochNotPublished)
			}
			if !freshLabel.Equal(up.PriorNonMembershipProof.Label) {
				return fmt.Errorf("akd/directory: prior non-membership label mismatch for v%d: %w", up.Version, ErrVrfVerificationFail)
			}
			if err := tree.VerifyNonMembership(h, tree.DefaultChildHasher, priorRoot, up.PriorNonMembershipProof); err != nil {
				return fmt.Errorf("akd/directory: prior non-membership proof for v%d: %w", up.Version, err)
			}
		}

		boundRoot, ok := rootHashAt(up.BoundEpoch)
		if !ok {
			return fmt.Errorf("akd/directory: no root hash known for epoch %d: %w", up.BoundEpoch, ErrEpochNotPublished)
		}
		for _, vn := range append(append([]VersionNonMembership(nil), up.NoSkippedVersions...), up.NoFutureMarkers...) {
			label, err := verifyLabel(h, verifier, user, crypto.Fresh, vn.Version, vn.VRFProof)
			if err != nil {
				return err
			}
			if !label.Equal(vn.Proof.Label) {
				return fmt.Errorf("akd/directory: no-skip label mismatch for v%d: %w", vn.Version, ErrVrfVerificationFail)
			}
			if err := tree.VerifyNonMembership(h, tree.DefaultChildHasher, boundRoot, vn.Proof); err != nil {
				return fmt.Errorf("akd/directory: no-skip proof for v%d: %w", vn.Version, err)
			}
		}

		prevVersion, prevEpoch = up.Version, up.Epoch
	}
	return nil
}
