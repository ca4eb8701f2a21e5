package tree

import (
	"sort"

	"github.com/openakd/akd/crypto"
)

// VerifyMembership checks that proof, folded bottom-up against
// expectedRootHash, is a valid proof that proof.Label held proof.LeafHash
// at proof.Epoch. It never panics, even on a malformed or adversarial
// proof.
func VerifyMembership(h crypto.Hasher, ch ChildHasher, expectedRootHash crypto.Digest, proof MembershipProof) error {
	got := fold(h, ch, proof.LeafHash, proof.Label, proof.Path)
	if got != expectedRootHash {
		return failVerification(ReasonHashMismatch, "recomputed root does not match expected root hash")
	}
	return nil
}

// VerifyNonMembership checks that proof, folded bottom-up against
// expectedRootHash, is a valid proof that proof.Label was absent at
// proof.Epoch.
func VerifyNonMembership(h crypto.Hasher, ch ChildHasher, expectedRootHash crypto.Digest, proof NonMembershipProof) error {
	var terminalHash crypto.Digest
	if proof.TerminalLabel.IsEmpty() {
		terminalHash = h.Digest(crypto.EmptyValue)
	} else {
		if proof.TerminalLabel.Equal(proof.Label) {
			return failVerification(ReasonNonMembershipInvalid, "terminal node has the queried label")
		}
		if len(proof.Path) == 0 {
			return failVerification(ReasonMissingSibling, "non-membership proof has an empty path")
		}
		parent := proof.Path[len(proof.Path)-1].AncestorLabel
		cpl := proof.Label.CommonPrefixLen(proof.TerminalLabel)
		if cpl <= parent.Len() || cpl >= proof.TerminalLabel.Len() {
			return failVerification(ReasonNonMembershipInvalid, "terminal node does not diverge from the queried label below its parent")
		}
		terminalHash = proof.TerminalHash
	}

	got := fold(h, ch, terminalHash, proof.TerminalLabel, proof.Path)
	if got != expectedRootHash {
		return failVerification(ReasonHashMismatch, "recomputed root does not match expected root hash")
	}
	return nil
}

// fold recomputes the root hash by applying path from the bottom
// (closest to the terminal value) to the top. selfLabel is the label of
// the node the fold starts from (the queried leaf, or the empty/
// different-leaf terminal); at each step up, the node just folded is
// identified to its parent by the path element's own AncestorLabel,
// since the interior hash formula takes both a child's hash and its
// label.
func fold(h crypto.Hasher, ch ChildHasher, selfHash crypto.Digest, selfLabel NodeLabel, path []PathElement) crypto.Digest {
	cur, curLabel := selfHash, selfLabel
	for i := len(path) - 1; i >= 0; i-- {
		elem := path[i]
		if elem.SelfIsLeft {
			cur = ch(h, cur, curLabel, elem.SiblingHash, elem.SiblingLabel)
		} else {
			cur = ch(h, elem.SiblingHash, elem.SiblingLabel, cur, curLabel)
		}
		curLabel = elem.AncestorLabel
	}
	return cur
}

// VerifyAppendOnlyProof checks that proof's InsertedNodes and
// UnchangedNodes recompute to newRootHash, and that the prior hashes
// they carry (UnchangedNodes directly, InsertedNodes via PrevHash where
// Existed) recompute to prevRootHash — i.e. that the proof is an
// honest, rewrite-free extension from prevRootHash to newRootHash, not
// merely an internally-consistent new tree. It also rejects a label
// appearing more than once across UnchangedNodes/InsertedNodes, which
// would let a forged proof claim a node was simultaneously untouched
// and rewritten. Chaining a sequence of these proofs across a wider
// epoch range — so step i's prevRootHash is step i-1's already-checked
// newRootHash — is the caller's responsibility; see the audit walk that
// calls this per epoch step.
func VerifyAppendOnlyProof(h crypto.Hasher, ch ChildHasher, prevRootHash, newRootHash crypto.Digest, proof AppendOnlyProof) error {
	known := make(map[string]crypto.Digest, len(proof.UnchangedNodes)+len(proof.InsertedNodes))
	prevKnown := make(map[string]crypto.Digest, len(proof.UnchangedNodes)+len(proof.InsertedNodes))
	for _, u := range proof.UnchangedNodes {
		known[u.Label.Key()] = u.Hash
		prevKnown[u.Label.Key()] = u.Hash
	}

	sorted := append([]AppendOnlyNode(nil), proof.InsertedNodes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Label.Len() > sorted[j].Label.Len() })

	for _, n := range sorted {
		if _, dup := known[n.Label.Key()]; dup {
			return failVerification(ReasonAppendOnlyViolation, "label appears more than once in the proof")
		}
		if n.IsLeaf && n.Existed {
			return failVerification(ReasonAppendOnlyViolation, "leaf present at the previous epoch was rewritten")
		}
		if n.Existed {
			prevKnown[n.Label.Key()] = n.PrevHash
		}
		if n.IsLeaf {
			known[n.Label.Key()] = n.Hash
			continue
		}
		leftHash, leftLabel := childContribution(h, known, n.LeftLabel)
		rightHash, rightLabel := childContribution(h, known, n.RightLabel)
		got := ch(h, leftHash, leftLabel, rightHash, rightLabel)
		if got != n.Hash {
			return failVerification(ReasonHashMismatch, "inserted node hash does not match its children")
		}
		known[n.Label.Key()] = n.Hash
	}

	root, ok := known[EmptyLabel.Key()]
	if !ok {
		return failVerification(ReasonMissingSibling, "proof does not account for the root")
	}
	if root != newRootHash {
		return failVerification(ReasonAppendOnlyViolation, "recomputed root does not match claimed new root hash")
	}

	prevRoot, ok := prevKnown[EmptyLabel.Key()]
	if !ok {
		return failVerification(ReasonMissingSibling, "proof does not account for the predecessor root")
	}
	if prevRoot != prevRootHash {
		return failVerification(ReasonAppendOnlyViolation, "recomputed predecessor root does not match claimed prior root hash")
	}
	return nil
}

func childContribution(h crypto.Hasher, known map[string]crypto.Digest, label NodeLabel) (crypto.Digest, NodeLabel) {
	if label.IsEmpty() {
		return h.Digest(crypto.EmptyValue), EmptyLabel
	}
	hash, ok := known[label.Key()]
	if !ok {
		return crypto.Digest{}, NodeLabel{}
	}
	return hash, label
}
