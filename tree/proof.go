package tree

import (
	"context"

	"github.com/openakd/akd/crypto"
)

// PathElement is one step of a root-to-leaf descent: the ancestor
// interior's own label (needed one level up, since the hash formula
// takes each child's label alongside its hash), the sibling that was
// NOT followed, and which side the followed child was on. Path elements
// are ordered top-down (root first); verification folds them bottom-up.
type PathElement struct {
	AncestorLabel NodeLabel
	SiblingLabel  NodeLabel
	SiblingHash   crypto.Digest
	SelfIsLeft    bool
}

// MembershipProof attests that label held value-hash LeafHash at Epoch.
type MembershipProof struct {
	Label    NodeLabel
	Epoch    uint64
	LeafHash crypto.Digest
	Path     []PathElement
}

// NonMembershipProof attests that label was absent from the tree at
// Epoch. TerminalLabel is the zero NodeLabel (IsEmpty) if the descent
// reached an empty child; otherwise it is the label of the node (a
// different leaf, or an interior whose label is not a prefix of label)
// occupying the position label's descent reached.
type NonMembershipProof struct {
	Label         NodeLabel
	Epoch         uint64
	Path          []PathElement
	TerminalLabel NodeLabel
	TerminalHash  crypto.Digest
}

// AppendOnlyNode is one node referenced by an AppendOnlyProof.
type AppendOnlyNode struct {
	Label  NodeLabel
	Hash   crypto.Digest
	IsLeaf bool

	// Left/RightLabel are this node's children at Epoch (zero/IsEmpty
	// if that child is empty). Unused when IsLeaf.
	LeftLabel, RightLabel NodeLabel

	// Existed reports whether this node already had a snapshot at
	// Epoch-1 (its hash changed this epoch rather than the node
	// springing into existence). PrevHash is that prior snapshot's
	// hash, meaningful only when Existed is true. The store (spec §6)
	// versions each node's *hash* across epochs (Snapshots) but not its
	// child-ref structure, so a changed interior's pre-insertion
	// children are not recoverable once superseded — but its prior
	// *hash* is, directly from the node's own Snapshots, which is all
	// VerifyAppendOnlyProof needs to also reconstruct the predecessor
	// root.
	Existed  bool
	PrevHash crypto.Digest
}

// AppendOnlyProof attests that the tree transitions from root hash
// root_{epoch-1} to root hash root_epoch purely by insertion: every
// node either kept its prior hash (UnchangedNodes) or is accounted for
// in InsertedNodes, whose PrevHash/Existed fields let
// VerifyAppendOnlyProof reconstruct and check both endpoints. It is
// scoped to a single published epoch step; auditing a wider range
// chains one proof per intervening epoch.
type AppendOnlyProof struct {
	Epoch          uint64
	UnchangedNodes []AppendOnlyNode
	InsertedNodes  []AppendOnlyNode
}

// MembershipProof generates a proof that label holds its latest
// value-at-or-before epoch.
func (a *AZKS) MembershipProof(ctx context.Context, label NodeLabel, epoch uint64) (MembershipProof, error) {
	path, terminalNode, terminalIsLeaf, err := a.descend(ctx, label, epoch)
	if err != nil {
		return MembershipProof{}, err
	}
	if !terminalIsLeaf || !terminalNode.Label.Equal(label) {
		return MembershipProof{}, ErrNotFound
	}
	snap, ok := terminalNode.LatestAt(epoch)
	if !ok {
		return MembershipProof{}, ErrEpochNotPublished
	}
	return MembershipProof{Label: label, Epoch: epoch, LeafHash: snap.Hash, Path: path}, nil
}

// NonMembershipProof generates a proof that label is absent at epoch.
func (a *AZKS) NonMembershipProof(ctx context.Context, label NodeLabel, epoch uint64) (NonMembershipProof, error) {
	path, terminalNode, terminalIsLeaf, err := a.descend(ctx, label, epoch)
	if err != nil {
		return NonMembershipProof{}, err
	}
	if terminalNode == nil {
		return NonMembershipProof{Label: label, Epoch: epoch, Path: path}, nil
	}
	if terminalIsLeaf && terminalNode.Label.Equal(label) {
		return NonMembershipProof{}, ErrRepeatedLabel
	}
	snap, ok := terminalNode.LatestAt(epoch)
	if !ok {
		return NonMembershipProof{}, ErrEpochNotPublished
	}
	return NonMembershipProof{
		Label:         label,
		Epoch:         epoch,
		Path:          path,
		TerminalLabel: terminalNode.Label,
		TerminalHash:  snap.Hash,
	}, nil
}

// descend walks from the root toward label, following the bit at each
// interior's depth, recording the sibling at every step. It stops at an
// empty child slot (terminalNode == nil), at a leaf (terminalIsLeaf ==
// true), or once it can descend no further because the existing child
// is not a prefix of label.
func (a *AZKS) descend(ctx context.Context, label NodeLabel, epoch uint64) ([]PathElement, *Node, bool, error) {
	cur, err := a.store.GetRoot(ctx)
	if err != nil {
		return nil, nil, false, err
	}

	var path []PathElement
	for {
		bitIdx := cur.Label.Len()
		goRight := label.BitAt(bitIdx)
		selfRef, siblingRef := cur.Left, cur.Right
		if goRight {
			selfRef, siblingRef = cur.Right, cur.Left
		}

		siblingHash := a.hasher.Digest(crypto.EmptyValue)
		siblingLabel := EmptyLabel
		if siblingRef != nil {
			sib, err := a.store.Get(ctx, kindForLabel(siblingRef.Label), siblingRef.Label)
			if err != nil {
				return nil, nil, false, err
			}
			snap, ok := sib.LatestAt(epoch)
			if !ok {
				return nil, nil, false, ErrEpochNotPublished
			}
			siblingHash, siblingLabel = snap.Hash, sib.Label
		}
		path = append(path, PathElement{
			AncestorLabel: cur.Label,
			SiblingLabel:  siblingLabel,
			SiblingHash:   siblingHash,
			SelfIsLeft:    !goRight,
		})

		if selfRef == nil {
			return path, nil, false, nil
		}
		if selfRef.Label.Equal(label) || kindForLabel(selfRef.Label) == KindLeaf {
			next, err := a.store.Get(ctx, kindForLabel(selfRef.Label), selfRef.Label)
			if err != nil {
				return nil, nil, false, err
			}
			return path, next, true, nil
		}
		if !label.HasPrefix(selfRef.Label) {
			next, err := a.store.Get(ctx, kindForLabel(selfRef.Label), selfRef.Label)
			if err != nil {
				return nil, nil, false, err
			}
			return path, next, false, nil
		}
		next, err := a.store.Get(ctx, kindForLabel(selfRef.Label), selfRef.Label)
		if err != nil {
			return nil, nil, false, err
		}
		cur = next
	}
}

// AppendOnlyProofAt builds the append-only proof for the transition
// into epoch, by diffing every node touched during that epoch's
// batch_insert against its state at epoch-1.
func (a *AZKS) AppendOnlyProofAt(ctx context.Context, epoch uint64) (AppendOnlyProof, error) {
	if epoch == 0 {
		return AppendOnlyProof{}, ErrEpochNotPublished
	}

	proof := AppendOnlyProof{Epoch: epoch}
	seenUnchanged := map[string]bool{}

	var walk func(label NodeLabel) (crypto.Digest, error)
	walk = func(label NodeLabel) (crypto.Digest, error) {
		n, err := a.store.Get(ctx, kindForLabel(label), label)
		if err != nil {
			return crypto.Digest{}, err
		}
		cur, curOK := n.LatestAt(epoch)
		prev, prevOK := n.LatestAt(epoch - 1)
		if curOK && prevOK && cur.Epoch == prev.Epoch {
			if !seenUnchanged[label.Key()] {
				seenUnchanged[label.Key()] = true
				proof.UnchangedNodes = append(proof.UnchangedNodes, AppendOnlyNode{Label: label, Hash: cur.Hash})
			}
			return cur.Hash, nil
		}
		if !curOK {
			return crypto.Digest{}, ErrEpochNotPublished
		}
		if n.Kind == KindLeaf {
			proof.InsertedNodes = append(proof.InsertedNodes, AppendOnlyNode{
				Label: label, Hash: cur.Hash, IsLeaf: true,
				Existed: prevOK, PrevHash: prev.Hash,
			})
			return cur.Hash, nil
		}

		node := AppendOnlyNode{
			Label: label, Hash: cur.Hash, LeftLabel: EmptyLabel, RightLabel: EmptyLabel,
			Existed: prevOK, PrevHash: prev.Hash,
		}
		if n.Left != nil {
			node.LeftLabel = n.Left.Label
			if _, err := walk(n.Left.Label); err != nil {
				return crypto.Digest{}, err
			}
		}
		if n.Right != nil {
			node.RightLabel = n.Right.Label
			if _, err := walk(n.Right.Label); err != nil {
				return crypto.Digest{}, err
			}
		}
		proof.InsertedNodes = append(proof.InsertedNodes, node)
		return cur.Hash, nil
	}

	if _, err := walk(EmptyLabel); err != nil {
		return AppendOnlyProof{}, err
	}
	return proof, nil
}
