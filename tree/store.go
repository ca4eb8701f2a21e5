package tree

import (
	"context"
	"errors"

	"github.com/openakd/akd/crypto"
)

// NodeKind distinguishes the three node kinds persisted by the store.
type NodeKind byte

const (
	KindRoot NodeKind = iota
	KindInterior
	KindLeaf
)

func (k NodeKind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindInterior:
		return "interior"
	case KindLeaf:
		return "leaf"
	default:
		return "unknown"
	}
}

// Snapshot is a (epoch, hash) pair. A node's Snapshots slice is strictly
// increasing in Epoch (I3) and is only ever appended to, never mutated
// or truncated (I4).
type Snapshot struct {
	Epoch uint64
	Hash  crypto.Digest
}

// ChildRef is a back-link from a parent to one child: just the child's
// label, enough to fetch it from the store on demand. There are no
// parent pointers and no cycles; proof generation descends from the
// root along these links rather than climbing from a leaf.
type ChildRef struct {
	Label NodeLabel
}

// Node is the persisted representation of one tree node.
type Node struct {
	Kind  NodeKind
	Label NodeLabel

	// Left and Right are populated only for KindRoot/KindInterior nodes.
	// A nil ref means that child is empty.
	Left, Right *ChildRef

	Snapshots []Snapshot
}

// LatestAt returns the snapshot with the greatest epoch <= at, and
// whether one exists.
func (n *Node) LatestAt(at uint64) (Snapshot, bool) {
	var best Snapshot
	found := false
	for _, s := range n.Snapshots {
		if s.Epoch <= at && (!found || s.Epoch > best.Epoch) {
			best = s
			found = true
		}
	}
	return best, found
}

// Latest returns the most recent snapshot, and whether one exists.
func (n *Node) Latest() (Snapshot, bool) {
	if len(n.Snapshots) == 0 {
		return Snapshot{}, false
	}
	return n.Snapshots[len(n.Snapshots)-1], true
}

// Key returns a canonical map/store key for a label, since NodeLabel
// itself (backed by a *bitset.BitSet) is not directly comparable.
func (l NodeLabel) Key() string {
	return string(l.Bytes())
}

// ErrNotFound is returned by Store.Get and Store.GetRoot when no node is
// stored at the given key.
var ErrNotFound = errors.New("akd/tree: node not found")

// Write is one element of a SetMany batch.
type Write struct {
	Kind NodeKind
	Node *Node
}

// Store is the narrow interface the AZKS consumes from the external
// storage collaborator (spec §4.3, §6). Durable implementations are out
// of scope for this module; MemStore (memstore.go) is the in-memory reference
// implementation used for tests and as the default.
//
// The store must provide read-your-writes within a single epoch; it is
// not required to be multi-writer safe, since publish is serialized
// (spec §5).
type Store interface {
	// Get fetches a single node by kind and label.
	Get(ctx context.Context, kind NodeKind, label NodeLabel) (*Node, error)
	// GetBatch fetches several nodes of the same kind at once.
	GetBatch(ctx context.Context, kind NodeKind, labels []NodeLabel) (map[string]*Node, error)
	// SetMany writes a batch atomically (best-effort for in-memory
	// collaborators). BatchInsert returns a SetMany error to its caller
	// as is; nothing in this module retries a failed SetMany.
	SetMany(ctx context.Context, writes []Write) error
	// GetRoot fetches the root node.
	GetRoot(ctx context.Context) (*Node, error)
}
