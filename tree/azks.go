package tree

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/openakd/akd/crypto"
)

// ChildHasher computes an interior node's hash from its two children's
// (hash, label) pairs. It is pluggable per the spec's design note (§9):
// the default, DefaultChildHasher, is a single hash over the
// concatenated (hash, label) pairs; a caller needing the abandoned
// FIXME(#344) alternative (never reproduced here, see DESIGN.md) can
// supply their own.
type ChildHasher func(h crypto.Hasher, leftHash crypto.Digest, leftLabel NodeLabel, rightHash crypto.Digest, rightLabel NodeLabel) crypto.Digest

// DefaultChildHasher implements H(hash(L)||label(L) || hash(R)||label(R)).
func DefaultChildHasher(h crypto.Hasher, leftHash crypto.Digest, leftLabel NodeLabel, rightHash crypto.Digest, rightLabel NodeLabel) crypto.Digest {
	buf := make([]byte, 0, 2*(crypto.DigestBytes+34))
	buf = append(buf, leftHash.Bytes()...)
	buf = append(buf, leftLabel.Bytes()...)
	buf = append(buf, rightHash.Bytes()...)
	buf = append(buf, rightLabel.Bytes()...)
	return h.Digest(buf)
}

// Leaf is one element of a batch_insert call: a VRF-derived label and the
// leaf hash (already bound to a commitment and epoch by the caller — the
// directory layer, which owns the commitment scheme).
type Leaf struct {
	Label NodeLabel
	Hash  crypto.Digest
}

// Option configures an AZKS at construction time.
type Option func(*AZKS)

// WithChildHasher overrides the interior-node hashing routine.
func WithChildHasher(fn ChildHasher) Option {
	return func(a *AZKS) { a.childHasher = fn }
}

// AZKS is the append-only zero-knowledge set: a single tree with
// versioned interior hashes, backed by a Store.
type AZKS struct {
	store       Store
	hasher      crypto.Hasher
	childHasher ChildHasher

	// mu serializes publish (single-writer, spec §5). Readers go
	// straight to the store and do not take this lock.
	mu          sync.Mutex
	latestEpoch uint64
}

// New constructs (or resumes) an AZKS over store. If the store has no
// root yet, it is initialized at epoch 0 with empty_root_value =
// H(EMPTY_VALUE), per spec §4.4.
func New(ctx context.Context, store Store, hasher crypto.Hasher, opts ...Option) (*AZKS, error) {
	a := &AZKS{store: store, hasher: hasher, childHasher: DefaultChildHasher}
	for _, opt := range opts {
		opt(a)
	}

	root, err := store.GetRoot(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		empty := hasher.Digest(crypto.EmptyValue)
		rootNode := &Node{
			Kind:      KindRoot,
			Label:     EmptyLabel,
			Snapshots: []Snapshot{{Epoch: 0, Hash: empty}},
		}
		if err := store.SetMany(ctx, []Write{{Kind: KindRoot, Node: rootNode}}); err != nil {
			return nil, err
		}
		a.latestEpoch = 0
		return a, nil
	case err != nil:
		return nil, err
	default:
		if s, ok := root.Latest(); ok {
			a.latestEpoch = s.Epoch
		}
		return a, nil
	}
}

// LatestEpoch returns the highest epoch for which any snapshot exists.
func (a *AZKS) LatestEpoch() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latestEpoch
}

// RootHashAt returns the root's snapshot hash at or before epoch.
func (a *AZKS) RootHashAt(ctx context.Context, epoch uint64) (crypto.Digest, error) {
	root, err := a.store.GetRoot(ctx)
	if err != nil {
		return crypto.Digest{}, err
	}
	snap, ok := root.LatestAt(epoch)
	if !ok {
		return crypto.Digest{}, ErrEpochNotPublished
	}
	return snap.Hash, nil
}

func kindForLabel(l NodeLabel) NodeKind {
	switch {
	case l.Len() == 0:
		return KindRoot
	case l.Len() >= MaxLabelBits:
		return KindLeaf
	default:
		return KindInterior
	}
}

// workingSet is a mutex-guarded node cache used during a single
// batch_insert call. It is shared (and mutated) by the sequential
// placement phase and the concurrent bottom-up recompute phase.
type workingSet struct {
	mu sync.Mutex
	m  map[string]*Node
}

func newWorkingSet() *workingSet {
	return &workingSet{m: make(map[string]*Node)}
}

func (w *workingSet) get(key string) (*Node, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, ok := w.m[key]
	return n, ok
}

func (w *workingSet) set(key string, n *Node) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.m[key] = n
}

func (a *AZKS) loadNode(ctx context.Context, ws *workingSet, label NodeLabel) (*Node, error) {
	if n, ok := ws.get(label.Key()); ok {
		return n, nil
	}
	n, err := a.store.Get(ctx, kindForLabel(label), label)
	if err != nil {
		return nil, err
	}
	ws.set(label.Key(), n)
	return n, nil
}

// BatchInsert is the central AZKS algorithm (spec §4.4): sort the
// leaves, place each one by descending from the root (empty child /
// descend / collision), then recompute every touched interior's
// epoch-`nextEpoch` snapshot bottom-up. It is all-or-nothing: nothing is
// written to the store unless every leaf and every touched interior
// snapshot can be.
func (a *AZKS) BatchInsert(ctx context.Context, leaves []Leaf, nextEpoch uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(leaves) == 0 {
		return ErrEmptyBatch
	}

	sorted := append([]Leaf(nil), leaves...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Label.Compare(sorted[j].Label) < 0
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Label.Equal(sorted[i-1].Label) {
			return ErrDuplicateInsertion
		}
	}

	if nextEpoch <= a.latestEpoch {
		replayed, err := a.isIdempotentReplay(ctx, sorted, nextEpoch)
		if err != nil {
			return err
		}
		if replayed {
			return nil
		}
		return ErrEpochNotMonotonic
	}

	root, err := a.store.GetRoot(ctx)
	if err != nil {
		return err
	}
	ws := newWorkingSet()
	ws.set(EmptyLabel.Key(), root)

	touchedInteriors := map[string]bool{}
	for _, leaf := range sorted {
		if _, ok := ws.get(leaf.Label.Key()); ok {
			// Already placed by an earlier element of this same batch —
			// cannot happen after the duplicate check above, but keep
			// BatchInsert total rather than assuming it.
			return ErrDuplicateInsertion
		}
		if err := a.placeLeaf(ctx, ws, touchedInteriors, leaf, nextEpoch); err != nil {
			return err
		}
	}

	if err := a.recomputeTouched(ctx, ws, touchedInteriors, nextEpoch); err != nil {
		return err
	}

	writes := make([]Write, 0, len(touchedInteriors)+len(sorted))
	for key := range touchedInteriors {
		n, _ := ws.get(key)
		writes = append(writes, Write{Kind: kindForLabel(n.Label), Node: n})
	}
	for _, leaf := range sorted {
		n, _ := ws.get(leaf.Label.Key())
		writes = append(writes, Write{Kind: KindLeaf, Node: n})
	}

	if err := a.store.SetMany(ctx, writes); err != nil {
		return err
	}
	a.latestEpoch = nextEpoch
	return nil
}

func (a *AZKS) isIdempotentReplay(ctx context.Context, leaves []Leaf, epoch uint64) (bool, error) {
	for _, leaf := range leaves {
		n, err := a.store.Get(ctx, KindLeaf, leaf.Label)
		if err != nil {
			return false, nil
		}
		snap, ok := n.LatestAt(epoch)
		if !ok || snap.Epoch != epoch || snap.Hash != leaf.Hash {
			return false, nil
		}
	}
	return true, nil
}

// placeLeaf descends from the root to find leaf's position, handling the
// three cases of spec §4.4 step 2, and marks every interior it passes
// through (including the root) as touched, since each one's hash depends
// on the subtree that is about to change.
func (a *AZKS) placeLeaf(ctx context.Context, ws *workingSet, touched map[string]bool, leaf Leaf, epoch uint64) error {
	cur, _ := ws.get(EmptyLabel.Key())

	for {
		touched[cur.Label.Key()] = true
		bitIdx := cur.Label.Len()
		goRight := leaf.Label.BitAt(bitIdx)

		childRefPtr := &cur.Left
		if goRight {
			childRefPtr = &cur.Right
		}

		if *childRefPtr == nil {
			leafNode := &Node{
				Kind:      KindLeaf,
				Label:     leaf.Label,
				Snapshots: []Snapshot{{Epoch: epoch, Hash: leaf.Hash}},
			}
			ws.set(leaf.Label.Key(), leafNode)
			*childRefPtr = &ChildRef{Label: leaf.Label}
			return nil
		}

		childLabel := (*childRefPtr).Label
		if leaf.Label.Equal(childLabel) {
			return ErrRepeatedLabel
		}

		if childLabel.Len() < leaf.Label.Len() && leaf.Label.HasPrefix(childLabel) {
			child, err := a.loadNode(ctx, ws, childLabel)
			if err != nil {
				return err
			}
			cur = child
			continue
		}

		// Collision: create a new interior at the longest common prefix
		// of the existing child and the new leaf, and re-parent both.
		lcp := leaf.Label.CommonPrefixLen(childLabel)
		newInteriorLabel := leaf.Label.Truncate(lcp)
		newInterior := &Node{Kind: KindInterior, Label: newInteriorLabel}
		leafNode := &Node{
			Kind:      KindLeaf,
			Label:     leaf.Label,
			Snapshots: []Snapshot{{Epoch: epoch, Hash: leaf.Hash}},
		}
		if leaf.Label.BitAt(lcp) {
			newInterior.Right = &ChildRef{Label: leaf.Label}
			newInterior.Left = &ChildRef{Label: childLabel}
		} else {
			newInterior.Left = &ChildRef{Label: leaf.Label}
			newInterior.Right = &ChildRef{Label: childLabel}
		}
		ws.set(newInteriorLabel.Key(), newInterior)
		ws.set(leaf.Label.Key(), leafNode)
		touched[newInteriorLabel.Key()] = true
		*childRefPtr = &ChildRef{Label: newInteriorLabel}
		return nil
	}
}

// recomputeTouched walks the touched interiors bottom-up (deepest label
// first), appending an epoch snapshot to each. Nodes at the same depth
// are independent of one another and are recomputed concurrently via
// errgroup (spec §5: publish may issue concurrent I/O; §9: any
// parallelism during batch_insert must observe a topological order —
// here, depth level is the barrier between levels).
func (a *AZKS) recomputeTouched(ctx context.Context, ws *workingSet, touched map[string]bool, epoch uint64) error {
	byDepth := map[int][]*Node{}
	maxDepth := 0
	for key := range touched {
		n, _ := ws.get(key)
		d := n.Label.Len()
		byDepth[d] = append(byDepth[d], n)
		if d > maxDepth {
			maxDepth = d
		}
	}

	for depth := maxDepth; depth >= 0; depth-- {
		nodes := byDepth[depth]
		if len(nodes) == 0 {
			continue
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, n := range nodes {
			n := n
			g.Go(func() error {
				h, err := a.computeInteriorHash(gctx, ws, n, epoch)
				if err != nil {
					return err
				}
				n.Snapshots = append(n.Snapshots, Snapshot{Epoch: epoch, Hash: h})
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (a *AZKS) computeInteriorHash(ctx context.Context, ws *workingSet, n *Node, epoch uint64) (crypto.Digest, error) {
	lh, ll, err := a.childSnapshot(ctx, ws, n.Left, epoch)
	if err != nil {
		return crypto.Digest{}, err
	}
	rh, rl, err := a.childSnapshot(ctx, ws, n.Right, epoch)
	if err != nil {
		return crypto.Digest{}, err
	}
	return a.childHasher(a.hasher, lh, ll, rh, rl), nil
}

func (a *AZKS) childSnapshot(ctx context.Context, ws *workingSet, ref *ChildRef, epoch uint64) (crypto.Digest, NodeLabel, error) {
	if ref == nil {
		return a.hasher.Digest(crypto.EmptyValue), EmptyLabel, nil
	}
	child, err := a.loadNode(ctx, ws, ref.Label)
	if err != nil {
		return crypto.Digest{}, NodeLabel{}, err
	}
	snap, ok := child.LatestAt(epoch)
	if !ok {
		return crypto.Digest{}, NodeLabel{}, ErrEpochNotPublished
	}
	return snap.Hash, child.Label, nil
}
