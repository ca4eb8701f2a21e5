package tree

import (
	"context"
	"testing"

	"github.com/openakd/akd/crypto"
)

func fullLabel(h crypto.Hasher, seed string) NodeLabel {
	d := h.Digest([]byte(seed))
	return NodeLabelFromBytes(d[:], MaxLabelBits)
}

func leafHash(h crypto.Hasher, seed string) crypto.Digest {
	return h.Digest([]byte("value:" + seed))
}

func newTestAZKS(t *testing.T) (*AZKS, crypto.Hasher) {
	t.Helper()
	h := crypto.NewSHA256Hasher()
	a, err := New(context.Background(), NewMemStore(), h)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, h
}

func TestBatchInsertEmptyBatchRejected(t *testing.T) {
	a, _ := newTestAZKS(t)
	if err := a.BatchInsert(context.Background(), nil, 1); err != ErrEmptyBatch {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestBatchInsertDuplicateLabelInBatchRejected(t *testing.T) {
	a, h := newTestAZKS(t)
	l := fullLabel(h, "alice")
	leaves := []Leaf{{Label: l, Hash: leafHash(h, "1")}, {Label: l, Hash: leafHash(h, "2")}}
	if err := a.BatchInsert(context.Background(), leaves, 1); err != ErrDuplicateInsertion {
		t.Fatalf("expected ErrDuplicateInsertion, got %v", err)
	}
}

func TestBatchInsertRepeatedLabelAcrossEpochsRejected(t *testing.T) {
	a, h := newTestAZKS(t)
	ctx := context.Background()
	l := fullLabel(h, "alice")
	if err := a.BatchInsert(ctx, []Leaf{{Label: l, Hash: leafHash(h, "1")}}, 1); err != nil {
		t.Fatal(err)
	}
	err := a.BatchInsert(ctx, []Leaf{{Label: l, Hash: leafHash(h, "2")}}, 2)
	if err != ErrRepeatedLabel {
		t.Fatalf("expected ErrRepeatedLabel, got %v", err)
	}
}

func TestBatchInsertEpochMustAdvance(t *testing.T) {
	a, h := newTestAZKS(t)
	ctx := context.Background()
	l := fullLabel(h, "alice")
	if err := a.BatchInsert(ctx, []Leaf{{Label: l, Hash: leafHash(h, "1")}}, 5); err != nil {
		t.Fatal(err)
	}
	l2 := fullLabel(h, "bob")
	if err := a.BatchInsert(ctx, []Leaf{{Label: l2, Hash: leafHash(h, "1")}}, 3); err != ErrEpochNotMonotonic {
		t.Fatalf("expected ErrEpochNotMonotonic, got %v", err)
	}
}

func TestBatchInsertIsIdempotentOnExactReplay(t *testing.T) {
	a, h := newTestAZKS(t)
	ctx := context.Background()
	leaves := []Leaf{{Label: fullLabel(h, "alice"), Hash: leafHash(h, "1")}}
	if err := a.BatchInsert(ctx, leaves, 1); err != nil {
		t.Fatal(err)
	}
	root1, err := a.RootHashAt(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.BatchInsert(ctx, leaves, 1); err != nil {
		t.Fatalf("replaying the same batch at the same epoch should be a no-op, got %v", err)
	}
	root2, err := a.RootHashAt(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if root1 != root2 {
		t.Fatal("idempotent replay must not change the root hash")
	}
}

func TestRootHashChangesAcrossEpochs(t *testing.T) {
	a, h := newTestAZKS(t)
	ctx := context.Background()
	if err := a.BatchInsert(ctx, []Leaf{{Label: fullLabel(h, "alice"), Hash: leafHash(h, "1")}}, 1); err != nil {
		t.Fatal(err)
	}
	root1, err := a.RootHashAt(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.BatchInsert(ctx, []Leaf{{Label: fullLabel(h, "bob"), Hash: leafHash(h, "1")}}, 2); err != nil {
		t.Fatal(err)
	}
	root2, err := a.RootHashAt(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if root1 == root2 {
		t.Fatal("inserting a new leaf must change the root hash")
	}
	// Root hash at the earlier epoch must remain exactly as it was
	// (append-only: past snapshots are never overwritten).
	again, err := a.RootHashAt(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if again != root1 {
		t.Fatal("root_hash_at(1) changed after a later batch_insert — append-only invariant violated")
	}
}

func TestBatchInsertManyLeavesRootHashIsOrderIndependent(t *testing.T) {
	h := crypto.NewSHA256Hasher()
	seeds := []string{"alice", "bob", "carol", "dave", "eve", "frank"}

	leavesA := make([]Leaf, len(seeds))
	for i, s := range seeds {
		leavesA[i] = Leaf{Label: fullLabel(h, s), Hash: leafHash(h, s)}
	}
	leavesB := make([]Leaf, len(seeds))
	copy(leavesB, leavesA)
	for i, j := 0, len(leavesB)-1; i < j; i, j = i+1, j-1 {
		leavesB[i], leavesB[j] = leavesB[j], leavesB[i]
	}

	aA, _ := New(context.Background(), NewMemStore(), h)
	if err := aA.BatchInsert(context.Background(), leavesA, 1); err != nil {
		t.Fatal(err)
	}
	aB, _ := New(context.Background(), NewMemStore(), h)
	if err := aB.BatchInsert(context.Background(), leavesB, 1); err != nil {
		t.Fatal(err)
	}

	rootA, err := aA.RootHashAt(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	rootB, err := aB.RootHashAt(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if rootA != rootB {
		t.Fatal("batch_insert's result must not depend on the caller's input ordering")
	}
}
