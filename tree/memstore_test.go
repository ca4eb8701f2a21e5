package tree

import (
	"context"
	"errors"
	"testing"

	"github.com/openakd/akd/crypto"
)

func TestMemStoreGetNotFound(t *testing.T) {
	m := NewMemStore()
	_, err := m.Get(context.Background(), KindLeaf, EmptyLabel)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStoreSetManyAllOrNothing(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	writes := []Write{
		{Kind: KindLeaf, Node: &Node{Kind: KindLeaf, Label: bits("1")}},
		{Kind: KindLeaf, Node: nil},
	}
	if err := m.SetMany(ctx, writes); err == nil {
		t.Fatal("expected an error for a nil node in the batch")
	}
	if _, err := m.Get(ctx, KindLeaf, bits("1")); !errors.Is(err, ErrNotFound) {
		t.Fatal("a rejected batch must not partially apply")
	}
}

func TestMemStoreGetReturnsIndependentCopies(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	n := &Node{Kind: KindLeaf, Label: bits("1"), Snapshots: []Snapshot{{Epoch: 1, Hash: crypto.Digest{1}}}}
	if err := m.SetMany(ctx, []Write{{Kind: KindLeaf, Node: n}}); err != nil {
		t.Fatal(err)
	}
	got, err := m.Get(ctx, KindLeaf, bits("1"))
	if err != nil {
		t.Fatal(err)
	}
	got.Snapshots[0].Hash[0] = 0xff
	again, err := m.Get(ctx, KindLeaf, bits("1"))
	if err != nil {
		t.Fatal(err)
	}
	if again.Snapshots[0].Hash[0] == 0xff {
		t.Fatal("mutating a Get result must not affect the store's own copy")
	}
}

func TestMemStoreGetBatch(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	a := &Node{Kind: KindLeaf, Label: bits("10")}
	b := &Node{Kind: KindLeaf, Label: bits("11")}
	if err := m.SetMany(ctx, []Write{{Kind: KindLeaf, Node: a}, {Kind: KindLeaf, Node: b}}); err != nil {
		t.Fatal(err)
	}
	out, err := m.GetBatch(ctx, KindLeaf, []NodeLabel{bits("10"), bits("11"), bits("00")})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 results for 2 present labels, got %d", len(out))
	}
}
