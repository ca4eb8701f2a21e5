package tree

import (
	"context"
	"errors"
	"testing"

	"github.com/openakd/akd/crypto"
)

func TestMembershipProofRoundTrip(t *testing.T) {
	a, h := newTestAZKS(t)
	ctx := context.Background()
	seeds := []string{"alice", "bob", "carol", "dave"}
	leaves := make([]Leaf, len(seeds))
	for i, s := range seeds {
		leaves[i] = Leaf{Label: fullLabel(h, s), Hash: leafHash(h, s)}
	}
	if err := a.BatchInsert(ctx, leaves, 1); err != nil {
		t.Fatal(err)
	}
	root, err := a.RootHashAt(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}

	for _, s := range seeds {
		proof, err := a.MembershipProof(ctx, fullLabel(h, s), 1)
		if err != nil {
			t.Fatalf("MembershipProof(%s): %v", s, err)
		}
		if err := VerifyMembership(h, DefaultChildHasher, root, proof); err != nil {
			t.Fatalf("VerifyMembership(%s): %v", s, err)
		}
	}
}

func TestMembershipProofRejectsWrongRoot(t *testing.T) {
	a, h := newTestAZKS(t)
	ctx := context.Background()
	if err := a.BatchInsert(ctx, []Leaf{{Label: fullLabel(h, "alice"), Hash: leafHash(h, "1")}}, 1); err != nil {
		t.Fatal(err)
	}
	proof, err := a.MembershipProof(ctx, fullLabel(h, "alice"), 1)
	if err != nil {
		t.Fatal(err)
	}
	wrongRoot := h.Digest([]byte("not the root"))
	var verr *VerificationError
	err = VerifyMembership(h, DefaultChildHasher, wrongRoot, proof)
	if !errors.As(err, &verr) {
		t.Fatalf("expected a *VerificationError, got %v", err)
	}
	if !errors.Is(err, ErrProofVerificationFailed) {
		t.Fatal("expected errors.Is to match ErrProofVerificationFailed")
	}
}

// TestMembershipProofVariantsAllFailVerification mirrors the predecessor
// implementation's practice of generating a valid proof once and then
// checking that every single-field mutation of it fails verification,
// rather than hand-writing one failing case per field.
func TestMembershipProofVariantsAllFailVerification(t *testing.T) {
	a, h := newTestAZKS(t)
	ctx := context.Background()
	seeds := []string{"alice", "bob", "carol", "dave", "eve"}
	leaves := make([]Leaf, len(seeds))
	for i, s := range seeds {
		leaves[i] = Leaf{Label: fullLabel(h, s), Hash: leafHash(h, s)}
	}
	if err := a.BatchInsert(ctx, leaves, 1); err != nil {
		t.Fatal(err)
	}
	root, err := a.RootHashAt(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	proof, err := a.MembershipProof(ctx, fullLabel(h, "carol"), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(proof.Path) == 0 {
		t.Fatal("test setup expected a non-trivial proof path")
	}

	mutate := func(mutateFn func(*MembershipProof)) bool {
		p := proof
		p.Path = append([]PathElement(nil), proof.Path...)
		mutateFn(&p)
		return VerifyMembership(h, DefaultChildHasher, root, p) == nil
	}

	if mutate(func(p *MembershipProof) { p.LeafHash[0] ^= 0xff }) {
		t.Error("flipping the leaf hash must fail verification")
	}
	if mutate(func(p *MembershipProof) { p.Path[0].SiblingHash[0] ^= 0xff }) {
		t.Error("flipping a sibling hash must fail verification")
	}
	if mutate(func(p *MembershipProof) { p.Path[0].SelfIsLeft = !p.Path[0].SelfIsLeft }) {
		t.Error("flipping a side bit must fail verification")
	}
	if mutate(func(p *MembershipProof) { p.Path = p.Path[1:] }) {
		t.Error("truncating the path must fail verification")
	}
}

func TestNonMembershipProofAbsentInterior(t *testing.T) {
	a, h := newTestAZKS(t)
	ctx := context.Background()
	if err := a.BatchInsert(ctx, []Leaf{{Label: fullLabel(h, "alice"), Hash: leafHash(h, "1")}}, 1); err != nil {
		t.Fatal(err)
	}
	root, err := a.RootHashAt(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}

	proof, err := a.NonMembershipProof(ctx, fullLabel(h, "someone-else"), 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifyNonMembership(h, DefaultChildHasher, root, proof); err != nil {
		t.Fatalf("VerifyNonMembership: %v", err)
	}
}

func TestNonMembershipProofRejectsActualMember(t *testing.T) {
	a, h := newTestAZKS(t)
	ctx := context.Background()
	l := fullLabel(h, "alice")
	if err := a.BatchInsert(ctx, []Leaf{{Label: l, Hash: leafHash(h, "1")}}, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := a.NonMembershipProof(ctx, l, 1); err != ErrRepeatedLabel {
		t.Fatalf("expected ErrRepeatedLabel when asking for non-membership of a real member, got %v", err)
	}
}

func TestAppendOnlyProofRoundTrip(t *testing.T) {
	a, h := newTestAZKS(t)
	ctx := context.Background()
	if err := a.BatchInsert(ctx, []Leaf{{Label: fullLabel(h, "alice"), Hash: leafHash(h, "1")}}, 1); err != nil {
		t.Fatal(err)
	}
	if err := a.BatchInsert(ctx, []Leaf{{Label: fullLabel(h, "bob"), Hash: leafHash(h, "1")}}, 2); err != nil {
		t.Fatal(err)
	}

	proof, err := a.AppendOnlyProofAt(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	root1, err := a.RootHashAt(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	root2, err := a.RootHashAt(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifyAppendOnlyProof(h, DefaultChildHasher, root1, root2, proof); err != nil {
		t.Fatalf("VerifyAppendOnlyProof: %v", err)
	}
}

func TestAppendOnlyProofRejectsTamperedInsertedHash(t *testing.T) {
	a, h := newTestAZKS(t)
	ctx := context.Background()
	if err := a.BatchInsert(ctx, []Leaf{{Label: fullLabel(h, "alice"), Hash: leafHash(h, "1")}}, 1); err != nil {
		t.Fatal(err)
	}
	if err := a.BatchInsert(ctx, []Leaf{{Label: fullLabel(h, "bob"), Hash: leafHash(h, "1")}}, 2); err != nil {
		t.Fatal(err)
	}
	proof, err := a.AppendOnlyProofAt(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	root1, err := a.RootHashAt(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	root2, err := a.RootHashAt(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	proof.InsertedNodes[0].Hash[0] ^= 0xff
	if err := VerifyAppendOnlyProof(h, DefaultChildHasher, root1, root2, proof); err == nil {
		t.Fatal("expected tampering with an inserted node's hash to fail verification")
	}
}

func TestAppendOnlyProofRejectsWrongPredecessorRoot(t *testing.T) {
	a, h := newTestAZKS(t)
	ctx := context.Background()
	if err := a.BatchInsert(ctx, []Leaf{{Label: fullLabel(h, "alice"), Hash: leafHash(h, "1")}}, 1); err != nil {
		t.Fatal(err)
	}
	if err := a.BatchInsert(ctx, []Leaf{{Label: fullLabel(h, "bob"), Hash: leafHash(h, "1")}}, 2); err != nil {
		t.Fatal(err)
	}
	proof, err := a.AppendOnlyProofAt(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	root2, err := a.RootHashAt(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	var wrongPrevRoot crypto.Digest
	if err := VerifyAppendOnlyProof(h, DefaultChildHasher, wrongPrevRoot, root2, proof); err == nil {
		t.Fatal("expected a wrong predecessor root to fail verification")
	}
}

func TestAppendOnlyProofRejectsDuplicateLabel(t *testing.T) {
	a, h := newTestAZKS(t)
	ctx := context.Background()
	if err := a.BatchInsert(ctx, []Leaf{{Label: fullLabel(h, "alice"), Hash: leafHash(h, "1")}}, 1); err != nil {
		t.Fatal(err)
	}
	if err := a.BatchInsert(ctx, []Leaf{{Label: fullLabel(h, "bob"), Hash: leafHash(h, "1")}}, 2); err != nil {
		t.Fatal(err)
	}
	proof, err := a.AppendOnlyProofAt(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	root1, err := a.RootHashAt(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	root2, err := a.RootHashAt(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(proof.InsertedNodes) == 0 {
		t.Fatal("test setup expected at least one inserted node")
	}
	proof.UnchangedNodes = append(proof.UnchangedNodes, AppendOnlyNode{
		Label: proof.InsertedNodes[0].Label,
		Hash:  proof.InsertedNodes[0].Hash,
	})
	if err := VerifyAppendOnlyProof(h, DefaultChildHasher, root1, root2, proof); err == nil {
		t.Fatal("expected a label duplicated across UnchangedNodes and InsertedNodes to fail verification")
	}
}
