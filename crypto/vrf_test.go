package crypto

import "testing"

func TestVRFEvaluateVerifyRoundTrip(t *testing.T) {
	signer := NewDeterministicSigner([32]byte{})
	verifier := signer.Verifier()

	msg := []byte("alice")
	proof, out, err := signer.Evaluate(msg)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	got, err := verifier.Verify(msg, proof)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != out {
		t.Fatalf("verify produced a different output hash than evaluate: %x vs %x", got, out)
	}
}

func TestVRFEvaluateIsDeterministic(t *testing.T) {
	signer := NewDeterministicSigner([32]byte{})
	msg := []byte("bob")

	p1, out1, err := signer.Evaluate(msg)
	if err != nil {
		t.Fatal(err)
	}
	p2, out2, err := signer.Evaluate(msg)
	if err != nil {
		t.Fatal(err)
	}
	if out1 != out2 {
		t.Fatalf("Evaluate is not deterministic: %x vs %x", out1, out2)
	}
	if !p1.Gamma.Equal(&p2.Gamma) {
		t.Fatalf("Evaluate gamma is not deterministic")
	}
}

func TestVRFVerifyRejectsWrongMessage(t *testing.T) {
	signer := NewDeterministicSigner([32]byte{})
	verifier := signer.Verifier()

	proof, _, err := signer.Evaluate([]byte("alice"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := verifier.Verify([]byte("mallory"), proof); err == nil {
		t.Fatal("expected verification failure for mismatched message")
	}
}

func TestVRFVerifyRejectsWrongKey(t *testing.T) {
	signerA := NewDeterministicSigner([32]byte{1})
	signerB := NewDeterministicSigner([32]byte{2})
	msg := []byte("alice")

	proof, _, err := signerA.Evaluate(msg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := signerB.Verifier().Verify(msg, proof); err == nil {
		t.Fatal("expected verification failure for mismatched key")
	}
}

func TestVRFVerifyRejectsTamperedProof(t *testing.T) {
	signer := NewDeterministicSigner([32]byte{})
	verifier := signer.Verifier()
	msg := []byte("alice")

	proof, _, err := signer.Evaluate(msg)
	if err != nil {
		t.Fatal(err)
	}

	var tampered Fr
	tampered.SetOne()
	tampered.Add(&proof.S, &tampered)
	bad := proof
	bad.S = tampered

	if _, err := verifier.Verify(msg, bad); err == nil {
		t.Fatal("expected verification failure for tampered proof")
	}
}

func TestDifferentMessagesProduceDifferentLabels(t *testing.T) {
	signer := NewDeterministicSigner([32]byte{})
	_, out1, err := signer.Evaluate([]byte("alice"))
	if err != nil {
		t.Fatal(err)
	}
	_, out2, err := signer.Evaluate([]byte("bob"))
	if err != nil {
		t.Fatal(err)
	}
	if out1 == out2 {
		t.Fatal("distinct messages produced the same VRF output")
	}
}
