package tree

import "errors"

// Errors surfaced by the AZKS. These are the "input errors" and
// "invariant violations" of spec §7 that originate at the tree layer;
// the directory wraps them with epoch/user context before surfacing.
var (
	// ErrDuplicateInsertion is returned when batch_insert is given two
	// leaves with the same label in the same batch.
	ErrDuplicateInsertion = errors.New("akd/tree: duplicate label in insertion batch")
	// ErrRepeatedLabel is returned when batch_insert is given a leaf
	// whose label already exists in the tree (I1).
	ErrRepeatedLabel = errors.New("akd/tree: label already present in tree")
	// ErrEmptyBatch is returned by batch_insert for an empty leaf set,
	// to avoid advancing the epoch without a reason (spec §9).
	ErrEmptyBatch = errors.New("akd/tree: empty insertion batch")
	// ErrEpochNotPublished is returned by root_hash_at / LatestAt-style
	// lookups when no snapshot at or before the requested epoch exists.
	ErrEpochNotPublished = errors.New("akd/tree: epoch not published")
	// ErrEpochNotMonotonic is returned by batch_insert when next_epoch is
	// not strictly greater than the tree's current latest_epoch, unless
	// it is an idempotent replay of the exact same leaf set.
	ErrEpochNotMonotonic = errors.New("akd/tree: next epoch is not after the latest published epoch")

	errNilWrite = errors.New("akd/tree: nil node in write batch")
)

// ProofFailureReason labels *why* a proof failed to verify, for the
// ProofVerificationFailed sub-reasons spec'd in §7.
type ProofFailureReason string

const (
	ReasonMissingSibling       ProofFailureReason = "missing-sibling"
	ReasonHashMismatch         ProofFailureReason = "hash-mismatch"
	ReasonLabelMismatch        ProofFailureReason = "label-mismatch"
	ReasonAppendOnlyViolation  ProofFailureReason = "append-only-violation"
	ReasonNonMembershipInvalid ProofFailureReason = "non-membership-invalid"
)

// VerificationError wraps ErrProofVerificationFailed with a sub-reason
// and is the only error verification functions ever return for
// malformed or non-matching proofs: verification is total and must
// never panic on adversarial input (spec §7).
type VerificationError struct {
	Reason ProofFailureReason
	Detail string
}

func (e *VerificationError) Error() string {
	if e.Detail == "" {
		return "akd/tree: proof verification failed: " + string(e.Reason)
	}
	return "akd/tree: proof verification failed: " + string(e.Reason) + ": " + e.Detail
}

func (e *VerificationError) Unwrap() error {
	return ErrProofVerificationFailed
}

// ErrProofVerificationFailed is the sentinel every VerificationError
// wraps, so callers can test with errors.Is regardless of the
// underlying sub-reason.
var ErrProofVerificationFailed = errors.New("akd/tree: proof verification failed")

func failVerification(reason ProofFailureReason, detail string) error {
	return &VerificationError{Reason: reason, Detail: detail}
}
