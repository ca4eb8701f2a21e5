// Package directory implements the publish/lookup/key_history/audit
// state machine on top of an AZKS: the per-user version table, the VRF
// label derivation and commitment scheme wiring, and the wire encoding
// of the proof types crossing the directory/client boundary.
package directory

import "errors"

// Sentinel errors matching the directory-level error codes (spec §6/§7).
// Each is wrapped with epoch/user/proof-element context via
// fmt.Errorf("...: %w", ...) at the call site rather than carried as
// fields on the sentinel itself, so errors.Is keeps working after
// wrapping.
var (
	ErrUserDoesNotExist     = errors.New("akd/directory: user does not exist")
	ErrEpochNotPublished    = errors.New("akd/directory: epoch not published")
	ErrAppendOnlyViolation  = errors.New("akd/directory: append-only violation")
	ErrDuplicateKeyInBatch  = errors.New("akd/directory: duplicate label in publish batch")
	ErrEmptyBatch           = errors.New("akd/directory: empty publish batch")
	ErrStorageUnavailable   = errors.New("akd/directory: storage unavailable")
	ErrVrfVerificationFail  = errors.New("akd/directory: vrf verification failed")
	ErrCommitmentMismatch   = errors.New("akd/directory: commitment mismatch")
	ErrMissingVRFSigner     = errors.New("akd/directory: no VRF signer configured")
	ErrMissingCommitmentKey = errors.New("akd/directory: no commitment key configured")
	ErrUserNotFound         = errors.New("akd/directory: user record not found")
)
