package directory

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openakd/akd/crypto"
	"github.com/openakd/akd/tree"
)

// Update is one (label, value) pair submitted to Publish.
type Update struct {
	Label string
	Value []byte
}

// config collects the functional options for New.
type config struct {
	hasher        crypto.Hasher
	signer        *crypto.Signer
	store         tree.Store
	users         UserStore
	commitmentKey []byte
	logger        zerolog.Logger
}

// Option configures a Directory at construction time.
type Option func(*config)

// WithHasher overrides the digest function H (default: SHA-256).
func WithHasher(h crypto.Hasher) Option {
	return func(c *config) { c.hasher = h }
}

// WithVRF supplies the server's VRF signing capability. Required.
func WithVRF(s *crypto.Signer) Option {
	return func(c *config) { c.signer = s }
}

// WithStore overrides the AZKS node store (default: an in-memory store).
func WithStore(s tree.Store) Option {
	return func(c *config) { c.store = s }
}

// WithUserStore overrides the per-user version table store (default:
// an in-memory store).
func WithUserStore(u UserStore) Option {
	return func(c *config) { c.users = u }
}

// WithCommitmentKey supplies the server's commitment key. Required.
func WithCommitmentKey(key []byte) Option {
	return func(c *config) { c.commitmentKey = append([]byte(nil), key...) }
}

// WithLogger overrides the structured logger (default: disabled).
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Directory is the publish/lookup/key_history/audit state machine: an
// epoch counter, a per-user version table, and the AZKS that
// cryptographically binds both together.
type Directory struct {
	mu sync.Mutex // serializes Publish (spec §5: single-writer)

	hasher        crypto.Hasher
	signer        *crypto.Signer
	commitmentKey []byte
	users         UserStore
	tree          *tree.AZKS
	log           zerolog.Logger

	epoch uint64
}

// New constructs a Directory. WithVRF and WithCommitmentKey are
// required; every other option has a usable default.
func New(ctx context.Context, opts ...Option) (*Directory, error) {
	cfg := config{
		hasher: crypto.NewSHA256Hasher(),
		store:  tree.NewMemStore(),
		users:  NewMemUserStore(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.signer == nil {
		return nil, ErrMissingVRFSigner
	}
	if len(cfg.commitmentKey) == 0 {
		return nil, ErrMissingCommitmentKey
	}

	t, err := tree.New(ctx, cfg.store, cfg.hasher)
	if err != nil {
		return nil, fmt.Errorf("akd/directory: initializing AZKS: %w", err)
	}

	return &Directory{
		hasher:        cfg.hasher,
		signer:        cfg.signer,
		commitmentKey: cfg.commitmentKey,
		users:         cfg.users,
		tree:          t,
		log:           cfg.logger,
		epoch:         t.LatestEpoch(),
	}, nil
}

// CurrentEpoch returns the last epoch successfully published.
func (d *Directory) CurrentEpoch() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.epoch
}

// PublicKey returns the VRF public key to be distributed to clients.
func (d *Directory) PublicKey() crypto.Point {
	return d.signer.PublicKey()
}

// marker returns marker(v) = 2^floor(log2 v), the spec's spot-check
// version used by both lookup and key_history.
func marker(v uint64) uint64 {
	if v == 0 {
		return 0
	}
	return uint64(1) << uint(bits.Len64(v)-1)
}

// vrfLabel derives the AZKS NodeLabel for (user, freshness, version),
// returning both the label and the VRF proof attesting to it.
func (d *Directory) vrfLabel(user string, freshness crypto.VersionFreshness, version uint64) (tree.NodeLabel, crypto.Proof, error) {
	msg := crypto.LabelMessage(d.hasher, []byte(user), freshness, version)
	proof, out, err := d.signer.Evaluate(msg)
	if err != nil {
		return tree.NodeLabel{}, crypto.Proof{}, err
	}
	return tree.NodeLabelFromBytes(out[:], tree.MaxLabelBits), proof, nil
}

// Publish executes one publish transition (spec §4.5): each update
// contributes a fresh leaf and, for version updates past the first, a
// stale leaf marking the prior version retired. The whole batch is
// rejected without effect if any label repeats within it, and an empty
// batch is rejected with ErrEmptyBatch rather than silently advancing
// nothing.
func (d *Directory) Publish(ctx context.Context, updates []Update) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	seen := make(map[string]bool, len(updates))
	for _, u := range updates {
		if seen[u.Label] {
			return 0, ErrDuplicateKeyInBatch
		}
		seen[u.Label] = true
	}

	nextEpoch := d.epoch + 1

	type pendingEntry struct {
		user  string
		entry VersionEntry
	}
	var leaves []tree.Leaf
	var pending []pendingEntry

	for _, u := range updates {
		rec, err := d.users.Get(ctx, u.Label)
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			return 0, fmt.Errorf("akd/directory: reading user record for %q: %w", u.Label, err)
		}
		vNew := uint64(1)
		if latest, ok := rec.Latest(); ok {
			vNew = latest.Version + 1
		}

		nonce := crypto.Nonce(d.hasher, d.commitmentKey, []byte(u.Label), vNew, u.Value)
		commitment := crypto.Commit(d.hasher, u.Value, nonce.Bytes())
		freshLabel, _, err := d.vrfLabel(u.Label, crypto.Fresh, vNew)
		if err != nil {
			return 0, fmt.Errorf("akd/directory: deriving fresh label for %q: %w", u.Label, err)
		}
		freshLeaf := crypto.LeafHash(d.hasher, commitment, nextEpoch)
		leaves = append(leaves, tree.Leaf{Label: freshLabel, Hash: freshLeaf})

		if vNew > 1 {
			staleLabel, _, err := d.vrfLabel(u.Label, crypto.Stale, vNew-1)
			if err != nil {
				return 0, fmt.Errorf("akd/directory: deriving stale label for %q: %w", u.Label, err)
			}
			staleLeaf := crypto.LeafHash(d.hasher, crypto.StaleCommitment(d.hasher), nextEpoch)
			leaves = append(leaves, tree.Leaf{Label: staleLabel, Hash: staleLeaf})
		}

		pending = append(pending, pendingEntry{
			user: u.Label,
			entry: VersionEntry{
				Version: vNew,
				Epoch:   nextEpoch,
				Value:   append([]byte(nil), u.Value...),
				Nonce:   nonce,
			},
		})
	}

	if len(leaves) == 0 {
		return 0, ErrEmptyBatch
	}

	if err := d.tree.BatchInsert(ctx, leaves, nextEpoch); err != nil {
		return 0, fmt.Errorf("akd/directory: publishing epoch %d: %w", nextEpoch, err)
	}

	for _, p := range pending {
		rec, err := d.users.Get(ctx, p.user)
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			return 0, fmt.Errorf("akd/directory: updating user record for %q: %w", p.user, err)
		}
		rec.Versions = append(rec.Versions, p.entry)
		if err := d.users.Put(ctx, p.user, rec); err != nil {
			return 0, fmt.Errorf("akd/directory: writing user record for %q: %w", p.user, err)
		}
	}

	d.epoch = nextEpoch
	d.log.Info().Uint64("epoch", nextEpoch).Int("updates", len(updates)).Msg("published epoch")
	return nextEpoch, nil
}
