package directory

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/karalabe/ssz"

	"github.com/openakd/akd/crypto"
	"github.com/openakd/akd/tree"
)

// EpochHash is the public commitment a directory publishes for an
// epoch: the pair every proof in this file is ultimately checked
// against.
type EpochHash struct {
	Epoch uint64
	Hash  crypto.Digest
}

// wireWriter accumulates a binary encoding using crypto.I2OSPArray's
// len(x)||x convention for every variable-length field, so every value
// this package serializes shares one framing rule.
type wireWriter struct{ buf bytes.Buffer }

func (w *wireWriter) u64(v uint64)        { w.buf.Write(crypto.BE64(v)) }
func (w *wireWriter) bytesField(b []byte) { w.buf.Write(crypto.I2OSPArray(b)) }
func (w *wireWriter) digest(d crypto.Digest) { w.buf.Write(d.Bytes()) }
func (w *wireWriter) label(l tree.NodeLabel) { w.buf.Write(l.Bytes()) }

func (w *wireWriter) boolField(b bool) {
	if b {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *wireWriter) vrfProof(p crypto.Proof) {
	g := p.Gamma.Bytes()
	c := p.C.Bytes()
	s := p.S.Bytes()
	w.buf.Write(g[:])
	w.buf.Write(c[:])
	w.buf.Write(s[:])
}

func (w *wireWriter) pathElement(e tree.PathElement) {
	w.label(e.AncestorLabel)
	w.label(e.SiblingLabel)
	w.digest(e.SiblingHash)
	w.boolField(e.SelfIsLeft)
}

func (w *wireWriter) path(path []tree.PathElement) {
	w.u64(uint64(len(path)))
	for _, e := range path {
		w.pathElement(e)
	}
}

func (w *wireWriter) membershipProof(p tree.MembershipProof) {
	w.label(p.Label)
	w.u64(p.Epoch)
	w.digest(p.LeafHash)
	w.path(p.Path)
}

func (w *wireWriter) nonMembershipProof(p tree.NonMembershipProof) {
	w.label(p.Label)
	w.u64(p.Epoch)
	w.path(p.Path)
	w.label(p.TerminalLabel)
	w.digest(p.TerminalHash)
}

func (w *wireWriter) appendOnlyNode(n tree.AppendOnlyNode) {
	w.label(n.Label)
	w.digest(n.Hash)
	w.boolField(n.IsLeaf)
	w.label(n.LeftLabel)
	w.label(n.RightLabel)
}

func (w *wireWriter) appendOnlyNodes(ns []tree.AppendOnlyNode) {
	w.u64(uint64(len(ns)))
	for _, n := range ns {
		w.appendOnlyNode(n)
	}
}

func (w *wireWriter) versionNonMembership(vn VersionNonMembership) {
	w.u64(vn.Version)
	w.vrfProof(vn.VRFProof)
	w.nonMembershipProof(vn.Proof)
}

func (w *wireWriter) versionNonMemberships(vs []VersionNonMembership) {
	w.u64(uint64(len(vs)))
	for _, vn := range vs {
		w.versionNonMembership(vn)
	}
}

func (w *wireWriter) updateProof(u UpdateProof) {
	w.u64(u.Version)
	w.u64(u.Epoch)
	w.bytesField(u.Value)
	w.digest(u.CommitmentNonce)
	w.vrfProof(u.VRFProofFresh)
	w.membershipProof(u.ExistenceProof)
	w.boolField(u.HasStaleness)
	if u.HasStaleness {
		w.vrfProof(u.VRFProofStale)
		w.membershipProof(u.StaleProof)
	}
	w.boolField(u.HasPriorNonMembership)
	if u.HasPriorNonMembership {
		w.nonMembershipProof(u.PriorNonMembershipProof)
	}
	w.u64(u.BoundEpoch)
	w.versionNonMemberships(u.NoSkippedVersions)
	w.versionNonMemberships(u.NoFutureMarkers)
}

// wireReader is the mirror-image cursor over a byte slice produced by
// wireWriter.
type wireReader struct {
	buf []byte
	off int
}

func newWireReader(buf []byte) *wireReader { return &wireReader{buf: buf} }

var errTruncatedWire = fmt.Errorf("akd/directory: truncated wire data")

func (r *wireReader) raw(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.buf) {
		return nil, errTruncatedWire
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *wireReader) u64() (uint64, error) {
	b, err := r.raw(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *wireReader) bytesField() ([]byte, error) {
	n, err := r.u64()
	if err != nil {
		return nil, err
	}
	b, err := r.raw(int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (r *wireReader) digest() (crypto.Digest, error) {
	b, err := r.raw(crypto.DigestBytes)
	if err != nil {
		return crypto.Digest{}, err
	}
	var d crypto.Digest
	copy(d[:], b)
	return d, nil
}

func (r *wireReader) label() (tree.NodeLabel, error) {
	b, err := r.raw(34)
	if err != nil {
		return tree.NodeLabel{}, err
	}
	length := binary.BigEndian.Uint16(b[32:34])
	if length == 0 {
		return tree.EmptyLabel, nil
	}
	return tree.NodeLabelFromBytes(b[:32], int(length)), nil
}

func (r *wireReader) boolField() (bool, error) {
	b, err := r.raw(1)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func (r *wireReader) vrfProof() (crypto.Proof, error) {
	gb, err := r.raw(32)
	if err != nil {
		return crypto.Proof{}, err
	}
	cb, err := r.raw(32)
	if err != nil {
		return crypto.Proof{}, err
	}
	sb, err := r.raw(32)
	if err != nil {
		return crypto.Proof{}, err
	}
	var p crypto.Proof
	if err := p.Gamma.SetBytes(append([]byte(nil), gb...), false); err != nil {
		return crypto.Proof{}, fmt.Errorf("akd/directory: decoding vrf proof: %w", err)
	}
	p.C.SetBytes(append([]byte(nil), cb...))
	p.S.SetBytes(append([]byte(nil), sb...))
	return p, nil
}

func (r *wireReader) pathElement() (tree.PathElement, error) {
	anc, err := r.label()
	if err != nil {
		return tree.PathElement{}, err
	}
	sib, err := r.label()
	if err != nil {
		return tree.PathElement{}, err
	}
	sh, err := r.digest()
	if err != nil {
		return tree.PathElement{}, err
	}
	left, err := r.boolField()
	if err != nil {
		return tree.PathElement{}, err
	}
	return tree.PathElement{AncestorLabel: anc, SiblingLabel: sib, SiblingHash: sh, SelfIsLeft: left}, nil
}

func (r *wireReader) path() ([]tree.PathElement, error) {
	n, err := r.u64()
	if err != nil {
		return nil, err
	}
	out := make([]tree.PathElement, n)
	for i := range out {
		e, err := r.pathElement()
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (r *wireReader) membershipProof() (tree.MembershipProof, error) {
	label, err := r.label()
	if err != nil {
		return tree.MembershipProof{}, err
	}
	epoch, err := r.u64()
	if err != nil {
		return tree.MembershipProof{}, err
	}
	leafHash, err := r.digest()
	if err != nil {
		return tree.MembershipProof{}, err
	}
	path, err := r.path()
	if err != nil {
		return tree.MembershipProof{}, err
	}
	return tree.MembershipProof{Label: label, Epoch: epoch, LeafHash: leafHash, Path: path}, nil
}

func (r *wireReader) nonMembershipProof() (tree.NonMembershipProof, error) {
	label, err := r.label()
	if err != nil {
		return tree.NonMembershipProof{}, err
	}
	epoch, err := r.u64()
	if err != nil {
		return tree.NonMembershipProof{}, err
	}
	path, err := r.path()
	if err != nil {
		return tree.NonMembershipProof{}, err
	}
	terminalLabel, err := r.label()
	if err != nil {
		return tree.NonMembershipProof{}, err
	}
	terminalHash, err := r.digest()
	if err != nil {
		return tree.NonMembershipProof{}, err
	}
	return tree.NonMembershipProof{Label: label, Epoch: epoch, Path: path, TerminalLabel: terminalLabel, TerminalHash: terminalHash}, nil
}

func (r *wireReader) appendOnlyNode() (tree.AppendOnlyNode, error) {
	label, err := r.label()
	if err != nil {
		return tree.AppendOnlyNode{}, err
	}
	hash, err := r.digest()
	if err != nil {
		return tree.AppendOnlyNode{}, err
	}
	isLeaf, err := r.boolField()
	if err != nil {
		return tree.AppendOnlyNode{}, err
	}
	leftLabel, err := r.label()
	if err != nil {
		return tree.AppendOnlyNode{}, err
	}
	rightLabel, err := r.label()
	if err != nil {
		return tree.AppendOnlyNode{}, err
	}
	return tree.AppendOnlyNode{Label: label, Hash: hash, IsLeaf: isLeaf, LeftLabel: leftLabel, RightLabel: rightLabel}, nil
}

func (r *wireReader) appendOnlyNodes() ([]tree.AppendOnlyNode, error) {
	n, err := r.u64()
	if err != nil {
		return nil, err
	}
	out := make([]tree.AppendOnlyNode, n)
	for i := range out {
		node, err := r.appendOnlyNode()
		if err != nil {
			return nil, err
		}
		out[i] = node
	}
	return out, nil
}

func (r *wireReader) versionNonMembership() (VersionNonMembership, error) {
	version, err := r.u64()
	if err != nil {
		return VersionNonMembership{}, err
	}
	vrfProof, err := r.vrfProof()
	if err != nil {
		return VersionNonMembership{}, err
	}
	proof, err := r.nonMembershipProof()
	if err != nil {
		return VersionNonMembership{}, err
	}
	return VersionNonMembership{Version: version, VRFProof: vrfProof, Proof: proof}, nil
}

func (r *wireReader) versionNonMemberships() ([]VersionNonMembership, error) {
	n, err := r.u64()
	if err != nil {
		return nil, err
	}
	out := make([]VersionNonMembership, n)
	for i := range out {
		vn, err := r.versionNonMembership()
		if err != nil {
			return nil, err
		}
		out[i] = vn
	}
	return out, nil
}

func (r *wireReader) updateProof() (UpdateProof, error) {
	var u UpdateProof
	var err error
	if u.Version, err = r.u64(); err != nil {
		return UpdateProof{}, err
	}
	if u.Epoch, err = r.u64(); err != nil {
		return UpdateProof{}, err
	}
	if u.Value, err = r.bytesField(); err != nil {
		return UpdateProof{}, err
	}
	if u.CommitmentNonce, err = r.digest(); err != nil {
		return UpdateProof{}, err
	}
	if u.VRFProofFresh, err = r.vrfProof(); err != nil {
		return UpdateProof{}, err
	}
	if u.ExistenceProof, err = r.membershipProof(); err != nil {
		return UpdateProof{}, err
	}
	if u.HasStaleness, err = r.boolField(); err != nil {
		return UpdateProof{}, err
	}
	if u.HasStaleness {
		if u.VRFProofStale, err = r.vrfProof(); err != nil {
			return UpdateProof{}, err
		}
		if u.StaleProof, err = r.membershipProof(); err != nil {
			return UpdateProof{}, err
		}
	}
	if u.HasPriorNonMembership, err = r.boolField(); err != nil {
		return UpdateProof{}, err
	}
	if u.HasPriorNonMembership {
		if u.PriorNonMembershipProof, err = r.nonMembershipProof(); err != nil {
			return UpdateProof{}, err
		}
	}
	if u.BoundEpoch, err = r.u64(); err != nil {
		return UpdateProof{}, err
	}
	if u.NoSkippedVersions, err = r.versionNonMemberships(); err != nil {
		return UpdateProof{}, err
	}
	if u.NoFutureMarkers, err = r.versionNonMemberships(); err != nil {
		return UpdateProof{}, err
	}
	return u, nil
}

// EncodeEpochHash serializes a single published (epoch, root hash) pair.
func EncodeEpochHash(eh EpochHash) []byte {
	w := &wireWriter{}
	w.u64(eh.Epoch)
	w.digest(eh.Hash)
	return w.buf.Bytes()
}

// DecodeEpochHash is the inverse of EncodeEpochHash.
func DecodeEpochHash(buf []byte) (EpochHash, error) {
	r := newWireReader(buf)
	epoch, err := r.u64()
	if err != nil {
		return EpochHash{}, err
	}
	hash, err := r.digest()
	if err != nil {
		return EpochHash{}, err
	}
	return EpochHash{Epoch: epoch, Hash: hash}, nil
}

// EncodeLookupProof serializes a LookupProof for transfer across the
// directory/client boundary (spec §6).
func EncodeLookupProof(p LookupProof) []byte {
	w := &wireWriter{}
	w.u64(p.Version)
	w.bytesField(p.Value)
	w.digest(p.CommitmentNonce)
	w.u64(p.Epoch)
	w.vrfProof(p.VRFProofFresh)
	w.vrfProof(p.VRFProofMarker)
	w.vrfProof(p.VRFProofFreshness)
	w.membershipProof(p.ExistenceProof)
	w.membershipProof(p.MarkerProof)
	w.nonMembershipProof(p.FreshnessProof)
	return w.buf.Bytes()
}

// DecodeLookupProof is the inverse of EncodeLookupProof.
func DecodeLookupProof(buf []byte) (LookupProof, error) {
	r := newWireReader(buf)
	var p LookupProof
	var err error
	if p.Version, err = r.u64(); err != nil {
		return LookupProof{}, err
	}
	if p.Value, err = r.bytesField(); err != nil {
		return LookupProof{}, err
	}
	if p.CommitmentNonce, err = r.digest(); err != nil {
		return LookupProof{}, err
	}
	if p.Epoch, err = r.u64(); err != nil {
		return LookupProof{}, err
	}
	if p.VRFProofFresh, err = r.vrfProof(); err != nil {
		return LookupProof{}, err
	}
	if p.VRFProofMarker, err = r.vrfProof(); err != nil {
		return LookupProof{}, err
	}
	if p.VRFProofFreshness, err = r.vrfProof(); err != nil {
		return LookupProof{}, err
	}
	if p.ExistenceProof, err = r.membershipProof(); err != nil {
		return LookupProof{}, err
	}
	if p.MarkerProof, err = r.membershipProof(); err != nil {
		return LookupProof{}, err
	}
	if p.FreshnessProof, err = r.nonMembershipProof(); err != nil {
		return LookupProof{}, err
	}
	return p, nil
}

// EncodeHistoryProof serializes a HistoryProof.
func EncodeHistoryProof(p HistoryProof) []byte {
	w := &wireWriter{}
	w.u64(uint64(len(p.Updates)))
	for _, u := range p.Updates {
		w.updateProof(u)
	}
	return w.buf.Bytes()
}

// DecodeHistoryProof is the inverse of EncodeHistoryProof.
func DecodeHistoryProof(buf []byte) (HistoryProof, error) {
	r := newWireReader(buf)
	n, err := r.u64()
	if err != nil {
		return HistoryProof{}, err
	}
	updates := make([]UpdateProof, n)
	for i := range updates {
		u, err := r.updateProof()
		if err != nil {
			return HistoryProof{}, err
		}
		updates[i] = u
	}
	return HistoryProof{Updates: updates}, nil
}

// EncodeAppendOnlyProof serializes a single-epoch-step AppendOnlyProof.
func EncodeAppendOnlyProof(p tree.AppendOnlyProof) []byte {
	w := &wireWriter{}
	w.u64(p.Epoch)
	w.appendOnlyNodes(p.UnchangedNodes)
	w.appendOnlyNodes(p.InsertedNodes)
	return w.buf.Bytes()
}

// DecodeAppendOnlyProof is the inverse of EncodeAppendOnlyProof.
func DecodeAppendOnlyProof(buf []byte) (tree.AppendOnlyProof, error) {
	r := newWireReader(buf)
	epoch, err := r.u64()
	if err != nil {
		return tree.AppendOnlyProof{}, err
	}
	unchanged, err := r.appendOnlyNodes()
	if err != nil {
		return tree.AppendOnlyProof{}, err
	}
	inserted, err := r.appendOnlyNodes()
	if err != nil {
		return tree.AppendOnlyProof{}, err
	}
	return tree.AppendOnlyProof{Epoch: epoch, UnchangedNodes: unchanged, InsertedNodes: inserted}, nil
}

// EpochCheckpoint is the minimal public export unit a mirror or light
// client needs: one epoch's root hash. Unlike the proof types above
// (directory-internal wire format), checkpoints are meant for bulk,
// self-describing distribution, so they use the teacher's SSZ stack
// instead of the length-prefixed format above.
type EpochCheckpoint struct {
	Epoch uint64
	Hash  [32]byte
}

func (c *EpochCheckpoint) SizeSSZ(*ssz.Sizer) uint32 { return 8 + 32 }

func (c *EpochCheckpoint) DefineSSZ(codec *ssz.Codec) {
	ssz.DefineUint64(codec, &c.Epoch)
	ssz.DefineStaticBytes(codec, &c.Hash)
}

// maxEpochCheckpointsPerExport bounds a single SSZ list's capacity.
// EncodeEpochCheckpoints does not split a longer run across several lists.
const maxEpochCheckpointsPerExport = 1 << 20

// epochCheckpointList is the SSZ list wrapper EncodeEpochCheckpoints and
// DecodeEpochCheckpoints operate on.
type epochCheckpointList struct {
	Checkpoints []*EpochCheckpoint
}

func (l *epochCheckpointList) SizeSSZ(sizer *ssz.Sizer) uint32 {
	return ssz.SizeSliceOfStaticObjects(sizer, l.Checkpoints)
}

func (l *epochCheckpointList) DefineSSZ(codec *ssz.Codec) {
	ssz.DefineSliceOfStaticObjectsContent(codec, &l.Checkpoints, maxEpochCheckpointsPerExport)
}

// EncodeEpochCheckpoints SSZ-encodes a batch of epoch/root-hash pairs
// for export, e.g. to seed an auditor's rootHashAt lookup table.
func EncodeEpochCheckpoints(checkpoints []EpochCheckpoint) ([]byte, error) {
	list := &epochCheckpointList{Checkpoints: make([]*EpochCheckpoint, len(checkpoints))}
	for i := range checkpoints {
		c := checkpoints[i]
		list.Checkpoints[i] = &c
	}
	buf := make([]byte, ssz.Size(list))
	if err := ssz.EncodeToBytes(buf, list); err != nil {
		return nil, fmt.Errorf("akd/directory: ssz-encoding checkpoints: %w", err)
	}
	return buf, nil
}

// DecodeEpochCheckpoints decodes a batch written by EncodeEpochCheckpoints.
func DecodeEpochCheckpoints(buf []byte) ([]EpochCheckpoint, error) {
	list := new(epochCheckpointList)
	if err := ssz.DecodeFromBytes(buf, list); err != nil {
		return nil, fmt.Errorf("akd/directory: ssz-decoding checkpoints: %w", err)
	}
	out := make([]EpochCheckpoint, len(list.Checkpoints))
	for i, c := range list.Checkpoints {
		out[i] = *c
	}
	return out, nil
}
