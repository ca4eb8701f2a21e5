package crypto

// VersionFreshness tags a version's tree entry as retired (Stale) or
// currently bound to a value (Fresh). It occupies one byte in every hash
// input that depends on it.
type VersionFreshness byte

const (
	Stale VersionFreshness = 0
	Fresh VersionFreshness = 1
)

func (f VersionFreshness) String() string {
	if f == Fresh {
		return "fresh"
	}
	return "stale"
}

// LabelMessage builds the message hashed and handed to the VRF to derive
// the tree label for (label, freshness, version):
//
//	H(i2osp_array(label) || freshness_byte || be64(version))
func LabelMessage(h Hasher, label []byte, freshness VersionFreshness, version uint64) []byte {
	buf := make([]byte, 0, 8+len(label)+1+8)
	buf = append(buf, I2OSPArray(label)...)
	buf = append(buf, byte(freshness))
	buf = append(buf, BE64(version)...)
	d := h.Digest(buf)
	return d.Bytes()
}
