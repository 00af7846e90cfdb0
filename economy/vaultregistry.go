package economy

import (
	"bytes"
	"sort"

	"nhbchain/codec"
)

// MaxVaultRegistryEntries bounds VaultRegistry per spec §3.2/§6.3,
// ported from VaultRegistry::read_cfg's `0..=100_000` range.
const MaxVaultRegistryEntries = 100_000

// VaultRegistry is the sorted, deduplicated list of vault-owner
// public keys. Invariant 5 requires it stay sorted and duplicate-free
// after every mutation and after every decode.
type VaultRegistry struct {
	Vaults [][]byte
}

func (v *VaultRegistry) EncodedLen() int {
	n := 8
	for _, k := range v.Vaults {
		n += 8 + len(k)
	}
	return n
}

func (v *VaultRegistry) MarshalBinary() ([]byte, error) {
	w := codec.NewWriter(v.EncodedLen())
	w.PutU64(uint64(len(v.Vaults)))
	for _, k := range v.Vaults {
		w.PutBytes(k)
	}
	return w.Bytes(), nil
}

// UnmarshalBinary decodes v, then sorts and dedups the result and
// bounds it to MaxVaultRegistryEntries, matching
// VaultRegistry::read_cfg exactly.
func (v *VaultRegistry) UnmarshalBinary(buf []byte) error {
	r := codec.NewReader(buf)
	n := r.GetU64()
	if n > MaxVaultRegistryEntries {
		n = MaxVaultRegistryEntries
	}
	vaults := make([][]byte, 0, n)
	for i := uint64(0); i < n && r.Remaining() > 0; i++ {
		vaults = append(vaults, r.GetBytes())
	}
	v.Vaults = vaults
	v.normalize()
	return nil
}

func (v *VaultRegistry) normalize() {
	sort.Slice(v.Vaults, func(i, j int) bool {
		return bytes.Compare(v.Vaults[i], v.Vaults[j]) < 0
	})
	out := v.Vaults[:0]
	for i, k := range v.Vaults {
		if i == 0 || !bytes.Equal(k, v.Vaults[i-1]) {
			out = append(out, k)
		}
	}
	v.Vaults = out
}

// Insert adds owner if absent, re-sorting/deduping to preserve
// invariant 5. Returns false if the registry is already at capacity.
func (v *VaultRegistry) Insert(owner []byte) bool {
	for _, k := range v.Vaults {
		if bytes.Equal(k, owner) {
			return true
		}
	}
	if len(v.Vaults) >= MaxVaultRegistryEntries {
		return false
	}
	v.Vaults = append(v.Vaults, append([]byte(nil), owner...))
	v.normalize()
	return true
}

// Remove deletes owner if present, preserving sort order.
func (v *VaultRegistry) Remove(owner []byte) {
	out := v.Vaults[:0]
	for _, k := range v.Vaults {
		if !bytes.Equal(k, owner) {
			out = append(out, k)
		}
	}
	v.Vaults = out
}
