// Package store defines the dictionary store interface spec §4.4 describes
// and the three round dictionaries it mediates, plus an in-memory and a
// bbolt-backed implementation.
package store

import (
	"github.com/xaynetwork/xaynet-coordinator/key"
	"github.com/xaynetwork/xaynet-coordinator/mask"
)

// EncryptedSeedSize is the width of a mask seed sealed to a sum
// participant's ephemeral key (32-byte ephemeral pk + 16-byte tag + 32-byte
// seed plaintext, spec §4.3/§9).
const EncryptedSeedSize = key.SealOverhead + mask.SeedSize

// EncryptedSeed is a mask seed sealed to one sum participant's ephemeral key.
type EncryptedSeed [EncryptedSeedSize]byte

// SumDict maps a sum participant's signing key to the ephemeral encryption
// key it published for the round (spec §3).
type SumDict map[key.SigningPublicKey]key.EncryptionPublicKey

// Clone returns an independent copy, used when handing out a snapshot.
func (d SumDict) Clone() SumDict {
	out := make(SumDict, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// LocalSeedDict is one updater's row: its mask seed, encrypted to every sum
// participant it knows about.
type LocalSeedDict map[key.SigningPublicKey]EncryptedSeed

// Keys returns the set of sum participant keys this local dict addresses.
func (d LocalSeedDict) Keys() map[key.SigningPublicKey]struct{} {
	out := make(map[key.SigningPublicKey]struct{}, len(d))
	for k := range d {
		out[k] = struct{}{}
	}
	return out
}

// SeedDict maps a sum participant's signing key to the encrypted seeds every
// updater addressed to it (spec §3).
type SeedDict map[key.SigningPublicKey]map[key.SigningPublicKey]EncryptedSeed

// Row returns an independent copy of one sum participant's row, or nil if
// that sum participant hasn't been given any seeds yet.
func (d SeedDict) Row(sumPK key.SigningPublicKey) map[key.SigningPublicKey]EncryptedSeed {
	row, ok := d[sumPK]
	if !ok {
		return nil
	}
	out := make(map[key.SigningPublicKey]EncryptedSeed, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// MaskDict counts how many sum participants submitted each aggregated mask,
// keyed by the mask's serialized bytes (spec §3).
type MaskDict map[string]int

// ObjectKey is the MaskDict key a given mask.Object serializes to. Pinning
// the key function here (rather than in mask) keeps the "same bytes, same
// key" invariant colocated with the dictionary that relies on it.
func ObjectKey(obj mask.Object) string {
	return string(obj.MarshalBinary())
}

// keysEqual reports whether two sum-participant key sets are identical,
// the precondition update validation checks (spec §4.4 add_local_seed_dict).
func keysEqual(a map[key.SigningPublicKey]struct{}, b SumDict) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
