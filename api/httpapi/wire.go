// Package httpapi is the thin chi-routed external HTTP surface spec §6
// describes: a handful of GET endpoints exposing the event bus's current
// values, and a POST endpoint feeding the request pipeline. Responses use a
// fixed-layout binary encoding; the only requirement spec §6 places on
// it is round-trip stability, not any particular format.
package httpapi

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/xaynetwork/xaynet-coordinator/codec"
	"github.com/xaynetwork/xaynet-coordinator/key"
	"github.com/xaynetwork/xaynet-coordinator/mask"
	"github.com/xaynetwork/xaynet-coordinator/pet"
	"github.com/xaynetwork/xaynet-coordinator/store"
)

func marshalMaskConfig(cfg mask.Config) []byte {
	return []byte{byte(cfg.Group), byte(cfg.Data), byte(cfg.Bound), byte(cfg.Model)}
}

func unmarshalMaskConfig(b []byte) (mask.Config, error) {
	if len(b) != 4 {
		return mask.Config{}, fmt.Errorf("mask config: want 4 bytes, got %d", len(b))
	}
	return mask.NewConfig(mask.GroupType(b[0]), mask.DataType(b[1]), mask.BoundType(b[2]), mask.ModelType(b[3]))
}

// marshalRoundParams encodes coordinator_pk(32) ∥ sum_prob(8) ∥
// update_prob(8) ∥ seed(32) ∥ mask_config(4) ∥ model_length(4).
func marshalRoundParams(rp pet.RoundParams) []byte {
	out := make([]byte, 0, key.EncryptionPublicKeySize+8+8+pet.RoundSeedSize+4+4)
	out = append(out, rp.CoordinatorPK.Bytes()...)
	var buf8 [8]byte
	binary.BigEndian.PutUint64(buf8[:], math.Float64bits(rp.SumProb))
	out = append(out, buf8[:]...)
	binary.BigEndian.PutUint64(buf8[:], math.Float64bits(rp.UpdateProb))
	out = append(out, buf8[:]...)
	out = append(out, rp.Seed[:]...)
	out = append(out, marshalMaskConfig(rp.MaskConfig)...)
	var buf4 [4]byte
	binary.BigEndian.PutUint32(buf4[:], uint32(rp.ModelLength))
	out = append(out, buf4[:]...)
	return out
}

func unmarshalRoundParams(b []byte) (pet.RoundParams, error) {
	want := key.EncryptionPublicKeySize + 8 + 8 + pet.RoundSeedSize + 4 + 4
	if len(b) != want {
		return pet.RoundParams{}, fmt.Errorf("round params: want %d bytes, got %d", want, len(b))
	}
	var rp pet.RoundParams
	off := 0
	coordPK, err := key.EncryptionPublicKeyFromBytes(b[off : off+key.EncryptionPublicKeySize])
	if err != nil {
		return pet.RoundParams{}, err
	}
	rp.CoordinatorPK = coordPK
	off += key.EncryptionPublicKeySize

	rp.SumProb = math.Float64frombits(binary.BigEndian.Uint64(b[off:]))
	off += 8
	rp.UpdateProb = math.Float64frombits(binary.BigEndian.Uint64(b[off:]))
	off += 8

	copy(rp.Seed[:], b[off:off+pet.RoundSeedSize])
	off += pet.RoundSeedSize

	cfg, err := unmarshalMaskConfig(b[off : off+4])
	if err != nil {
		return pet.RoundParams{}, err
	}
	rp.MaskConfig = cfg
	off += 4

	rp.ModelLength = int(binary.BigEndian.Uint32(b[off:]))
	return rp, nil
}

// marshalSumDict encodes a 4-byte count followed by (signing_pk(32) ∥
// encryption_pk(32)) entries, sorted by key for determinism.
func marshalSumDict(d store.SumDict) []byte {
	keys := make([]key.SigningPublicKey, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sortSigningKeys(keys)

	out := make([]byte, 4, 4+len(keys)*(key.SignaturePublicKeySize+key.EncryptionPublicKeySize))
	binary.BigEndian.PutUint32(out, uint32(len(keys)))
	for _, k := range keys {
		out = append(out, k.Bytes()...)
		v := d[k]
		out = append(out, v.Bytes()...)
	}
	return out
}

// marshalSeedRow encodes a 4-byte count followed by (signing_pk(32) ∥
// encrypted_seed) entries for one sum participant's SeedDict row.
func marshalSeedRow(row map[key.SigningPublicKey]store.EncryptedSeed) []byte {
	keys := make([]key.SigningPublicKey, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sortSigningKeys(keys)

	out := make([]byte, 4, 4+len(keys)*(key.SignaturePublicKeySize+codec.EncryptedSeedSize))
	binary.BigEndian.PutUint32(out, uint32(len(keys)))
	for _, k := range keys {
		out = append(out, k.Bytes()...)
		seed := row[k]
		out = append(out, seed[:]...)
	}
	return out
}

// marshalLength encodes an int as 4 big-endian bytes.
func marshalLength(n int) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(n))
	return buf[:]
}

// marshalGlobalModel encodes a 2-byte model id length, the id bytes, then
// one float64 per value.
func marshalGlobalModel(m *pet.GlobalModel) []byte {
	out := make([]byte, 2, 2+len(m.ID)+8*len(m.Values))
	binary.BigEndian.PutUint16(out, uint16(len(m.ID)))
	out = append(out, []byte(m.ID)...)
	var buf8 [8]byte
	for _, v := range m.Values {
		binary.BigEndian.PutUint64(buf8[:], math.Float64bits(v))
		out = append(out, buf8[:]...)
	}
	return out
}

func sortSigningKeys(keys []key.SigningPublicKey) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && string(keys[j-1].Bytes()) > string(keys[j].Bytes()); j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
}
