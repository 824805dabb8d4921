package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/xaynetwork/xaynet-coordinator/key"
	"github.com/xaynetwork/xaynet-coordinator/mask"
	"github.com/xaynetwork/xaynet-coordinator/store"
)

// EncryptedSeedSize is the width of a mask seed sealed to a sum
// participant's ephemeral key: 32-byte ephemeral sender pk + 16-byte tag +
// 32-byte seed (spec §4.3, §9).
const EncryptedSeedSize = store.EncryptedSeedSize

// SumPayload is a sum message: sum_signature(64) ∥ ephemeral_pk(32).
type SumPayload struct {
	SumSignature [key.SignatureSize]byte
	EphemeralPK  key.EncryptionPublicKey
}

func (p SumPayload) MarshalBinary() []byte {
	out := make([]byte, key.SignatureSize+key.EncryptionPublicKeySize)
	copy(out, p.SumSignature[:])
	copy(out[key.SignatureSize:], p.EphemeralPK.Bytes())
	return out
}

func UnmarshalSumPayload(b []byte) (SumPayload, error) {
	want := key.SignatureSize + key.EncryptionPublicKeySize
	if len(b) != want {
		return SumPayload{}, fmt.Errorf("sum payload: want %d bytes, got %d", want, len(b))
	}
	var p SumPayload
	copy(p.SumSignature[:], b[:key.SignatureSize])
	pk, err := key.EncryptionPublicKeyFromBytes(b[key.SignatureSize:])
	if err != nil {
		return SumPayload{}, fmt.Errorf("sum payload: %w", err)
	}
	p.EphemeralPK = pk
	return p, nil
}

// LocalSeedDict is one updater's view of the sum dictionary: an encrypted
// mask seed addressed to each sum participant's ephemeral key.
type LocalSeedDict = store.LocalSeedDict

// MarshalLocalSeedDict serializes as a 4-byte length prefix followed by that
// many (sum_pk(32) ∥ encrypted_seed(80)) entries (spec §4.3). Entries are
// sorted by key so the encoding is deterministic. LocalSeedDict is a
// store-owned type, so this lives as a free function rather than a method.
func MarshalLocalSeedDict(d LocalSeedDict) []byte {
	keys := sortedKeys(d)
	out := make([]byte, 4+len(keys)*(key.SignaturePublicKeySize+EncryptedSeedSize))
	binary.BigEndian.PutUint32(out, uint32(len(keys)))
	off := 4
	for _, pk := range keys {
		copy(out[off:], pk.Bytes())
		off += key.SignaturePublicKeySize
		seed := d[pk]
		copy(out[off:], seed[:])
		off += EncryptedSeedSize
	}
	return out
}

func sortedKeys(d LocalSeedDict) []key.SigningPublicKey {
	keys := make([]key.SigningPublicKey, 0, len(d))
	for pk := range d {
		keys = append(keys, pk)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && string(keys[j-1].Bytes()) > string(keys[j].Bytes()); j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func UnmarshalLocalSeedDict(b []byte) (LocalSeedDict, []byte, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("local seed dict: short buffer")
	}
	n := binary.BigEndian.Uint32(b)
	entrySize := key.SignaturePublicKeySize + EncryptedSeedSize
	need := 4 + int(n)*entrySize
	if len(b) < need {
		return nil, nil, fmt.Errorf("local seed dict: want at least %d bytes for n=%d, got %d", need, n, len(b))
	}
	dict := make(LocalSeedDict, n)
	off := 4
	for i := uint32(0); i < n; i++ {
		pk, err := key.SigningPublicKeyFromBytes(b[off : off+key.SignaturePublicKeySize])
		if err != nil {
			return nil, nil, fmt.Errorf("local seed dict: %w", err)
		}
		off += key.SignaturePublicKeySize
		var seed store.EncryptedSeed
		copy(seed[:], b[off:off+EncryptedSeedSize])
		off += EncryptedSeedSize
		dict[pk] = seed
	}
	return dict, b[need:], nil
}

// UpdatePayload is an update message: sum_signature(64) ∥
// update_signature(64) ∥ mask_object ∥ local_seed_dict.
type UpdatePayload struct {
	SumSignature    [key.SignatureSize]byte
	UpdateSignature [key.SignatureSize]byte
	Masked          mask.Object
	LocalSeedDict   LocalSeedDict
}

func (p UpdatePayload) MarshalBinary() []byte {
	out := make([]byte, 0, 2*key.SignatureSize)
	out = append(out, p.SumSignature[:]...)
	out = append(out, p.UpdateSignature[:]...)
	out = append(out, p.Masked.MarshalBinary()...)
	out = append(out, MarshalLocalSeedDict(p.LocalSeedDict)...)
	return out
}

func UnmarshalUpdatePayload(b []byte) (UpdatePayload, error) {
	if len(b) < 2*key.SignatureSize {
		return UpdatePayload{}, fmt.Errorf("update payload: too short")
	}
	var p UpdatePayload
	copy(p.SumSignature[:], b[:key.SignatureSize])
	copy(p.UpdateSignature[:], b[key.SignatureSize:2*key.SignatureSize])
	rest := b[2*key.SignatureSize:]

	vect, cfg, width, err := mask.UnmarshalVect(rest)
	if err != nil {
		return UpdatePayload{}, fmt.Errorf("update payload: %w", err)
	}
	vectLen := 8 + len(vect)*width
	unit, err := mask.UnmarshalUnit(rest[vectLen:vectLen+4+width], cfg)
	if err != nil {
		return UpdatePayload{}, fmt.Errorf("update payload: %w", err)
	}
	p.Masked = mask.Object{Config: cfg, Vect: vect, Unit: unit}
	rest = rest[vectLen+4+width:]

	dict, _, err := UnmarshalLocalSeedDict(rest)
	if err != nil {
		return UpdatePayload{}, fmt.Errorf("update payload: %w", err)
	}
	p.LocalSeedDict = dict
	return p, nil
}

// Sum2Payload is a sum2 message: sum_signature(64) ∥ mask_object.
type Sum2Payload struct {
	SumSignature [key.SignatureSize]byte
	Masked       mask.Object
}

func (p Sum2Payload) MarshalBinary() []byte {
	out := make([]byte, 0, key.SignatureSize)
	out = append(out, p.SumSignature[:]...)
	out = append(out, p.Masked.MarshalBinary()...)
	return out
}

func UnmarshalSum2Payload(b []byte) (Sum2Payload, error) {
	if len(b) < key.SignatureSize {
		return Sum2Payload{}, fmt.Errorf("sum2 payload: too short")
	}
	var p Sum2Payload
	copy(p.SumSignature[:], b[:key.SignatureSize])
	obj, err := mask.UnmarshalObject(b[key.SignatureSize:])
	if err != nil {
		return Sum2Payload{}, fmt.Errorf("sum2 payload: %w", err)
	}
	p.Masked = obj
	return p, nil
}
