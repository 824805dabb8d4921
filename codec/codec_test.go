package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xaynetwork/xaynet-coordinator/key"
	"github.com/xaynetwork/xaynet-coordinator/mask"
)

func TestEnvelopeSealOpenRoundTrip(t *testing.T) {
	participant, err := key.NewSigningKeyPair()
	require.NoError(t, err)
	coordinator, err := key.NewEncryptionKeyPair()
	require.NoError(t, err)

	payload := []byte("sum-payload-bytes")
	wire, err := Seal(participant, coordinator.Public, TagSum, 0, payload)
	require.NoError(t, err)

	h, got, err := Open(coordinator, wire)
	require.NoError(t, err)
	require.Equal(t, TagSum, h.Tag)
	require.Equal(t, participant.Public, h.ParticipantPK)
	require.Equal(t, payload, got)
}

func TestOpenRejectsWrongCoordinatorKey(t *testing.T) {
	participant, err := key.NewSigningKeyPair()
	require.NoError(t, err)
	coordinator, err := key.NewEncryptionKeyPair()
	require.NoError(t, err)

	wire, err := Seal(participant, coordinator.Public, TagSum, 0, []byte("x"))
	require.NoError(t, err)

	other, err := key.NewEncryptionKeyPair()
	require.NoError(t, err)
	_, _, err = Open(other, wire)
	require.Error(t, err)
}

func TestSumPayloadRoundTrip(t *testing.T) {
	var sig [key.SignatureSize]byte
	copy(sig[:], []byte("0123456789012345678901234567890123456789012345678901234567890123"))
	kp, err := key.NewEncryptionKeyPair()
	require.NoError(t, err)

	p := SumPayload{SumSignature: sig, EphemeralPK: kp.Public}
	got, err := UnmarshalSumPayload(p.MarshalBinary())
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestLocalSeedDictRoundTrip(t *testing.T) {
	dict := LocalSeedDict{}
	for i := 0; i < 3; i++ {
		kp, err := key.NewSigningKeyPair()
		require.NoError(t, err)
		var seed [EncryptedSeedSize]byte
		seed[0] = byte(i)
		dict[kp.Public] = seed
	}

	got, rest, err := UnmarshalLocalSeedDict(MarshalLocalSeedDict(dict))
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Equal(t, dict, got)
}

func TestUpdatePayloadRoundTrip(t *testing.T) {
	cfg, err := mask.NewConfig(mask.GroupPrime, mask.DataF32, mask.B0, mask.M3)
	require.NoError(t, err)
	masked, _, err := mask.MaskModel([]float64{0.1, 0.2}, 1, cfg)
	require.NoError(t, err)

	sumKP, err := key.NewSigningKeyPair()
	require.NoError(t, err)
	dict := LocalSeedDict{}
	var seed [EncryptedSeedSize]byte
	dict[sumKP.Public] = seed

	p := UpdatePayload{Masked: masked, LocalSeedDict: dict}
	got, err := UnmarshalUpdatePayload(p.MarshalBinary())
	require.NoError(t, err)
	require.Equal(t, p.SumSignature, got.SumSignature)
	require.Equal(t, len(dict), len(got.LocalSeedDict))
	require.True(t, got.Masked.Config.Equal(cfg))
}

func TestSum2PayloadRoundTrip(t *testing.T) {
	cfg, err := mask.NewConfig(mask.GroupPrime, mask.DataF32, mask.B0, mask.M3)
	require.NoError(t, err)
	seed, err := mask.NewSeed()
	require.NoError(t, err)
	obj, err := mask.MaskOfSeed(seed, 3, cfg)
	require.NoError(t, err)

	p := Sum2Payload{Masked: obj}
	got, err := UnmarshalSum2Payload(p.MarshalBinary())
	require.NoError(t, err)
	require.True(t, got.Masked.Config.Equal(cfg))
	require.Equal(t, len(obj.Vect), len(got.Masked.Vect))
}

func TestChunkingReassembly(t *testing.T) {
	payload := make([]byte, 37)
	for i := range payload {
		payload[i] = byte(i)
	}
	chunks, err := SplitMessage(TagUpdate, payload, 10)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	r, err := NewReassembler(16, time.Minute)
	require.NoError(t, err)

	participant, err := key.NewSigningKeyPair()
	require.NoError(t, err)

	var tag Tag
	var full []byte
	var ok bool
	// feed chunks out of order
	order := []int{2, 0, 3, 1}
	if len(chunks) < 4 {
		order = []int{0, 1}
	}
	for _, idx := range order {
		if idx >= len(chunks) {
			continue
		}
		tag, full, ok, err = r.Add(participant.Public, chunks[idx])
		require.NoError(t, err)
	}
	require.True(t, ok)
	require.Equal(t, TagUpdate, tag)
	require.Equal(t, payload, full)
}

func TestChunkTTLExpiry(t *testing.T) {
	chunks, err := SplitMessage(TagSum, []byte("0123456789"), 4)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	r, err := NewReassembler(16, time.Millisecond)
	require.NoError(t, err)
	participant, err := key.NewSigningKeyPair()
	require.NoError(t, err)

	_, _, ok, err := r.Add(participant.Public, chunks[0])
	require.NoError(t, err)
	require.False(t, ok)

	time.Sleep(5 * time.Millisecond)

	// remaining chunks arrive after TTL: the partial is dropped and this
	// can never complete from just the tail chunks.
	for _, c := range chunks[1:] {
		_, _, ok, err = r.Add(participant.Public, c)
		require.NoError(t, err)
	}
	require.False(t, ok)
}
