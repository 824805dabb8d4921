package request

import (
	"context"
	"testing"
	"time"

	clock "github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/xaynetwork/xaynet-coordinator/codec"
	"github.com/xaynetwork/xaynet-coordinator/common/log"
	"github.com/xaynetwork/xaynet-coordinator/key"
	"github.com/xaynetwork/xaynet-coordinator/mask"
	"github.com/xaynetwork/xaynet-coordinator/pet"
	"github.com/xaynetwork/xaynet-coordinator/store"
)

func testLogger() log.Logger { return log.New(nil, log.FatalLevel, false) }

func testMaskConfig(t *testing.T) mask.Config {
	t.Helper()
	cfg, err := mask.NewConfig(mask.GroupPrime, mask.DataF32, mask.B0, mask.M3)
	require.NoError(t, err)
	return cfg
}

func quickQuorum(minCount int) pet.QuorumParams {
	return pet.QuorumParams{MinCount: minCount, MaxCount: minCount + 2, MinTime: time.Millisecond, MaxTime: 50 * time.Millisecond}
}

// startRound builds a Round, runs it in the background on a fake clock, and
// blocks until it is parked waiting on the sum phase's two timers so Params
// and KeyPair are guaranteed published.
func startRound(t *testing.T) (*pet.Round, clock.FakeClock) {
	t.Helper()
	identity, err := key.NewSigningKeyPair()
	require.NoError(t, err)

	cfg, err := pet.NewConfig(0.9, 0.9, quickQuorum(1), quickQuorum(1), quickQuorum(1), testMaskConfig(t), 4)
	require.NoError(t, err)

	fc := clock.NewFakeClock()
	r := pet.NewRound(testLogger(), fc, cfg, store.NewMemoryStore(), identity)

	ctx := context.Background()
	go r.Run(ctx)
	t.Cleanup(r.Shutdown)

	fc.BlockUntil(2)
	return r, fc
}

func sealSum(t *testing.T, signer *key.SigningKeyPair, rp pet.RoundParams) []byte {
	t.Helper()
	sig := pet.SumTaskSignature(signer, rp.Seed)
	ephKP, err := key.NewEncryptionKeyPair()
	require.NoError(t, err)
	payload := codec.SumPayload{EphemeralPK: ephKP.Public}
	copy(payload.SumSignature[:], sig)
	wire, err := codec.Seal(signer, rp.CoordinatorPK, codec.TagSum, 0, payload.MarshalBinary())
	require.NoError(t, err)
	return wire
}

func currentParams(t *testing.T, r *pet.Round) pet.RoundParams {
	t.Helper()
	rp, ok, _ := r.Events().Params.Get()
	require.True(t, ok)
	return rp
}

func currentKeyPair(t *testing.T, r *pet.Round) *key.EncryptionKeyPair {
	t.Helper()
	kp, ok, _ := r.Events().KeyPair.Get()
	require.True(t, ok)
	return kp
}

func TestPipelineAcceptsValidSum(t *testing.T) {
	r, fc := startRound(t)
	rp := currentParams(t, r)
	coordKP := currentKeyPair(t, r)

	reassembler, err := codec.NewReassembler(16, time.Minute)
	require.NoError(t, err)
	p := NewPipeline(testLogger(), r, reassembler, 2)

	participant, err := key.NewSigningKeyPair()
	require.NoError(t, err)
	wire := sealSum(t, participant, rp)

	fc.Advance(time.Millisecond)
	decision := p.HandleEnvelope(context.Background(), coordKP, wire)
	require.Equal(t, DecisionAccepted, decision)
}

func TestPipelineRejectsGarbageCiphertext(t *testing.T) {
	r, _ := startRound(t)
	coordKP := currentKeyPair(t, r)

	reassembler, err := codec.NewReassembler(16, time.Minute)
	require.NoError(t, err)
	p := NewPipeline(testLogger(), r, reassembler, 2)

	garbage := make([]byte, 200)
	for i := range garbage {
		garbage[i] = 0xAA
	}
	decision := p.HandleEnvelope(context.Background(), coordKP, garbage)
	require.Equal(t, DecisionRejected, decision)
}

func TestPipelineRejectsWrongPhaseTag(t *testing.T) {
	r, fc := startRound(t)
	rp := currentParams(t, r)
	coordKP := currentKeyPair(t, r)

	reassembler, err := codec.NewReassembler(16, time.Minute)
	require.NoError(t, err)
	p := NewPipeline(testLogger(), r, reassembler, 2)

	participant, err := key.NewSigningKeyPair()
	require.NoError(t, err)
	sig := pet.UpdateTaskSignature(participant, rp.Seed)
	masked, _, err := mask.MaskModel([]float64{0.1, 0.2, 0.3, 0.4}, 1.0, testMaskConfig(t))
	require.NoError(t, err)
	updatePayload := codec.UpdatePayload{Masked: masked, LocalSeedDict: store.LocalSeedDict{}}
	copy(updatePayload.UpdateSignature[:], sig)
	wire, err := codec.Seal(participant, rp.CoordinatorPK, codec.TagUpdate, 0, updatePayload.MarshalBinary())
	require.NoError(t, err)

	decision := p.HandleEnvelope(context.Background(), coordKP, wire)
	require.Equal(t, DecisionRejected, decision)

	sumWire := sealSum(t, participant, rp)
	fc.Advance(time.Millisecond)
	decision = p.HandleEnvelope(context.Background(), coordKP, sumWire)
	require.Equal(t, DecisionAccepted, decision)
}

func TestPipelineReassemblesChunkedSum(t *testing.T) {
	r, fc := startRound(t)
	rp := currentParams(t, r)
	coordKP := currentKeyPair(t, r)

	reassembler, err := codec.NewReassembler(16, time.Minute)
	require.NoError(t, err)
	p := NewPipeline(testLogger(), r, reassembler, 2)

	participant, err := key.NewSigningKeyPair()
	require.NoError(t, err)
	sig := pet.SumTaskSignature(participant, rp.Seed)
	ephKP, err := key.NewEncryptionKeyPair()
	require.NoError(t, err)
	payload := codec.SumPayload{EphemeralPK: ephKP.Public}
	copy(payload.SumSignature[:], sig)

	chunks, err := codec.SplitMessage(codec.TagSum, payload.MarshalBinary(), 8)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	var wires [][]byte
	for _, c := range chunks {
		wire, err := codec.Seal(participant, rp.CoordinatorPK, codec.TagChunk, 0, c.MarshalBinary())
		require.NoError(t, err)
		wires = append(wires, wire)
	}

	fc.Advance(time.Millisecond)
	for i, wire := range wires[:len(wires)-1] {
		decision := p.HandleEnvelope(context.Background(), coordKP, wire)
		require.Equalf(t, DecisionPending, decision, "chunk %d", i)
	}
	decision := p.HandleEnvelope(context.Background(), coordKP, wires[len(wires)-1])
	require.Equal(t, DecisionAccepted, decision)
}
