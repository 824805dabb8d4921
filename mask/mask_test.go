package mask

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func smallConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := NewConfig(GroupPrime, DataF32, B0, M3)
	require.NoError(t, err)
	return cfg
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cfg := smallConfig(t)
	for _, x := range []float64{0, 0.5, -0.5, 1, -1, 0.1234} {
		y := Encode(x, cfg)
		got := Decode(y, cfg, 1)
		require.InDelta(t, x, got, 1e-6, "x=%v", x)
	}
}

func TestDeriveMaskIsDeterministic(t *testing.T) {
	cfg := smallConfig(t)
	seed, err := NewSeed()
	require.NoError(t, err)

	v1, u1, err := DeriveMask(seed, 8, cfg)
	require.NoError(t, err)
	v2, u2, err := DeriveMask(seed, 8, cfg)
	require.NoError(t, err)

	require.Equal(t, u1, u2)
	for i := range v1 {
		require.Equal(t, v1[i], v2[i])
		require.Equal(t, -1, v1[i].Cmp(cfg.Order()))
		require.True(t, v1[i].Sign() >= 0)
	}
}

func TestMaskAggregateUnmaskSingleContribution(t *testing.T) {
	cfg := smallConfig(t)
	model := []float64{0.1, 0.2, 0.3, 0.4}

	masked, seed, err := MaskModel(model, 1.0, cfg)
	require.NoError(t, err)

	seedMask, err := MaskOfSeed(seed, len(model), cfg)
	require.NoError(t, err)

	agg := NewAggregationState(cfg, len(model))
	require.NoError(t, agg.Add(masked))

	out, err := agg.Unmask(seedMask)
	require.NoError(t, err)
	for i := range model {
		require.InDelta(t, model[i], out[i], 1e-6)
	}
}

func TestWeightedAverageOfTwoUpdates(t *testing.T) {
	cfg, err := NewConfig(GroupPrime, DataF32, B2, M3)
	require.NoError(t, err)

	m1 := []float64{1, 1}
	m2 := []float64{5, 5}

	masked1, seed1, err := MaskModel(m1, 1, cfg)
	require.NoError(t, err)
	masked2, seed2, err := MaskModel(m2, 3, cfg)
	require.NoError(t, err)

	seedMask1, err := MaskOfSeed(seed1, 2, cfg)
	require.NoError(t, err)
	seedMask2, err := MaskOfSeed(seed2, 2, cfg)
	require.NoError(t, err)
	winningMask, err := SumMasks(cfg, []Object{seedMask1, seedMask2})
	require.NoError(t, err)

	agg := NewAggregationState(cfg, 2)
	require.NoError(t, agg.Add(masked1))
	require.NoError(t, agg.Add(masked2))

	out, err := agg.Unmask(winningMask)
	require.NoError(t, err)
	require.InDelta(t, 4.0, out[0], 1e-4)
	require.InDelta(t, 4.0, out[1], 1e-4)
}

func TestAggregationOfZeroContributionsIsIdentity(t *testing.T) {
	cfg := smallConfig(t)
	agg := NewAggregationState(cfg, 3)
	// With no contributions folded in, the raw accumulators must be the
	// additive identity (spec §8 boundary behavior).
	require.Equal(t, 0, agg.Count())
	require.Equal(t, int64(0), agg.unit.Int64())
	for _, v := range agg.vect {
		require.Equal(t, int64(0), v.Int64())
	}
}

func TestAggregateRejectsShapeMismatch(t *testing.T) {
	cfg := smallConfig(t)
	other, err := NewConfig(GroupPrime, DataF64, B0, M3)
	require.NoError(t, err)

	agg := NewAggregationState(cfg, 4)
	masked, _, err := MaskModel([]float64{1, 2, 3}, 1, other)
	require.NoError(t, err)
	require.Error(t, agg.Add(masked))

	maskedWrongLen, _, err := MaskModel([]float64{1, 2, 3}, 1, cfg)
	require.NoError(t, err)
	require.Error(t, agg.Add(maskedWrongLen))
}

func TestObjectSerializationRoundTrip(t *testing.T) {
	cfg := smallConfig(t)
	masked, _, err := MaskModel([]float64{0.1, -0.2, 0.3}, 1, cfg)
	require.NoError(t, err)

	b := masked.MarshalBinary()
	got, err := UnmarshalObject(b)
	require.NoError(t, err)

	require.True(t, got.Config.Equal(cfg))
	require.Equal(t, masked.Unit, got.Unit)
	for i := range masked.Vect {
		require.Equal(t, masked.Vect[i], got.Vect[i])
	}
}

func TestIntegerGroupIsPowerOfTwo(t *testing.T) {
	cfg, err := NewConfig(GroupInteger, DataF32, B0, M3)
	require.NoError(t, err)
	n := cfg.Order()
	// a power of two has exactly one bit set
	bits := 0
	for i := 0; i < n.BitLen(); i++ {
		if n.Bit(i) == 1 {
			bits++
		}
	}
	require.Equal(t, 1, bits)
}

func TestBoundmaxDoesNotOverflowFloat(t *testing.T) {
	for _, dt := range []DataType{DataF32, DataF64, DataI32, DataI64} {
		cfg, err := NewConfig(GroupPrime, dt, Bmax, M3)
		require.NoError(t, err)
		require.False(t, math.IsInf(cfg.BoundValue(), 0))
	}
}
