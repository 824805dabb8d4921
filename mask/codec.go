package mask

import (
	"fmt"
	"math/big"
)

// Encode clamps r to [-bound, bound], shifts it to be nonnegative, scales it
// by the data type's precision, and reduces the result modulo N. It is the
// single-value encoding step spec §4.2 describes; MaskModel calls it once
// per model element and once for the scalar weight.
func Encode(r float64, cfg Config) *big.Int {
	bound := cfg.BoundValue()
	if r > bound {
		r = bound
	} else if r < -bound {
		r = -bound
	}
	shifted := r + bound // now in [0, 2*bound]

	scaled := new(big.Float).Mul(big.NewFloat(shifted), big.NewFloat(cfg.Scale()))
	i, _ := scaled.Int(nil)
	if i.Sign() < 0 {
		i.SetInt64(0)
	}
	return i.Mod(i, cfg.order)
}

// Decode inverts Encode for a value that is the sum of `count` independently
// encoded, bound-clamped contributions: it undoes the scaling and the
// count-many shifts those contributions' Encode calls introduced. count=1
// recovers a single encoded value, satisfying the round-trip law of spec §8;
// count>1 is what Unmask uses to read an aggregated vect/unit field back out
// (see AggregationState in mask.go - the wire MaskObject itself carries
// no count, so the caller must supply the one it tracked while aggregating).
func Decode(y *big.Int, cfg Config, count int) float64 {
	yf := new(big.Float).SetInt(y)
	scale := big.NewFloat(cfg.Scale())
	unscaled := new(big.Float).Quo(yf, scale)
	shift := cfg.BoundValue() * float64(count)
	result, _ := new(big.Float).Sub(unscaled, big.NewFloat(shift)).Float64()
	return result
}

// checkShape validates that two configs agree and a vector has the expected
// length, the precondition every aggregation step must hold (spec §4.2).
func checkShape(a, b Config, gotLen, wantLen int) error {
	if !a.Equal(b) {
		return fmt.Errorf("mask config mismatch: %+v vs %+v", a, b)
	}
	if gotLen != wantLen {
		return fmt.Errorf("mask vector length mismatch: got %d want %d", gotLen, wantLen)
	}
	return nil
}
