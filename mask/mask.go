package mask

import (
	"fmt"
	"math/big"
)

// MaskModel masks model with scalar weight alpha (spec §4.2): it draws a
// fresh seed, derives (vect_mask, unit_mask), and returns the masked object
// plus the seed (the caller is responsible for sealing the seed to each sum
// participant's ephemeral key and never persisting it elsewhere).
func MaskModel(model []float64, alpha float64, cfg Config) (Object, Seed, error) {
	seed, err := NewSeed()
	if err != nil {
		return Object{}, Seed{}, err
	}
	vectMask, unitMask, err := DeriveMask(seed, len(model), cfg)
	if err != nil {
		return Object{}, Seed{}, err
	}
	n := cfg.Order()
	vect := make([]*big.Int, len(model))
	for i, m := range model {
		v := new(big.Int).Add(Encode(alpha*m, cfg), vectMask[i])
		vect[i] = v.Mod(v, n)
	}
	unit := new(big.Int).Add(Encode(alpha, cfg), unitMask)
	unit.Mod(unit, n)
	return NewObject(cfg, vect, unit), seed, nil
}

// MaskOfSeed re-derives the (vect, unit) mask pair for a seed a sum
// participant decrypted, so it can be summed with every other sum's mask
// (spec §4.1 Sum2, §4.6 Participant Sum2).
func MaskOfSeed(seed Seed, length int, cfg Config) (Object, error) {
	vect, unit, err := DeriveMask(seed, length, cfg)
	if err != nil {
		return Object{}, err
	}
	return NewObject(cfg, vect, unit), nil
}

// AggregationState is the accumulator coordinator state keeps across the
// update phase (spec §3 "Aggregation state"). It tracks not just the running
// sum but how many contributions went in, which Decode needs to correctly
// remove each contribution's shift when the round finally unmasks (see the
// doc comment on Decode in codec.go).
type AggregationState struct {
	cfg   Config
	vect  []*big.Int
	unit  *big.Int
	count int
}

// NewAggregationState creates an empty accumulator of the given length and
// config, consistent with the "additive identity" boundary behavior spec §8
// requires (an aggregation of zero contributions must decode to all-zero).
func NewAggregationState(cfg Config, length int) *AggregationState {
	vect := make([]*big.Int, length)
	for i := range vect {
		vect[i] = big.NewInt(0)
	}
	return &AggregationState{cfg: cfg, vect: vect, unit: big.NewInt(0)}
}

// Add folds a masked model into the accumulator. Returns
// errors.ErrAggregationFailed (via the caller wrapping) on any shape
// mismatch; the accumulator is left untouched on error.
func (a *AggregationState) Add(obj Object) error {
	if err := checkShape(a.cfg, obj.Config, len(obj.Vect), len(a.vect)); err != nil {
		return fmt.Errorf("aggregation: %w", err)
	}
	n := a.cfg.Order()
	for i, v := range obj.Vect {
		a.vect[i].Add(a.vect[i], v)
		a.vect[i].Mod(a.vect[i], n)
	}
	a.unit.Add(a.unit, obj.Unit)
	a.unit.Mod(a.unit, n)
	a.count++
	return nil
}

// Count is the number of masked models folded in so far.
func (a *AggregationState) Count() int { return a.count }

// Unmask subtracts the winning mask (the sum, mod N, of every sum
// participant's mask-of-seeds submission) from the accumulator and decodes
// the result into the global model: decode(vect)/decode(unit) component-wise
// (spec §4.2).
func (a *AggregationState) Unmask(mask Object) ([]float64, error) {
	if err := checkShape(a.cfg, mask.Config, len(mask.Vect), len(a.vect)); err != nil {
		return nil, fmt.Errorf("unmask: %w", err)
	}
	n := a.cfg.Order()

	unitRaw := new(big.Int).Sub(a.unit, mask.Unit)
	unitRaw.Mod(unitRaw, n)
	sumAlpha := Decode(unitRaw, a.cfg, a.count)
	if sumAlpha == 0 {
		return nil, fmt.Errorf("unmask: zero total weight, cannot average")
	}

	model := make([]float64, len(a.vect))
	for i, v := range a.vect {
		raw := new(big.Int).Sub(v, mask.Vect[i])
		raw.Mod(raw, n)
		model[i] = Decode(raw, a.cfg, a.count) / sumAlpha
	}
	return model, nil
}

// SumMasks adds the given mask Objects mod N, component-wise - what a sum
// participant does to combine the masks it can derive from every seed it
// decrypted (spec §4.1 Sum2).
func SumMasks(cfg Config, masks []Object) (Object, error) {
	if len(masks) == 0 {
		return Object{}, fmt.Errorf("sum masks: no masks supplied")
	}
	length := len(masks[0].Vect)
	acc := NewAggregationState(cfg, length)
	for _, m := range masks {
		if err := acc.Add(m); err != nil {
			return Object{}, err
		}
	}
	return NewObject(cfg, acc.vect, acc.unit), nil
}
