package pet

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/xaynetwork/xaynet-coordinator/key"
	"github.com/xaynetwork/xaynet-coordinator/mask"
)

// RoundSeedSize is the width of a round seed (spec §3 "Round parameters").
const RoundSeedSize = 32

// RoundSeed is the 32-byte value that determines task eligibility for a
// round; it changes every round and is re-derived from the previous one.
type RoundSeed [RoundSeedSize]byte

func (s RoundSeed) String() string { return hex.EncodeToString(s[:]) }

// QuorumParams bounds one phase: it must run at least MinTime and accept at
// least MinCount requests (capped at MaxTime total), and once MaxCount is
// reached, further valid requests are discarded instead of accepted
// (spec §4.1 "per-phase quorum parameters").
type QuorumParams struct {
	MinCount int
	MaxCount int
	MinTime  time.Duration
	MaxTime  time.Duration
}

func (q QuorumParams) validate(name string) error {
	if q.MinCount <= 0 || q.MaxCount < q.MinCount {
		return fmt.Errorf("pet: %s quorum: min_count=%d max_count=%d is invalid", name, q.MinCount, q.MaxCount)
	}
	if q.MinTime < 0 || q.MaxTime < q.MinTime {
		return fmt.Errorf("pet: %s quorum: min_time=%s max_time=%s is invalid", name, q.MinTime, q.MaxTime)
	}
	return nil
}

// Config is the operator-supplied configuration a round is built from
// (spec §6's `pet.*` and `mask.*` keys, plus `model.length`).
type Config struct {
	SumProb    float64
	UpdateProb float64

	Sum    QuorumParams
	Update QuorumParams
	Sum2   QuorumParams

	MaskConfig  mask.Config
	ModelLength int
}

// NewConfig validates the starvation guard spec §3 requires
// (s+u-s*u<1) and every phase's quorum bounds.
func NewConfig(sumProb, updateProb float64, sum, update, sum2 QuorumParams, maskCfg mask.Config, modelLength int) (Config, error) {
	if sumProb <= 0 || sumProb >= 1 {
		return Config{}, fmt.Errorf("pet: sum probability %g must be in (0,1)", sumProb)
	}
	if updateProb <= 0 || updateProb >= 1 {
		return Config{}, fmt.Errorf("pet: update probability %g must be in (0,1)", updateProb)
	}
	if sumProb+updateProb-sumProb*updateProb >= 1 {
		return Config{}, fmt.Errorf("pet: sum+update-sum*update must be < 1, got %g", sumProb+updateProb-sumProb*updateProb)
	}
	if err := sum.validate("sum"); err != nil {
		return Config{}, err
	}
	if err := update.validate("update"); err != nil {
		return Config{}, err
	}
	if err := sum2.validate("sum2"); err != nil {
		return Config{}, err
	}
	if modelLength <= 0 {
		return Config{}, fmt.Errorf("pet: model length must be positive, got %d", modelLength)
	}
	return Config{
		SumProb: sumProb, UpdateProb: updateProb,
		Sum: sum, Update: update, Sum2: sum2,
		MaskConfig: maskCfg, ModelLength: modelLength,
	}, nil
}

// RoundParams (RP) is everything a participant needs to determine its role
// and validate responses for one round (spec §3).
type RoundParams struct {
	CoordinatorPK key.EncryptionPublicKey
	SumProb       float64
	UpdateProb    float64
	Seed          RoundSeed
	MaskConfig    mask.Config
	ModelLength   int
}
