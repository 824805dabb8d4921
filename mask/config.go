// Package mask implements the masking engine (spec §4.2): fixed-point
// encoding into a finite group ℤ/Nℤ, deterministic mask derivation from a
// seed, masking/aggregation/unmasking, all governed by a four-parameter
// mask.Config.
package mask

import (
	"fmt"
	"math"
	"math/big"
)

// GroupType selects how the modulus N is constructed.
type GroupType uint8

const (
	// GroupPrime derives N as the smallest prime at least as large as the
	// required bit length.
	GroupPrime GroupType = iota
	// GroupInteger derives N as a power of two.
	GroupInteger
)

func (g GroupType) String() string {
	switch g {
	case GroupPrime:
		return "prime"
	case GroupInteger:
		return "integer"
	default:
		return "unknown"
	}
}

// DataType selects the quantization precision of the original reals.
type DataType uint8

const (
	DataF32 DataType = iota
	DataF64
	DataI32
	DataI64
)

func (d DataType) String() string {
	switch d {
	case DataF32:
		return "f32"
	case DataF64:
		return "f64"
	case DataI32:
		return "i32"
	case DataI64:
		return "i64"
	default:
		return "unknown"
	}
}

// widened reports whether the data type requires the widened (64-bit-scale)
// precision spec §4.2 calls for with F64/I64.
func (d DataType) widened() bool { return d == DataF64 || d == DataI64 }

// precisionScale is the factor reals are multiplied by before truncation to
// an integer. Ten decimal digits for the 32-bit types, eighteen for the
// widened 64-bit types.
func (d DataType) precisionScale() *big.Float {
	if d.widened() {
		return new(big.Float).SetFloat64(1e18)
	}
	return new(big.Float).SetFloat64(1e10)
}

// BoundType selects the clamp range applied before encoding.
type BoundType uint8

const (
	B0 BoundType = iota
	B2
	B4
	B6
	Bmax
)

func (b BoundType) String() string {
	switch b {
	case B0:
		return "b0"
	case B2:
		return "b2"
	case B4:
		return "b4"
	case B6:
		return "b6"
	case Bmax:
		return "bmax"
	default:
		return "unknown"
	}
}

// value returns the clamp bound for the given data type, per spec §4.2:
// B0 |x|<=1, B2 <=1e3, B4<=1e6, B6<=1e9, Bmax<=type-max.
func (b BoundType) value(d DataType) float64 {
	switch b {
	case B0:
		return 1
	case B2:
		return 1e3
	case B4:
		return 1e6
	case B6:
		return 1e9
	case Bmax:
		switch d {
		case DataF32:
			return math.MaxFloat32
		case DataI32:
			return math.MaxInt32
		case DataI64:
			return math.MaxInt64
		default: // DataF64
			return math.MaxFloat64 / 1e200 // keep bit-length budgets sane
		}
	default:
		return 1
	}
}

// ModelType selects the expected order of magnitude of the number of
// participants contributing to a single aggregation, so N has enough
// headroom that summing that many weighted contributions cannot overflow.
type ModelType uint8

const (
	M3 ModelType = iota
	M6
	M9
	M12
)

func (m ModelType) String() string {
	switch m {
	case M3:
		return "m3"
	case M6:
		return "m6"
	case M9:
		return "m9"
	case M12:
		return "m12"
	default:
		return "unknown"
	}
}

func (m ModelType) headroom() float64 {
	switch m {
	case M3:
		return 1e3
	case M6:
		return 1e6
	case M9:
		return 1e9
	case M12:
		return 1e12
	default:
		return 1e3
	}
}

// extraMarginBits absorbs rounding slop in the bit-length estimate so the
// constructed group is never accidentally one bit too small.
const extraMarginBits = 16

// Config is the four orthogonal parameters spec §4.2 names. It is immutable
// once built by NewConfig; N and BytesPerNumber are derived once and cached.
type Config struct {
	Group GroupType
	Data  DataType
	Bound BoundType
	Model ModelType

	order          *big.Int
	bytesPerNumber int
}

// NewConfig derives N and bytes-per-number for the given parameter
// combination. The derivation is a pure function of (Group, Data, Bound,
// Model): every party on the network that builds the same Config gets byte-
// identical N, which is the protocol invariant spec §9 calls out.
func NewConfig(group GroupType, data DataType, bound BoundType, model ModelType) (Config, error) {
	cfg := Config{Group: group, Data: data, Bound: bound, Model: model}

	boundValue := bound.value(data)
	scale, _ := data.precisionScale().Float64()
	// domain is [0, 2*bound] after shifting to nonnegative, scaled to an
	// integer, then given headroom for up to `model.headroom()` additive
	// contributions.
	domain := 2 * boundValue * scale * model.headroom()
	if domain <= 0 || math.IsInf(domain, 0) {
		return Config{}, fmt.Errorf("mask config: degenerate domain for %s/%s/%s/%s", group, data, bound, model)
	}
	bits := int(math.Ceil(math.Log2(domain))) + extraMarginBits

	switch group {
	case GroupPrime:
		cfg.order = smallestPrimeAtLeast(bits)
	case GroupInteger:
		cfg.order = new(big.Int).Lsh(big.NewInt(1), uint(bits))
	default:
		return Config{}, fmt.Errorf("mask config: unknown group type %d", group)
	}
	cfg.bytesPerNumber = (cfg.order.BitLen() + 7) / 8
	return cfg, nil
}

// Order returns N, the modulus of the finite group.
func (c Config) Order() *big.Int { return new(big.Int).Set(c.order) }

// BytesPerNumber is the fixed little-endian width every group element is
// serialized to.
func (c Config) BytesPerNumber() int { return c.bytesPerNumber }

// BoundValue returns the clamp range for this config's bound and data type.
func (c Config) BoundValue() float64 { return c.Bound.value(c.Data) }

// Scale returns the fixed-point precision multiplier for this config's data type.
func (c Config) Scale() float64 {
	f, _ := c.Data.precisionScale().Float64()
	return f
}

// Equal reports whether two configs derive the same group (the only thing
// that matters for shape compatibility checks in aggregation).
func (c Config) Equal(other Config) bool {
	return c.Group == other.Group && c.Data == other.Data && c.Bound == other.Bound && c.Model == other.Model
}

// smallestPrimeAtLeast deterministically finds the smallest odd prime p with
// p >= 2^(bits-1), by trial testing consecutive odd candidates. Pure
// function of bits: every implementation that runs this algorithm over the
// same bits arrives at the same N.
func smallestPrimeAtLeast(bits int) *big.Int {
	candidate := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
	if candidate.Bit(0) == 0 {
		candidate.Add(candidate, big.NewInt(1))
	}
	two := big.NewInt(2)
	for !candidate.ProbablyPrime(32) {
		candidate.Add(candidate, two)
	}
	return candidate
}
