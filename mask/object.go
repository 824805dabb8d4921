package mask

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// Object is the pair (vect, unit) spec §3/§4.3 calls MaskObject: a length-L
// vector of group elements plus a single scalar used to carry the
// aggregated weight accumulator. Every Object is bound to the Config that
// produced it.
type Object struct {
	Config Config
	Vect   []*big.Int
	Unit   *big.Int
}

// NewObject builds an Object, defensively copying the big.Ints so later
// mutation of the caller's slice can't corrupt a value already handed to
// the aggregator.
func NewObject(cfg Config, vect []*big.Int, unit *big.Int) Object {
	cp := make([]*big.Int, len(vect))
	for i, v := range vect {
		cp[i] = new(big.Int).Set(v)
	}
	return Object{Config: cfg, Vect: cp, Unit: new(big.Int).Set(unit)}
}

func packConfig(cfg Config) [4]byte {
	return [4]byte{byte(cfg.Group), byte(cfg.Data), byte(cfg.Bound), byte(cfg.Model)}
}

func unpackConfig(b [4]byte) (Config, error) {
	return NewConfig(GroupType(b[0]), DataType(b[1]), BoundType(b[2]), ModelType(b[3]))
}

// putNumber writes x little-endian into exactly width bytes; x is always
// < N by construction, so it never overflows width.
func putNumber(x *big.Int, width int) []byte {
	buf := make([]byte, width)
	b := x.Bytes() // big-endian, no leading zeros
	for i, v := range b {
		buf[len(b)-1-i] = v // reverse into little-endian
	}
	return buf
}

func getNumber(buf []byte) *big.Int {
	be := make([]byte, len(buf))
	for i, v := range buf {
		be[len(buf)-1-i] = v
	}
	return new(big.Int).SetBytes(be)
}

// MarshalVect serializes the vect component as config(4) ∥ n(4) ∥ n·b
// bytes, per spec §4.3.
func (o Object) MarshalVect() []byte {
	cfgBytes := packConfig(o.Config)
	width := o.Config.BytesPerNumber()
	out := make([]byte, 4+4+len(o.Vect)*width)
	copy(out, cfgBytes[:])
	binary.BigEndian.PutUint32(out[4:8], uint32(len(o.Vect)))
	for i, v := range o.Vect {
		copy(out[8+i*width:8+(i+1)*width], putNumber(v, width))
	}
	return out
}

// MarshalUnit serializes the unit component as config(4) ∥ b bytes.
func (o Object) MarshalUnit() []byte {
	cfgBytes := packConfig(o.Config)
	width := o.Config.BytesPerNumber()
	out := make([]byte, 4+width)
	copy(out, cfgBytes[:])
	copy(out[4:], putNumber(o.Unit, width))
	return out
}

// MarshalBinary concatenates vect and unit, the on-wire mask object layout.
func (o Object) MarshalBinary() []byte {
	return append(o.MarshalVect(), o.MarshalUnit()...)
}

// UnmarshalVect parses a config(4) ∥ n(4) ∥ n·b-byte vect component from the
// front of b, returning its width so callers can slice off any bytes that
// follow it (unit, local seed dict, ...).
func UnmarshalVect(b []byte) ([]*big.Int, Config, int, error) {
	if len(b) < 8 {
		return nil, Config{}, 0, fmt.Errorf("mask vect: short buffer (%d bytes)", len(b))
	}
	var cfgBytes [4]byte
	copy(cfgBytes[:], b[:4])
	cfg, err := unpackConfig(cfgBytes)
	if err != nil {
		return nil, Config{}, 0, fmt.Errorf("mask vect: %w", err)
	}
	n := binary.BigEndian.Uint32(b[4:8])
	width := cfg.BytesPerNumber()
	want := 8 + int(n)*width
	if len(b) < want {
		return nil, Config{}, 0, fmt.Errorf("mask vect: want at least %d bytes for n=%d, got %d", want, n, len(b))
	}
	vect := make([]*big.Int, n)
	for i := range vect {
		start := 8 + i*width
		vect[i] = getNumber(b[start : start+width])
	}
	return vect, cfg, width, nil
}

// UnmarshalUnit parses a config(4) ∥ b-byte unit component.
func UnmarshalUnit(b []byte, cfg Config) (*big.Int, error) {
	width := cfg.BytesPerNumber()
	if len(b) != 4+width {
		return nil, fmt.Errorf("mask unit: want %d bytes, got %d", 4+width, len(b))
	}
	var cfgBytes [4]byte
	copy(cfgBytes[:], b[:4])
	gotCfg, err := unpackConfig(cfgBytes)
	if err != nil {
		return nil, fmt.Errorf("mask unit: %w", err)
	}
	if !gotCfg.Equal(cfg) {
		return nil, fmt.Errorf("mask unit: config mismatch with vect component")
	}
	return getNumber(b[4 : 4+width]), nil
}

// UnmarshalObject parses the full vect+unit layout back into an Object.
func UnmarshalObject(b []byte) (Object, error) {
	vect, cfg, width, err := UnmarshalVect(b)
	if err != nil {
		return Object{}, err
	}
	rest := b[8+len(vect)*width:]
	unit, err := UnmarshalUnit(rest, cfg)
	if err != nil {
		return Object{}, err
	}
	return Object{Config: cfg, Vect: vect, Unit: unit}, nil
}
