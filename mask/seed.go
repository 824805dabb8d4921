package mask

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"

	"golang.org/x/crypto/chacha20"
)

// SeedSize is the width of a mask seed (spec §3, §9: 32 bytes, used to key
// the ChaCha20 CSPRNG that produces a deterministic mask).
const SeedSize = 32

// Seed is the secret a participant draws per masked contribution; sending it
// (sealed) to each sum participant is how the sum participants can later
// reconstruct and sum the masks without ever seeing the contribution itself.
type Seed [SeedSize]byte

func (s Seed) String() string { return hex.EncodeToString(s[:]) }
func (s Seed) Bytes() []byte  { return s[:] }

// NewSeed draws a fresh random seed.
func NewSeed() (Seed, error) {
	var s Seed
	if _, err := rand.Read(s[:]); err != nil {
		return s, fmt.Errorf("generating mask seed: %w", err)
	}
	return s, nil
}

// SeedFromBytes rejects anything that isn't exactly SeedSize bytes, since a
// truncated seed would silently derive a different mask on each side.
func SeedFromBytes(b []byte) (Seed, error) {
	var s Seed
	if len(b) != SeedSize {
		return s, fmt.Errorf("mask seed: want %d bytes, got %d", SeedSize, len(b))
	}
	copy(s[:], b)
	return s, nil
}

// rejectionPRNG draws group elements uniformly in [0, N) from a ChaCha20
// keystream keyed by the seed: each candidate is a bytesPerNumber-byte
// big-endian number, and any candidate >= N is discarded and redrawn.
// Deterministic: the same seed always produces the
// same sequence of draws, which is the determinism spec §4.2 requires of
// mask derivation.
type rejectionPRNG struct {
	cipher *chacha20.Cipher
	width  int
}

func newRejectionPRNG(seed Seed, width int) (*rejectionPRNG, error) {
	// ChaCha20 wants a 12-byte nonce; a fixed all-zero nonce is safe here
	// because every call site uses a freshly generated, never-reused seed
	// as the key.
	nonce := make([]byte, chacha20.NonceSize)
	c, err := chacha20.NewUnauthenticatedCipher(seed[:], nonce)
	if err != nil {
		return nil, fmt.Errorf("mask prng: %w", err)
	}
	return &rejectionPRNG{cipher: c, width: width}, nil
}

func (p *rejectionPRNG) next(n *big.Int) *big.Int {
	buf := make([]byte, p.width)
	zero := make([]byte, p.width)
	for {
		p.cipher.XORKeyStream(buf, zero)
		candidate := new(big.Int).SetBytes(buf)
		if candidate.Cmp(n) < 0 {
			return candidate
		}
	}
}

// DeriveMask draws a length-L vector mask plus a single scalar mask,
// deterministically, from seed. The rejection sampling avoids the modulo
// bias a plain `% N` would introduce (spec §9).
func DeriveMask(seed Seed, length int, cfg Config) (vect []*big.Int, unit *big.Int, err error) {
	if length < 0 {
		return nil, nil, fmt.Errorf("mask derivation: negative length %d", length)
	}
	prng, err := newRejectionPRNG(seed, cfg.BytesPerNumber())
	if err != nil {
		return nil, nil, err
	}
	n := cfg.Order()
	vect = make([]*big.Int, length)
	for i := range vect {
		vect[i] = prng.next(n)
	}
	unit = prng.next(n)
	return vect, unit, nil
}
