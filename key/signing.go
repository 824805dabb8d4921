// Package key holds the two key families spec §3 "Key material" describes:
// long-lived Ed25519 signing identities (participants, and the coordinator's
// own identity used for round-seed derivation) and per-round Curve25519
// encryption pairs (the coordinator's round key, and sum participants'
// ephemeral keys). Sizes are pinned by the wire format in spec §4.3: 64-byte
// signatures, 32-byte public keys.
package key

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// SignaturePublicKeySize is the width of an Ed25519 public signing key.
	SignaturePublicKeySize = ed25519.PublicKeySize
	// SignatureSize is the width of a detached Ed25519 signature.
	SignatureSize = ed25519.SignatureSize
)

// SigningPublicKey identifies a participant (or the coordinator) across
// rounds. It is the key every dictionary is indexed by.
type SigningPublicKey [SignaturePublicKeySize]byte

func (k SigningPublicKey) String() string { return hex.EncodeToString(k[:]) }

// Bytes returns the key's raw 32 bytes.
func (k SigningPublicKey) Bytes() []byte { return k[:] }

// SigningPublicKeyFromBytes rejects a key that isn't exactly 32 bytes, so
// envelope parsing can't silently truncate or zero-pad a corrupt key.
func SigningPublicKeyFromBytes(b []byte) (SigningPublicKey, error) {
	var pk SigningPublicKey
	if len(b) != SignaturePublicKeySize {
		return pk, fmt.Errorf("signing public key: want %d bytes, got %d", SignaturePublicKeySize, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// SigningKeyPair is a participant's long-lived identity.
type SigningKeyPair struct {
	Public  SigningPublicKey
	private ed25519.PrivateKey
}

// NewSigningKeyPair generates a fresh Ed25519 identity key pair.
func NewSigningKeyPair() (*SigningKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating signing key pair: %w", err)
	}
	kp := &SigningKeyPair{private: priv}
	copy(kp.Public[:], pub)
	return kp, nil
}

// Sign produces a 64-byte detached signature over msg.
func (kp *SigningKeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(kp.private, msg)
}

// PrivateBytes exposes the raw private key for persistence. Callers are
// responsible for storing it securely; within this package only
// SaveIdentity writes key material to disk.
func (kp *SigningKeyPair) PrivateBytes() []byte {
	b := make([]byte, len(kp.private))
	copy(b, kp.private)
	return b
}

// SigningKeyPairFromSeed rebuilds a key pair from a 32-byte seed, the same
// seed ed25519.NewKeyFromSeed expects. Used to load a persisted identity.
func SigningKeyPairFromSeed(seed []byte) (*SigningKeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing seed: want %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	kp := &SigningKeyPair{private: priv}
	copy(kp.Public[:], priv.Public().(ed25519.PublicKey))
	return kp, nil
}

// Verify checks a detached signature against a known public key.
func Verify(pub SigningPublicKey, msg, sig []byte) error {
	if len(sig) != SignatureSize {
		return fmt.Errorf("signature: want %d bytes, got %d", SignatureSize, len(sig))
	}
	if !ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig) {
		return errors.New("signature: verification failed")
	}
	return nil
}
