package key

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

const (
	// EncryptionPublicKeySize is the width of a Curve25519 public key.
	EncryptionPublicKeySize = 32
	// SealOverhead is box.AnonymousOverhead: 32-byte ephemeral sender
	// public key plus 16-byte Poly1305 tag, so a sealed 32-byte seed is
	// 48+32 = 80 bytes.
	SealOverhead = box.AnonymousOverhead
)

// EncryptionPublicKey is either the coordinator's per-round encryption key
// or a sum participant's ephemeral key.
type EncryptionPublicKey [EncryptionPublicKeySize]byte

func (k EncryptionPublicKey) String() string { return hex.EncodeToString(k[:]) }
func (k EncryptionPublicKey) Bytes() []byte  { return k[:] }

func EncryptionPublicKeyFromBytes(b []byte) (EncryptionPublicKey, error) {
	var pk EncryptionPublicKey
	if len(b) != EncryptionPublicKeySize {
		return pk, fmt.Errorf("encryption public key: want %d bytes, got %d", EncryptionPublicKeySize, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// EncryptionKeyPair is a fresh Curve25519 key pair: the coordinator mints one
// per round, sum participants mint one per round for their ephemeral key.
type EncryptionKeyPair struct {
	Public  EncryptionPublicKey
	private [32]byte
}

// NewEncryptionKeyPair generates a fresh X25519 key pair.
func NewEncryptionKeyPair() (*EncryptionKeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating encryption key pair: %w", err)
	}
	return &EncryptionKeyPair{Public: EncryptionPublicKey(*pub), private: *priv}, nil
}

// Seal anonymously encrypts plaintext to recipient's public key, producing
// ephemeral_pk(32) || seal(plaintext). This is the "sealed box" primitive
// spec §4.3/§9 requires: the sender's own identity is not needed to open it,
// only the recipient's private key.
func Seal(recipient EncryptionPublicKey, plaintext []byte) ([]byte, error) {
	pk := [32]byte(recipient)
	return box.SealAnonymous(nil, plaintext, &pk, rand.Reader)
}

// Open decrypts a value produced by Seal using this key pair's private key.
func (kp *EncryptionKeyPair) Open(sealed []byte) ([]byte, error) {
	pub := [32]byte(kp.Public)
	out, ok := box.OpenAnonymous(nil, sealed, &pub, &kp.private)
	if !ok {
		return nil, fmt.Errorf("sealed box: authentication failed")
	}
	return out, nil
}
