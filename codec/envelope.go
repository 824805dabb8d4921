// Package codec implements the wire format of spec §4.3: envelope framing,
// signing, sealed-box encryption, payload (de)serialization and chunking.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/xaynetwork/xaynet-coordinator/key"
)

// Tag identifies which payload an envelope carries.
type Tag uint8

const (
	TagSum Tag = 1 + iota
	TagUpdate
	TagSum2
	TagChunk
)

func (t Tag) String() string {
	switch t {
	case TagSum:
		return "sum"
	case TagUpdate:
		return "update"
	case TagSum2:
		return "sum2"
	case TagChunk:
		return "chunk"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Flags is the single reserved flags byte; only bit 0 is defined.
type Flags uint8

const flagMultipart Flags = 1 << 0

func (f Flags) IsMultipart() bool { return f&flagMultipart != 0 }

const (
	signedHeaderSize = key.SignaturePublicKeySize + key.EncryptionPublicKeySize + 4 + 1 + 1 + 2
)

// Header is the parsed, authenticated envelope header (spec §4.3).
type Header struct {
	ParticipantPK key.SigningPublicKey
	CoordinatorPK key.EncryptionPublicKey
	TotalLen      uint32
	Tag           Tag
	Flags         Flags
}

// Seal builds a complete wire envelope: it signs
// (participant_pk ∥ coordinator_pk ∥ total_len ∥ tag ∥ flags ∥ reserved ∥ payload)
// with the participant's signing key, then seals that signed content to the
// coordinator's round public key, and prefixes the 64-byte signature
// (spec §4.3 "opening order").
func Seal(signer *key.SigningKeyPair, coordinatorPK key.EncryptionPublicKey, tag Tag, flags Flags, payload []byte) ([]byte, error) {
	plaintext := make([]byte, signedHeaderSize+len(payload))
	off := 0
	copy(plaintext[off:], signer.Public.Bytes())
	off += key.SignaturePublicKeySize
	copy(plaintext[off:], coordinatorPK.Bytes())
	off += key.EncryptionPublicKeySize

	totalLen := uint32(key.SignatureSize + key.SealOverhead + len(plaintext))
	binary.BigEndian.PutUint32(plaintext[off:], totalLen)
	off += 4
	plaintext[off] = byte(tag)
	off++
	plaintext[off] = byte(flags)
	off++
	off += 2 // reserved
	copy(plaintext[off:], payload)

	sig := signer.Sign(plaintext)
	sealed, err := key.Seal(coordinatorPK, plaintext)
	if err != nil {
		return nil, fmt.Errorf("codec: sealing envelope: %w", err)
	}

	out := make([]byte, 0, len(sig)+len(sealed))
	out = append(out, sig...)
	out = append(out, sealed...)
	return out, nil
}

// Open decrypts wire with the coordinator's round private key, parses the
// header, and verifies the signature against the participant key carried
// inside. A decryption failure is indistinguishable from noise on the wire
// and must be treated as a silent reject by the caller (spec §4.5 step 1);
// Open reports it as a plain error so the pipeline can do that without
// logging participant-identifying detail.
func Open(coordinatorKP *key.EncryptionKeyPair, wire []byte) (Header, []byte, error) {
	if len(wire) < key.SignatureSize {
		return Header{}, nil, fmt.Errorf("codec: envelope shorter than a signature")
	}
	sig := wire[:key.SignatureSize]
	sealed := wire[key.SignatureSize:]

	plaintext, err := coordinatorKP.Open(sealed)
	if err != nil {
		return Header{}, nil, fmt.Errorf("codec: opening envelope: %w", err)
	}
	if len(plaintext) < signedHeaderSize {
		return Header{}, nil, fmt.Errorf("codec: decrypted envelope too short")
	}

	var h Header
	off := 0
	participantPK, err := key.SigningPublicKeyFromBytes(plaintext[off : off+key.SignaturePublicKeySize])
	if err != nil {
		return Header{}, nil, fmt.Errorf("codec: %w", err)
	}
	h.ParticipantPK = participantPK
	off += key.SignaturePublicKeySize

	coordPK, err := key.EncryptionPublicKeyFromBytes(plaintext[off : off+key.EncryptionPublicKeySize])
	if err != nil {
		return Header{}, nil, fmt.Errorf("codec: %w", err)
	}
	h.CoordinatorPK = coordPK
	off += key.EncryptionPublicKeySize

	h.TotalLen = binary.BigEndian.Uint32(plaintext[off:])
	off += 4
	h.Tag = Tag(plaintext[off])
	off++
	h.Flags = Flags(plaintext[off])
	off++
	off += 2 // reserved

	if err := key.Verify(h.ParticipantPK, plaintext, sig); err != nil {
		return Header{}, nil, fmt.Errorf("codec: signature verification failed: %w", err)
	}

	return h, plaintext[off:], nil
}
