package codec

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/xaynetwork/xaynet-coordinator/key"
)

const chunkMiniHeaderSize = 2 + 2 + 1 + 1 // message_id, chunk_id, flags, reserved

// ChunkPayload is one piece of a message too large to fit in a single
// envelope (spec §4.3 "Chunking"). It is sealed and signed exactly like any
// other payload, under TagChunk.
type ChunkPayload struct {
	MessageID uint16
	ChunkID   uint16
	Last      bool
	Data      []byte
}

func (c ChunkPayload) MarshalBinary() []byte {
	out := make([]byte, chunkMiniHeaderSize+len(c.Data))
	binary.BigEndian.PutUint16(out[0:2], c.MessageID)
	binary.BigEndian.PutUint16(out[2:4], c.ChunkID)
	if c.Last {
		out[4] = 1
	}
	copy(out[chunkMiniHeaderSize:], c.Data)
	return out
}

func UnmarshalChunkPayload(b []byte) (ChunkPayload, error) {
	if len(b) < chunkMiniHeaderSize {
		return ChunkPayload{}, fmt.Errorf("chunk payload: too short")
	}
	return ChunkPayload{
		MessageID: binary.BigEndian.Uint16(b[0:2]),
		ChunkID:   binary.BigEndian.Uint16(b[2:4]),
		Last:      b[4] != 0,
		Data:      b[chunkMiniHeaderSize:],
	}, nil
}

// SplitMessage splits an inner message (tag ∥ payload) into ChunkPayloads of
// at most maxChunkPayload bytes of Data each, tagged with a fresh random
// message id so the decoder can tell concurrent multipart messages from the
// same participant apart.
func SplitMessage(tag Tag, payload []byte, maxChunkPayload int) ([]ChunkPayload, error) {
	if maxChunkPayload <= 0 {
		return nil, fmt.Errorf("chunking: maxChunkPayload must be positive")
	}
	inner := make([]byte, 1+len(payload))
	inner[0] = byte(tag)
	copy(inner[1:], payload)

	var idBuf [2]byte
	if _, err := rand.Read(idBuf[:]); err != nil {
		return nil, fmt.Errorf("chunking: %w", err)
	}
	messageID := binary.BigEndian.Uint16(idBuf[:])

	var chunks []ChunkPayload
	for chunkID := uint16(0); len(inner) > 0; chunkID++ {
		n := maxChunkPayload
		if n > len(inner) {
			n = len(inner)
		}
		chunks = append(chunks, ChunkPayload{
			MessageID: messageID,
			ChunkID:   chunkID,
			Last:      n == len(inner),
			Data:      inner[:n],
		})
		inner = inner[n:]
	}
	return chunks, nil
}

type chunkSetKey struct {
	participant key.SigningPublicKey
	messageID   uint16
}

type chunkSet struct {
	parts      map[uint16][]byte
	lastChunk  uint16
	haveLast   bool
	lastSeenAt time.Time
}

// Reassembler buffers in-flight chunked messages keyed by
// (participant_pk, message_id), bounded by both an entry count (via the
// underlying LRU) and a TTL checked on every access, matching spec §9's
// "bounded cache (evict on max count or TTL)". Out-of-order chunks are
// accepted; a message whose TTL expires before its last chunk arrives is
// dropped silently, per spec.
type Reassembler struct {
	mu    sync.Mutex
	cache *lru.Cache
	ttl   time.Duration
}

// NewReassembler builds a Reassembler holding at most maxEntries in-flight
// messages for at most ttl each.
func NewReassembler(maxEntries int, ttl time.Duration) (*Reassembler, error) {
	c, err := lru.New(maxEntries)
	if err != nil {
		return nil, fmt.Errorf("codec: building chunk cache: %w", err)
	}
	return &Reassembler{cache: c, ttl: ttl}, nil
}

// Add folds one chunk in. It returns (message, tag, true, nil) once every
// chunk 0..last has arrived; otherwise ok is false and err is nil unless the
// chunk itself is malformed.
func (r *Reassembler) Add(participant key.SigningPublicKey, chunk ChunkPayload) (Tag, []byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := chunkSetKey{participant: participant, messageID: chunk.MessageID}
	now := time.Now()

	var set *chunkSet
	if v, ok := r.cache.Get(k); ok {
		existing := v.(*chunkSet)
		if now.Sub(existing.lastSeenAt) > r.ttl {
			r.cache.Remove(k) // expired: drop the partial message silently
		} else {
			set = existing
		}
	}
	if set == nil {
		set = &chunkSet{parts: make(map[uint16][]byte)}
	}

	set.parts[chunk.ChunkID] = chunk.Data
	set.lastSeenAt = now
	if chunk.Last {
		set.haveLast = true
		set.lastChunk = chunk.ChunkID
	}
	r.cache.Add(k, set)

	if !set.haveLast {
		return 0, nil, false, nil
	}
	for i := uint16(0); i <= set.lastChunk; i++ {
		if _, ok := set.parts[i]; !ok {
			return 0, nil, false, nil // still waiting on a gap
		}
	}

	r.cache.Remove(k)
	var full []byte
	for i := uint16(0); i <= set.lastChunk; i++ {
		full = append(full, set.parts[i]...)
	}
	if len(full) == 0 {
		return 0, nil, false, fmt.Errorf("codec: reassembled message is empty")
	}
	return Tag(full[0]), full[1:], true, nil
}
