package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	xaynerrors "github.com/xaynetwork/xaynet-coordinator/common/errors"
	"github.com/xaynetwork/xaynet-coordinator/key"
	"github.com/xaynetwork/xaynet-coordinator/mask"
)

// AddSumResult reports whether AddSumParticipant inserted a new row or
// found the participant already registered (spec §4.4).
type AddSumResult int

const (
	Added AddSumResult = iota
	AlreadyExists
)

// Store is the abstract dictionary storage spec §4.4 describes. Every
// operation below must be atomic with respect to concurrent callers; the
// protocol's safety rests on the compound ones (AddLocalSeedDict,
// IncrMaskScore) being all-or-nothing.
type Store interface {
	AddSumParticipant(ctx context.Context, pk key.SigningPublicKey, ephemeralPK key.EncryptionPublicKey) (AddSumResult, error)
	SumDict(ctx context.Context) (SumDict, error)

	AddLocalSeedDict(ctx context.Context, updatePK key.SigningPublicKey, local LocalSeedDict) error
	SeedDict(ctx context.Context) (SeedDict, error)

	IncrMaskScore(ctx context.Context, pk key.SigningPublicKey, masked mask.Object) error
	BestMasks(ctx context.Context) ([]mask.Object, int, error)

	DeleteCoordinatorData(ctx context.Context) error
	DeleteDicts(ctx context.Context) error

	Close(ctx context.Context) error
}

// MemoryStore is the in-memory Store implementation. Spec §9 requires that
// an in-memory store hold a single exclusive lock across the compound
// operations rather than per-dictionary locks, so that is exactly what this
// does: one mutex guards every map below together.
type MemoryStore struct {
	mu sync.Mutex

	sumDict    SumDict
	seedDict   SeedDict
	maskDict   MaskDict
	maskByKey  map[string]mask.Object
	contribSum map[key.SigningPublicKey]struct{} // update_pk -> already contributed a local seed dict
}

// NewMemoryStore returns an empty store ready for a fresh round.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sumDict:    SumDict{},
		seedDict:   SeedDict{},
		maskDict:   MaskDict{},
		maskByKey:  map[string]mask.Object{},
		contribSum: map[key.SigningPublicKey]struct{}{},
	}
}

func (s *MemoryStore) AddSumParticipant(_ context.Context, pk key.SigningPublicKey, ephemeralPK key.EncryptionPublicKey) (AddSumResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sumDict[pk]; ok {
		return AlreadyExists, nil
	}
	s.sumDict[pk] = ephemeralPK
	return Added, nil
}

func (s *MemoryStore) SumDict(_ context.Context) (SumDict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sumDict.Clone(), nil
}

// AddLocalSeedDict folds one updater's row into the seed dict. It is
// all-or-nothing: either every (sum_pk, seed) pair in local is written, or
// none are, and update_pk is marked as having contributed only on success.
func (s *MemoryStore) AddLocalSeedDict(_ context.Context, updatePK key.SigningPublicKey, local LocalSeedDict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contribSum[updatePK]; ok {
		return fmt.Errorf("%w: update participant already contributed a seed dict", xaynerrors.ErrStorageInvariant)
	}
	if !keysEqual(local.Keys(), s.sumDict) {
		return fmt.Errorf("%w: local seed dict keys do not match sum dict", xaynerrors.ErrStorageInvariant)
	}

	for sumPK, seed := range local {
		row, ok := s.seedDict[sumPK]
		if !ok {
			row = make(map[key.SigningPublicKey]EncryptedSeed, 1)
			s.seedDict[sumPK] = row
		}
		row[updatePK] = seed
	}
	s.contribSum[updatePK] = struct{}{}
	return nil
}

func (s *MemoryStore) SeedDict(_ context.Context) (SeedDict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(SeedDict, len(s.seedDict))
	for sumPK := range s.seedDict {
		out[sumPK] = s.seedDict.Row(sumPK)
	}
	return out, nil
}

// IncrMaskScore is sum2's one-shot submission: pk must still be a live sum
// participant, and is consumed (removed from sum_dict) by the call so a
// second sum2 from the same key fails.
func (s *MemoryStore) IncrMaskScore(_ context.Context, pk key.SigningPublicKey, masked mask.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sumDict[pk]; !ok {
		return fmt.Errorf("%w: sum2 submitter is not a registered sum participant", xaynerrors.ErrStorageInvariant)
	}
	delete(s.sumDict, pk)

	k := ObjectKey(masked)
	s.maskDict[k]++
	if _, ok := s.maskByKey[k]; !ok {
		s.maskByKey[k] = masked
	}
	return nil
}

// BestMasks returns every mask tied for the highest submission count,
// ordered lexicographically by serialized bytes (the tie-break spec §9
// pins, since the source left it to the storage backend).
func (s *MemoryStore) BestMasks(_ context.Context) ([]mask.Object, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	best := 0
	for _, count := range s.maskDict {
		if count > best {
			best = count
		}
	}
	if best == 0 {
		return nil, 0, nil
	}

	var keys []string
	for k, count := range s.maskDict {
		if count == best {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]mask.Object, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.maskByKey[k])
	}
	return out, best, nil
}

func (s *MemoryStore) DeleteCoordinatorData(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sumDict = SumDict{}
	s.seedDict = SeedDict{}
	s.contribSum = map[key.SigningPublicKey]struct{}{}
	return nil
}

func (s *MemoryStore) DeleteDicts(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sumDict = SumDict{}
	s.seedDict = SeedDict{}
	s.maskDict = MaskDict{}
	s.maskByKey = map[string]mask.Object{}
	s.contribSum = map[key.SigningPublicKey]struct{}{}
	return nil
}

func (s *MemoryStore) Close(context.Context) error { return nil }

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*BoltStore)(nil)
)
