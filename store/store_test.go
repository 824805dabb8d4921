package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	xaynerrors "github.com/xaynetwork/xaynet-coordinator/common/errors"
	"github.com/xaynetwork/xaynet-coordinator/key"
	"github.com/xaynetwork/xaynet-coordinator/mask"
)

func newSumParticipant(t *testing.T) (key.SigningPublicKey, key.EncryptionPublicKey) {
	t.Helper()
	sk, err := key.NewSigningKeyPair()
	require.NoError(t, err)
	ek, err := key.NewEncryptionKeyPair()
	require.NoError(t, err)
	return sk.Public, ek.Public
}

func TestMemoryStoreAddSumParticipant(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	pk, epk := newSumParticipant(t)

	result, err := s.AddSumParticipant(ctx, pk, epk)
	require.NoError(t, err)
	require.Equal(t, Added, result)

	result, err = s.AddSumParticipant(ctx, pk, epk)
	require.NoError(t, err)
	require.Equal(t, AlreadyExists, result)

	dict, err := s.SumDict(ctx)
	require.NoError(t, err)
	require.Len(t, dict, 1)
}

func TestMemoryStoreAddLocalSeedDictRejectsKeyMismatch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	pk, epk := newSumParticipant(t)
	_, err := s.AddSumParticipant(ctx, pk, epk)
	require.NoError(t, err)

	updateKP, err := key.NewSigningKeyPair()
	require.NoError(t, err)

	otherPK, _ := newSumParticipant(t)
	local := LocalSeedDict{otherPK: EncryptedSeed{}}
	err = s.AddLocalSeedDict(ctx, updateKP.Public, local)
	require.ErrorIs(t, err, xaynerrors.ErrStorageInvariant)
}

func TestMemoryStoreAddLocalSeedDictRejectsDuplicateContributor(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	pk, epk := newSumParticipant(t)
	_, err := s.AddSumParticipant(ctx, pk, epk)
	require.NoError(t, err)

	updateKP, err := key.NewSigningKeyPair()
	require.NoError(t, err)
	local := LocalSeedDict{pk: EncryptedSeed{}}

	require.NoError(t, s.AddLocalSeedDict(ctx, updateKP.Public, local))
	err = s.AddLocalSeedDict(ctx, updateKP.Public, local)
	require.ErrorIs(t, err, xaynerrors.ErrStorageInvariant)
}

func TestMemoryStoreAddLocalSeedDictWritesEveryRow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	pk1, epk1 := newSumParticipant(t)
	pk2, epk2 := newSumParticipant(t)
	_, err := s.AddSumParticipant(ctx, pk1, epk1)
	require.NoError(t, err)
	_, err = s.AddSumParticipant(ctx, pk2, epk2)
	require.NoError(t, err)

	updateKP, err := key.NewSigningKeyPair()
	require.NoError(t, err)
	var seed1, seed2 EncryptedSeed
	seed1[0], seed2[0] = 1, 2
	local := LocalSeedDict{pk1: seed1, pk2: seed2}
	require.NoError(t, s.AddLocalSeedDict(ctx, updateKP.Public, local))

	seeds, err := s.SeedDict(ctx)
	require.NoError(t, err)
	require.Equal(t, seed1, seeds[pk1][updateKP.Public])
	require.Equal(t, seed2, seeds[pk2][updateKP.Public])
}

func TestMemoryStoreIncrMaskScoreRejectsUnknownParticipant(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	pk, _ := newSumParticipant(t)

	cfg, err := mask.NewConfig(mask.GroupPrime, mask.DataF32, mask.B0, mask.M3)
	require.NoError(t, err)
	seed, err := mask.NewSeed()
	require.NoError(t, err)
	obj, err := mask.MaskOfSeed(seed, 2, cfg)
	require.NoError(t, err)

	err = s.IncrMaskScore(ctx, pk, obj)
	require.ErrorIs(t, err, xaynerrors.ErrStorageInvariant)
}

func TestMemoryStoreIncrMaskScoreIsOneShot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	pk, epk := newSumParticipant(t)
	_, err := s.AddSumParticipant(ctx, pk, epk)
	require.NoError(t, err)

	cfg, err := mask.NewConfig(mask.GroupPrime, mask.DataF32, mask.B0, mask.M3)
	require.NoError(t, err)
	seed, err := mask.NewSeed()
	require.NoError(t, err)
	obj, err := mask.MaskOfSeed(seed, 2, cfg)
	require.NoError(t, err)

	require.NoError(t, s.IncrMaskScore(ctx, pk, obj))
	err = s.IncrMaskScore(ctx, pk, obj)
	require.ErrorIs(t, err, xaynerrors.ErrStorageInvariant)

	dict, err := s.SumDict(ctx)
	require.NoError(t, err)
	require.Empty(t, dict)
}

func TestMemoryStoreBestMasksTieBreaksLexicographically(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	cfg, err := mask.NewConfig(mask.GroupPrime, mask.DataF32, mask.B0, mask.M3)
	require.NoError(t, err)
	seedA, err := mask.NewSeed()
	require.NoError(t, err)
	seedB, err := mask.NewSeed()
	require.NoError(t, err)
	objA, err := mask.MaskOfSeed(seedA, 2, cfg)
	require.NoError(t, err)
	objB, err := mask.MaskOfSeed(seedB, 2, cfg)
	require.NoError(t, err)

	keyA, keyB := ObjectKey(objA), ObjectKey(objB)
	require.NotEqual(t, keyA, keyB)
	first, second := objA, objB
	if keyB < keyA {
		first, second = objB, objA
	}

	for i := 0; i < 2; i++ {
		pk, epk := newSumParticipant(t)
		_, err := s.AddSumParticipant(ctx, pk, epk)
		require.NoError(t, err)
		obj := objA
		if i == 1 {
			obj = objB
		}
		require.NoError(t, s.IncrMaskScore(ctx, pk, obj))
	}

	masks, count, err := s.BestMasks(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Len(t, masks, 2)
	require.True(t, masks[0].Config.Equal(first.Config))
	require.Equal(t, ObjectKey(masks[0]), ObjectKey(first))
	require.Equal(t, ObjectKey(masks[1]), ObjectKey(second))
}

func TestMemoryStoreDeleteDictsClearsEverything(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	pk, epk := newSumParticipant(t)
	_, err := s.AddSumParticipant(ctx, pk, epk)
	require.NoError(t, err)

	require.NoError(t, s.DeleteDicts(ctx))

	dict, err := s.SumDict(ctx)
	require.NoError(t, err)
	require.Empty(t, dict)

	masks, count, err := s.BestMasks(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Empty(t, masks)
}

func TestMemoryStoreDeleteCoordinatorDataKeepsMaskDict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	pk, epk := newSumParticipant(t)
	_, err := s.AddSumParticipant(ctx, pk, epk)
	require.NoError(t, err)

	cfg, err := mask.NewConfig(mask.GroupPrime, mask.DataF32, mask.B0, mask.M3)
	require.NoError(t, err)
	seed, err := mask.NewSeed()
	require.NoError(t, err)
	obj, err := mask.MaskOfSeed(seed, 2, cfg)
	require.NoError(t, err)
	require.NoError(t, s.IncrMaskScore(ctx, pk, obj))

	require.NoError(t, s.DeleteCoordinatorData(ctx))

	_, count, err := s.BestMasks(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
