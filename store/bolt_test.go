package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	xaynerrors "github.com/xaynetwork/xaynet-coordinator/common/errors"
	"github.com/xaynetwork/xaynet-coordinator/key"
	"github.com/xaynetwork/xaynet-coordinator/mask"
)

func TestBoltStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer s.Close(context.Background())

	ctx := context.Background()
	pk, epk := newSumParticipant(t)

	result, err := s.AddSumParticipant(ctx, pk, epk)
	require.NoError(t, err)
	require.Equal(t, Added, result)

	result, err = s.AddSumParticipant(ctx, pk, epk)
	require.NoError(t, err)
	require.Equal(t, AlreadyExists, result)

	updateKP, err := key.NewSigningKeyPair()
	require.NoError(t, err)
	var seed EncryptedSeed
	seed[0] = 7
	local := LocalSeedDict{pk: seed}
	require.NoError(t, s.AddLocalSeedDict(ctx, updateKP.Public, local))

	seeds, err := s.SeedDict(ctx)
	require.NoError(t, err)
	require.Equal(t, seed, seeds[pk][updateKP.Public])

	err = s.AddLocalSeedDict(ctx, updateKP.Public, local)
	require.ErrorIs(t, err, xaynerrors.ErrStorageInvariant)

	cfg, err := mask.NewConfig(mask.GroupPrime, mask.DataF32, mask.B0, mask.M3)
	require.NoError(t, err)
	maskSeed, err := mask.NewSeed()
	require.NoError(t, err)
	obj, err := mask.MaskOfSeed(maskSeed, 2, cfg)
	require.NoError(t, err)
	require.NoError(t, s.IncrMaskScore(ctx, pk, obj))

	masks, count, err := s.BestMasks(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Len(t, masks, 1)
	require.Equal(t, ObjectKey(obj), ObjectKey(masks[0]))

	require.NoError(t, s.DeleteDicts(ctx))
	_, count, err = s.BestMasks(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}
