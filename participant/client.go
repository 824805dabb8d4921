package participant

import (
	"context"

	"github.com/xaynetwork/xaynet-coordinator/key"
	"github.com/xaynetwork/xaynet-coordinator/pet"
	"github.com/xaynetwork/xaynet-coordinator/store"
)

// Client is everything the participant state machine needs from the
// coordinator's external interface (spec §6). ok is false wherever the
// coordinator's HTTP layer answers 204 ("not available yet"), which the
// state machine treats as Pending rather than an error. The concrete
// implementation talking to api/httpapi over HTTP lives outside this
// package; tests substitute a fake.
type Client interface {
	Params(ctx context.Context) (pet.RoundParams, bool, error)
	Sums(ctx context.Context) (store.SumDict, bool, error)
	SeedsRow(ctx context.Context, sumPK key.SigningPublicKey) (map[key.SigningPublicKey]store.EncryptedSeed, bool, error)
	Length(ctx context.Context) (int, bool, error)
	SendMessage(ctx context.Context, wire []byte) error
}
