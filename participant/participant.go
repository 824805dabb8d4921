// Package participant implements the client-side counterpart of the round
// state machine (spec §4.6): a single-threaded cooperative state machine
// that tracks round freshness, composes the sum/update/sum2 wire messages,
// and never has more than one request in flight.
package participant

import (
	"context"
	"fmt"

	"github.com/xaynetwork/xaynet-coordinator/codec"
	"github.com/xaynetwork/xaynet-coordinator/common/log"
	"github.com/xaynetwork/xaynet-coordinator/key"
	"github.com/xaynetwork/xaynet-coordinator/mask"
	"github.com/xaynetwork/xaynet-coordinator/pet"
	"github.com/xaynetwork/xaynet-coordinator/store"
)

// State is one of the four states spec §4.6 names.
type State int

const (
	StateAwaiting State = iota
	StateSum
	StateUpdate
	StateSum2
)

func (s State) String() string {
	switch s {
	case StateAwaiting:
		return "awaiting"
	case StateSum:
		return "sum"
	case StateUpdate:
		return "update"
	case StateSum2:
		return "sum2"
	default:
		return "unknown"
	}
}

// Status is transition's report of what happened.
type Status int

const (
	// Pending means nothing changed; call transition again later.
	Pending Status = iota
	// Complete means the state machine moved, and the caller may call
	// transition again immediately if it wants to make further progress
	// within the same round.
	Complete
)

// maxChunkPayload bounds how much of a message's inner (tag ∥ payload) bytes
// go into a single chunk (spec §4.3 "Chunking"); masked models for large
// ModelLength are the message most likely to need it.
const maxChunkPayload = 16 * 1024

// Participant drives one identity's participation across rounds. It is not
// safe for concurrent use: spec §5 "Participant" calls for a single-threaded
// cooperative driver with at most one request in flight.
type Participant struct {
	log      log.Logger
	identity *key.SigningKeyPair
	client   Client
	models   ModelStore

	state State
	seed  pet.RoundSeed
	rp    pet.RoundParams

	sumEphemeralKP *key.EncryptionKeyPair
	updateSeed     mask.Seed
}

// New builds a Participant in the Awaiting state.
func New(l log.Logger, identity *key.SigningKeyPair, client Client, models ModelStore) *Participant {
	return &Participant{log: l, identity: identity, client: client, models: models, state: StateAwaiting}
}

// State reports the current state, mostly for tests and observability.
func (p *Participant) State() State { return p.state }

// Transition drives the state machine forward one step (spec §4.6). Callers
// poll this in a loop; Pending means try again after a delay, Complete means
// state advanced (or a message was sent) and it is fine to call again right
// away.
func (p *Participant) Transition(ctx context.Context) (Status, error) {
	switch p.state {
	case StateAwaiting:
		return p.transitionAwaiting(ctx)
	case StateSum:
		return p.transitionSum(ctx)
	case StateUpdate:
		return p.transitionUpdate(ctx)
	case StateSum2:
		return p.transitionSum2(ctx)
	default:
		return Pending, fmt.Errorf("participant: unknown state %s", p.state)
	}
}

// resetToAwaiting discards all per-round state and goes back to Awaiting
// without sending anything, spec §4.6's "at every step ... if [the round
// seed] has changed, reset without sending any message."
func (p *Participant) resetToAwaiting() {
	p.state = StateAwaiting
	p.seed = pet.RoundSeed{}
	p.sumEphemeralKP = nil
	p.updateSeed = mask.Seed{}
}

// checkFresh re-fetches RP and compares its seed against the one this
// participant last saw. A change resets to Awaiting and reports that as a
// completed transition (the caller should not send whatever it was about
// to send).
func (p *Participant) checkFresh(ctx context.Context) (fresh bool, status Status, err error) {
	rp, ok, err := p.client.Params(ctx)
	if err != nil {
		return false, Pending, err
	}
	if !ok {
		return false, Pending, nil
	}
	if rp.Seed != p.seed {
		p.resetToAwaiting()
		return false, Complete, nil
	}
	return true, Pending, nil
}

func (p *Participant) transitionAwaiting(ctx context.Context) (Status, error) {
	rp, ok, err := p.client.Params(ctx)
	if err != nil {
		return Pending, err
	}
	if !ok {
		return Pending, nil
	}
	if rp.Seed == p.seed {
		return Pending, nil
	}

	p.rp = rp
	p.seed = rp.Seed

	sumSig := pet.SumTaskSignature(p.identity, rp.Seed)
	if pet.IsEligible(sumSig, rp.SumProb) {
		p.state = StateSum
		return Complete, nil
	}

	updateSig := pet.UpdateTaskSignature(p.identity, rp.Seed)
	if pet.IsEligible(updateSig, rp.UpdateProb) {
		p.state = StateUpdate
		return Complete, nil
	}

	p.log.Debugw("round not selected for either task", "seed", rp.Seed.String())
	return Complete, nil
}

func (p *Participant) transitionSum(ctx context.Context) (Status, error) {
	if fresh, status, err := p.checkFresh(ctx); err != nil || !fresh {
		return status, err
	}

	ephKP, err := key.NewEncryptionKeyPair()
	if err != nil {
		return Pending, fmt.Errorf("participant: generating ephemeral key pair: %w", err)
	}
	p.sumEphemeralKP = ephKP

	payload := codec.SumPayload{EphemeralPK: ephKP.Public}
	copy(payload.SumSignature[:], pet.SumTaskSignature(p.identity, p.rp.Seed))

	if err := p.send(ctx, codec.TagSum, payload.MarshalBinary()); err != nil {
		return Pending, fmt.Errorf("participant: sending sum message: %w", err)
	}
	p.state = StateSum2
	return Complete, nil
}

func (p *Participant) transitionUpdate(ctx context.Context) (Status, error) {
	if fresh, status, err := p.checkFresh(ctx); err != nil || !fresh {
		return status, err
	}

	sums, ok, err := p.client.Sums(ctx)
	if err != nil {
		return Pending, err
	}
	if !ok {
		return Pending, nil
	}

	model, err := p.models.TrainedModel()
	if err != nil {
		return Pending, fmt.Errorf("participant: reading trained model: %w", err)
	}
	if model == nil {
		return Pending, nil
	}

	masked, seed, err := mask.MaskModel(model.Values, model.Weight, p.rp.MaskConfig)
	if err != nil {
		return Pending, fmt.Errorf("participant: masking model: %w", err)
	}
	p.updateSeed = seed

	localDict := make(store.LocalSeedDict, len(sums))
	for sumPK, sumEncPK := range sums {
		sealed, err := key.Seal(sumEncPK, seed.Bytes())
		if err != nil {
			return Pending, fmt.Errorf("participant: sealing mask seed: %w", err)
		}
		var enc store.EncryptedSeed
		copy(enc[:], sealed)
		localDict[sumPK] = enc
	}

	payload := codec.UpdatePayload{Masked: masked, LocalSeedDict: localDict}
	copy(payload.SumSignature[:], pet.SumTaskSignature(p.identity, p.rp.Seed))
	copy(payload.UpdateSignature[:], pet.UpdateTaskSignature(p.identity, p.rp.Seed))

	if err := p.send(ctx, codec.TagUpdate, payload.MarshalBinary()); err != nil {
		return Pending, fmt.Errorf("participant: sending update message: %w", err)
	}
	p.state = StateAwaiting
	return Complete, nil
}

func (p *Participant) transitionSum2(ctx context.Context) (Status, error) {
	if fresh, status, err := p.checkFresh(ctx); err != nil || !fresh {
		return status, err
	}

	row, ok, err := p.client.SeedsRow(ctx, p.identity.Public)
	if err != nil {
		return Pending, err
	}
	if !ok {
		return Pending, nil
	}

	length, ok, err := p.client.Length(ctx)
	if err != nil {
		return Pending, err
	}
	if !ok {
		return Pending, nil
	}

	masks := make([]mask.Object, 0, len(row))
	for _, enc := range row {
		plain, err := p.sumEphemeralKP.Open(enc[:])
		if err != nil {
			return Pending, fmt.Errorf("participant: opening sealed seed: %w", err)
		}
		seed, err := mask.SeedFromBytes(plain)
		if err != nil {
			return Pending, fmt.Errorf("participant: %w", err)
		}
		obj, err := mask.MaskOfSeed(seed, length, p.rp.MaskConfig)
		if err != nil {
			return Pending, fmt.Errorf("participant: re-deriving mask: %w", err)
		}
		masks = append(masks, obj)
	}

	aggregated, err := mask.SumMasks(p.rp.MaskConfig, masks)
	if err != nil {
		return Pending, fmt.Errorf("participant: summing masks: %w", err)
	}

	payload := codec.Sum2Payload{Masked: aggregated}
	copy(payload.SumSignature[:], pet.SumTaskSignature(p.identity, p.rp.Seed))

	if err := p.send(ctx, codec.TagSum2, payload.MarshalBinary()); err != nil {
		return Pending, fmt.Errorf("participant: sending sum2 message: %w", err)
	}
	p.state = StateAwaiting
	return Complete, nil
}

// send seals payload under tag and hands it to the client, splitting it
// into chunks first if it's too large for a single envelope (spec §4.3).
func (p *Participant) send(ctx context.Context, tag codec.Tag, payload []byte) error {
	if len(payload) <= maxChunkPayload {
		wire, err := codec.Seal(p.identity, p.rp.CoordinatorPK, tag, 0, payload)
		if err != nil {
			return err
		}
		return p.client.SendMessage(ctx, wire)
	}

	chunks, err := codec.SplitMessage(tag, payload, maxChunkPayload)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		wire, err := codec.Seal(p.identity, p.rp.CoordinatorPK, codec.TagChunk, 0, c.MarshalBinary())
		if err != nil {
			return err
		}
		if err := p.client.SendMessage(ctx, wire); err != nil {
			return err
		}
	}
	return nil
}
