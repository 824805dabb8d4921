package pet

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	clock "github.com/jonboulle/clockwork"

	"github.com/xaynetwork/xaynet-coordinator/codec"
	xerrors "github.com/xaynetwork/xaynet-coordinator/common/errors"
	"github.com/xaynetwork/xaynet-coordinator/common/log"
	"github.com/xaynetwork/xaynet-coordinator/key"
	"github.com/xaynetwork/xaynet-coordinator/mask"
	"github.com/xaynetwork/xaynet-coordinator/store"
)

// Outcome is what the state machine decided about one Request.
type Outcome int

const (
	Accepted Outcome = iota
	Rejected
	Discarded
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Discarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Response is handed back to whoever submitted a Request.
type Response struct {
	Outcome Outcome
	Err     error
}

// Request carries one already-decrypted, already-signature-verified
// protocol message (spec §4.5 steps 1-5 happen upstream, in package
// request) into the round state machine for phase-filtering, eligibility
// accounting, and dictionary mutation.
type Request struct {
	Tag           codec.Tag
	ParticipantPK key.SigningPublicKey

	Sum   *codec.SumPayload
	Update *codec.UpdatePayload
	Sum2  *codec.Sum2Payload

	reply chan Response
}

// NewRequest builds a Request with its reply channel ready.
func NewRequest(tag codec.Tag, pk key.SigningPublicKey) *Request {
	return &Request{Tag: tag, ParticipantPK: pk, reply: make(chan Response, 1)}
}

// Reply blocks until the state machine has processed this request.
func (r *Request) Reply() Response { return <-r.reply }

func (r *Request) respond(outcome Outcome, err error) {
	r.reply <- Response{Outcome: outcome, Err: err}
}

type phaseCounts struct {
	Accepted, Rejected, Discarded int
}

// Round runs the coordinator's state machine: one cooperatively-scheduled
// loop owns the round dictionaries and the aggregation exclusively for the
// duration of a round (spec §5 "Shared resource policy").
type Round struct {
	log   log.Logger
	clock clock.Clock
	cfg   Config
	store store.Store

	// identity is the coordinator's own long-lived signing key pair, used
	// only to derive the next round seed (spec §9 "Round seed derivation").
	identity *key.SigningKeyPair

	events *Events

	requests chan *Request
	stop     chan struct{}

	id              uuid.UUID
	phase           Phase
	rp              RoundParams
	coordEncKP      *key.EncryptionKeyPair
	agg             *mask.AggregationState
	prevSeed        RoundSeed
	effectiveLength int
	counts          map[Phase]phaseCounts
}

// NewRound builds a Round ready to Run. identity is the coordinator's
// long-lived signing key (distinct from its per-round encryption key pair).
func NewRound(l log.Logger, c clock.Clock, cfg Config, st store.Store, identity *key.SigningKeyPair) *Round {
	return &Round{
		log:      l,
		clock:    c,
		cfg:      cfg,
		store:    st,
		identity: identity,
		events:   NewEvents(),
		requests: make(chan *Request, 64),
		stop:     make(chan struct{}),
		counts:   map[Phase]phaseCounts{},
	}
}

// Events returns the bus RP, phase, dictionaries, and model are published
// on.
func (r *Round) Events() *Events { return r.events }

// Submit hands a request to the running state machine. It returns once the
// request is queued, not once it is processed; call req.Reply() for the
// outcome.
func (r *Round) Submit(req *Request) {
	select {
	case r.requests <- req:
	case <-r.stop:
		req.respond(Rejected, fmt.Errorf("%w: coordinator is shutting down", xerrors.ErrInternal))
	}
}

// Shutdown breaks the state-machine loop at its next suspension point
// (spec §5 "Cancellation & timeouts").
func (r *Round) Shutdown() { close(r.stop) }

// Run drives Idle→Sum→Update→Sum2→Unmask forever, routing any round-fatal
// error through Failure and back to a fresh Idle, until Shutdown is called.
func (r *Round) Run(ctx context.Context) {
	for {
		select {
		case <-r.stop:
			r.events.Phase.Set(PhaseShutdown)
			return
		default:
		}

		if err := r.runRound(ctx); err != nil {
			if err == errShutdown {
				r.events.Phase.Set(PhaseShutdown)
				return
			}
			r.runFailure(ctx, err)
		}
	}
}

func (r *Round) runRound(ctx context.Context) error {
	if err := r.runIdle(ctx); err != nil {
		return err
	}
	if err := r.runSum(ctx); err != nil {
		return err
	}
	if err := r.runUpdate(ctx); err != nil {
		return err
	}
	if err := r.runSum2(ctx); err != nil {
		return err
	}
	return r.runUnmask(ctx)
}

func (r *Round) runIdle(ctx context.Context) error {
	r.events.Phase.Set(PhaseIdle)

	coordEncKP, err := key.NewEncryptionKeyPair()
	if err != nil {
		return fmt.Errorf("%w: generating round encryption key pair: %v", xerrors.ErrInternal, err)
	}
	r.coordEncKP = coordEncKP
	r.events.KeyPair.Set(coordEncKP)

	r.prevSeed = deriveRoundSeed(r.identity, r.prevSeed, r.cfg.SumProb, r.cfg.UpdateProb)

	if err := r.store.DeleteDicts(ctx); err != nil {
		return fmt.Errorf("%w: clearing round dictionaries: %v", xerrors.ErrInternal, err)
	}

	r.agg = mask.NewAggregationState(r.cfg.MaskConfig, r.cfg.ModelLength)
	r.id = uuid.New()
	r.counts = map[Phase]phaseCounts{}
	// effectiveLength is the vector length sum participants must derive
	// their sum2 masks against; it is fixed by configuration, not by how
	// many updates actually land (spec §6 GET /length).
	r.effectiveLength = r.cfg.ModelLength
	r.events.Length.Set(r.effectiveLength)

	r.rp = RoundParams{
		CoordinatorPK: coordEncKP.Public,
		SumProb:       r.cfg.SumProb,
		UpdateProb:    r.cfg.UpdateProb,
		Seed:          r.prevSeed,
		MaskConfig:    r.cfg.MaskConfig,
		ModelLength:   r.cfg.ModelLength,
	}
	r.events.Params.Set(r.rp)
	r.log.Infow("round started", "round_id", r.id.String(), "seed", r.prevSeed.String())
	return nil
}

// deriveRoundSeed implements spec §9's H(sign(prev_seed ∥ s ∥ u)) using the
// coordinator's own signing identity.
func deriveRoundSeed(identity *key.SigningKeyPair, prev RoundSeed, sumProb, updateProb float64) RoundSeed {
	msg := make([]byte, 0, RoundSeedSize+16)
	msg = append(msg, prev[:]...)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(sumProb))
	msg = append(msg, buf[:]...)
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(updateProb))
	msg = append(msg, buf[:]...)
	return sha256.Sum256(identity.Sign(msg))
}

func (r *Round) runSum(ctx context.Context) error {
	counts, err := r.runPhase(PhaseSum, r.cfg.Sum, codec.TagSum, func(req *Request) error {
		return r.handleSum(ctx, req)
	})
	r.counts[PhaseSum] = counts
	if err != nil {
		return err
	}
	sums, err := r.store.SumDict(ctx)
	if err != nil {
		return fmt.Errorf("%w: reading sum dict: %v", xerrors.ErrInternal, err)
	}
	r.events.Sums.Set(sums)
	return nil
}

func (r *Round) handleSum(ctx context.Context, req *Request) error {
	if req.Sum == nil {
		return fmt.Errorf("%w: empty sum payload", xerrors.ErrMessageRejected)
	}
	result, err := r.store.AddSumParticipant(ctx, req.ParticipantPK, req.Sum.EphemeralPK)
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrInternal, err)
	}
	if result == store.AlreadyExists {
		return fmt.Errorf("%w: duplicate sum participant", xerrors.ErrMessageRejected)
	}
	return nil
}

func (r *Round) runUpdate(ctx context.Context) error {
	counts, err := r.runPhase(PhaseUpdate, r.cfg.Update, codec.TagUpdate, func(req *Request) error {
		return r.handleUpdate(ctx, req)
	})
	r.counts[PhaseUpdate] = counts
	if err != nil {
		return err
	}
	seeds, err := r.store.SeedDict(ctx)
	if err != nil {
		return fmt.Errorf("%w: reading seed dict: %v", xerrors.ErrInternal, err)
	}
	r.events.Seeds.Set(seeds)
	return nil
}

func (r *Round) handleUpdate(ctx context.Context, req *Request) error {
	p := req.Update
	if p == nil {
		return fmt.Errorf("%w: empty update payload", xerrors.ErrMessageRejected)
	}
	if len(p.Masked.Vect) != r.cfg.ModelLength || !p.Masked.Config.Equal(r.cfg.MaskConfig) {
		return fmt.Errorf("%w: masked model shape mismatch", xerrors.ErrAggregationFailed)
	}
	// Seed-dict keyset and one-shot-per-updater checks are the store's
	// all-or-nothing compound operation (spec §4.4); commit it before
	// folding the model in so a rejected seed dict never touches the
	// aggregation.
	if err := r.store.AddLocalSeedDict(ctx, req.ParticipantPK, p.LocalSeedDict); err != nil {
		return err
	}
	if err := r.agg.Add(p.Masked); err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrAggregationFailed, err)
	}
	return nil
}

func (r *Round) runSum2(ctx context.Context) error {
	counts, err := r.runPhase(PhaseSum2, r.cfg.Sum2, codec.TagSum2, func(req *Request) error {
		return r.handleSum2(ctx, req)
	})
	r.counts[PhaseSum2] = counts
	return err
}

func (r *Round) handleSum2(ctx context.Context, req *Request) error {
	p := req.Sum2
	if p == nil {
		return fmt.Errorf("%w: empty sum2 payload", xerrors.ErrMessageRejected)
	}
	if len(p.Masked.Vect) != r.effectiveLength || !p.Masked.Config.Equal(r.cfg.MaskConfig) {
		return fmt.Errorf("%w: aggregated mask shape mismatch", xerrors.ErrAggregationFailed)
	}
	if err := r.store.IncrMaskScore(ctx, req.ParticipantPK, p.Masked); err != nil {
		return err
	}
	return nil
}

func (r *Round) runUnmask(ctx context.Context) error {
	r.events.Phase.Set(PhaseUnmask)

	masks, _, err := r.store.BestMasks(ctx)
	if err != nil {
		return fmt.Errorf("%w: reading best masks: %v", xerrors.ErrInternal, err)
	}
	if len(masks) == 0 {
		return fmt.Errorf("%w: no mask submissions to unmask with", xerrors.ErrAggregationFailed)
	}
	winner := masks[0] // lexicographically first among ties, store.BestMasks already sorts

	values, err := r.agg.Unmask(winner)
	if err != nil {
		return fmt.Errorf("%w: %v", xerrors.ErrAggregationFailed, err)
	}

	model := &GlobalModel{ID: fmt.Sprintf("%s-%s", r.id.String(), r.prevSeed.String()), Values: values}
	r.events.Model.Set(model)

	if err := r.store.DeleteCoordinatorData(ctx); err != nil {
		return fmt.Errorf("%w: clearing coordinator data: %v", xerrors.ErrInternal, err)
	}
	r.log.Infow("round complete", "round_id", r.id.String(), "model_id", model.ID)
	return nil
}

var errShutdown = fmt.Errorf("%w: shutdown requested", xerrors.ErrInternal)

// runPhase implements spec §4.1's five-step phase protocol: broadcast,
// process unconditionally for min_time, then process until min_count is
// reached (bounded by max_time), discarding anything past max_count, and
// draining the queue as discarded once the phase concludes.
func (r *Round) runPhase(phase Phase, q QuorumParams, tag codec.Tag, handle func(*Request) error) (phaseCounts, error) {
	r.events.Phase.Set(phase)
	var counts phaseCounts

	minTimer := r.clock.NewTimer(q.MinTime)
	maxTimer := r.clock.NewTimer(q.MaxTime)
	defer minTimer.Stop()
	defer maxTimer.Stop()
	minElapsed := q.MinTime <= 0

	drain := func() {
		for {
			select {
			case req := <-r.requests:
				counts.Discarded++
				req.respond(Discarded, nil)
			default:
				return
			}
		}
	}

	for {
		select {
		case <-r.stop:
			return counts, errShutdown

		case <-minTimer.Chan():
			minElapsed = true
			if counts.Accepted >= q.MinCount {
				drain()
				return counts, nil
			}

		case <-maxTimer.Chan():
			if counts.Accepted >= q.MinCount {
				drain()
				return counts, nil
			}
			return counts, fmt.Errorf("%w: %s phase did not reach quorum (%d/%d)", xerrors.ErrPhaseTimeout, phase, counts.Accepted, q.MinCount)

		case req := <-r.requests:
			if req.Tag != tag {
				counts.Rejected++
				req.respond(Rejected, xerrors.ErrUnexpectedMessage)
				continue
			}
			if counts.Accepted >= q.MaxCount {
				counts.Discarded++
				req.respond(Discarded, nil)
				continue
			}

			if err := handle(req); err != nil {
				counts.Rejected++
				req.respond(Rejected, err)
				if xerrors.IsRoundFatal(err) {
					return counts, err
				}
				continue
			}
			counts.Accepted++
			req.respond(Accepted, nil)

			if minElapsed && counts.Accepted >= q.MinCount {
				drain()
				return counts, nil
			}
		}
	}
}

func (r *Round) runFailure(ctx context.Context, cause error) {
	r.log.Errorw("round failed", "round_id", r.id.String(), "phase", r.phase.String(), "err", cause)
	r.events.Phase.Set(PhaseFailure)

	var result *multierror.Error
	if err := r.store.DeleteDicts(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := r.store.DeleteCoordinatorData(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		r.log.Errorw("failure cleanup", "round_id", r.id.String(), "err", err)
	}
}
