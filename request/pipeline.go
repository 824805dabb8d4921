// Package request implements the coordinator's request handling pipeline
// (spec §4.5): decrypt, header parse + signature verify, phase filter, task
// eligibility, payload parse, dispatch to the round state machine.
package request

import (
	"context"
	"runtime"

	"github.com/xaynetwork/xaynet-coordinator/codec"
	"github.com/xaynetwork/xaynet-coordinator/common/log"
	"github.com/xaynetwork/xaynet-coordinator/key"
	"github.com/xaynetwork/xaynet-coordinator/metrics"
	"github.com/xaynetwork/xaynet-coordinator/pet"
)

// Decision is what the pipeline did with one wire envelope. It is coarser
// than pet.Outcome: a chunk still waiting on the rest of its message is
// Pending, not yet any round decision at all, and never reaches the round.
type Decision int

const (
	DecisionPending Decision = iota
	DecisionAccepted
	DecisionRejected
	DecisionDiscarded
)

func (d Decision) String() string {
	switch d {
	case DecisionPending:
		return "pending"
	case DecisionAccepted:
		return "accepted"
	case DecisionRejected:
		return "rejected"
	case DecisionDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Submitter is the subset of *pet.Round the pipeline depends on, so tests
// can substitute a fake round without running the full state machine.
type Submitter interface {
	Submit(req *pet.Request)
	Events() *pet.Events
}

// Pipeline implements spec §4.5's six-step pipeline. It owns the bounded
// worker pool that guards the CPU-bound decrypt/verify step (spec §5: "pool
// size = number of cores") and the chunk reassembler.
type Pipeline struct {
	log         log.Logger
	round       Submitter
	reassembler *codec.Reassembler
	workers     chan struct{}
}

// NewPipeline builds a Pipeline. poolSize <= 0 defaults to runtime.NumCPU().
func NewPipeline(l log.Logger, round Submitter, reassembler *codec.Reassembler, poolSize int) *Pipeline {
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
	}
	return &Pipeline{log: l, round: round, reassembler: reassembler, workers: make(chan struct{}, poolSize)}
}

// HandleEnvelope runs the full pipeline on one wire envelope. The HTTP layer
// calls this directly and, per spec §7, always answers 200 regardless of
// the outcome; Decision only drives metrics and logging.
func (p *Pipeline) HandleEnvelope(ctx context.Context, coordKP *key.EncryptionKeyPair, wire []byte) Decision {
	header, payload, ok := p.decrypt(coordKP, wire)
	if !ok {
		// spec §4.5 step 1: a forged ciphertext is indistinguishable from
		// noise, so this reject carries no participant-identifying log.
		return DecisionRejected
	}

	if header.Tag == codec.TagChunk {
		return p.handleChunk(ctx, header, payload)
	}
	return p.dispatch(ctx, header, payload)
}

// decrypt is the only step offloaded behind the bounded worker pool: it's
// the pipeline's one CPU-bound step (X25519 + XSalsa20-Poly1305 open).
func (p *Pipeline) decrypt(coordKP *key.EncryptionKeyPair, wire []byte) (codec.Header, []byte, bool) {
	metrics.WorkerPoolInFlight.Inc()
	defer metrics.WorkerPoolInFlight.Dec()
	p.workers <- struct{}{}
	defer func() { <-p.workers }()

	header, payload, err := codec.Open(coordKP, wire)
	if err != nil {
		return codec.Header{}, nil, false
	}
	return header, payload, true
}

func (p *Pipeline) handleChunk(ctx context.Context, header codec.Header, payload []byte) Decision {
	chunk, err := codec.UnmarshalChunkPayload(payload)
	if err != nil {
		return DecisionRejected
	}
	tag, full, complete, err := p.reassembler.Add(header.ParticipantPK, chunk)
	if err != nil {
		// spec §4.3: a chunked message is rejected if any chunk fails.
		return DecisionRejected
	}
	if !complete {
		return DecisionPending
	}
	header.Tag = tag
	return p.dispatch(ctx, header, full)
}

func (p *Pipeline) dispatch(ctx context.Context, header codec.Header, payload []byte) Decision {
	phase, havePhase, _ := p.round.Events().Phase.Get()
	if !havePhase {
		return p.reject(pet.PhaseIdle)
	}
	rp, haveRP, _ := p.round.Events().Params.Get()
	if !haveRP {
		return p.reject(phase)
	}

	req := pet.NewRequest(header.Tag, header.ParticipantPK)

	switch header.Tag {
	case codec.TagSum:
		sum, err := codec.UnmarshalSumPayload(payload)
		if err != nil {
			return p.reject(phase)
		}
		if err := pet.VerifySumEligibility(header.ParticipantPK, rp.Seed, sum.SumSignature[:], rp.SumProb); err != nil {
			return p.reject(phase)
		}
		req.Sum = &sum

	case codec.TagUpdate:
		update, err := codec.UnmarshalUpdatePayload(payload)
		if err != nil {
			return p.reject(phase)
		}
		if err := pet.VerifyUpdateEligibility(header.ParticipantPK, rp.Seed, update.UpdateSignature[:], rp.UpdateProb); err != nil {
			return p.reject(phase)
		}
		req.Update = &update

	case codec.TagSum2:
		sum2, err := codec.UnmarshalSum2Payload(payload)
		if err != nil {
			return p.reject(phase)
		}
		if err := pet.VerifyTaskSignature(header.ParticipantPK, rp.Seed, pet.TaskSum, sum2.SumSignature[:]); err != nil {
			return p.reject(phase)
		}
		req.Sum2 = &sum2

	default:
		return p.reject(phase)
	}

	p.round.Submit(req)
	resp := req.Reply()
	decision := fromOutcome(resp.Outcome)
	metrics.RecordOutcome(phase.String(), resp.Outcome.String())
	return decision
}

func (p *Pipeline) reject(phase pet.Phase) Decision {
	metrics.RecordOutcome(phase.String(), pet.Rejected.String())
	return DecisionRejected
}

func fromOutcome(o pet.Outcome) Decision {
	switch o {
	case pet.Accepted:
		return DecisionAccepted
	case pet.Discarded:
		return DecisionDiscarded
	default:
		return DecisionRejected
	}
}
