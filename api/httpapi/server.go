package httpapi

import (
	"encoding/hex"
	"io"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/xaynetwork/xaynet-coordinator/common/log"
	"github.com/xaynetwork/xaynet-coordinator/key"
	"github.com/xaynetwork/xaynet-coordinator/pet"
	"github.com/xaynetwork/xaynet-coordinator/request"
)

// maxEnvelopeBody bounds a single POST /message body; a legitimate message
// that would exceed it is expected to arrive pre-chunked (spec §4.3).
const maxEnvelopeBody = 64 * 1024

// Round is the subset of *pet.Round the HTTP layer reads from.
type Round interface {
	Events() *pet.Events
}

// Server implements spec §6's external HTTP surface over a Round's event
// bus and a request.Pipeline.
type Server struct {
	log      log.Logger
	round    Round
	pipeline *request.Pipeline
	mux      *chi.Mux
}

// NewServer builds a Server with all routes registered.
func NewServer(l log.Logger, round Round, pipeline *request.Pipeline) *Server {
	s := &Server{log: l, round: round, pipeline: pipeline, mux: chi.NewMux()}
	s.mux.Get("/params", s.handleParams)
	s.mux.Get("/sums", s.handleSums)
	s.mux.Get("/seeds", s.handleSeeds)
	s.mux.Get("/length", s.handleLength)
	s.mux.Get("/model", s.handleModel)
	s.mux.Post("/message", s.handleMessage)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func writeBinary(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	rp, ok, _ := s.round.Events().Params.Get()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeBinary(w, marshalRoundParams(rp))
}

func (s *Server) handleSums(w http.ResponseWriter, r *http.Request) {
	sums, ok, _ := s.round.Events().Sums.Get()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeBinary(w, marshalSumDict(sums))
}

func (s *Server) handleSeeds(w http.ResponseWriter, r *http.Request) {
	pkHex := r.URL.Query().Get("pk")
	raw, err := hex.DecodeString(pkHex)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	pk, err := key.SigningPublicKeyFromBytes(raw)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	seeds, ok, _ := s.round.Events().Seeds.Get()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	row := seeds[pk]
	if row == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeBinary(w, marshalSeedRow(row))
}

func (s *Server) handleLength(w http.ResponseWriter, r *http.Request) {
	length, ok, _ := s.round.Events().Length.Get()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeBinary(w, marshalLength(length))
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	model, ok, _ := s.round.Events().Model.Get()
	if !ok || model == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeBinary(w, marshalGlobalModel(model))
}

// handleMessage always answers 200 regardless of the pipeline's decision
// (spec §7: the coordinator must never leak per-message PET validation
// results over the network).
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEnvelopeBody))
	if err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	coordKP, ok, _ := s.round.Events().KeyPair.Get()
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}

	decision := s.pipeline.HandleEnvelope(r.Context(), coordKP, body)
	s.log.Debugw("message handled", "decision", decision.String())
	w.WriteHeader(http.StatusOK)
}
