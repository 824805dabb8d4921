package participant

import "sync"

// Model is the trained contribution an application hands to the participant
// state machine for one round (spec §4.6 Update: "a locally trained model
// from the application's ModelStore"). Weight is the scalar alpha the model
// is masked with (spec §4.2); applications that don't implement weighted
// averaging should use 1.0.
type Model struct {
	Values []float64
	Weight float64
}

// ModelStore is the abstract boundary to the application's on-device
// training, deliberately left unimplemented beyond this interface: on-device
// training itself is out of scope here.
type ModelStore interface {
	// TrainedModel returns the model to contribute this round, or
	// (nil, nil) if training hasn't produced one yet.
	TrainedModel() (*Model, error)
}

// StaticModelStore is a ModelStore backed by a single model set from
// outside, guarded by an exclusive lock since spec §5 allows the model store
// to be written from a different task than the one driving transitions.
type StaticModelStore struct {
	mu    sync.Mutex
	model *Model
}

// NewStaticModelStore builds an empty store; Set must be called before
// TrainedModel returns anything.
func NewStaticModelStore() *StaticModelStore {
	return &StaticModelStore{}
}

// Set publishes the model to contribute on the next Update round.
func (s *StaticModelStore) Set(m *Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = m
}

// TrainedModel returns the currently published model, or nil if none has
// been set yet.
func (s *StaticModelStore) TrainedModel() (*Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model, nil
}
