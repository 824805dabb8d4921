package pet

import (
	"sync"

	"github.com/xaynetwork/xaynet-coordinator/key"
	"github.com/xaynetwork/xaynet-coordinator/store"
)

// Latest is the single-producer multi-consumer "latest value" channel spec
// §5 describes: publishers overwrite, subscribers always observe the most
// recently published value rather than queuing every intermediate one. A
// subscriber blocks on the returned channel to learn when a newer value has
// replaced the one it has.
type Latest[T any] struct {
	mu  sync.RWMutex
	val T
	set bool
	ch  chan struct{}
}

// NewLatest returns an empty Latest; Get returns the zero value of T and ok
// false until the first Set.
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{ch: make(chan struct{})}
}

// Set publishes a new value, waking every subscriber waiting on a prior
// Get's notification channel.
func (l *Latest[T]) Set(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.val = v
	l.set = true
	close(l.ch)
	l.ch = make(chan struct{})
}

// Get returns the current value (or the zero value and ok=false if nothing
// has been published yet) along with a channel that closes the moment a
// newer value is published.
func (l *Latest[T]) Get() (value T, ok bool, changed <-chan struct{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.val, l.set, l.ch
}

// GlobalModel is the content-addressable result spec §4.1 "Unmask" persists:
// id is derived from the round id and seed so models are addressable
// without a separate counter (spec §6 "global models themselves addressed
// by id").
type GlobalModel struct {
	ID     string
	Values []float64
}

// Events is the coordinator's broadcaster: one Latest per spec §5's list
// of published values (RP, phase, dictionaries, model).
type Events struct {
	Phase   *Latest[Phase]
	Params  *Latest[RoundParams]
	Sums    *Latest[store.SumDict]
	Seeds   *Latest[store.SeedDict]
	Length  *Latest[int]
	Model   *Latest[*GlobalModel]

	// KeyPair carries the round's current encryption key pair, letting a
	// caller decrypt incoming envelopes without reaching into the Round
	// directly (coordEncKP itself is only safe to read from the Round's
	// own goroutine).
	KeyPair *Latest[*key.EncryptionKeyPair]
}

// NewEvents builds an Events bus with every channel empty.
func NewEvents() *Events {
	return &Events{
		Phase:   NewLatest[Phase](),
		Params:  NewLatest[RoundParams](),
		Sums:    NewLatest[store.SumDict](),
		Seeds:   NewLatest[store.SeedDict](),
		Length:  NewLatest[int](),
		Model:   NewLatest[*GlobalModel](),
		KeyPair: NewLatest[*key.EncryptionKeyPair](),
	}
}
