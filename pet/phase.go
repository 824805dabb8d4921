// Package pet drives the coordinator's round state machine (spec §4.1): the
// phase sequence Idle→Sum→Update→Sum2→Unmask, per-phase quorum and timeout
// enforcement, and the "latest value" event bus phase transitions, round
// parameters, and dictionary snapshots are published on.
package pet

import "fmt"

// Phase is one state of the coordinator's round state machine.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseSum
	PhaseUpdate
	PhaseSum2
	PhaseUnmask
	PhaseFailure
	PhaseShutdown
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSum:
		return "sum"
	case PhaseUpdate:
		return "update"
	case PhaseSum2:
		return "sum2"
	case PhaseUnmask:
		return "unmask"
	case PhaseFailure:
		return "failure"
	case PhaseShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}
