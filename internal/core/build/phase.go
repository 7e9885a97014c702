// # internal/core/build/phase.go
package build

import (
	stderrors "errors"
	"fmt"
)

// Phase is the lifecycle position of one build pass. Each pass operation is
// only legal in one phase.
type Phase uint8

const (
	PhaseDiscovery Phase = iota
	PhasePartition
	PhaseFrozen
	PhaseManifest
	PhaseCommitted
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseDiscovery:
		return "discovery"
	case PhasePartition:
		return "partition"
	case PhaseFrozen:
		return "frozen"
	case PhaseManifest:
		return "manifest"
	case PhaseCommitted:
		return "committed"
	case PhaseCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// ErrPhase is returned when a pass operation is called out of order.
var ErrPhase = stderrors.New("operation not allowed in this phase")

type phaseError struct {
	op   string
	want Phase
	have Phase
}

func (e *phaseError) Error() string {
	return fmt.Sprintf("%s requires phase %s, pass is in %s", e.op, e.want, e.have)
}

func (e *phaseError) Unwrap() error { return ErrPhase }
