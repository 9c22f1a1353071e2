package worker

import "fmt"

// Phase is the lifecycle position of a [Worker].
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseListening
	PhaseTranscribing
	PhaseStopping
	PhaseStopped
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseListening:
		return "listening"
	case PhaseTranscribing:
		return "transcribing"
	case PhaseStopping:
		return "stopping"
	case PhaseStopped:
		return "stopped"
	default:
		return fmt.Sprintf("Phase(%d)", int32(p))
	}
}
