package readback

// State is the lifecycle state of an Instance.
type State uint8

const (
	// StateIdle has nothing outstanding and is eligible for the next dispatch.
	StateIdle State = iota
	// StateDispatched has a recorded dispatch whose staging copy has not been issued yet.
	StateDispatched
	// StateAwaitingMap has its copies submitted and map requests outstanding.
	StateAwaitingMap
	// StateReady has mapped data and is running its handler.
	StateReady
	// StateTerminated is finished and leaves the active set.
	StateTerminated
	// StateFailed stopped on an error and stays until Instance.Reset.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateDispatched:
		return "Dispatched"
	case StateAwaitingMap:
		return "AwaitingMap"
	case StateReady:
		return "Ready"
	case StateTerminated:
		return "Terminated"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further dispatch happens without caller intervention.
func (s State) Terminal() bool {
	return s == StateTerminated || s == StateFailed
}
