package sentinel

// State is a state of the monitor loop.
type State int

const (
	// StateIdle polls the sensor and waits for the threshold to be crossed.
	StateIdle State = iota
	// StateTriggered runs the capture and alert pipeline.
	StateTriggered
	// StateCooldown waits before polling again after a triggered cycle.
	StateCooldown
)

// States lists every state, in declaration order.
func States() []State {
	return []State{StateIdle, StateTriggered, StateCooldown}
}

// String renders the state name used in logs and metric labels.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateTriggered:
		return "TRIGGERED"
	case StateCooldown:
		return "COOLDOWN"
	default:
		return "UNKNOWN"
	}
}
