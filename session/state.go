package session

// State is a session lifecycle state.
type State int32

const (
	// StateIdle holds no resources. Start is the only valid action.
	StateIdle State = iota
	// StateConnecting is acquiring the output device, the transport and the microphone.
	StateConnecting
	// StateActive is streaming in both directions.
	StateActive
	// StateClosing is releasing every resource. It always ends in StateIdle.
	StateClosing
)

// String returns the upper-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}
