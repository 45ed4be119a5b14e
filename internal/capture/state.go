package capture

// State represents the lifecycle state of a Session.
type State string

// Session states.
const (
	StateClosed     State = "closed"     // No device handle
	StateStopped    State = "stopped"    // Device open and format negotiated, no buffers
	StateStarted    State = "started"    // Buffers mapped and streaming
	StateContinuous State = "continuous" // A frame loop owns the stream
)

// Capturing reports whether the buffer pool exists in this state.
func (s State) Capturing() bool {
	return s == StateStarted || s == StateContinuous
}

// StateChangeCallback is called after the session moves between states.
type StateChangeCallback func(oldState, newState State)
