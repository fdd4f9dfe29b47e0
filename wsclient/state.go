package wsclient

// State is the connection lifecycle state.
type State int

const (
	// StateIdle means no connection and no dial in progress. A retry
	// may be scheduled.
	StateIdle State = iota
	// StateConnecting means a dial is in progress.
	StateConnecting
	// StateOpen means the connection is established and Send works.
	StateOpen
	// StateDisconnected means the attempt bound was reached; auto-retry
	// has stopped until Connect is called again.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}
