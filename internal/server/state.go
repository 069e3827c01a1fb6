package server

// State is a lifecycle state of the managed server.
type State int

const (
	Unknown State = iota
	Checking
	AlreadyRunning
	Starting
	Ready
	Failed
	TimedOut
	Stopped
)

func (s State) String() string {
	switch s {
	case Checking:
		return "checking"
	case AlreadyRunning:
		return "already_running"
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Usable reports whether dependent work may proceed.
func (s State) Usable() bool {
	return s == AlreadyRunning || s == Ready
}
