package pipeline

// State is the coordinator's position in a run.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateDrainingTail
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateDrainingTail:
		return "draining-tail"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
