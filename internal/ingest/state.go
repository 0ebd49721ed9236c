package ingest

// State is the lifecycle of a notify thread:
//
//	Created -> Starting -> Failed -> Terminated
//	Created -> Starting -> Running -> Stopping -> Terminated
type State int32

const (
	StateCreated State = iota
	StateStarting
	StateRunning
	StateStopping
	StateFailed
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Stats counts what a notify thread handed to its consumer.
type Stats struct {
	Handoffs       uint64 `json:"handoffs"`
	Events         uint64 `json:"events"`
	LargestHandoff int    `json:"largest_handoff"`
	DroppedOnStop  uint64 `json:"dropped_on_stop"`
}
