package domain

// RunState is the per-row lifecycle position.
type RunState int

const (
	StatePending RunState = iota
	StateDispatched
	StateCompleted
	StateSkippedInvalid
	StateFailed
	StateErrorTransport
)

func (s RunState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDispatched:
		return "dispatched"
	case StateCompleted:
		return "completed"
	case StateSkippedInvalid:
		return "skipped-invalid"
	case StateFailed:
		return "failed"
	case StateErrorTransport:
		return "error-transport"
	default:
		return "unknown"
	}
}

// Terminal reports whether the row has left Pending/Dispatched for this run.
func (s RunState) Terminal() bool {
	return s != StatePending && s != StateDispatched
}

func (s RunState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
