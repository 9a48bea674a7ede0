package circuitbreaker

type State int

const (
	// StateClosed - store calls go through
	StateClosed State = iota

	// StateOpen - store is considered down, calls are rejected without touching it
	StateOpen

	// StateHalfOpen - cooldown elapsed, a single probe call is let through
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
