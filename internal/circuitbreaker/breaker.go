package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned when the guarded store is not called because the circuit is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// Breaker stops calling a shared store (redis) after repeated failures so a
// dead store costs requests nothing instead of a timeout each.
type Breaker struct {
	mu              sync.Mutex
	name            string
	state           State
	failureCount    int
	probing         bool
	lastFailureTime time.Time
	lastStateChange time.Time

	maxFailures   int
	cooldown      time.Duration
	onStateChange func(name string, from, to State)
	now           func() time.Time
}

type Config struct {
	Name          string
	MaxFailures   int           // Default: 5
	Cooldown      time.Duration // Default: 10 seconds
	OnStateChange func(name string, from, to State)
}

func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}

	return &Breaker{
		name:            cfg.Name,
		state:           StateClosed,
		maxFailures:     cfg.MaxFailures,
		cooldown:        cfg.Cooldown,
		onStateChange:   cfg.OnStateChange,
		lastStateChange: time.Now(),
		now:             time.Now,
	}
}

// Call runs fn unless the circuit is open. Context errors from fn count as failures.
func (b *Breaker) Call(fn func() error) error {
	if !b.allow() {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.onFailure()
		return err
	}

	b.onSuccess()
	return nil
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailureTime) < b.cooldown {
			return false
		}
		b.setState(StateHalfOpen)
		b.probing = true
		return true
	case StateHalfOpen:
		// one probe at a time
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

func (b *Breaker) onFailure() {
	b.failureCount++
	b.lastFailureTime = b.now()
	b.probing = false

	if b.state == StateHalfOpen || b.failureCount >= b.maxFailures {
		b.setState(StateOpen)
	}
}

func (b *Breaker) onSuccess() {
	b.probing = false
	b.failureCount = 0
	if b.state != StateClosed {
		b.setState(StateClosed)
	}
}

func (b *Breaker) setState(newState State) {
	if b.state == newState {
		return
	}
	from := b.state
	b.state = newState
	b.lastStateChange = b.now()
	if b.onStateChange != nil {
		b.onStateChange(b.name, from, newState)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the circuit manually
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	b.probing = false
	b.setState(StateClosed)
}

func (b *Breaker) Name() string {
	return b.name
}

// Metrics is a point-in-time snapshot of a breaker
type Metrics struct {
	State           State
	FailureCount    int
	LastFailureTime time.Time
	LastStateChange time.Time
}

func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Metrics{
		State:           b.state,
		FailureCount:    b.failureCount,
		LastFailureTime: b.lastFailureTime,
		LastStateChange: b.lastStateChange,
	}
}
