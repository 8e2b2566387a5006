// Package circuitbreaker guards outbound provider calls (payments, email,
// captcha, Google sign-in). A provider that keeps failing is short-circuited
// for a cool-down period instead of being called on every request.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type State int

const (
	StateClosed State = iota
	StateOpen
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

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var ErrOpen = errors.New("circuit breaker is open")

type Config struct {
	Name        string
	MaxFailures int
	// Timeout is how long the breaker stays open before letting probes through.
	Timeout     time.Duration
	MaxRequests int
	// IsFailure decides whether an error counts against the provider. Errors
	// the caller caused (a declined card, a bad token) should not open the
	// breaker. Nil counts every error.
	IsFailure     func(error) bool
	OnStateChange func(name string, from, to State)
}

// DefaultConfig is used for provider calls unless overridden.
func DefaultConfig() Config {
	return Config{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		MaxRequests: 1,
	}
}

type CircuitBreaker struct {
	name          string
	maxFailures   int
	timeout       time.Duration
	maxRequests   int
	isFailure     func(error) bool
	onStateChange func(name string, from, to State)

	mutex        sync.RWMutex
	state        State
	failures     int
	requests     int
	lastFailTime time.Time

	totalRequests   int64
	totalFailures   int64
	totalSuccesses  int64
	totalRejected   int64
	stateChanges    int64
	lastStateChange time.Time

	now    func() time.Time
	logger *logrus.Logger
}

func New(config Config, logger *logrus.Logger) *CircuitBreaker {
	if config.Name == "" {
		config.Name = "unnamed"
	}
	def := DefaultConfig()
	if config.MaxFailures <= 0 || config.MaxFailures > 1000 {
		logger.WithFields(logrus.Fields{
			"circuit_breaker": config.Name,
			"invalid_value":   config.MaxFailures,
		}).Warn("Invalid MaxFailures value, using default")
		config.MaxFailures = def.MaxFailures
	}
	if config.Timeout <= 0 || config.Timeout > 10*time.Minute {
		logger.WithFields(logrus.Fields{
			"circuit_breaker": config.Name,
			"invalid_value":   config.Timeout.String(),
		}).Warn("Invalid Timeout value, using default")
		config.Timeout = def.Timeout
	}
	if config.MaxRequests <= 0 || config.MaxRequests > 100 {
		config.MaxRequests = def.MaxRequests
	}

	return &CircuitBreaker{
		name:          config.Name,
		maxFailures:   config.MaxFailures,
		timeout:       config.Timeout,
		maxRequests:   config.MaxRequests,
		isFailure:     config.IsFailure,
		onStateChange: config.OnStateChange,
		state:         StateClosed,
		now:           time.Now,
		logger:        logger,
	}
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn once if the breaker allows it. There are no retries: the
// caller sees fn's error, or ErrOpen when the call was not attempted.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.before(); err != nil {
		return err
	}

	err := fn(ctx)

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if err != nil && cb.counts(ctx, err) {
		cb.totalFailures++
		cb.onFailure()
		return err
	}
	cb.totalSuccesses++
	cb.onSuccess()
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailTime) <= cb.timeout {
			cb.totalRejected++
			return fmt.Errorf("%s: %w", cb.name, ErrOpen)
		}
		cb.setState(StateHalfOpen)
		cb.requests = 0
	}
	if cb.state == StateHalfOpen && cb.requests >= cb.maxRequests {
		cb.totalRejected++
		return fmt.Errorf("%s: %w", cb.name, ErrOpen)
	}

	cb.totalRequests++
	if cb.state == StateHalfOpen {
		cb.requests++
	}
	return nil
}

// counts reports whether err is the provider's fault. A call abandoned
// because the caller's context ended says nothing about the provider.
func (cb *CircuitBreaker) counts(ctx context.Context, err error) bool {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return false
	}
	if cb.isFailure == nil {
		return true
	}
	return cb.isFailure(err)
}

func (cb *CircuitBreaker) onSuccess() {
	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
		cb.requests = 0
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailTime = cb.now()

	if (cb.state == StateClosed && cb.failures >= cb.maxFailures) || cb.state == StateHalfOpen {
		cb.setState(StateOpen)
		cb.requests = 0
	}
}

func (cb *CircuitBreaker) setState(newState State) {
	if cb.state == newState {
		return
	}
	oldState := cb.state
	cb.state = newState
	cb.stateChanges++
	cb.lastStateChange = cb.now()

	entry := cb.logger.WithFields(logrus.Fields{
		"provider":   cb.name,
		"from_state": oldState.String(),
		"to_state":   newState.String(),
	})
	if newState == StateOpen {
		entry.Error("Provider circuit opened")
	} else {
		entry.Info("Provider circuit state changed")
	}

	if cb.onStateChange != nil {
		go cb.notify(oldState, newState)
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	defer func() {
		if r := recover(); r != nil {
			cb.logger.WithFields(logrus.Fields{
				"provider": cb.name,
				"panic":    r,
			}).Error("Circuit breaker state change callback panicked")
		}
	}()
	cb.onStateChange(cb.name, from, to)
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.state
}

// Snapshot is a point-in-time view of a breaker, served to administrators.
type Snapshot struct {
	Name            string     `json:"name"`
	State           State      `json:"state"`
	Failures        int        `json:"consecutive_failures"`
	MaxFailures     int        `json:"max_failures"`
	TimeoutSeconds  float64    `json:"timeout_seconds"`
	TotalRequests   int64      `json:"total_requests"`
	TotalFailures   int64      `json:"total_failures"`
	TotalSuccesses  int64      `json:"total_successes"`
	TotalRejected   int64      `json:"total_rejected"`
	StateChanges    int64      `json:"state_changes"`
	LastFailure     *time.Time `json:"last_failure,omitempty"`
	LastStateChange *time.Time `json:"last_state_change,omitempty"`
}

func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()

	s := Snapshot{
		Name:           cb.name,
		State:          cb.state,
		Failures:       cb.failures,
		MaxFailures:    cb.maxFailures,
		TimeoutSeconds: cb.timeout.Seconds(),
		TotalRequests:  cb.totalRequests,
		TotalFailures:  cb.totalFailures,
		TotalSuccesses: cb.totalSuccesses,
		TotalRejected:  cb.totalRejected,
		StateChanges:   cb.stateChanges,
	}
	if !cb.lastFailTime.IsZero() {
		t := cb.lastFailTime
		s.LastFailure = &t
	}
	if !cb.lastStateChange.IsZero() {
		t := cb.lastStateChange
		s.LastStateChange = &t
	}
	return s
}

func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.setState(StateClosed)
	cb.failures = 0
	cb.requests = 0
	cb.lastFailTime = time.Time{}
}

func (cb *CircuitBreaker) String() string {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return fmt.Sprintf("CircuitBreaker(name=%s, state=%s, failures=%d/%d)",
		cb.name, cb.state, cb.failures, cb.maxFailures)
}
