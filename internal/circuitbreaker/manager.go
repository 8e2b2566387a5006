package circuitbreaker

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager owns one breaker per provider name.
type Manager struct {
	breakers map[string]*CircuitBreaker
	mutex    sync.RWMutex
	logger   *logrus.Logger
}

func NewManager(logger *logrus.Logger) *Manager {
	return &Manager{
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
	}
}

// GetOrCreate returns the breaker registered under name, creating it with
// config on first use. Later configs for the same name are ignored.
func (m *Manager) GetOrCreate(name string, config Config) *CircuitBreaker {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if breaker, exists := m.breakers[name]; exists {
		return breaker
	}

	config.Name = name
	breaker := New(config, m.logger)
	m.breakers[name] = breaker

	m.logger.WithFields(logrus.Fields{
		"provider":     name,
		"max_failures": breaker.maxFailures,
		"timeout":      breaker.timeout.String(),
	}).Debug("Circuit breaker created")

	return breaker
}

func (m *Manager) Get(name string) *CircuitBreaker {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.breakers[name]
}

// Snapshots returns every breaker's state sorted by name.
func (m *Manager) Snapshots() []Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]Snapshot, 0, len(m.breakers))
	for _, breaker := range m.breakers {
		out = append(out, breaker.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Manager) Reset(name string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	breaker, exists := m.breakers[name]
	if !exists {
		return false
	}
	breaker.Reset()
	m.logger.WithField("provider", name).Info("Circuit breaker reset")
	return true
}
