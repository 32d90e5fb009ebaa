// Package breaker protects banking provider calls with per-(country,
// provider) circuit breakers. An open circuit degrades to a conservative
// fallback profile instead of failing the application.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/global-credit/credit_core/internal/domain/entities"
	"github.com/global-credit/credit_core/pkg/metrics"
)

// Snapshot state values exported to metrics
const (
	StateClosed   = 0
	StateOpen     = 1
	StateHalfOpen = 2
)

// Config holds breaker tuning
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// DefaultConfig returns the default breaker parameters
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
	}
}

// Key identifies one breaker instance
type Key struct {
	Country  entities.CountryCode
	Provider string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Country, k.Provider)
}

type entry struct {
	cb         *gobreaker.CircuitBreaker
	forcedOpen bool
}

// Registry owns every breaker instance. Breaker state is per-process by
// design: the outage it protects against is itself cluster-wide, so
// independent local detection converges quickly.
type Registry struct {
	mu      sync.Mutex
	entries map[Key]*entry
	config  Config
	logger  *zap.Logger
}

// NewRegistry creates a breaker registry
func NewRegistry(config Config, logger *zap.Logger) *Registry {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	return &Registry{
		entries: make(map[Key]*entry),
		config:  config,
		logger:  logger,
	}
}

func (r *Registry) newBreaker(key Key) *gobreaker.CircuitBreaker {
	threshold := uint32(r.config.FailureThreshold)
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key.String(),
		MaxRequests: 1, // single half-open probe
		Timeout:     r.config.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Info("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			metrics.CircuitBreakerStateGauge.
				WithLabelValues(string(key.Country), key.Provider).
				Set(float64(stateValue(to)))
		},
	})
}

func (r *Registry) get(key Key) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		e = &entry{cb: r.newBreaker(key)}
		r.entries[key] = e
	}
	return e
}

// Call runs fn behind the breaker for key. When the circuit is open (or
// forced open) it returns FallbackBankingData instead of an error; the
// caller cannot distinguish except via BankingData.IsFallback, which is
// the point — provider outages must not fail applications.
func (r *Registry) Call(ctx context.Context, key Key, fn func(context.Context) (*entities.BankingData, error)) (*entities.BankingData, error) {
	e := r.get(key)

	r.mu.Lock()
	forced := e.forcedOpen
	r.mu.Unlock()

	if forced {
		r.recordShortCircuit(key)
		return FallbackBankingData(key.Provider), nil
	}

	result, err := e.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.recordShortCircuit(key)
			return FallbackBankingData(key.Provider), nil
		}
		return nil, err
	}

	return result.(*entities.BankingData), nil
}

func (r *Registry) recordShortCircuit(key Key) {
	metrics.CircuitOpenCounter.WithLabelValues(string(key.Country), key.Provider).Inc()
	r.logger.Warn("Circuit open, using fallback banking data",
		zap.String("breaker", key.String()))
}

// ForceOpen pins the breaker open until ForceClose
func (r *Registry) ForceOpen(key Key) {
	e := r.get(key)
	r.mu.Lock()
	e.forcedOpen = true
	r.mu.Unlock()
	metrics.CircuitBreakerStateGauge.
		WithLabelValues(string(key.Country), key.Provider).
		Set(StateOpen)
	r.logger.Warn("Circuit breaker forced open", zap.String("breaker", key.String()))
}

// ForceClose resets the breaker to a fresh closed instance
func (r *Registry) ForceClose(key Key) {
	r.mu.Lock()
	r.entries[key] = &entry{cb: r.newBreaker(key)}
	r.mu.Unlock()
	metrics.CircuitBreakerStateGauge.
		WithLabelValues(string(key.Country), key.Provider).
		Set(StateClosed)
	r.logger.Info("Circuit breaker forced closed", zap.String("breaker", key.String()))
}

// Snapshot returns the breaker state as 0/1/2 (closed/open/half-open)
func (r *Registry) Snapshot(key Key) int {
	e := r.get(key)

	r.mu.Lock()
	forced := e.forcedOpen
	r.mu.Unlock()
	if forced {
		return StateOpen
	}
	return stateValue(e.cb.State())
}

// Keys lists every breaker seen so far
func (r *Registry) Keys() []Key {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]Key, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// FallbackBankingData is the conservative artifact used when a provider's
// circuit is open. Downstream evaluation tends toward UNDER_REVIEW on it.
func FallbackBankingData(provider string) *entities.BankingData {
	return &entities.BankingData{
		ProviderName:       fmt.Sprintf("%s (FALLBACK — Circuit Open)", provider),
		CreditScore:        500,
		TotalDebt:          decimal.RequireFromString("50000.00"),
		MonthlyObligations: decimal.RequireFromString("2000.00"),
		HasDefaults:        false,
		AdditionalData: map[string]interface{}{
			"fallback": true,
		},
	}
}
