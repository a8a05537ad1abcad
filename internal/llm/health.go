package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jonathan/snapsolver/internal/retry"
)

// HealthGate wraps a collaborator health probe in a circuit breaker so that a
// down service fails tasks fast instead of burning every task's full retry
// budget against a dead endpoint.
type HealthGate struct {
	probe   func(ctx context.Context) error
	breaker *gobreaker.CircuitBreaker
}

// NewHealthGate creates a gate around probe. The breaker opens after three
// consecutive probe failures and re-probes after a 30 second cooldown.
func NewHealthGate(name string, probe func(ctx context.Context) error) *HealthGate {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &HealthGate{
		probe:   probe,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Check runs the probe through the breaker. An open breaker or a failed probe
// both come back as transient errors, so the caller's retry policy applies.
func (g *HealthGate) Check(ctx context.Context) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.probe(ctx)
	})
	if err != nil {
		return retry.Transient(fmt.Errorf("collaborator unavailable: %w", err))
	}
	return nil
}
