// Package gateway abstracts payment authorization so the simulated
// processor can be swapped for a real acquirer without touching the order
// or payment services.
package gateway

import (
	"context"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"
)

type Outcome struct {
	Approved bool
}

type Gateway interface {
	Authorize(ctx context.Context, amount decimal.Decimal) (Outcome, error)
}

// Simulated approves a configurable fraction of authorizations. It stands
// in for a real gateway integration: no retries, no webhooks, no capture
// step.
type Simulated struct {
	successRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated builds a gateway that approves with the given probability.
// Rates outside [0, 1] are clamped.
func NewSimulated(successRate float64, seed int64) *Simulated {
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}
	return &Simulated{
		successRate: successRate,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

func (g *Simulated) Authorize(_ context.Context, _ decimal.Decimal) (Outcome, error) {
	g.mu.Lock()
	roll := g.rng.Float64()
	g.mu.Unlock()
	return Outcome{Approved: roll < g.successRate}, nil
}
