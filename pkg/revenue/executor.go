package revenue

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// ErrExecutorRejectedInProduction mirrors payment.ErrProviderRejectedInProduction:
// the mock transfer executor is acceptable in development but must be
// rejected once the service runs in production configuration.
var ErrExecutorRejectedInProduction = errors.New("mock payout executor rejected in production configuration")

// Executor performs the actual movement of funds to an agent for a payout
// transfer. Real rails (on-chain, Lightning keysend, bank ACH) are outside
// this repository's scope; this interface is the seam a real
// implementation plugs into.
type Executor interface {
	Name() string
	Transfer(ctx context.Context, agentProfileID string, amountSats int64) (reference string, err error)
}

// MockExecutor simulates successful transfers for development and testing.
type MockExecutor struct{}

func NewMockExecutor() *MockExecutor { return &MockExecutor{} }

func (e *MockExecutor) Name() string { return "mock" }

func (e *MockExecutor) Transfer(ctx context.Context, agentProfileID string, amountSats int64) (string, error) {
	return randomHex(16), nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// NewExecutor selects a transfer executor by name, rejecting the mock
// executor outside development the same way payment.NewProvider does.
func NewExecutor(name string, production bool) (Executor, error) {
	switch name {
	case "mock", "":
		if production {
			return nil, ErrExecutorRejectedInProduction
		}
		return NewMockExecutor(), nil
	default:
		return nil, errors.New("unknown payout executor: " + name)
	}
}
