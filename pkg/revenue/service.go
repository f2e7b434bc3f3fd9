package revenue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/db"
)

// Service implements revenue allocation on settlement and the payout
// batching computation. The payout worker (worker.go) wraps this with the
// transfer execution loop.
type Service struct {
	conn   db.DBTX
	store  *Store
	logger *slog.Logger
}

func NewService(conn db.DBTX, logger *slog.Logger) *Service {
	return &Service{conn: conn, store: NewStore(conn), logger: logger}
}

// AllocateForPayment splits a settled payment's gross amount per its pinned
// split policy and records one revenue event plus its allocations. Callers
// invoke this from the same transaction that transitions a payment to
// paid, so the revenue event is never recorded without a corresponding
// settlement (and vice versa).
func (s *Service) AllocateForPayment(ctx context.Context, tenantID, paymentID, policyID uuid.UUID, grossSats int64) (RevenueEvent, []Allocation, error) {
	policy, err := s.store.GetPolicy(ctx, policyID)
	if err != nil {
		return RevenueEvent{}, nil, fmt.Errorf("loading split policy: %w", err)
	}

	splits, amounts, err := policy.Allocate(grossSats)
	if err != nil {
		return RevenueEvent{}, nil, fmt.Errorf("allocating split: %w", err)
	}

	return s.store.CreateEventWithAllocations(ctx, tenantID, paymentID, policyID, grossSats, amounts, splits)
}

// LatestPolicy returns tenantID's highest-versioned split policy, for
// callers pinning a priced resource that carries no policy of its own.
func (s *Service) LatestPolicy(ctx context.Context, tenantID uuid.UUID) (SplitPolicy, error) {
	p, err := s.store.GetLatestPolicy(ctx, tenantID)
	if err != nil {
		return SplitPolicy{}, fmt.Errorf("loading latest split policy: %w", err)
	}
	return p, nil
}

// ClearSettled transitions pending allocations whose settlement window has
// elapsed to cleared.
func (s *Service) ClearSettled(ctx context.Context, settlementWindow time.Duration) (int, error) {
	cutoff := time.Now().Add(-settlementWindow)
	n, err := s.store.ClearAllocationsOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clearing settled allocations: %w", err)
	}
	return n, nil
}
