package revenue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wisbric/contentkeep/internal/db"
)

// PayoutWorker periodically aggregates cleared allocations into batches of
// per-agent transfers and executes them, retrying transient failures with
// backoff. Grounded on the teacher's escalation.Engine: a ticker loop,
// cancellable via ctx, safe to Run multiple times.
type PayoutWorker struct {
	conn        db.DBTX
	store       *Store
	executor    Executor
	logger      *slog.Logger
	interval    time.Duration
	minimumSats int64
	maxRetries  int
	completed   prometheus.Counter
	failed      prometheus.Counter
}

func NewPayoutWorker(conn db.DBTX, executor Executor, logger *slog.Logger, interval time.Duration, minimumSats int64, maxRetries int, completed, failed prometheus.Counter) *PayoutWorker {
	return &PayoutWorker{
		conn:        conn,
		store:       NewStore(conn),
		executor:    executor,
		logger:      logger,
		interval:    interval,
		minimumSats: minimumSats,
		maxRetries:  maxRetries,
		completed:   completed,
		failed:      failed,
	}
}

// Run starts the payout worker loop. It blocks until ctx is cancelled.
func (w *PayoutWorker) Run(ctx context.Context) error {
	w.logger.Info("payout worker started", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("payout worker stopped")
			return nil
		case <-ticker.C:
			if err := w.tick(ctx); err != nil {
				w.logger.Error("payout worker tick", "error", err)
			}
		}
	}
}

// tick computes payable balances, groups them into one batch per tenant,
// and executes each transfer.
func (w *PayoutWorker) tick(ctx context.Context) error {
	balances, err := w.store.ListPayableBalances(ctx, w.minimumSats)
	if err != nil {
		return fmt.Errorf("listing payable balances: %w", err)
	}

	batchByTenant := make(map[string]PayoutBatch)
	for _, b := range balances {
		key := b.TenantID.String()
		batch, ok := batchByTenant[key]
		if !ok {
			batch, err = w.store.CreateBatch(ctx, b.TenantID)
			if err != nil {
				w.logger.Error("creating payout batch", "error", err, "tenant", b.TenantID)
				continue
			}
			batchByTenant[key] = batch
		}

		transfer, err := w.store.CreateTransfer(ctx, batch.ID, b.TenantID, b.AgentProfileID, b.BalanceSats)
		if err != nil {
			w.logger.Error("creating payout transfer", "error", err, "tenant", b.TenantID, "agent", b.AgentProfileID)
			continue
		}

		w.execute(ctx, transfer)
	}

	for _, batch := range batchByTenant {
		if err := w.store.RefreshBatchStatus(ctx, batch.ID); err != nil {
			w.logger.Error("refreshing payout batch status", "error", err, "batch", batch.ID)
		}
	}

	return nil
}

// execute runs a single transfer through the executor with bounded
// exponential backoff, marking the transfer completed, failed_transient,
// or failed_permanent depending on the outcome.
func (w *PayoutWorker) execute(ctx context.Context, t PayoutTransfer) {
	_, err := backoff.Retry(ctx, func() (string, error) {
		ref, err := w.executor.Transfer(ctx, t.AgentProfileID, t.AmountSats)
		if err != nil {
			return "", err
		}
		return ref, nil
	}, backoff.WithMaxTries(uint(w.maxRetries)), backoff.WithBackOff(backoff.NewExponentialBackOff()))

	if err != nil {
		permanent := errors.Is(err, ErrExecutorRejectedInProduction)
		if markErr := w.store.MarkTransferFailed(ctx, t.ID, permanent, err.Error()); markErr != nil {
			w.logger.Error("marking transfer failed", "error", markErr, "transfer", t.ID)
		}
		if w.failed != nil {
			w.failed.Inc()
		}
		w.logger.Error("payout transfer failed", "error", err, "transfer", t.ID, "agent", t.AgentProfileID)
		return
	}

	if err := w.store.MarkTransferCompleted(ctx, t.ID); err != nil {
		w.logger.Error("marking transfer completed", "error", err, "transfer", t.ID)
		return
	}
	if w.completed != nil {
		w.completed.Inc()
	}
}
