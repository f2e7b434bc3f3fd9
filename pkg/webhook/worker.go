package webhook

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/wisbric/contentkeep/internal/db"
	"github.com/wisbric/contentkeep/internal/telemetry"
)

// DeliveryWorker polls for due deliveries and POSTs each payload to its
// subscription's URL with a detached HMAC signature. Grounded on the
// teacher's escalation.Engine: a ticker loop, cancellable via ctx, safe to
// Run multiple times. Retries use exponential backoff with jitter up to a
// configurable ceiling (spec.md §4.7).
type DeliveryWorker struct {
	conn       db.DBTX
	store      *Store
	client     *http.Client
	logger     *slog.Logger
	interval   time.Duration
	maxRetries int
}

func NewDeliveryWorker(conn db.DBTX, logger *slog.Logger, interval, timeout time.Duration, maxRetries int) *DeliveryWorker {
	return &DeliveryWorker{
		conn:       conn,
		store:      NewStore(conn),
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
		interval:   interval,
		maxRetries: maxRetries,
	}
}

// Run starts the delivery worker loop. It blocks until ctx is cancelled.
func (w *DeliveryWorker) Run(ctx context.Context) error {
	w.logger.Info("webhook delivery worker started", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook delivery worker stopped")
			return nil
		case <-ticker.C:
			if err := w.tick(ctx); err != nil {
				w.logger.Error("webhook delivery worker tick", "error", err)
			}
		}
	}
}

func (w *DeliveryWorker) tick(ctx context.Context) error {
	due, err := w.store.ListDue(ctx, time.Now(), 100)
	if err != nil {
		return fmt.Errorf("listing due deliveries: %w", err)
	}

	for _, d := range due {
		w.attempt(ctx, d)
	}
	return nil
}

// attempt delivers one due payload. A transport or non-2xx failure
// schedules a retry with exponential backoff and jitter, capped at
// maxRetries before the delivery is marked permanently failed.
func (w *DeliveryWorker) attempt(ctx context.Context, d Delivery) {
	sub, err := w.store.GetByID(ctx, d.SubscriptionID)
	if err != nil {
		w.logger.Error("loading webhook subscription for delivery", "error", err, "delivery", d.ID)
		return
	}

	err = w.post(ctx, sub, d)
	if err == nil {
		telemetry.WebhookDeliveryAttemptsTotal.WithLabelValues("delivered").Inc()
		if markErr := w.store.MarkDelivered(ctx, d.ID); markErr != nil {
			w.logger.Error("marking webhook delivered", "error", markErr, "delivery", d.ID)
		}
		return
	}

	if int(d.Attempts)+1 >= w.maxRetries {
		telemetry.WebhookDeliveryAttemptsTotal.WithLabelValues("failed").Inc()
		if markErr := w.store.MarkFailed(ctx, d.ID, err.Error()); markErr != nil {
			w.logger.Error("marking webhook permanently failed", "error", markErr, "delivery", d.ID)
		}
		w.logger.Error("webhook delivery permanently failed", "error", err, "delivery", d.ID, "subscription", sub.ID)
		return
	}

	telemetry.WebhookDeliveryAttemptsTotal.WithLabelValues("retry").Inc()
	next := time.Now().Add(backoffDelay(int(d.Attempts)))
	if markErr := w.store.MarkRetry(ctx, d.ID, next, err.Error()); markErr != nil {
		w.logger.Error("scheduling webhook retry", "error", markErr, "delivery", d.ID)
	}
}

// backoffDelay returns the exponential-with-jitter delay for the given
// (zero-based) attempt count, using backoff/v5's default exponential curve
// as the jitter source rather than reimplementing one.
func backoffDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

func (w *DeliveryWorker) post(ctx context.Context, sub Subscription, d Delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(d.Payload))
	if err != nil {
		return fmt.Errorf("building delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", Sign(sub.Secret, d.Payload))
	req.Header.Set("X-Webhook-Event", d.EventType)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting delivery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("subscriber returned status %d", resp.StatusCode)
	}
	return nil
}
