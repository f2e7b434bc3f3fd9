// Package app wires every package in this repository into the three run
// modes spec.md §9 describes: api (the REST/MCP-facing process), worker
// (payout batching and webhook delivery), and reconcile (the settlement
// reconciliation sweep). Each mode shares the same database pool and domain
// service constructors; only which loops run differs.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/contentkeep/internal/audit"
	"github.com/wisbric/contentkeep/internal/auth"
	"github.com/wisbric/contentkeep/internal/config"
	"github.com/wisbric/contentkeep/internal/eventbus"
	"github.com/wisbric/contentkeep/internal/httpserver"
	"github.com/wisbric/contentkeep/internal/idempotency"
	"github.com/wisbric/contentkeep/internal/platform"
	"github.com/wisbric/contentkeep/internal/ratelimit"
	"github.com/wisbric/contentkeep/internal/telemetry"
	"github.com/wisbric/contentkeep/pkg/apikey"
	"github.com/wisbric/contentkeep/pkg/contentitem"
	"github.com/wisbric/contentkeep/pkg/contenttype"
	"github.com/wisbric/contentkeep/pkg/entitlement"
	"github.com/wisbric/contentkeep/pkg/mcp"
	"github.com/wisbric/contentkeep/pkg/offer"
	"github.com/wisbric/contentkeep/pkg/payment"
	"github.com/wisbric/contentkeep/pkg/policy"
	"github.com/wisbric/contentkeep/pkg/reconcile"
	"github.com/wisbric/contentkeep/pkg/revenue"
	"github.com/wisbric/contentkeep/pkg/webhook"
)

// Run reads config, connects to infrastructure, and starts the mode cfg.Mode
// selects.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("starting contentkeep", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := prometheus.NewRegistry()
	metricsReg.MustRegister(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, pool, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, pool, metricsReg)
	case "reconcile":
		return runReconcile(ctx, cfg, logger, pool, metricsReg)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// buildPaymentProvider constructs the configured Lightning provider,
// refusing the mock in production per spec.md §9.
func buildPaymentProvider(cfg *config.Config) (payment.Provider, error) {
	return payment.NewProvider(cfg.PaymentProvider, cfg.IsProduction(), cfg.LNDHost, cfg.LNDMacaroon, cfg.LNDTLSCert)
}

func buildPayoutExecutor(cfg *config.Config) (revenue.Executor, error) {
	return revenue.NewExecutor(cfg.PaymentProvider, cfg.IsProduction())
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	auditWriter := audit.NewWriter(pool, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	decisions := policy.NewRecorder(pool, logger)
	decisions.Start(ctx)
	defer decisions.Close()
	auth.SetDecisionRecorder(decisions)

	bus := eventbus.New(logger, func() { telemetry.EventsDroppedTotal.Inc() })

	provider, err := buildPaymentProvider(cfg)
	if err != nil {
		return fmt.Errorf("building payment provider: %w", err)
	}
	if cfg.L402SigningKey == "" {
		logger.Warn("L402_SIGNING_KEY not set; using an ephemeral signing key for this process only")
	}
	signer := payment.NewTokenSigner(cfg.L402SigningKey)

	paymentSvc := payment.NewService(pool, provider, signer, cfg.L402TokenTTL, logger)
	paymentHandler := payment.NewHandler(paymentSvc, map[string]string{cfg.PaymentProvider: cfg.PaymentWebhookSecret}, logger)

	// offer.NewService registers the OnSettled hook that atomically
	// activates an entitlement and allocates revenue the instant
	// paymentSvc observes a payment paid, from whichever of synchronous
	// verify, webhook, or reconciliation gets there first.
	offerSvc := offer.NewService(pool, paymentSvc, logger, bus)
	offerHandler := offer.NewHandler(offerSvc, logger, auditWriter)

	schemas := contenttype.NewSchemaCache()
	contentTypeHandler := contenttype.NewHandler(pool, schemas, logger, auditWriter)
	contentItemHandler := contentitem.NewHandler(pool, schemas, paymentSvc, logger, auditWriter, bus)
	contentItemSvc := contentitem.NewService(pool, schemas, paymentSvc, logger, bus)
	apikeyHandler := apikey.NewHandler(pool, logger, auditWriter)
	entitlementSvc := entitlement.NewService(pool, logger)
	webhookHandler := webhook.NewHandler(pool, logger, auditWriter)
	webhookSvc := webhook.NewService(pool, logger)
	auditHandler := audit.NewHandler(pool, logger)

	limiter := ratelimit.New(rdb, cfg.RateLimitMax, cfg.RateLimitWindow)
	idemCache := idempotency.New(cfg.IdempotencyTTL)

	srv := httpserver.NewServer(cfg, logger, pool, rdb, metricsReg, limiter, idemCache)

	srv.APIRouter.Mount("/content-types", contentTypeHandler.Routes())
	srv.APIRouter.Mount("/content-items", contentItemHandler.Routes())
	srv.APIRouter.Mount("/offers", offerHandler.Routes())
	srv.APIRouter.Mount("/auth/keys", apikeyHandler.Routes())
	srv.APIRouter.Mount("/payments", paymentHandler.Routes())
	srv.APIRouter.Mount("/webhooks", webhookHandler.Routes())
	srv.APIRouter.Mount("/audit-logs", auditHandler.Routes())

	// Provider callbacks carry no API key; mount outside /api/v1's
	// authenticated sub-router.
	srv.Router.Mount("/payments/webhooks", paymentHandler.WebhookRoutes())

	mcpHandler := mcp.NewHandler(contentItemSvc, offerSvc, entitlementSvc, logger)
	srv.APIRouter.Mount("/mcp", mcpHandler.Routes())

	go webhookSvc.Dispatch(ctx, bus)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool, metricsReg *prometheus.Registry) error {
	logger.Info("worker started")

	executor, err := buildPayoutExecutor(cfg)
	if err != nil {
		return fmt.Errorf("building payout executor: %w", err)
	}

	payoutWorker := revenue.NewPayoutWorker(pool, executor, logger, cfg.PayoutInterval, cfg.PayoutMinimumSats, cfg.PayoutMaxRetries,
		telemetry.PayoutTransfersTotal.WithLabelValues("completed"), telemetry.PayoutTransfersTotal.WithLabelValues("failed"))

	deliveryWorker := webhook.NewDeliveryWorker(pool, logger, 30*time.Second, cfg.WebhookDeliveryTimeout, cfg.WebhookMaxRetries)

	errCh := make(chan error, 2)
	go func() { errCh <- payoutWorker.Run(ctx) }()
	go func() { errCh <- deliveryWorker.Run(ctx) }()

	revenueSvc := revenue.NewService(pool, logger)
	go runSettlementClearLoop(ctx, revenueSvc, logger, cfg.SettlementWindow)

	entitlementSvc := entitlement.NewService(pool, logger)
	go runExpirySweepLoop(ctx, entitlementSvc, logger)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func runReconcile(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool, metricsReg *prometheus.Registry) error {
	provider, err := buildPaymentProvider(cfg)
	if err != nil {
		return fmt.Errorf("building payment provider: %w", err)
	}
	signer := payment.NewTokenSigner(cfg.L402SigningKey)
	paymentSvc := payment.NewService(pool, provider, signer, cfg.L402TokenTTL, logger)

	worker := reconcile.NewWorker(paymentSvc, logger, cfg.ReconciliationInterval, cfg.ReconciliationThreshold,
		telemetry.PendingOver15mCount, telemetry.ReconciliationCorrectionsTotal, telemetry.ReconciliationFailuresTotal)

	return worker.Run(ctx)
}

// runSettlementClearLoop periodically transitions pending allocations past
// the settlement window to cleared, making them eligible for the next
// payout batch. Ticks at a quarter of the settlement window so an
// allocation clears within one window of its eligibility, not up to two.
func runSettlementClearLoop(ctx context.Context, svc *revenue.Service, logger *slog.Logger, window time.Duration) {
	interval := window / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.ClearSettled(ctx, window)
			if err != nil {
				logger.Error("clearing settled allocations", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("cleared settled allocations", "count", n)
			}
		}
	}
}

// runExpirySweepLoop periodically transitions active entitlements past
// their expiry to expired.
func runExpirySweepLoop(ctx context.Context, svc *entitlement.Service, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.ExpireSweep(ctx, time.Now())
			if err != nil {
				logger.Error("sweeping expired entitlements", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("expired entitlements", "count", n)
			}
		}
	}
}
