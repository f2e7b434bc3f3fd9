package policy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/db"
)

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// Recorder is an async, buffered writer for authorization decisions,
// structured identically to internal/audit.Writer: entries are enqueued on
// a channel and flushed in batches by a background goroutine, so recording
// a decision never adds latency to the request that produced it.
type Recorder struct {
	db      db.DBTX
	logger  *slog.Logger
	entries chan Record
	wg      sync.WaitGroup
}

func NewRecorder(conn db.DBTX, logger *slog.Logger) *Recorder {
	return &Recorder{db: conn, logger: logger, entries: make(chan Record, bufferSize)}
}

// Start begins the background flush goroutine.
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (r *Recorder) Close() {
	close(r.entries)
	r.wg.Wait()
}

// Record enqueues a decision for async writing. Never blocks; if the
// buffer is full the entry is dropped and a warning is logged, matching
// internal/audit.Writer's drop-on-full behavior.
func (r *Recorder) Record(rec Record) {
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now()
	select {
	case r.entries <- rec:
	default:
		r.logger.Warn("policy decision buffer full, dropping entry", "gate", rec.Gate, "outcome", rec.Outcome)
	}
}

func (r *Recorder) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-r.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case rec, ok := <-r.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, rec)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (r *Recorder) flush(batch []Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, rec := range batch {
		_, err := r.db.Exec(ctx, `
			INSERT INTO policy_decisions
				(id, tenant_id, actor_id, request_id, gate, outcome, reason, method, path, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, rec.ID, rec.TenantID, rec.ActorID, rec.RequestID, rec.Gate, rec.Outcome, rec.Reason, rec.Method, rec.Path, rec.CreatedAt)
		if err != nil {
			r.logger.Error("writing policy decision", "error", err, "gate", rec.Gate)
		}
	}
}
