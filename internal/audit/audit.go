// Package audit implements the asynchronous, buffered writer that records
// one audit_log row per accepted mutation. Writes never block the request
// that triggered them: entries are enqueued on a channel and flushed in
// batches by a background goroutine, exactly as the teacher's audit writer
// does, adapted here to a single tenant-scoped table instead of a
// per-tenant-schema fan-out.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/contentkeep/internal/auth"
	"github.com/wisbric/contentkeep/internal/db"
	"github.com/wisbric/contentkeep/internal/tenant"
)

// Action values recorded on every entry, matching spec.md §3's audit log
// entity.
const (
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionRollback = "rollback"
	ActionError    = "error"
)

// Entry represents a single audit log entry to be written.
type Entry struct {
	TenantID   uuid.UUID
	ActorID    uuid.UUID
	Action     string
	EntityType string
	EntityID   string
	Detail     json.RawMessage
	RequestID  string
	IPAddress  *netip.Addr
	UserAgent  *string
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// Writer is an async, buffered audit log writer. Entries are sent to an
// internal channel and flushed by a background goroutine.
type Writer struct {
	db      db.DBTX
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

// NewWriter creates an audit Writer. Call Start to begin processing entries.
func NewWriter(conn db.DBTX, logger *slog.Logger) *Writer {
	return &Writer{
		db:      conn,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start begins the background goroutine that flushes audit entries to the
// database. Safe to call once; further entries after ctx is canceled are
// still drained before the goroutine exits.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry for async writing. It never blocks the caller;
// if the buffer is full the entry is dropped and a warning is logged.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"action", entry.Action, "entity_type", entry.EntityType)
	}
}

// LogFromRequest is a convenience method that extracts the principal,
// tenant, request id, client IP, and user agent from the request context,
// then enqueues the entry.
func (w *Writer) LogFromRequest(r *http.Request, action, entityType, entityID string, detail json.RawMessage) {
	entry := Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		RequestID:  r.Header.Get("X-Request-ID"),
	}

	if ti := tenant.FromContext(r.Context()); ti != nil {
		entry.TenantID = ti.ID
	}
	if p := auth.FromContext(r.Context()); p != nil {
		entry.ActorID = p.ActorID
	}

	if ip := clientIP(r); ip.IsValid() {
		entry.IPAddress = &ip
	}
	if ua := r.Header.Get("User-Agent"); ua != "" {
		entry.UserAgent = &ua
	}

	w.Log(entry)
}

// run is the background loop that drains the entries channel.
func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush writes a batch of entries to the database, one INSERT per entry;
// a failed entry is logged and does not stop the rest of the batch.
func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, e := range entries {
		var ip *string
		if e.IPAddress != nil {
			s := e.IPAddress.String()
			ip = &s
		}

		_, err := w.db.Exec(ctx, `
			INSERT INTO audit_log
				(id, tenant_id, actor_id, action, entity_type, entity_id, detail, request_id, ip_address, user_agent, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		`, uuid.New(), e.TenantID, e.ActorID, e.Action, e.EntityType, e.EntityID, e.Detail, e.RequestID, ip, e.UserAgent)
		if err != nil {
			w.logger.Error("writing audit log entry", "error", err,
				"action", e.Action, "entity_type", e.EntityType)
		}
	}
}

// clientIP extracts the client IP address from the request, preferring
// X-Forwarded-For and X-Real-IP headers over RemoteAddr.
func clientIP(r *http.Request) netip.Addr {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if addr, err := netip.ParseAddr(strings.TrimSpace(parts[0])); err == nil {
			return addr
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}
