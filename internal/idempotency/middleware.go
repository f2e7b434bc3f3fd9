package idempotency

import (
	"bytes"
	"net/http"

	"github.com/wisbric/contentkeep/internal/telemetry"
)

// headerKey is the client-supplied idempotency key header.
const headerKey = "Idempotency-Key"

// ReplayHeader marks a response served from the cache rather than freshly
// computed.
const ReplayHeader = "Idempotency-Replayed"

// mutatingMethods is the set of methods the cache applies to; GET/HEAD/
// OPTIONS requests are never memoized.
var mutatingMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Middleware returns middleware that replays a cached response for a request
// whose (method, path, Idempotency-Key) was already seen within the TTL, and
// otherwise records the handler's response for future replay.
func Middleware(cache *Cache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mutatingMethods[r.Method] {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(headerKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			cacheKey := Key(r.Method, r.URL.Path, key)

			if status, header, body, ok := cache.Get(cacheKey); ok {
				telemetry.IdempotencyHitsTotal.Inc()
				for k, vs := range header {
					for _, v := range vs {
						w.Header().Add(k, v)
					}
				}
				w.Header().Set(ReplayHeader, "true")
				w.WriteHeader(status)
				_, _ = w.Write(body)
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK, body: &bytes.Buffer{}}
			next.ServeHTTP(rec, r)

			cache.Put(cacheKey, rec.status, rec.Header(), rec.body.Bytes())
		})
	}
}

// recorder wraps http.ResponseWriter to capture the status and body written
// by the handler so it can be cached after the fact.
type recorder struct {
	http.ResponseWriter
	status      int
	body        *bytes.Buffer
	wroteHeader bool
}

func (r *recorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
