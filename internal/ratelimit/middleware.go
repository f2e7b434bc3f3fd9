package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/wisbric/contentkeep/internal/apierr"
	"github.com/wisbric/contentkeep/internal/auth"
	"github.com/wisbric/contentkeep/internal/telemetry"
	"github.com/wisbric/contentkeep/internal/tenant"
)

// Middleware rejects requests once the calling principal exceeds the
// configured window, returning RATE_LIMIT_EXCEEDED with a Retry-After hint.
func Middleware(limiter *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.FromContext(r.Context())
			identity := "anonymous"
			if p != nil {
				identity = p.ActorID.String()
			}

			result, err := limiter.Allow(r.Context(), identity)
			if err != nil {
				// Fail open: a limiter outage must not take down the API.
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				tenantLabel := "unknown"
				if t := tenant.FromContext(r.Context()); t != nil {
					tenantLabel = t.ID.String()
				}
				telemetry.RateLimitRejectionsTotal.WithLabelValues(tenantLabel).Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(result.RetryAt).Seconds())))
				apierr.RespondError(w, w.Header().Get("X-Request-ID"), apierr.New(apierr.RateLimitExceeded, "request rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
