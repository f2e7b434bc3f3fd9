package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/wisbric/contentkeep/internal/apierr"
	"github.com/wisbric/contentkeep/internal/db"
	"github.com/wisbric/contentkeep/internal/tenant"
)

// Authenticate returns middleware that extracts an API key from either the
// X-API-Key header or an `Authorization: Bearer <key>` header, validates it,
// and attaches the derived Principal and tenant.Info to the request context.
// Requests without a presentable key, or with one that fails validation, are
// rejected before reaching the handler.
func Authenticate(pool db.DBTX, logger *slog.Logger) func(http.Handler) http.Handler {
	authr := &Authenticator{DB: pool}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := w.Header().Get("X-Request-ID")

			raw := extractKey(r)
			if raw == "" {
				apierr.RespondError(w, requestID, apierr.New(apierr.AuthMissingAPIKey, "no API key presented"))
				return
			}

			principal, err := authr.Authenticate(r.Context(), raw)
			if err != nil {
				if IsInvalidKey(err) {
					apierr.RespondError(w, requestID, apierr.New(apierr.AuthInvalidAPIKey, "the presented API key is not valid"))
					return
				}
				logger.Error("authentication dependency failure", "error", err)
				apierr.RespondError(w, requestID, apierr.New(apierr.DependencyDown, "authentication is temporarily unavailable"))
				return
			}

			ctx := NewContext(r.Context(), principal)
			ctx = tenant.NewContext(ctx, &tenant.Info{ID: principal.TenantID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractKey reads the raw key from X-API-Key, falling back to a bearer
// token, since either form is accepted per the external interface spec.
func extractKey(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
