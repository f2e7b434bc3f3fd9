package auth

import (
	"net/http"

	"github.com/wisbric/contentkeep/internal/apierr"
	"github.com/wisbric/contentkeep/pkg/policy"
)

// Decisions is the authorization decision recorder every scope check
// writes to. Set once at process start via SetDecisionRecorder; left nil
// (the zero value) it is simply a no-op, which keeps packages that
// construct Handlers without a full app wiring (most unit tests) working
// unchanged.
var Decisions *policy.Recorder

// SetDecisionRecorder installs the process-wide decision recorder. Call
// once during startup before serving traffic.
func SetDecisionRecorder(r *policy.Recorder) {
	Decisions = r
}

func recordDecision(r *http.Request, gate, outcome, reason string) {
	if Decisions == nil {
		return
	}
	p := FromContext(r.Context())
	rec := policy.Record{
		RequestID: r.Header.Get("X-Request-ID"),
		Gate:      gate,
		Outcome:   outcome,
		Reason:    reason,
		Method:    r.Method,
		Path:      r.URL.Path,
	}
	if p != nil {
		rec.TenantID = p.TenantID
		rec.ActorID = p.ActorID
	}
	Decisions.Record(rec)
}

// RequireScope returns middleware that rejects requests whose principal was
// not granted scope. Must run after Authenticate.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := FromContext(r.Context())
			if p == nil {
				recordDecision(r, policy.GateScope, policy.Deny, "no authenticated principal")
				apierr.RespondError(w, w.Header().Get("X-Request-ID"), apierr.New(apierr.AuthMissingAPIKey, "authentication required"))
				return
			}
			if !p.HasScope(scope) {
				recordDecision(r, policy.GateScope, policy.Deny, "missing scope "+scope)
				apierr.RespondError(w, w.Header().Get("X-Request-ID"), apierr.New(apierr.AuthInsufficientScope, "this operation requires the '"+scope+"' scope"))
				return
			}
			recordDecision(r, policy.GateScope, policy.Allow, "")
			next.ServeHTTP(w, r)
		})
	}
}
