package console

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/yamooSoluto/payment-sub001/pkg/audit"
	"github.com/yamooSoluto/payment-sub001/pkg/session"
	"github.com/yamooSoluto/payment-sub001/svc/billing"
)

const defaultHistoryLimit = 50

type schedulerKey struct{}

// Actor reports the principal acting on the request: the operator session,
// or the billing scheduler on trigger endpoints.
func Actor(ctx context.Context) (audit.Actor, bool) {
	for _, kind := range []session.Kind{session.KindAdmin, session.KindManager} {
		if s, ok := session.FromContext(ctx, kind); ok {
			return audit.Actor{Kind: string(kind), ID: s.PrincipalID}, true
		}
	}
	if ctx.Value(schedulerKey{}) != nil {
		return audit.Actor{Kind: "scheduler", ID: "billing"}, true
	}
	return audit.Actor{}, false
}

func (h *handlers) record(ctx context.Context, action, tenantID string, out *billing.Outcome, err error) {
	if h.audit == nil {
		return
	}
	var meta map[string]any
	if out != nil && out.Subscription != nil {
		meta = map[string]any{
			"plan":   out.Subscription.Plan,
			"status": string(out.Subscription.Status),
			"amount": out.Subscription.Amount,
		}
	}
	// Record logs its own failures; the transition already happened.
	_, _ = h.audit.Record(ctx, action, tenantID, err, meta)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, h.logger, HTTPError{Status: http.StatusBadRequest, Code: "invalid_input", Message: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	events, err := h.audit.ForTenant(r.Context(), chi.URLParam(r, "tenantID"), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *handlers) tooManyAttempts(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, h.logger, HTTPError{Status: http.StatusTooManyRequests, Code: "too_many_attempts", Message: "too many login attempts, retry later"})
}
