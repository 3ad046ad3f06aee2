package console

import (
	"context"
	"errors"
	"net/http"

	"github.com/yamooSoluto/payment-sub001/svc/billing"
)

type triggerRequest struct {
	TenantID string `json:"tenantId"`
	Success  *bool  `json:"success,omitempty"`
}

type triggerFunc func(ctx context.Context, req triggerRequest) (*billing.Outcome, error)

// trigger adapts a scheduler callback. Callbacks are idempotent, so the
// scheduler may retry any non-2xx answer.
func (h *handlers) trigger(name string, run triggerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req triggerRequest
		if err := decode(r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		if req.TenantID == "" {
			writeError(w, r, h.logger, errors.Join(ErrBadRequest, errors.New("tenantId is required")))
			return
		}
		out, err := run(r.Context(), req)
		h.record(r.Context(), name, req.TenantID, out, err)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		h.awaitMirror(r.Context(), req.TenantID, out)
		writeJSON(w, http.StatusOK, out.Subscription)
	}
}

func (h *handlers) renewalDue(ctx context.Context, req triggerRequest) (*billing.Outcome, error) {
	return h.billing.OnRenewalDue(ctx, req.TenantID)
}

func (h *handlers) paymentResult(ctx context.Context, req triggerRequest) (*billing.Outcome, error) {
	if req.Success == nil {
		return nil, errors.Join(ErrBadRequest, errors.New("success is required"))
	}
	return h.billing.OnPaymentResult(ctx, req.TenantID, *req.Success)
}

func (h *handlers) trialElapsed(ctx context.Context, req triggerRequest) (*billing.Outcome, error) {
	return h.billing.OnTrialElapsed(ctx, req.TenantID)
}
