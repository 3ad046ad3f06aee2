package console

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yamooSoluto/payment-sub001/pkg/logger"
	"github.com/yamooSoluto/payment-sub001/pkg/pricing"
	"github.com/yamooSoluto/payment-sub001/pkg/subscription"
	"github.com/yamooSoluto/payment-sub001/svc/billing"
)

type subscriptionView struct {
	Subscription *subscription.Subscription `json:"subscription"`
	Price        pricing.Money              `json:"price"`
	Display      string                     `json:"display"`
}

func (h *handlers) getSubscription(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	sub, err := h.billing.Get(r.Context(), tenantID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	price, err := h.billing.CurrentPrice(r.Context(), tenantID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionView{Subscription: sub, Price: price, Display: price.String()})
}

func (h *handlers) listPlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.billing.Plans())
}

// action runs one transition for the tenant named in the route.
type action func(ctx context.Context, r *http.Request, tenantID string) (*billing.Outcome, error)

// transition adapts an action to a handler and records it in the audit
// trail. The response waits up to mirrorWait for the tenant mirror so a
// follow-up tenant read sees it.
func (h *handlers) transition(name string, run action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := chi.URLParam(r, "tenantID")
		out, err := run(r.Context(), r, tenantID)
		h.record(r.Context(), name, tenantID, out, err)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		h.awaitMirror(r.Context(), tenantID, out)
		writeJSON(w, http.StatusOK, out.Subscription)
	}
}

func (h *handlers) awaitMirror(ctx context.Context, tenantID string, out *billing.Outcome) {
	if h.mirrorWait <= 0 || out.Mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.mirrorWait)
	defer cancel()
	if _, err := out.Mirror.Await(ctx); err != nil {
		h.logger.WarnContext(ctx, "tenant mirror not confirmed", logger.TenantID(tenantID), logger.Error(err))
	}
}

type planRequest struct {
	Plan string                  `json:"plan"`
	Mode subscription.ChangeMode `json:"mode,omitempty"`
}

func (h *handlers) start(ctx context.Context, r *http.Request, tenantID string) (*billing.Outcome, error) {
	var req planRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return h.billing.Start(ctx, tenantID, req.Plan)
}

func (h *handlers) changePlan(ctx context.Context, r *http.Request, tenantID string) (*billing.Outcome, error) {
	var req planRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if req.Mode == "" {
		req.Mode = subscription.ChangeImmediate
	}
	return h.billing.ChangePlan(ctx, tenantID, req.Plan, req.Mode)
}

type periodRequest struct {
	CurrentPeriodEnd time.Time `json:"currentPeriodEnd"`
	NextBillingDate  time.Time `json:"nextBillingDate"`
}

func (h *handlers) adjustPeriod(ctx context.Context, r *http.Request, tenantID string) (*billing.Outcome, error) {
	var req periodRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return h.billing.AdjustPeriod(ctx, tenantID, req.CurrentPeriodEnd, req.NextBillingDate)
}

type cancelRequest struct {
	Mode subscription.CancelMode `json:"mode"`
}

func (h *handlers) cancel(ctx context.Context, r *http.Request, tenantID string) (*billing.Outcome, error) {
	var req cancelRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if req.Mode == "" {
		req.Mode = subscription.CancelEndOfPeriod
	}
	return h.billing.Cancel(ctx, tenantID, req.Mode)
}

func (h *handlers) suspend(ctx context.Context, _ *http.Request, tenantID string) (*billing.Outcome, error) {
	return h.billing.Suspend(ctx, tenantID)
}

func (h *handlers) resume(ctx context.Context, _ *http.Request, tenantID string) (*billing.Outcome, error) {
	return h.billing.Resume(ctx, tenantID)
}

func (h *handlers) reactivate(ctx context.Context, _ *http.Request, tenantID string) (*billing.Outcome, error) {
	return h.billing.Reactivate(ctx, tenantID)
}

func (h *handlers) deleteSubscription(ctx context.Context, _ *http.Request, tenantID string) (*billing.Outcome, error) {
	return h.billing.MarkDeleted(ctx, tenantID)
}

type pricePolicyRequest struct {
	Policy         pricing.Policy `json:"policy"`
	NewPlanPrice   *int64         `json:"newPlanPrice,omitempty"`
	ProtectedUntil *time.Time     `json:"protectedUntil,omitempty"`
}

func (h *handlers) applyPricePolicy(w http.ResponseWriter, r *http.Request) {
	var req pricePolicyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !req.Policy.Valid() {
		writeError(w, r, h.logger, errors.Join(ErrBadRequest, errors.New("unknown price policy")))
		return
	}
	res, err := h.billing.ApplyPricePolicy(r.Context(), chi.URLParam(r, "planID"), pricing.Change{
		Policy:         req.Policy,
		NewPlanPrice:   req.NewPlanPrice,
		ProtectedUntil: req.ProtectedUntil,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
