// Package console is the HTTP surface of the billing backend: portal SSO and
// checkout entry points, operator login, the subscription admin API and the
// billing trigger endpoints.
package console

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yamooSoluto/payment-sub001/pkg/audit"
	"github.com/yamooSoluto/payment-sub001/pkg/logger"
	"github.com/yamooSoluto/payment-sub001/pkg/pricing"
	"github.com/yamooSoluto/payment-sub001/pkg/ratelimiter"
	"github.com/yamooSoluto/payment-sub001/pkg/rbac"
	"github.com/yamooSoluto/payment-sub001/pkg/requestid"
	"github.com/yamooSoluto/payment-sub001/pkg/session"
	"github.com/yamooSoluto/payment-sub001/pkg/subscription"
	"github.com/yamooSoluto/payment-sub001/svc/auth"
	"github.com/yamooSoluto/payment-sub001/svc/billing"
)

// AuthService opens and closes sessions.
type AuthService interface {
	Sessions() auth.Sessions
	ExchangeAccountToken(ctx context.Context, raw string) (*session.Session, error)
	BeginCheckout(ctx context.Context, raw string, req auth.CheckoutRequest) (*session.Session, error)
	CompleteCheckout(ctx context.Context, sessionID, orderID string, success bool) (*session.Session, error)
	AdminLogin(ctx context.Context, loginID, password string) (*session.Session, error)
	ManagerLogin(ctx context.Context, loginID, password string) (*session.Session, error)
	Logout(ctx context.Context, kind session.Kind, sessionID string) error
}

// BillingService runs subscription transitions and mirrors them to tenants.
type BillingService interface {
	Get(ctx context.Context, tenantID string) (*subscription.Subscription, error)
	CurrentPrice(ctx context.Context, tenantID string) (pricing.Money, error)
	Plans() []subscription.Plan
	Start(ctx context.Context, tenantID, planID string) (*billing.Outcome, error)
	ChangePlan(ctx context.Context, tenantID, planID string, mode subscription.ChangeMode) (*billing.Outcome, error)
	AdjustPeriod(ctx context.Context, tenantID string, periodEnd, billingDate time.Time) (*billing.Outcome, error)
	Cancel(ctx context.Context, tenantID string, mode subscription.CancelMode) (*billing.Outcome, error)
	Suspend(ctx context.Context, tenantID string) (*billing.Outcome, error)
	Resume(ctx context.Context, tenantID string) (*billing.Outcome, error)
	Reactivate(ctx context.Context, tenantID string) (*billing.Outcome, error)
	MarkDeleted(ctx context.Context, tenantID string) (*billing.Outcome, error)
	ApplyPricePolicy(ctx context.Context, planID string, change pricing.Change) (subscription.BulkResult, error)
	OnRenewalDue(ctx context.Context, tenantID string) (*billing.Outcome, error)
	OnPaymentResult(ctx context.Context, tenantID string, success bool) (*billing.Outcome, error)
	OnTrialElapsed(ctx context.Context, tenantID string) (*billing.Outcome, error)
}

// AuditTrail records subscription actions. Build it with audit.WithActor(Actor).
type AuditTrail interface {
	Record(ctx context.Context, action, tenantID string, cause error, metadata map[string]any) (*audit.Event, error)
	ForTenant(ctx context.Context, tenantID string, limit int) ([]*audit.Event, error)
}

// Options configures the console router. Auth, Billing and Authorizer are
// required. The trigger endpoints are mounted only with a TriggerSecret.
type Options struct {
	Auth       AuthService
	Billing    BillingService
	Authorizer *rbac.Authorizer
	// Audit is optional; without it actions are not recorded and the
	// history endpoint is not mounted.
	Audit AuditTrail
	// LoginLimiter throttles the operator login endpoints per client.
	LoginLimiter *ratelimiter.Limiter

	// TriggerSecret is the bearer token the billing scheduler presents.
	TriggerSecret string
	// MirrorWait bounds how long a transition response waits for the tenant
	// mirror. Zero responds without waiting.
	MirrorWait time.Duration

	Metrics  http.Handler
	Liveness http.Handler
	Ready    http.Handler
	Logger   *slog.Logger
}

type handlers struct {
	auth       AuthService
	billing    BillingService
	authorizer *rbac.Authorizer
	audit      AuditTrail
	mirrorWait time.Duration
	logger     *slog.Logger
}

// Router mounts the console routes. Routes backed by an optional dependency
// are mounted only when it is set.
func Router(opts Options) chi.Router {
	if opts.Auth == nil || opts.Billing == nil || opts.Authorizer == nil {
		panic("console: missing dependency")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	h := &handlers{
		auth:       opts.Auth,
		billing:    opts.Billing,
		authorizer: opts.Authorizer,
		audit:      opts.Audit,
		mirrorWait: opts.MirrorWait,
		logger:     log.With(logger.Component("console")),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestid.Middleware)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)

	if opts.Liveness != nil {
		r.Method(http.MethodGet, "/livez", opts.Liveness)
	}
	if opts.Ready != nil {
		r.Method(http.MethodGet, "/readyz", opts.Ready)
	}
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	sessions := opts.Auth.Sessions()
	r.Get("/sso", h.sso)
	r.With(sessions.Auth.Require).Get("/me", h.me)
	r.Route("/checkout", func(r chi.Router) {
		r.Post("/", h.beginCheckout)
		r.With(sessions.Checkout.Require).Get("/", h.checkoutState)
		r.Post("/complete", h.completeCheckout)
	})
	r.Group(func(r chi.Router) {
		if opts.LoginLimiter != nil {
			r.Use(opts.LoginLimiter.Middleware(ratelimiter.ByRemoteAddr, h.tooManyAttempts))
		}
		r.Post("/admin/login", h.adminLogin)
		r.Post("/manager/login", h.managerLogin)
	})
	r.Post("/admin/logout", h.logout(session.KindAdmin))
	r.Post("/manager/logout", h.logout(session.KindManager))

	r.Route("/api", func(r chi.Router) {
		r.Use(h.operator)
		r.With(h.require(rbac.PlansRead)).Get("/plans", h.listPlans)
		r.With(h.require(rbac.PlansWrite)).Post("/plans/{planID}/price-policy", h.applyPricePolicy)

		r.Route("/tenants/{tenantID}/subscription", func(r chi.Router) {
			r.With(h.require(rbac.SubscriptionsRead)).Get("/", h.getSubscription)
			if opts.Audit != nil {
				r.With(h.require(rbac.SubscriptionsRead)).Get("/history", h.history)
			}
			r.Group(func(r chi.Router) {
				r.Use(h.require(rbac.SubscriptionsWrite))
				r.Delete("/", h.transition("mark_deleted", h.deleteSubscription))
				r.Post("/start", h.transition("start", h.start))
				r.Post("/change-plan", h.transition("change_plan", h.changePlan))
				r.Post("/adjust-period", h.transition("adjust_period", h.adjustPeriod))
				r.Post("/cancel", h.transition("cancel", h.cancel))
				r.Post("/suspend", h.transition("suspend", h.suspend))
				r.Post("/resume", h.transition("resume", h.resume))
				r.Post("/reactivate", h.transition("reactivate", h.reactivate))
			})
		})
	})

	if opts.TriggerSecret != "" {
		r.Route("/billing", func(r chi.Router) {
			r.Use(bearer(opts.TriggerSecret, h.logger))
			r.Post("/renewal-due", h.trigger("renewal_due", h.renewalDue))
			r.Post("/payment-result", h.trigger("payment_result", h.paymentResult))
			r.Post("/trial-elapsed", h.trigger("trial_elapsed", h.trialElapsed))
		})
	}

	return r
}

func (h *handlers) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.DebugContext(r.Context(), "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			logger.Duration(time.Since(start)),
		)
	})
}
