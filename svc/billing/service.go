package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/yamooSoluto/payment-sub001/pkg/async"
	"github.com/yamooSoluto/payment-sub001/pkg/logger"
	"github.com/yamooSoluto/payment-sub001/pkg/pricing"
	"github.com/yamooSoluto/payment-sub001/pkg/subscription"
	"github.com/yamooSoluto/payment-sub001/pkg/tenantsync"
)

// Syncer mirrors subscription views onto tenants.
type Syncer interface {
	Sync(ctx context.Context, tenantID string, v tenantsync.View) *async.Future[struct{}]
}

// Outcome is a saved transition and the mirror update it triggered. Await
// Mirror before reading the tenant mirror in the same flow.
type Outcome struct {
	Subscription *subscription.Subscription
	Mirror       *async.Future[struct{}]
}

// Service wraps the subscription state machine with tenant mirroring.
type Service struct {
	subs   *subscription.Service
	sync   Syncer
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService panics when subs or sync is nil.
func NewService(subs *subscription.Service, sync Syncer, opts ...Option) *Service {
	if subs == nil || sync == nil {
		panic("billing: nil dependency")
	}
	s := &Service{subs: subs, sync: sync, logger: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("billing"))
	return s
}

// Subscriptions exposes the wrapped state machine for reads.
func (s *Service) Subscriptions() *subscription.Service { return s.subs }

// Get returns the tenant subscription without touching the mirror.
func (s *Service) Get(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	return s.subs.Get(ctx, tenantID)
}

func (s *Service) CurrentPrice(ctx context.Context, tenantID string) (pricing.Money, error) {
	return s.subs.CurrentPrice(ctx, tenantID)
}

// Plans lists the catalog sorted by id.
func (s *Service) Plans() []subscription.Plan {
	return s.subs.Catalog().Plans()
}

// Start subscribes the tenant and mirrors the new record.
func (s *Service) Start(ctx context.Context, tenantID, planID string) (*Outcome, error) {
	return s.mirror(ctx, tenantID)(s.subs.Start(ctx, tenantID, planID))
}

// ChangePlan switches or reserves a plan change. A reservation is mirrored
// as the pending plan.
func (s *Service) ChangePlan(ctx context.Context, tenantID, planID string, mode subscription.ChangeMode) (*Outcome, error) {
	return s.mirror(ctx, tenantID)(s.subs.ChangePlan(ctx, tenantID, planID, mode))
}

// AdjustPeriod is the support override for the current period.
func (s *Service) AdjustPeriod(ctx context.Context, tenantID string, periodEnd, billingDate time.Time) (*Outcome, error) {
	return s.mirror(ctx, tenantID)(s.subs.AdjustPeriod(ctx, tenantID, periodEnd, billingDate))
}

// Cancel ends the subscription now or at the period end.
func (s *Service) Cancel(ctx context.Context, tenantID string, mode subscription.CancelMode) (*Outcome, error) {
	return s.mirror(ctx, tenantID)(s.subs.Cancel(ctx, tenantID, mode))
}

func (s *Service) Suspend(ctx context.Context, tenantID string) (*Outcome, error) {
	return s.mirror(ctx, tenantID)(s.subs.Suspend(ctx, tenantID))
}

func (s *Service) Resume(ctx context.Context, tenantID string) (*Outcome, error) {
	return s.mirror(ctx, tenantID)(s.subs.Resume(ctx, tenantID))
}

// Reactivate withdraws a scheduled cancellation and mirrors the result.
func (s *Service) Reactivate(ctx context.Context, tenantID string) (*Outcome, error) {
	return s.mirror(ctx, tenantID)(s.subs.Reactivate(ctx, tenantID))
}

// MarkDeleted records that the tenant was removed.
func (s *Service) MarkDeleted(ctx context.Context, tenantID string) (*Outcome, error) {
	return s.mirror(ctx, tenantID)(s.subs.MarkDeleted(ctx, tenantID))
}

// ApplyPricePolicy applies change to planID's subscribers and mirrors the new
// amount of every updated tenant.
func (s *Service) ApplyPricePolicy(ctx context.Context, planID string, change pricing.Change) (subscription.BulkResult, error) {
	res, err := s.subs.ApplyPricePolicy(ctx, planID, change)
	for _, tenantID := range res.Tenants {
		sub, gerr := s.subs.Get(ctx, tenantID)
		if gerr != nil {
			s.logger.WarnContext(ctx, "reload for mirror failed", logger.TenantID(tenantID), logger.Error(gerr))
			continue
		}
		s.sync.Sync(ctx, tenantID, tenantsync.ViewOf(sub))
	}
	return res, err
}

// OnRenewalDue renews a due subscription. Past-due and suspended tenants are
// left alone until a payment result or an admin moves them on.
func (s *Service) OnRenewalDue(ctx context.Context, tenantID string) (*Outcome, error) {
	cur, err := s.subs.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	switch cur.Status {
	case subscription.StatusPastDue, subscription.StatusSuspended:
		s.logger.InfoContext(ctx, "renewal deferred",
			logger.TenantID(tenantID), logger.Status(string(cur.Status)))
		return s.unchanged(cur), nil
	}
	if cur.Status.Terminal() {
		return s.unchanged(cur), nil
	}
	return s.mirror(ctx, tenantID)(s.subs.Renew(ctx, tenantID))
}

// OnPaymentResult records a charge outcome. A success brings a past-due
// subscription back to active and renews it if due; a failure marks it past
// due. Replaying the same result changes nothing.
func (s *Service) OnPaymentResult(ctx context.Context, tenantID string, success bool) (*Outcome, error) {
	if !success {
		return s.mirror(ctx, tenantID)(s.subs.MarkPastDue(ctx, tenantID))
	}

	cur, err := s.subs.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if cur.Status != subscription.StatusPastDue {
		if !cur.Live() || cur.Status == subscription.StatusSuspended {
			return s.unchanged(cur), nil
		}
		return s.mirror(ctx, tenantID)(s.subs.Renew(ctx, tenantID))
	}

	active, err := s.subs.MarkActive(ctx, tenantID)
	if err != nil {
		return s.mirror(ctx, tenantID)(nil, err)
	}
	out, err := s.mirror(ctx, tenantID)(s.subs.Renew(ctx, tenantID))
	if err != nil {
		// The reactivation is committed; mirror it and report the failed renewal
		// alongside it.
		committed, _ := s.mirror(ctx, tenantID)(active, nil)
		return committed, err
	}
	return out, nil
}

// OnTrialElapsed ends a trial. A trial with a reserved paid plan converts to
// it instead; anything that is no longer trialing is left alone.
func (s *Service) OnTrialElapsed(ctx context.Context, tenantID string) (*Outcome, error) {
	cur, err := s.subs.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if cur.Status != subscription.StatusTrialing {
		return s.unchanged(cur), nil
	}
	if cur.PendingPlan != "" {
		return s.mirror(ctx, tenantID)(s.subs.Renew(ctx, tenantID))
	}
	return s.mirror(ctx, tenantID)(s.subs.ExpireTrial(ctx, tenantID))
}

// mirror returns a function that syncs a successful transition result.
func (s *Service) mirror(ctx context.Context, tenantID string) func(*subscription.Subscription, error) (*Outcome, error) {
	return func(sub *subscription.Subscription, err error) (*Outcome, error) {
		if err != nil {
			var te *subscription.TransitionError
			if errors.As(err, &te) {
				s.logger.InfoContext(ctx, "transition rejected",
					logger.TenantID(tenantID),
					logger.Transition(string(te.Transition)),
					slog.String("reason", te.Reason),
				)
			}
			return nil, err
		}
		return &Outcome{
			Subscription: sub,
			Mirror:       s.sync.Sync(ctx, tenantID, tenantsync.ViewOf(sub)),
		}, nil
	}
}

func (s *Service) unchanged(sub *subscription.Subscription) *Outcome {
	return &Outcome{Subscription: sub, Mirror: async.Completed(struct{}{}, nil)}
}
