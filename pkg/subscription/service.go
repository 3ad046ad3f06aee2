package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yamooSoluto/payment-sub001/pkg/logger"
	"github.com/yamooSoluto/payment-sub001/pkg/metrics"
	"github.com/yamooSoluto/payment-sub001/pkg/pricing"
	"github.com/yamooSoluto/payment-sub001/pkg/statemachine"
)

// Service runs subscription transitions.
type Service struct {
	store   Store
	catalog *Catalog
	pricing *pricing.Engine
	machine *machine
	locks   tenantLocks
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for periods and price protection.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService panics when store or catalog is nil.
func NewService(st Store, catalog *Catalog, opts ...Option) *Service {
	if st == nil {
		panic("subscription: nil store")
	}
	if catalog == nil {
		panic("subscription: nil catalog")
	}
	s := &Service{
		store:   st,
		catalog: catalog,
		now:     time.Now,
		logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pricing = pricing.NewEngine(catalog, pricing.WithClock(s.now))
	s.machine = s.buildMachine()
	return s
}

func (s *Service) Catalog() *Catalog { return s.catalog }

// Pricing is the engine the service prices renewals with.
func (s *Service) Pricing() *pricing.Engine { return s.pricing }

// Get returns the tenant's subscription or ErrNotFound.
func (s *Service) Get(ctx context.Context, tenantID string) (*Subscription, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: empty tenant id", ErrInvalidInput)
	}
	return s.store.Get(ctx, tenantID)
}

// Start subscribes the tenant to planID. It is legal only when the tenant
// holds no live subscription; otherwise it returns ErrAlreadySubscribed and
// the record is left as it was.
func (s *Service) Start(ctx context.Context, tenantID, planID string) (*Subscription, error) {
	plan, err := s.plan(planID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, tenantID, TransitionStart, TransitionStart, func(a *attempt) error {
		a.plan = plan
		return nil
	})
}

// ChangePlan switches the live plan now or reserves the change for the next
// renewal. A second reservation replaces the first; reserving the live plan
// drops the pending change.
func (s *Service) ChangePlan(ctx context.Context, tenantID, planID string, mode ChangeMode) (*Subscription, error) {
	if mode != ChangeImmediate && mode != ChangeReserve {
		return nil, fmt.Errorf("%w: change mode %q", ErrInvalidInput, mode)
	}
	plan, err := s.plan(planID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, tenantID, TransitionChangePlan, TransitionChangePlan, func(a *attempt) error {
		a.plan = plan
		a.changeMode = mode
		return nil
	})
}

// AdjustPeriod overrides the current period end and next billing date. A
// zero billingDate follows periodEnd.
func (s *Service) AdjustPeriod(ctx context.Context, tenantID string, periodEnd, billingDate time.Time) (*Subscription, error) {
	if periodEnd.IsZero() {
		return nil, fmt.Errorf("%w: period end is required", ErrInvalidInput)
	}
	if billingDate.IsZero() {
		billingDate = periodEnd
	}
	return s.transition(ctx, tenantID, TransitionAdjustPeriod, TransitionAdjustPeriod, func(a *attempt) error {
		a.periodEnd = periodEnd.UTC()
		a.billingDate = billingDate.UTC()
		return nil
	})
}

// Cancel ends the subscription now or schedules it for the period end.
func (s *Service) Cancel(ctx context.Context, tenantID string, mode CancelMode) (*Subscription, error) {
	var event Transition
	switch mode {
	case CancelImmediate:
		event = eventCancelNow
	case CancelEndOfPeriod:
		event = eventCancelAtPeriodEnd
	default:
		return nil, fmt.Errorf("%w: cancel mode %q", ErrInvalidInput, mode)
	}
	return s.transition(ctx, tenantID, TransitionCancel, event, nil)
}

// Renew advances a due subscription to its next period, applying any pending
// plan, or cancels a pending_cancel subscription whose cancel date passed.
// Renewing a subscription that is not due returns it unchanged, so the
// billing trigger may be delivered more than once.
func (s *Service) Renew(ctx context.Context, tenantID string) (*Subscription, error) {
	return s.transition(ctx, tenantID, TransitionRenew, TransitionRenew, func(a *attempt) error {
		if !renewalDue(a.cur, a.now) {
			return errNotDue
		}
		planID := a.cur.Plan
		if a.cur.PendingPlan != "" {
			planID = a.cur.PendingPlan
		}
		a.plan, _ = s.catalog.Plan(planID)
		return nil
	})
}

// MarkPastDue records a failed charge. The next billing date is kept so the
// charge can be retried.
func (s *Service) MarkPastDue(ctx context.Context, tenantID string) (*Subscription, error) {
	return s.transition(ctx, tenantID, TransitionMarkPastDue, TransitionMarkPastDue, nil)
}

// MarkActive brings a past_due subscription back after a successful charge.
func (s *Service) MarkActive(ctx context.Context, tenantID string) (*Subscription, error) {
	return s.transition(ctx, tenantID, TransitionMarkActive, TransitionMarkActive, nil)
}

// ExpireTrial ends a trial whose period elapsed without conversion.
func (s *Service) ExpireTrial(ctx context.Context, tenantID string) (*Subscription, error) {
	return s.transition(ctx, tenantID, TransitionExpireTrial, TransitionExpireTrial, nil)
}

// Suspend pauses an active subscription.
func (s *Service) Suspend(ctx context.Context, tenantID string) (*Subscription, error) {
	return s.transition(ctx, tenantID, TransitionSuspend, TransitionSuspend, nil)
}

// Resume returns a suspended subscription to active.
func (s *Service) Resume(ctx context.Context, tenantID string) (*Subscription, error) {
	return s.transition(ctx, tenantID, TransitionResume, TransitionResume, nil)
}

// Reactivate withdraws a scheduled cancellation before it takes effect.
func (s *Service) Reactivate(ctx context.Context, tenantID string) (*Subscription, error) {
	return s.transition(ctx, tenantID, TransitionReactivate, TransitionReactivate, nil)
}

// MarkDeleted records that the tenant was removed. The record is kept.
func (s *Service) MarkDeleted(ctx context.Context, tenantID string) (*Subscription, error) {
	return s.transition(ctx, tenantID, TransitionMarkDeleted, TransitionMarkDeleted, nil)
}

// CurrentPrice is what the tenant is charged now under its price policy.
func (s *Service) CurrentPrice(ctx context.Context, tenantID string) (pricing.Money, error) {
	sub, err := s.Get(ctx, tenantID)
	if err != nil {
		return pricing.Money{}, err
	}
	amount, err := s.pricing.PriceFor(sub.pricingSubject())
	if err != nil {
		return pricing.Money{}, errors.Join(ErrUnknownPlan, err)
	}
	return pricing.Money{Amount: amount, Currency: sub.Currency}, nil
}

// BulkResult summarizes a price policy change over a plan's live subscribers.
// Skipped counts subscribers the change left as they were.
type BulkResult struct {
	Matched int      `json:"matched"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Tenants []string `json:"tenants,omitempty"`
}

// ApplyPricePolicy applies change to every live subscriber of planID.
// Running it twice leaves the second run with nothing to update.
func (s *Service) ApplyPricePolicy(ctx context.Context, planID string, change pricing.Change) (BulkResult, error) {
	if _, err := s.plan(planID); err != nil {
		return BulkResult{}, err
	}
	subs, err := s.store.FindByPlan(ctx, planID)
	if err != nil {
		return BulkResult{}, err
	}

	var res BulkResult
	for _, found := range subs {
		outcome, err := s.applyPolicy(ctx, found.TenantID, planID, change)
		if err != nil {
			return res, err
		}
		switch outcome {
		case policyUpdated:
			res.Matched++
			res.Updated++
			res.Tenants = append(res.Tenants, found.TenantID)
		case policyUnchanged:
			res.Matched++
			res.Skipped++
		}
	}

	s.logger.InfoContext(ctx, "price policy applied",
		logger.Plan(planID),
		slog.String("policy", string(change.Policy)),
		slog.Int("matched", res.Matched),
		slog.Int("updated", res.Updated))
	return res, nil
}

type policyOutcome int

const (
	policyIgnored policyOutcome = iota
	policyUnchanged
	policyUpdated
)

// applyPolicy re-reads the tenant under its lock. Subscriptions that left the
// plan or are no longer live are ignored.
func (s *Service) applyPolicy(ctx context.Context, tenantID, planID string, change pricing.Change) (policyOutcome, error) {
	unlock := s.locks.lock(tenantID)
	defer unlock()

	cur, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return policyIgnored, err
	}
	if cur.Plan != planID || !cur.Live() {
		return policyIgnored, nil
	}

	subject, err := s.pricing.Apply(cur.pricingSubject(), change)
	if err != nil {
		return policyIgnored, errors.Join(ErrInvalidInput, err)
	}
	next := cur.clone()
	next.setPricing(subject)
	if samePricing(cur, next) {
		return policyUnchanged, nil
	}
	next.UpdatedAt = s.now()
	if err := next.Validate(); err != nil {
		return policyIgnored, err
	}
	if err := s.store.Save(ctx, next); err != nil {
		return policyIgnored, err
	}
	return policyUpdated, nil
}

var errNotDue = errors.New("not due")

// transition loads the record, lets prepare fill the attempt, fires event and
// saves the result. name is the public transition name used in errors, logs
// and metrics.
func (s *Service) transition(ctx context.Context, tenantID string, name, event Transition, prepare func(*attempt) error) (*Subscription, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: empty tenant id", ErrInvalidInput)
	}

	unlock := s.locks.lock(tenantID)
	defer unlock()

	cur, err := s.store.Get(ctx, tenantID)
	switch {
	case errors.Is(err, ErrNotFound):
		if name != TransitionStart {
			return nil, err
		}
		cur = nil
	case err != nil:
		s.metrics.TransitionApplied(string(name), metrics.ResultUnavailable)
		return nil, err
	}

	now := s.now()
	a := &attempt{now: now, cur: cur}
	from := StatusNone
	if cur != nil {
		from = cur.Status
		a.next = cur.clone()
	} else {
		a.next = &Subscription{TenantID: tenantID, CreatedAt: now}
	}

	if prepare != nil {
		if err := prepare(a); err != nil {
			if errors.Is(err, errNotDue) {
				s.metrics.TransitionApplied(string(name), metrics.ResultSkipped)
				return cur, nil
			}
			return nil, err
		}
	}

	to, err := s.machine.Fire(ctx, from, event, a)
	if err != nil {
		rejected := s.reject(from, name, err)
		s.metrics.TransitionApplied(string(name), metrics.ResultRejected)
		s.logger.InfoContext(ctx, "subscription transition rejected",
			logger.TenantID(tenantID), logger.Transition(string(name)),
			logger.Status(string(from)), logger.Error(rejected))
		return nil, rejected
	}

	next := a.next
	next.Status = to
	next.UpdatedAt = now
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, next); err != nil {
		s.metrics.TransitionApplied(string(name), metrics.ResultUnavailable)
		return nil, err
	}

	s.metrics.TransitionApplied(string(name), metrics.ResultOK)
	s.logger.InfoContext(ctx, "subscription transition applied",
		logger.TenantID(tenantID), logger.Transition(string(name)),
		slog.String("from", string(from)), logger.Status(string(to)), logger.Plan(next.Plan))
	return next, nil
}

func (s *Service) reject(from Status, name Transition, err error) error {
	if name == TransitionStart && statemachine.IsNoTransition(err) {
		return &TransitionError{
			From:       from,
			Transition: name,
			Reason:     fmt.Sprintf("tenant already has a %s subscription", from),
			err:        ErrAlreadySubscribed,
		}
	}

	var rejected *statemachine.RejectedError
	switch {
	case errors.As(err, &rejected):
		return &TransitionError{From: from, Transition: name, Reason: rejected.Reason, err: ErrIllegalTransition}
	case statemachine.IsNoTransition(err):
		return &TransitionError{
			From:       from,
			Transition: name,
			Reason:     fmt.Sprintf("cannot %s a %s subscription", humanize(name), from),
			err:        ErrIllegalTransition,
		}
	}
	return errors.Join(ErrUnknownPlan, err)
}

func (s *Service) plan(id string) (Plan, error) {
	p, ok := s.catalog.Plan(id)
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, id)
	}
	return p, nil
}

// renewalDue reports whether renew has work to do at now.
func renewalDue(s *Subscription, now time.Time) bool {
	if s.Status == StatusPendingCancel && s.CancelAt != nil {
		return !now.Before(*s.CancelAt)
	}
	return s.NextBillingDate != nil && !now.Before(*s.NextBillingDate)
}

func samePricing(a, b *Subscription) bool {
	return a.PricePolicy == b.PricePolicy &&
		a.Amount == b.Amount &&
		equalPtr(a.PriceOverride, b.PriceOverride) &&
		equalTime(a.PriceProtectedUntil, b.PriceProtectedUntil)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func humanize(t Transition) string {
	switch t {
	case TransitionChangePlan:
		return "change the plan of"
	case TransitionAdjustPeriod:
		return "adjust the period of"
	case TransitionMarkPastDue:
		return "mark past due"
	case TransitionMarkActive:
		return "mark active"
	case TransitionExpireTrial:
		return "expire the trial of"
	case TransitionMarkDeleted:
		return "mark deleted"
	}
	return string(t)
}
