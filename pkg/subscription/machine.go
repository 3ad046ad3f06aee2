package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/yamooSoluto/payment-sub001/pkg/statemachine"
)

// Transition names a state machine operation.
type Transition string

const (
	TransitionStart        Transition = "start"
	TransitionChangePlan   Transition = "change_plan"
	TransitionAdjustPeriod Transition = "adjust_period"
	TransitionCancel       Transition = "cancel"
	TransitionRenew        Transition = "renew"
	TransitionMarkPastDue  Transition = "mark_past_due"
	TransitionMarkActive   Transition = "mark_active"
	TransitionExpireTrial  Transition = "expire_trial"
	TransitionSuspend      Transition = "suspend"
	TransitionResume       Transition = "resume"
	TransitionReactivate   Transition = "reactivate"
	TransitionMarkDeleted  Transition = "mark_deleted"
)

// ChangeMode tells ChangePlan whether to switch now or at the next renewal.
type ChangeMode string

const (
	ChangeImmediate ChangeMode = "immediate"
	ChangeReserve   ChangeMode = "reserve"
)

// CancelMode tells Cancel whether to end now or at the period end.
type CancelMode string

const (
	CancelImmediate   CancelMode = "immediate"
	CancelEndOfPeriod CancelMode = "end_of_period"
)

// The two cancel modes lead to different states, so each gets its own event.
const (
	eventCancelNow         Transition = "cancel:immediate"
	eventCancelAtPeriodEnd Transition = "cancel:end_of_period"
)

// attempt carries one transition through the machine. Actions mutate next.
type attempt struct {
	now  time.Time
	cur  *Subscription
	next *Subscription

	plan        Plan
	changeMode  ChangeMode
	periodEnd   time.Time
	billingDate time.Time
}

type (
	machine = statemachine.Machine[Status, Transition, *attempt]
	option  = statemachine.Option[Status, Transition, *attempt]
	guard   = statemachine.Guard[Status, Transition, *attempt]
	action  = statemachine.Action[Status, Transition, *attempt]
)

var (
	restartable = []Status{StatusNone, StatusCanceled, StatusExpired, StatusDeleted}
	live        = []Status{StatusTrialing, StatusActive, StatusPastDue, StatusPendingCancel, StatusSuspended}
	changeable  = []Status{StatusTrialing, StatusActive, StatusPastDue}
	existing    = append(append([]Status{}, live...), StatusCanceled, StatusExpired)
)

func when(g guard) statemachine.TransitionOption[Status, Transition, *attempt] {
	return statemachine.WithGuard(g)
}

func then(a action) statemachine.TransitionOption[Status, Transition, *attempt] {
	return statemachine.WithAction(a)
}

func (s *Service) buildMachine() *machine {
	opts := []option{
		statemachine.WithTransitionFrom(restartable, StatusTrialing, TransitionStart, when(planHasTrial), then(s.startTrial)),
		statemachine.WithTransitionFrom(restartable, StatusActive, TransitionStart, when(planBillable), then(s.startPaid)),

		statemachine.WithTransitionFrom(live, StatusCanceled, eventCancelNow, then(cancelNow)),
		statemachine.WithTransitionFrom(changeable, StatusPendingCancel, eventCancelAtPeriodEnd, then(cancelAtPeriodEnd)),

		statemachine.WithTransition(StatusTrialing, StatusActive, TransitionRenew, when(planBillable), then(s.advance)),
		statemachine.WithTransition(StatusActive, StatusActive, TransitionRenew, when(planBillable), then(s.advance)),
		statemachine.WithTransition(StatusPendingCancel, StatusCanceled, TransitionRenew, when(cancelDue), then(cancelNow)),

		statemachine.WithTransition[Status, Transition, *attempt](StatusActive, StatusPastDue, TransitionMarkPastDue),
		statemachine.WithTransition[Status, Transition, *attempt](StatusPastDue, StatusPastDue, TransitionMarkPastDue),
		statemachine.WithTransition[Status, Transition, *attempt](StatusPastDue, StatusActive, TransitionMarkActive),
		statemachine.WithTransition[Status, Transition, *attempt](StatusActive, StatusActive, TransitionMarkActive),

		statemachine.WithTransition(StatusTrialing, StatusExpired, TransitionExpireTrial, when(trialElapsed), then(stopBilling)),

		statemachine.WithTransitionFrom[Status, Transition, *attempt]([]Status{StatusActive, StatusPastDue}, StatusSuspended, TransitionSuspend),
		statemachine.WithTransition[Status, Transition, *attempt](StatusSuspended, StatusActive, TransitionResume),
		statemachine.WithTransition(StatusPendingCancel, StatusActive, TransitionReactivate, when(cancelPending), then(reactivate)),

		statemachine.WithTransitionFrom(existing, StatusDeleted, TransitionMarkDeleted, then(stopBilling)),
	}
	for _, st := range changeable {
		opts = append(opts,
			statemachine.WithTransition(st, st, TransitionChangePlan, when(planBillable), then(s.changePlan)))
	}
	for _, st := range append(changeable, StatusPendingCancel, StatusSuspended) {
		opts = append(opts,
			statemachine.WithTransition(st, st, TransitionAdjustPeriod, when(periodValid), then(adjustPeriod)))
	}
	return statemachine.MustNew(opts...)
}

func planHasTrial(_ context.Context, _ Status, _ Transition, a *attempt) error {
	if a.plan.TrialDays <= 0 {
		return fmt.Errorf("plan %s has no trial", a.plan.ID)
	}
	return nil
}

func planBillable(_ context.Context, _ Status, _ Transition, a *attempt) error {
	if a.plan.ID == "" {
		return fmt.Errorf("plan is not in the catalog")
	}
	if !a.plan.Billable() {
		return fmt.Errorf("plan %s has no billing interval", a.plan.ID)
	}
	return nil
}

func cancelDue(_ context.Context, _ Status, _ Transition, a *attempt) error {
	if a.cur.CancelAt == nil || a.now.Before(*a.cur.CancelAt) {
		return fmt.Errorf("cancellation is not due yet")
	}
	return nil
}

func cancelPending(_ context.Context, _ Status, _ Transition, a *attempt) error {
	if a.cur.CancelAt != nil && !a.now.Before(*a.cur.CancelAt) {
		return fmt.Errorf("cancellation took effect at %s", a.cur.CancelAt.Format(time.RFC3339))
	}
	return nil
}

func trialElapsed(_ context.Context, _ Status, _ Transition, a *attempt) error {
	if a.now.Before(a.cur.CurrentPeriodEnd) {
		return fmt.Errorf("trial runs until %s", a.cur.CurrentPeriodEnd.Format(time.RFC3339))
	}
	return nil
}

func periodValid(_ context.Context, _ Status, _ Transition, a *attempt) error {
	start := a.cur.CurrentPeriodStart
	if !a.periodEnd.After(start) {
		return fmt.Errorf("period end %s is not after period start %s",
			a.periodEnd.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	if a.billingDate.Before(start) {
		return fmt.Errorf("billing date %s is before period start %s",
			a.billingDate.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return nil
}

func (s *Service) startTrial(_ context.Context, _, _ Status, _ Transition, a *attempt) error {
	s.begin(a, a.plan.TrialEnd(a.now))
	return nil
}

func (s *Service) startPaid(_ context.Context, _, _ Status, _ Transition, a *attempt) error {
	s.begin(a, a.plan.PeriodEnd(a.now))
	return nil
}

// begin resets next to a fresh period on a.plan ending at end.
func (s *Service) begin(a *attempt, end time.Time) {
	n := a.next
	n.Plan = a.plan.ID
	n.CurrentPeriodStart = a.now
	n.CurrentPeriodEnd = end
	n.NextBillingDate = &end
	n.setStandardPrice(a.plan.Price, a.plan.Currency)
	n.clearPending()
	n.CancelAt = nil
	n.CanceledAt = nil
}

func (s *Service) changePlan(_ context.Context, _, _ Status, _ Transition, a *attempt) error {
	n := a.next
	if a.plan.ID == n.Plan {
		// The live plan keeps its price policy.
		n.clearPending()
		return nil
	}
	switch a.changeMode {
	case ChangeImmediate:
		n.Plan = a.plan.ID
		n.setStandardPrice(a.plan.Price, a.plan.Currency)
		n.clearPending()
	case ChangeReserve:
		amount := a.plan.Price
		n.PendingPlan = a.plan.ID
		n.PendingAmount = &amount
	}
	return nil
}

// advance starts the next billing period, applying a pending plan change or
// re-evaluating the price policy of the live plan.
func (s *Service) advance(_ context.Context, _, _ Status, _ Transition, a *attempt) error {
	n := a.next
	if n.PendingPlan != "" {
		n.Plan = n.PendingPlan
		n.setStandardPrice(*n.PendingAmount, a.plan.Currency)
		n.clearPending()
	} else {
		subject, err := s.pricing.Normalize(n.pricingSubject())
		if err != nil {
			return err
		}
		n.setPricing(subject)
		n.Currency = a.plan.Currency
	}

	start := n.CurrentPeriodEnd
	end := a.plan.PeriodEnd(start)
	n.CurrentPeriodStart = start
	n.CurrentPeriodEnd = end
	n.NextBillingDate = &end
	return nil
}

func cancelNow(_ context.Context, _, _ Status, _ Transition, a *attempt) error {
	now := a.now
	a.next.NextBillingDate = nil
	a.next.CancelAt = nil
	a.next.CanceledAt = &now
	a.next.clearPending()
	return nil
}

func cancelAtPeriodEnd(_ context.Context, _, _ Status, _ Transition, a *attempt) error {
	at := a.next.CurrentPeriodEnd
	a.next.CancelAt = &at
	a.next.clearPending()
	return nil
}

func reactivate(_ context.Context, _, _ Status, _ Transition, a *attempt) error {
	a.next.CancelAt = nil
	return nil
}

func stopBilling(_ context.Context, _, _ Status, _ Transition, a *attempt) error {
	a.next.NextBillingDate = nil
	a.next.CancelAt = nil
	a.next.clearPending()
	return nil
}

func adjustPeriod(_ context.Context, _, _ Status, _ Transition, a *attempt) error {
	end, billing := a.periodEnd, a.billingDate
	a.next.CurrentPeriodEnd = end
	a.next.NextBillingDate = &billing
	if a.next.Status == StatusPendingCancel {
		a.next.CancelAt = &end
	}
	return nil
}
