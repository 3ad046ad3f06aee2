package subscription_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamooSoluto/payment-sub001/pkg/pricing"
	"github.com/yamooSoluto/payment-sub001/pkg/subscription"
)

func TestService_StartTrialAndPaid(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	trial, err := f.svc.Start(ctx, "t-trial", "trial")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusTrialing, trial.Status)
	assert.Equal(t, "trial", trial.Plan)
	assert.Equal(t, day0.AddDate(0, 0, 14), trial.CurrentPeriodEnd)
	require.NotNil(t, trial.NextBillingDate)
	assert.Equal(t, trial.CurrentPeriodEnd, *trial.NextBillingDate)
	assert.Equal(t, pricing.PolicyStandard, trial.PricePolicy)

	paid, err := f.svc.Start(ctx, "t-paid", "basic")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, paid.Status)
	assert.Equal(t, day0, paid.CurrentPeriodStart)
	assert.Equal(t, day0.AddDate(0, 1, 0), paid.CurrentPeriodEnd)
	assert.Equal(t, int64(29000), paid.Amount)
	assert.Equal(t, "KRW", paid.Currency)

	yearly, err := f.svc.Start(ctx, "t-yearly", "business_yearly")
	require.NoError(t, err)
	assert.Equal(t, day0.AddDate(1, 0, 0), yearly.CurrentPeriodEnd)
}

func TestService_StartOnLiveSubscriptionIsRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	before, err := f.svc.Start(ctx, "t1", "basic")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.svc.Start(ctx, "t1", "business")
	require.ErrorIs(t, err, subscription.ErrAlreadySubscribed)

	var terr *subscription.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, subscription.StatusActive, terr.From)
	assert.Equal(t, subscription.TransitionStart, terr.Transition)
	assert.Contains(t, terr.Reason, "active")

	after, err := f.svc.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestService_RestartAfterTerminal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Start(ctx, "t1", "basic")
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, "t1", subscription.CancelImmediate)
	require.NoError(t, err)

	f.clock.Advance(48 * time.Hour)
	again, err := f.svc.Start(ctx, "t1", "business")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, again.Status)
	assert.Equal(t, "business", again.Plan)
	assert.Equal(t, day0, again.CreatedAt)
	assert.Nil(t, again.CanceledAt)
	assert.Equal(t, int64(59000), again.Amount)
}

func TestService_TrialReserveThenRenew(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Start(ctx, "t1", "trial")
	require.NoError(t, err)

	reserved, err := f.svc.ChangePlan(ctx, "t1", "basic", subscription.ChangeReserve)
	require.NoError(t, err)
	assert.Equal(t, "basic", reserved.PendingPlan)
	assert.Equal(t, "trial", reserved.Plan)
	assert.Equal(t, subscription.StatusTrialing, reserved.Status)

	f.clock.Set(reserved.CurrentPeriodEnd)
	renewed, err := f.svc.Renew(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "basic", renewed.Plan)
	assert.Empty(t, renewed.PendingPlan)
	assert.Nil(t, renewed.PendingAmount)
	assert.Equal(t, subscription.StatusActive, renewed.Status)
	assert.Equal(t, reserved.CurrentPeriodEnd, renewed.CurrentPeriodStart)
	assert.Equal(t, reserved.CurrentPeriodEnd.AddDate(0, 1, 0), renewed.CurrentPeriodEnd)
	assert.Equal(t, int64(29000), renewed.Amount)
}

func TestService_TrialPlanCannotRenewWithoutPendingPlan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	before, err := f.svc.Start(ctx, "t1", "trial")
	require.NoError(t, err)

	f.clock.Set(before.CurrentPeriodEnd.Add(time.Minute))
	_, err = f.svc.Renew(ctx, "t1")
	require.ErrorIs(t, err, subscription.ErrIllegalTransition)

	var terr *subscription.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "plan trial has no billing interval", terr.Reason)

	after, err := f.svc.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	expired, err := f.svc.ExpireTrial(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, expired.Status)
	assert.Nil(t, expired.NextBillingDate)
}

func TestService_TrialStatusWithPaidPlanConverts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	trial, err := f.svc.Start(ctx, "t1", "trial")
	require.NoError(t, err)
	changed, err := f.svc.ChangePlan(ctx, "t1", "business", subscription.ChangeImmediate)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusTrialing, changed.Status)
	assert.Equal(t, "business", changed.Plan)

	f.clock.Set(trial.CurrentPeriodEnd)
	renewed, err := f.svc.Renew(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, renewed.Status)
	assert.Equal(t, int64(59000), renewed.Amount)
}

func TestService_RenewIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	start, err := f.svc.Start(ctx, "t1", "basic")
	require.NoError(t, err)

	early, err := f.svc.Renew(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, start, early)

	f.clock.Set(start.CurrentPeriodEnd)
	first, err := f.svc.Renew(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, start.CurrentPeriodEnd, first.CurrentPeriodStart)

	second, err := f.svc.Renew(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestService_CancelEndOfPeriodThenRenew(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Start(ctx, "t1", "basic")
	require.NoError(t, err)
	_, err = f.svc.ChangePlan(ctx, "t1", "business", subscription.ChangeReserve)
	require.NoError(t, err)

	pending, err := f.svc.Cancel(ctx, "t1", subscription.CancelEndOfPeriod)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPendingCancel, pending.Status)
	require.NotNil(t, pending.CancelAt)
	assert.Equal(t, pending.CurrentPeriodEnd, *pending.CancelAt)
	assert.NotNil(t, pending.NextBillingDate)
	assert.Empty(t, pending.PendingPlan)

	f.clock.Set(pending.CurrentPeriodEnd.Add(-time.Minute))
	unchanged, err := f.svc.Renew(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPendingCancel, unchanged.Status)

	f.clock.Set(pending.CurrentPeriodEnd.Add(time.Minute))
	canceled, err := f.svc.Renew(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, canceled.Status)
	assert.Nil(t, canceled.NextBillingDate)
	assert.Nil(t, canceled.CancelAt)
	assert.NotNil(t, canceled.CanceledAt)
	assert.Equal(t, pending.CurrentPeriodEnd, canceled.CurrentPeriodEnd)

	again, err := f.svc.Renew(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, canceled, again)
}

func TestService_Reactivate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Start(ctx, "t1", "basic")
	require.NoError(t, err)
	_, err = f.svc.Reactivate(ctx, "t1")
	assert.ErrorIs(t, err, subscription.ErrIllegalTransition)

	pending, err := f.svc.Cancel(ctx, "t1", subscription.CancelEndOfPeriod)
	require.NoError(t, err)

	active, err := f.svc.Reactivate(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, active.Status)
	assert.Nil(t, active.CancelAt)
	assert.Equal(t, pending.NextBillingDate, active.NextBillingDate)
}

func TestService_CancelImmediate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Start(ctx, "t1", "basic")
	require.NoError(t, err)

	canceled, err := f.svc.Cancel(ctx, "t1", subscription.CancelImmediate)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, canceled.Status)
	assert.Nil(t, canceled.NextBillingDate)
	require.NotNil(t, canceled.CanceledAt)
	assert.Equal(t, day0, *canceled.CanceledAt)

	_, err = f.svc.Cancel(ctx, "t1", subscription.CancelImmediate)
	var terr *subscription.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "cannot cancel a canceled subscription", terr.Reason)
}

func TestService_PastDueToggle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	start, err := f.svc.Start(ctx, "t1", "basic")
	require.NoError(t, err)

	f.clock.Set(start.CurrentPeriodEnd)
	pastDue, err := f.svc.MarkPastDue(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPastDue, pastDue.Status)
	assert.Equal(t, start.NextBillingDate, pastDue.NextBillingDate)

	again, err := f.svc.MarkPastDue(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPastDue, again.Status)

	_, err = f.svc.Renew(ctx, "t1")
	assert.ErrorIs(t, err, subscription.ErrIllegalTransition)

	active, err := f.svc.MarkActive(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, active.Status)

	renewed, err := f.svc.Renew(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, start.CurrentPeriodEnd, renewed.CurrentPeriodStart)
}

func TestService_ExpireTrialBeforeItEnds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Start(ctx, "t1", "trial")
	require.NoError(t, err)

	_, err = f.svc.ExpireTrial(ctx, "t1")
	var terr *subscription.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Reason, "trial runs until")

	_, err = f.svc.Start(ctx, "t2", "basic")
	require.NoError(t, err)
	_, err = f.svc.ExpireTrial(ctx, "t2")
	assert.ErrorIs(t, err, subscription.ErrIllegalTransition)
}

func TestService_AdjustPeriod(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	start, err := f.svc.Start(ctx, "t1", "basic")
	require.NoError(t, err)

	_, err = f.svc.AdjustPeriod(ctx, "t1", start.CurrentPeriodStart.Add(-time.Hour), time.Time{})
	require.ErrorIs(t, err, subscription.ErrIllegalTransition)

	newEnd := start.CurrentPeriodEnd.AddDate(0, 0, 7)
	adjusted, err := f.svc.AdjustPeriod(ctx, "t1", newEnd, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, newEnd, adjusted.CurrentPeriodEnd)
	assert.Equal(t, newEnd, *adjusted.NextBillingDate)

	_, err = f.svc.Cancel(ctx, "t1", subscription.CancelEndOfPeriod)
	require.NoError(t, err)

	later := newEnd.AddDate(0, 0, 3)
	billing := later.Add(-24 * time.Hour)
	moved, err := f.svc.AdjustPeriod(ctx, "t1", later, billing)
	require.NoError(t, err)
	assert.Equal(t, later, *moved.CancelAt)
	assert.Equal(t, billing, *moved.NextBillingDate)

	_, err = f.svc.AdjustPeriod(ctx, "t1", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, subscription.ErrInvalidInput)
}

func TestService_ChangePlan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Start(ctx, "t1", "basic")
	require.NoError(t, err)

	first, err := f.svc.ChangePlan(ctx, "t1", "business", subscription.ChangeReserve)
	require.NoError(t, err)
	assert.Equal(t, "business", first.PendingPlan)
	assert.Equal(t, int64(59000), *first.PendingAmount)

	second, err := f.svc.ChangePlan(ctx, "t1", "business_yearly", subscription.ChangeReserve)
	require.NoError(t, err)
	assert.Equal(t, "business_yearly", second.PendingPlan)
	assert.Equal(t, "basic", second.Plan)

	cleared, err := f.svc.ChangePlan(ctx, "t1", "basic", subscription.ChangeReserve)
	require.NoError(t, err)
	assert.Empty(t, cleared.PendingPlan)

	_, err = f.svc.ChangePlan(ctx, "t1", "business", subscription.ChangeReserve)
	require.NoError(t, err)
	now, err := f.svc.ChangePlan(ctx, "t1", "business", subscription.ChangeImmediate)
	require.NoError(t, err)
	assert.Equal(t, "business", now.Plan)
	assert.Equal(t, int64(59000), now.Amount)
	assert.Empty(t, now.PendingPlan)

	_, err = f.svc.ChangePlan(ctx, "t1", "trial", subscription.ChangeReserve)
	assert.ErrorIs(t, err, subscription.ErrIllegalTransition)

	_, err = f.svc.ChangePlan(ctx, "t1", "platinum", subscription.ChangeImmediate)
	assert.ErrorIs(t, err, subscription.ErrUnknownPlan)

	_, err = f.svc.ChangePlan(ctx, "t1", "basic", "later")
	assert.ErrorIs(t, err, subscription.ErrInvalidInput)
}

func TestService_ChangePlanToLivePlanKeepsPricePolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Start(ctx, "t1", "basic")
	require.NoError(t, err)
	_, err = f.svc.ApplyPricePolicy(ctx, "basic", pricing.Change{Policy: pricing.PolicyGrandfathered})
	require.NoError(t, err)
	_, err = f.svc.ChangePlan(ctx, "t1", "business", subscription.ChangeReserve)
	require.NoError(t, err)

	for _, mode := range []subscription.ChangeMode{subscription.ChangeImmediate, subscription.ChangeReserve} {
		got, err := f.svc.ChangePlan(ctx, "t1", "basic", mode)
		require.NoError(t, err, mode)
		assert.Equal(t, "basic", got.Plan)
		assert.Equal(t, pricing.PolicyGrandfathered, got.PricePolicy)
		assert.Equal(t, int64(29000), got.Amount)
		assert.Empty(t, got.PendingPlan)
		assert.Nil(t, got.PendingAmount)
	}
}

func TestService_SuspendResume(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Start(ctx, "t1", "trial")
	require.NoError(t, err)
	_, err = f.svc.Suspend(ctx, "t1")
	assert.ErrorIs(t, err, subscription.ErrIllegalTransition)

	_, err = f.svc.Start(ctx, "t2", "basic")
	require.NoError(t, err)
	suspended, err := f.svc.Suspend(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusSuspended, suspended.Status)

	_, err = f.svc.ChangePlan(ctx, "t2", "business", subscription.ChangeImmediate)
	assert.ErrorIs(t, err, subscription.ErrIllegalTransition)

	resumed, err := f.svc.Resume(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, resumed.Status)
}

func TestService_MarkDeleted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Start(ctx, "t1", "basic")
	require.NoError(t, err)

	deleted, err := f.svc.MarkDeleted(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusDeleted, deleted.Status)
	assert.Nil(t, deleted.NextBillingDate)

	_, err = f.svc.MarkDeleted(ctx, "t1")
	assert.ErrorIs(t, err, subscription.ErrIllegalTransition)

	restarted, err := f.svc.Start(ctx, "t1", "basic")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, restarted.Status)
}

func TestService_UnknownTenant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Renew(ctx, "ghost")
	assert.ErrorIs(t, err, subscription.ErrNotFound)
	_, err = f.svc.Get(ctx, "ghost")
	assert.ErrorIs(t, err, subscription.ErrNotFound)
	_, err = f.svc.Get(ctx, "")
	assert.ErrorIs(t, err, subscription.ErrInvalidInput)
	_, err = f.svc.Cancel(ctx, "ghost", "whenever")
	assert.ErrorIs(t, err, subscription.ErrInvalidInput)
	_, err = f.svc.Start(ctx, "ghost", "platinum")
	assert.ErrorIs(t, err, subscription.ErrUnknownPlan)
}

func TestService_StoreUnavailable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Start(ctx, "t1", "basic")
	assert.ErrorIs(t, err, subscription.ErrUnavailable)
}

func TestService_ConcurrentChangePlan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	for i := range 20 {
		tenant := fmt.Sprintf("t%d", i)
		_, err := f.svc.Start(ctx, tenant, "basic")
		require.NoError(t, err)

		var wg sync.WaitGroup
		for _, plan := range []string{"business", "business_yearly"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.svc.ChangePlan(ctx, tenant, plan, subscription.ChangeImmediate)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := f.svc.Get(ctx, tenant)
		require.NoError(t, err)
		switch got.Plan {
		case "business":
			assert.Equal(t, int64(59000), got.Amount)
		case "business_yearly":
			assert.Equal(t, int64(590000), got.Amount)
		default:
			t.Fatalf("unexpected plan %q", got.Plan)
		}
	}
}

func TestService_ApplyPricePolicyIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	for _, tenant := range []string{"a", "b", "c"} {
		_, err := f.svc.Start(ctx, tenant, "basic")
		require.NoError(t, err)
	}
	_, err := f.svc.Cancel(ctx, "c", subscription.CancelImmediate)
	require.NoError(t, err)

	grandfather := pricing.Change{Policy: pricing.PolicyGrandfathered}

	// grandfather only tenant a by moving b off the plan for a moment
	_, err = f.svc.ChangePlan(ctx, "b", "business", subscription.ChangeImmediate)
	require.NoError(t, err)
	res, err := f.svc.ApplyPricePolicy(ctx, "basic", grandfather)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 1, res.Updated)
	_, err = f.svc.ChangePlan(ctx, "b", "basic", subscription.ChangeImmediate)
	require.NoError(t, err)

	newPrice := int64(33000)
	change := pricing.Change{Policy: pricing.PolicyStandard, NewPlanPrice: &newPrice}

	first, err := f.svc.ApplyPricePolicy(ctx, "basic", change)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Matched)
	assert.Equal(t, 1, first.Updated)
	assert.Equal(t, []string{"b"}, first.Tenants)

	second, err := f.svc.ApplyPricePolicy(ctx, "basic", change)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 2, second.Skipped)

	a, err := f.svc.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, pricing.PolicyGrandfathered, a.PricePolicy)
	assert.Equal(t, int64(29000), a.Amount)

	b, err := f.svc.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(33000), b.Amount)

	price, err := f.svc.CurrentPrice(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, pricing.Money{Amount: 33000, Currency: "KRW"}, price)

	_, err = f.svc.ApplyPricePolicy(ctx, "platinum", change)
	assert.ErrorIs(t, err, subscription.ErrUnknownPlan)
}

func TestService_ProtectedPriceLapsesOnRenew(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	start, err := f.svc.Start(ctx, "t1", "basic")
	require.NoError(t, err)

	until := day0.AddDate(0, 0, 10)
	_, err = f.svc.ApplyPricePolicy(ctx, "basic", pricing.Change{Policy: pricing.PolicyProtectedUntil, ProtectedUntil: &until})
	require.NoError(t, err)
	newPrice := int64(35000)
	res, err := f.svc.ApplyPricePolicy(ctx, "basic", pricing.Change{Policy: pricing.PolicyStandard, NewPlanPrice: &newPrice})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)

	price, err := f.svc.CurrentPrice(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(29000), price.Amount)

	f.clock.Set(start.CurrentPeriodEnd)
	renewed, err := f.svc.Renew(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, pricing.PolicyStandard, renewed.PricePolicy)
	assert.Nil(t, renewed.PriceProtectedUntil)
	assert.Equal(t, int64(29000), renewed.Amount)
}
