package subscription_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamooSoluto/payment-sub001/pkg/pricing"
	"github.com/yamooSoluto/payment-sub001/pkg/subscription"
)

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()
	c := subscription.DefaultCatalog()

	trial, ok := c.Plan("trial")
	require.True(t, ok)
	assert.False(t, trial.Billable())
	assert.Equal(t, 14, trial.TrialDays)

	price, ok := c.ListPrice("basic")
	require.True(t, ok)
	assert.Equal(t, pricing.Money{Amount: 29000, Currency: "KRW"}, price)

	_, ok = c.ListPrice("platinum")
	assert.False(t, ok)

	ids := make([]string, 0)
	for _, p := range c.Plans() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"basic", "business", "business_yearly", "trial"}, ids)
}

func TestLoadCatalog(t *testing.T) {
	t.Parallel()

	c, err := subscription.LoadCatalog(strings.NewReader(`
currency: usd
plans:
  - id: pro
    name: Pro
    price: 1900
    interval: monthly
    trialDays: 7
  - id: eu
    price: 1700
    currency: eur
    interval: yearly
`))
	require.NoError(t, err)

	pro, ok := c.Plan("pro")
	require.True(t, ok)
	assert.Equal(t, "USD", pro.Currency)
	assert.True(t, pro.Billable())

	eu, _ := c.Plan("eu")
	assert.Equal(t, "EUR", eu.Currency)
}

func TestLoadCatalog_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"empty":        `plans: []`,
		"unknown key":  "plans:\n  - id: a\n    cost: 1\n",
		"no cadence":   "currency: usd\nplans:\n  - id: free\n    interval: none\n",
		"bad interval": "currency: usd\nplans:\n  - id: a\n    interval: weekly\n",
		"negative":     "currency: usd\nplans:\n  - id: a\n    price: -1\n    interval: monthly\n",
		"duplicate":    "currency: usd\nplans:\n  - id: a\n    interval: monthly\n  - id: a\n    interval: yearly\n",
		"no currency":  "plans:\n  - id: a\n    interval: monthly\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := subscription.LoadCatalog(strings.NewReader(doc))
			assert.ErrorIs(t, err, subscription.ErrInvalidCatalog)
		})
	}
}

func TestPlan_Periods(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, start.AddDate(0, 1, 0), subscription.Plan{Interval: subscription.IntervalMonthly}.PeriodEnd(start))
	assert.Equal(t, start.AddDate(1, 0, 0), subscription.Plan{Interval: subscription.IntervalYearly}.PeriodEnd(start))
	assert.Equal(t, start, subscription.Plan{Interval: subscription.IntervalNone}.PeriodEnd(start))
	assert.Equal(t, start.AddDate(0, 0, 14), subscription.Plan{TrialDays: 14}.TrialEnd(start))
}

func TestSubscription_Validate(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	valid := func() *subscription.Subscription {
		return &subscription.Subscription{
			TenantID:           "t1",
			Plan:               "basic",
			Status:             subscription.StatusActive,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   now.AddDate(0, 1, 0),
			PricePolicy:        pricing.PolicyStandard,
		}
	}
	require.NoError(t, valid().Validate())

	amount := int64(1)
	mutations := map[string]func(*subscription.Subscription){
		"no tenant":        func(s *subscription.Subscription) { s.TenantID = "" },
		"bad status":       func(s *subscription.Subscription) { s.Status = "paused" },
		"bad policy":       func(s *subscription.Subscription) { s.PricePolicy = "free" },
		"inverted period":  func(s *subscription.Subscription) { s.CurrentPeriodEnd = now.Add(-time.Hour) },
		"half pending":     func(s *subscription.Subscription) { s.PendingAmount = &amount },
		"cancelAt":         func(s *subscription.Subscription) { s.CancelAt = &now },
		"protected no end": func(s *subscription.Subscription) { s.PricePolicy = pricing.PolicyProtectedUntil },
		"pending_cancel":   func(s *subscription.Subscription) { s.Status = subscription.StatusPendingCancel },
	}
	for name, mutate := range mutations {
		s := valid()
		mutate(s)
		assert.ErrorIs(t, s.Validate(), subscription.ErrInvalidRecord, name)
	}
}
