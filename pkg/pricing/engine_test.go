package pricing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamooSoluto/payment-sub001/pkg/pricing"
)

type priceList map[string]int64

func (p priceList) ListPrice(plan string) (pricing.Money, bool) {
	amount, ok := p[plan]
	return pricing.Money{Amount: amount, Currency: "KRW"}, ok
}

var now = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func newEngine(prices priceList) *pricing.Engine {
	return pricing.NewEngine(prices, pricing.WithClock(func() time.Time { return now }))
}

func ptr[T any](v T) *T { return &v }

func TestEngine_PriceFor(t *testing.T) {
	t.Parallel()
	e := newEngine(priceList{"basic": 29000})

	tests := []struct {
		name    string
		subject pricing.Subject
		want    int64
	}{
		{"standard list price", pricing.Subject{Plan: "basic", Policy: pricing.PolicyStandard, Amount: 19000}, 29000},
		{"empty policy is standard", pricing.Subject{Plan: "basic", Amount: 19000}, 29000},
		{"standard override", pricing.Subject{Plan: "basic", Policy: pricing.PolicyStandard, Override: ptr(int64(25000))}, 25000},
		{"grandfathered", pricing.Subject{Plan: "basic", Policy: pricing.PolicyGrandfathered, Amount: 19000}, 19000},
		{"protected", pricing.Subject{
			Plan: "basic", Policy: pricing.PolicyProtectedUntil, Amount: 19000,
			ProtectedUntil: ptr(now.Add(time.Hour)),
		}, 19000},
		{"protection elapsed", pricing.Subject{
			Plan: "basic", Policy: pricing.PolicyProtectedUntil, Amount: 19000,
			ProtectedUntil: ptr(now),
		}, 29000},
		{"protection without date", pricing.Subject{Plan: "basic", Policy: pricing.PolicyProtectedUntil, Amount: 19000}, 29000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := e.PriceFor(tt.subject)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_PriceForErrors(t *testing.T) {
	t.Parallel()
	e := newEngine(priceList{})

	_, err := e.PriceFor(pricing.Subject{Plan: "gone", Policy: pricing.PolicyStandard})
	assert.ErrorIs(t, err, pricing.ErrUnknownPlan)

	_, err = e.PriceFor(pricing.Subject{Plan: "gone", Policy: "discounted"})
	assert.ErrorIs(t, err, pricing.ErrInvalidPolicy)
}

func TestEngine_ApplyStandardIsIdempotent(t *testing.T) {
	t.Parallel()
	e := newEngine(priceList{"basic": 29000})
	change := pricing.Change{Policy: pricing.PolicyStandard, NewPlanPrice: ptr(int64(33000))}

	subjects := []pricing.Subject{
		{Plan: "basic", Policy: pricing.PolicyStandard, Amount: 29000},
		{Plan: "basic", Policy: pricing.PolicyStandard, Amount: 29000, Override: ptr(int64(31000))},
		{Plan: "basic", Policy: pricing.PolicyProtectedUntil, Amount: 19000, ProtectedUntil: ptr(now.Add(-time.Hour))},
	}
	for _, s := range subjects {
		once, err := e.Apply(s, change)
		require.NoError(t, err)
		twice, err := e.Apply(once, change)
		require.NoError(t, err)

		assert.Equal(t, int64(33000), once.Amount)
		assert.Equal(t, once, twice)
		assert.Equal(t, pricing.PolicyStandard, twice.Policy)
		assert.Nil(t, twice.ProtectedUntil)
	}
}

func TestEngine_ApplyStandardPriceSkipsProtectedSubscribers(t *testing.T) {
	t.Parallel()
	e := newEngine(priceList{"basic": 29000})
	change := pricing.Change{Policy: pricing.PolicyStandard, NewPlanPrice: ptr(int64(33000))}

	grandfathered := pricing.Subject{Plan: "basic", Policy: pricing.PolicyGrandfathered, Amount: 19000}
	protected := pricing.Subject{
		Plan: "basic", Policy: pricing.PolicyProtectedUntil, Amount: 19000,
		ProtectedUntil: ptr(now.Add(24 * time.Hour)),
	}

	for _, s := range []pricing.Subject{grandfathered, protected} {
		assert.False(t, e.Applies(s, change))
		got, err := e.Apply(s, change)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestEngine_ApplyGrandfatheredCapturesCurrentPrice(t *testing.T) {
	t.Parallel()
	e := newEngine(priceList{"basic": 29000})
	change := pricing.Change{Policy: pricing.PolicyGrandfathered}

	s := pricing.Subject{Plan: "basic", Policy: pricing.PolicyStandard, Override: ptr(int64(25000))}
	once, err := e.Apply(s, change)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), once.Amount)
	assert.Nil(t, once.Override)

	twice, err := e.Apply(once, change)
	require.NoError(t, err)
	assert.Equal(t, once, twice)

	// list price moves, grandfathered amount does not
	e2 := newEngine(priceList{"basic": 99000})
	price, err := e2.PriceFor(twice)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), price)
}

func TestEngine_ApplyProtectedUntil(t *testing.T) {
	t.Parallel()
	e := newEngine(priceList{"basic": 29000})
	until := now.Add(30 * 24 * time.Hour)
	change := pricing.Change{Policy: pricing.PolicyProtectedUntil, ProtectedUntil: &until}

	once, err := e.Apply(pricing.Subject{Plan: "basic", Policy: pricing.PolicyStandard}, change)
	require.NoError(t, err)
	assert.Equal(t, int64(29000), once.Amount)
	require.NotNil(t, once.ProtectedUntil)
	assert.True(t, until.Equal(*once.ProtectedUntil))

	twice, err := e.Apply(once, change)
	require.NoError(t, err)
	assert.Equal(t, once.Amount, twice.Amount)
	assert.Equal(t, once.Policy, twice.Policy)

	_, err = e.Apply(once, pricing.Change{Policy: pricing.PolicyProtectedUntil, ProtectedUntil: ptr(now)})
	assert.ErrorIs(t, err, pricing.ErrInvalidChange)
}

func TestEngine_Normalize(t *testing.T) {
	t.Parallel()
	e := newEngine(priceList{"basic": 29000})

	elapsed := pricing.Subject{
		Plan: "basic", Policy: pricing.PolicyProtectedUntil, Amount: 19000,
		ProtectedUntil: ptr(now.Add(-time.Minute)),
	}
	got, err := e.Normalize(elapsed)
	require.NoError(t, err)
	assert.Equal(t, pricing.PolicyStandard, got.Policy)
	assert.Nil(t, got.ProtectedUntil)
	assert.Equal(t, int64(29000), got.Amount)

	live := pricing.Subject{Plan: "basic", Policy: pricing.PolicyGrandfathered, Amount: 19000}
	got, err = e.Normalize(live)
	require.NoError(t, err)
	assert.Equal(t, live, got)
}

func TestEngine_InvalidChanges(t *testing.T) {
	t.Parallel()
	e := newEngine(priceList{"basic": 29000})
	s := pricing.Subject{Plan: "basic", Policy: pricing.PolicyStandard}

	for _, c := range []pricing.Change{
		{Policy: "discount"},
		{Policy: pricing.PolicyGrandfathered, NewPlanPrice: ptr(int64(1))},
		{Policy: pricing.PolicyStandard, NewPlanPrice: ptr(int64(-1))},
		{Policy: pricing.PolicyProtectedUntil},
	} {
		_, err := e.Apply(s, c)
		assert.ErrorIs(t, err, pricing.ErrInvalidChange)
	}
}

func TestMoney_String(t *testing.T) {
	t.Parallel()

	usd := pricing.Money{Amount: 1999, Currency: "USD"}.String()
	assert.Contains(t, usd, "$")
	assert.Contains(t, usd, "19.99")

	krw := pricing.Money{Amount: 29000, Currency: "KRW"}.String()
	assert.Contains(t, krw, "29,000")

	assert.Equal(t, "42 XYZW", pricing.Money{Amount: 42, Currency: "XYZW"}.String())
}
