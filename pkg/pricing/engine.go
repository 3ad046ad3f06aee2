package pricing

import (
	"fmt"
	"time"
)

// Policy decides what a subscriber pays relative to the list price.
type Policy string

const (
	PolicyGrandfathered  Policy = "grandfathered"
	PolicyProtectedUntil Policy = "protected_until"
	PolicyStandard       Policy = "standard"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == PolicyGrandfathered || p == PolicyProtectedUntil || p == PolicyStandard
}

// PriceList resolves a plan's current list price.
type PriceList interface {
	ListPrice(plan string) (Money, bool)
}

// Subject is the pricing view of one subscription.
type Subject struct {
	Plan   string
	Policy Policy
	// Amount is the captured amount for grandfathered and protected_until,
	// and the last computed charge otherwise.
	Amount         int64
	ProtectedUntil *time.Time
	// Override replaces the list price for standard pricing.
	Override *int64
}

// Change is a bulk policy change for the subscribers of one plan.
type Change struct {
	Policy Policy
	// NewPlanPrice sets the standard price override. Standard only.
	NewPlanPrice *int64
	// ProtectedUntil is required for protected_until.
	ProtectedUntil *time.Time
}

// Engine prices subscriptions against a PriceList.
type Engine struct {
	prices PriceList
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used to check price protection.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine returns an Engine over prices. It panics when prices is nil.
func NewEngine(prices PriceList, opts ...Option) *Engine {
	if prices == nil {
		panic("pricing: nil price list")
	}
	e := &Engine{prices: prices, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EffectivePolicy is s.Policy with an elapsed protection read as standard.
// An empty policy is standard.
func (e *Engine) EffectivePolicy(s Subject) Policy {
	switch s.Policy {
	case "":
		return PolicyStandard
	case PolicyProtectedUntil:
		if s.ProtectedUntil == nil || !e.now().Before(*s.ProtectedUntil) {
			return PolicyStandard
		}
	}
	return s.Policy
}

// PriceFor returns the amount s is charged now.
func (e *Engine) PriceFor(s Subject) (int64, error) {
	if s.Policy != "" && !s.Policy.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPolicy, s.Policy)
	}
	switch e.EffectivePolicy(s) {
	case PolicyGrandfathered, PolicyProtectedUntil:
		return s.Amount, nil
	default:
		return e.standard(s)
	}
}

func (e *Engine) standard(s Subject) (int64, error) {
	if s.Override != nil {
		return *s.Override, nil
	}
	m, ok := e.prices.ListPrice(s.Plan)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPlan, s.Plan)
	}
	return m.Amount, nil
}

// Normalize rewrites an elapsed protected_until subject as standard and
// refreshes Amount. Other subjects only get Amount refreshed.
func (e *Engine) Normalize(s Subject) (Subject, error) {
	amount, err := e.PriceFor(s)
	if err != nil {
		return s, err
	}
	if e.EffectivePolicy(s) == PolicyStandard {
		s.Policy = PolicyStandard
		s.ProtectedUntil = nil
	}
	s.Amount = amount
	return s, nil
}

// Applies reports whether c touches s. A standard change carrying a new plan
// price only reaches subscribers already priced by the standard rule, so
// grandfathered and still-protected subscribers keep their amount. Every
// other change applies to all subscribers of the plan.
func (e *Engine) Applies(s Subject, c Change) bool {
	if c.Policy == PolicyStandard && c.NewPlanPrice != nil {
		return e.EffectivePolicy(s) == PolicyStandard
	}
	return true
}

// Apply returns s under c. Applying the same change to its own result is a
// no-op.
func (e *Engine) Apply(s Subject, c Change) (Subject, error) {
	if err := e.validate(c); err != nil {
		return s, err
	}
	if !e.Applies(s, c) {
		return s, nil
	}

	switch c.Policy {
	case PolicyGrandfathered:
		amount, err := e.PriceFor(s)
		if err != nil {
			return s, err
		}
		s.Policy = PolicyGrandfathered
		s.Amount = amount
		s.ProtectedUntil = nil
		s.Override = nil

	case PolicyProtectedUntil:
		amount, err := e.PriceFor(s)
		if err != nil {
			return s, err
		}
		until := *c.ProtectedUntil
		s.Policy = PolicyProtectedUntil
		s.Amount = amount
		s.ProtectedUntil = &until
		s.Override = nil

	case PolicyStandard:
		s.Policy = PolicyStandard
		s.ProtectedUntil = nil
		s.Override = nil
		if c.NewPlanPrice != nil {
			price := *c.NewPlanPrice
			s.Override = &price
		}
		amount, err := e.standard(s)
		if err != nil {
			return s, err
		}
		s.Amount = amount
	}
	return s, nil
}

func (e *Engine) validate(c Change) error {
	if !c.Policy.Valid() {
		return fmt.Errorf("%w: policy %q", ErrInvalidChange, c.Policy)
	}
	if c.NewPlanPrice != nil && (c.Policy != PolicyStandard || *c.NewPlanPrice < 0) {
		return fmt.Errorf("%w: new plan price needs the standard policy and a non-negative amount", ErrInvalidChange)
	}
	if c.Policy == PolicyProtectedUntil {
		if c.ProtectedUntil == nil || !c.ProtectedUntil.After(e.now()) {
			return fmt.Errorf("%w: protected_until needs a future date", ErrInvalidChange)
		}
	}
	return nil
}
