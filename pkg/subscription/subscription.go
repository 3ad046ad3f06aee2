package subscription

import (
	"fmt"
	"time"

	"github.com/yamooSoluto/payment-sub001/pkg/pricing"
)

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusNone          Status = "none"
	StatusTrialing      Status = "trialing"
	StatusActive        Status = "active"
	StatusPastDue       Status = "past_due"
	StatusPendingCancel Status = "pending_cancel"
	StatusCanceled      Status = "canceled"
	StatusExpired       Status = "expired"
	StatusSuspended     Status = "suspended"
	StatusDeleted       Status = "deleted"
)

// Valid reports whether s is a stored status. StatusNone never is.
func (s Status) Valid() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusPastDue, StatusPendingCancel,
		StatusCanceled, StatusExpired, StatusSuspended, StatusDeleted:
		return true
	}
	return false
}

// Terminal reports whether s ends the subscription. start is legal again
// from a terminal status.
func (s Status) Terminal() bool {
	return s == StatusNone || s == StatusCanceled || s == StatusExpired || s == StatusDeleted
}

// Subscription is the canonical record, keyed by tenant.
type Subscription struct {
	TenantID string `json:"tenantId"`
	Plan     string `json:"plan"`
	Status   Status `json:"status"`

	CurrentPeriodStart time.Time  `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time  `json:"currentPeriodEnd"`
	NextBillingDate    *time.Time `json:"nextBillingDate,omitempty"`

	PricePolicy         pricing.Policy `json:"pricePolicy"`
	PriceProtectedUntil *time.Time     `json:"priceProtectedUntil,omitempty"`
	PriceOverride       *int64         `json:"priceOverride,omitempty"`
	Amount              int64          `json:"amount"`
	Currency            string         `json:"currency"`

	PendingPlan   string `json:"pendingPlan,omitempty"`
	PendingAmount *int64 `json:"pendingAmount,omitempty"`

	CancelAt   *time.Time `json:"cancelAt,omitempty"`
	CanceledAt *time.Time `json:"canceledAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate is run on every store read and write.
func (s *Subscription) Validate() error {
	switch {
	case s.TenantID == "":
		return fmt.Errorf("%w: missing tenant id", ErrInvalidRecord)
	case s.Plan == "":
		return fmt.Errorf("%w: missing plan", ErrInvalidRecord)
	case !s.Status.Valid():
		return fmt.Errorf("%w: status %q", ErrInvalidRecord, s.Status)
	case !s.PricePolicy.Valid():
		return fmt.Errorf("%w: price policy %q", ErrInvalidRecord, s.PricePolicy)
	case s.CurrentPeriodEnd.Before(s.CurrentPeriodStart):
		return fmt.Errorf("%w: period ends before it starts", ErrInvalidRecord)
	case (s.PendingPlan == "") != (s.PendingAmount == nil):
		return fmt.Errorf("%w: pending plan and amount must be set together", ErrInvalidRecord)
	case (s.Status == StatusPendingCancel) != (s.CancelAt != nil):
		return fmt.Errorf("%w: cancelAt is only set while pending_cancel", ErrInvalidRecord)
	case (s.PricePolicy == pricing.PolicyProtectedUntil) != (s.PriceProtectedUntil != nil):
		return fmt.Errorf("%w: protected_until needs its date", ErrInvalidRecord)
	}
	return nil
}

// Live reports whether the record holds a running subscription.
func (s *Subscription) Live() bool {
	return !s.Status.Terminal()
}

func (s *Subscription) clone() *Subscription {
	c := *s
	c.NextBillingDate = clonePtr(s.NextBillingDate)
	c.PriceProtectedUntil = clonePtr(s.PriceProtectedUntil)
	c.PriceOverride = clonePtr(s.PriceOverride)
	c.PendingAmount = clonePtr(s.PendingAmount)
	c.CancelAt = clonePtr(s.CancelAt)
	c.CanceledAt = clonePtr(s.CanceledAt)
	return &c
}

func (s *Subscription) pricingSubject() pricing.Subject {
	return pricing.Subject{
		Plan:           s.Plan,
		Policy:         s.PricePolicy,
		Amount:         s.Amount,
		ProtectedUntil: s.PriceProtectedUntil,
		Override:       s.PriceOverride,
	}
}

func (s *Subscription) setPricing(p pricing.Subject) {
	s.PricePolicy = p.Policy
	s.Amount = p.Amount
	s.PriceProtectedUntil = p.ProtectedUntil
	s.PriceOverride = p.Override
}

// setStandardPrice puts the record on the standard policy at amount.
func (s *Subscription) setStandardPrice(amount int64, currency string) {
	s.PricePolicy = pricing.PolicyStandard
	s.PriceProtectedUntil = nil
	s.PriceOverride = nil
	s.Amount = amount
	s.Currency = currency
}

func (s *Subscription) clearPending() {
	s.PendingPlan = ""
	s.PendingAmount = nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
