package tenantsync

import (
	"time"

	"github.com/yamooSoluto/payment-sub001/pkg/subscription"
)

// Field names a mirrored attribute.
type Field string

const (
	FieldPlan             Field = "plan"
	FieldStatus           Field = "status"
	FieldCurrentPeriodEnd Field = "currentPeriodEnd"
	FieldNextBillingDate  Field = "nextBillingDate"
	FieldPendingPlan      Field = "pendingPlan"
	FieldCancelAt         Field = "cancelAt"
	FieldAmount           Field = "amount"
)

// View is a partial subscription summary. Nil fields are left untouched in
// the mirror; fields listed in Clear are removed from it.
type View struct {
	Plan             *string    `json:"plan,omitempty"`
	Status           *string    `json:"status,omitempty"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`
	NextBillingDate  *time.Time `json:"nextBillingDate,omitempty"`
	PendingPlan      *string    `json:"pendingPlan,omitempty"`
	CancelAt         *time.Time `json:"cancelAt,omitempty"`
	Amount           *int64     `json:"amount,omitempty"`
	Clear            []Field    `json:"clear,omitempty"`

	// SourceUpdatedAt is the subscription record's UpdatedAt. The mirror
	// ignores views older than the one it already holds.
	SourceUpdatedAt time.Time `json:"sourceUpdatedAt"`
}

// Empty reports whether v would change nothing.
func (v View) Empty() bool {
	return v.Plan == nil && v.Status == nil && v.CurrentPeriodEnd == nil &&
		v.NextBillingDate == nil && v.PendingPlan == nil && v.CancelAt == nil &&
		v.Amount == nil && len(v.Clear) == 0
}

// ViewOf returns the full mirrored view of sub. Optional attributes that are
// unset on the record are cleared in the mirror.
func ViewOf(sub *subscription.Subscription) View {
	plan := sub.Plan
	status := string(sub.Status)
	periodEnd := sub.CurrentPeriodEnd
	amount := sub.Amount
	v := View{
		Plan:             &plan,
		Status:           &status,
		CurrentPeriodEnd: &periodEnd,
		Amount:           &amount,
		SourceUpdatedAt:  sub.UpdatedAt,
	}
	if sub.NextBillingDate != nil {
		t := *sub.NextBillingDate
		v.NextBillingDate = &t
	} else {
		v.Clear = append(v.Clear, FieldNextBillingDate)
	}
	if sub.PendingPlan != "" {
		p := sub.PendingPlan
		v.PendingPlan = &p
	} else {
		v.Clear = append(v.Clear, FieldPendingPlan)
	}
	if sub.CancelAt != nil {
		t := *sub.CancelAt
		v.CancelAt = &t
	} else {
		v.Clear = append(v.Clear, FieldCancelAt)
	}
	return v
}

// Summary is the mirror as stored on the tenant document.
type Summary struct {
	Plan             string     `json:"plan,omitempty"`
	Status           string     `json:"status,omitempty"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`
	NextBillingDate  *time.Time `json:"nextBillingDate,omitempty"`
	PendingPlan      string     `json:"pendingPlan,omitempty"`
	CancelAt         *time.Time `json:"cancelAt,omitempty"`
	Amount           *int64     `json:"amount,omitempty"`
	SourceUpdatedAt  time.Time  `json:"sourceUpdatedAt"`
}

// merge overwrites the supplied fields of s with those of v.
func (s *Summary) merge(v View) {
	for _, f := range v.Clear {
		switch f {
		case FieldPlan:
			s.Plan = ""
		case FieldStatus:
			s.Status = ""
		case FieldCurrentPeriodEnd:
			s.CurrentPeriodEnd = nil
		case FieldNextBillingDate:
			s.NextBillingDate = nil
		case FieldPendingPlan:
			s.PendingPlan = ""
		case FieldCancelAt:
			s.CancelAt = nil
		case FieldAmount:
			s.Amount = nil
		}
	}
	if v.Plan != nil {
		s.Plan = *v.Plan
	}
	if v.Status != nil {
		s.Status = *v.Status
	}
	if v.CurrentPeriodEnd != nil {
		t := v.CurrentPeriodEnd.UTC()
		s.CurrentPeriodEnd = &t
	}
	if v.NextBillingDate != nil {
		t := v.NextBillingDate.UTC()
		s.NextBillingDate = &t
	}
	if v.PendingPlan != nil {
		s.PendingPlan = *v.PendingPlan
	}
	if v.CancelAt != nil {
		t := v.CancelAt.UTC()
		s.CancelAt = &t
	}
	if v.Amount != nil {
		a := *v.Amount
		s.Amount = &a
	}
	if !v.SourceUpdatedAt.IsZero() {
		s.SourceUpdatedAt = v.SourceUpdatedAt.UTC()
	}
}
