package pricing

import "errors"

var (
	ErrUnknownPlan   = errors.New("pricing.unknown_plan")
	ErrInvalidPolicy = errors.New("pricing.invalid_policy")
	ErrInvalidChange = errors.New("pricing.invalid_change")
)
