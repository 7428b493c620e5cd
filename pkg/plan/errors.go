package plan

import "errors"

var (
	ErrInvalidPlan              = errors.New("invalid plan type")
	ErrInvalidPlanConfiguration = errors.New("invalid plan configuration")
	ErrFailedToLoadPlans        = errors.New("failed to load plans")
)
