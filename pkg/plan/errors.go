package plan

import "errors"

var (
	ErrPlanNotFound             = errors.New("plan not found")
	ErrNoPlans                  = errors.New("catalog contains no plans")
	ErrInvalidPlanConfiguration = errors.New("invalid plan configuration")
	ErrFailedToLoadPlans        = errors.New("failed to load plan catalog")
	ErrUnsupportedFormat        = errors.New("unsupported catalog file format")
)
