package admin

import "errors"

var (
	ErrInvalidSubscriptionID = errors.New("invalid subscription id")
	ErrInvalidStatus         = errors.New("invalid status filter")
	ErrMissingFilter         = errors.New("owner_id or status filter is required")
	ErrNotProvisioned        = errors.New("subscription has no provisioned credential")
)
