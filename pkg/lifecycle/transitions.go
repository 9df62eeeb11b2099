package lifecycle

import "slices"

// Transition represents a state change in the subscription lifecycle.
type Transition struct {
	From Status
	To   Status
}

// validTransitions defines every allowed state change. Events whose target
// transition is absent from this table are applied as no-ops rather than
// errors, since out-of-order delivery can legitimately produce them.
var validTransitions = map[Transition]bool{
	{StatusPendingPayment, StatusProvisioning}: true, // payment confirmed or trial granted
	{StatusProvisioning, StatusActive}:         true, // panel create succeeded
	{StatusProvisioning, StatusCancelled}:      true, // permanent panel rejection or user cancel
	{StatusActive, StatusActive}:               true, // renewal extends the period in place
	{StatusActive, StatusExpired}:              true, // expiry tick past endAt
	{StatusActive, StatusCancelled}:            true,
	{StatusExpired, StatusProvisioning}:        true, // renewal reactivates the credential
	{StatusExpired, StatusCancelled}:           true,
	{StatusSuspended, StatusProvisioning}:      true, // renewal reactivates the credential
	{StatusSuspended, StatusCancelled}:         true,
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to Status) bool {
	return validTransitions[Transition{from, to}]
}

// TransitionsFrom returns all valid target statuses from the given status,
// sorted for deterministic callers and tests.
func TransitionsFrom(from Status) []Status {
	targets := make([]Status, 0)
	for t := range validTransitions {
		if t.From == from {
			targets = append(targets, t.To)
		}
	}
	slices.Sort(targets)
	return targets
}
