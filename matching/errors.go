package matching

import "errors"

var (
	// ErrCapacityExceeded rejects an assignment that would over-consume a
	// purchase line. The ledger is left unchanged.
	ErrCapacityExceeded = errors.New("purchase has no remaining quantity")

	// ErrAlreadyAssigned is returned for strict creates on an asset that
	// already has an active assignment.
	ErrAlreadyAssigned = errors.New("asset is already assigned")

	// ErrUnknownPurchase is returned when the purchase id is not part of the
	// loaded capacity set.
	ErrUnknownPurchase = errors.New("unknown purchase id")
)
