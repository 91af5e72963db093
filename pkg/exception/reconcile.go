package exception

import "errors"

var (
	ErrMissingPrice     = errors.New("reconcile: missing price")
	ErrManualReview     = errors.New("reconcile: manual review required")
	ErrNegativeQuantity = errors.New("reconcile: negative quantity")
	ErrNoOpenTrade      = errors.New("reconcile: no open trade")
)
