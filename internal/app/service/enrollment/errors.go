package enrollment

import "errors"

var (
	// ErrNotFound means the referenced purchasable does not exist or is
	// not active. Surfaced to the caller; never retried.
	ErrNotFound = errors.New("purchasable not found")
	// ErrConfiguration means a required credential is missing for this
	// deployment. Must alert operators, not be silently retried.
	ErrConfiguration = errors.New("gateway configuration missing")
	// ErrGatewayUnavailable means the payment-request call failed at the
	// transport level. The whole initiate call may be retried; each retry
	// creates a fresh enrollment.
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	// ErrGatewayRejected means the gateway refused to open the payment
	// attempt. The enrollment stays pending and can be retried.
	ErrGatewayRejected = errors.New("gateway rejected payment request")
	// ErrInvalidDecision means the manual decision cannot be applied to
	// this enrollment.
	ErrInvalidDecision = errors.New("invalid manual decision")
	// ErrInvalidRequest covers missing buyer fields or amount violations.
	ErrInvalidRequest = errors.New("invalid enrollment request")
)
