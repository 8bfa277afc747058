package verification

import "errors"

var (
	// ErrNotFound means the enrollment does not exist.
	ErrNotFound = errors.New("enrollment not found")
	// ErrTamper means the claimed authority does not match the stored one.
	// The enrollment is left untouched and the mismatch is logged loudly.
	ErrTamper = errors.New("authority mismatch")
	// ErrTransientGateway means the gateway answer was ambiguous (timeout,
	// transport failure, undecodable body). Not a final failure; the sweeper
	// retries within the freshness window.
	ErrTransientGateway = errors.New("transient gateway error")
)
