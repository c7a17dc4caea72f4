package payments

import "errors"

var (
	ErrUnknownGateway   = errors.New("unknown payment gateway")
	ErrMissingConfig    = errors.New("missing gateway configuration")
	ErrNothingToConfirm = errors.New("no payment token or intent to confirm")

	// ErrOrderSettled rejects a confirmation attempt once the order's
	// payment state is terminal; a resubmit must not charge again.
	ErrOrderSettled = errors.New("order payment already settled")

	// ErrGatewayTimeout marks an ambiguous outbound call. The order stays
	// pending until reconciliation; a timeout is never success.
	ErrGatewayTimeout = errors.New("gateway timeout")

	// ErrStaleNotification marks an out-of-order async update that was
	// detected and dropped without a state change.
	ErrStaleNotification = errors.New("stale notification")
)
