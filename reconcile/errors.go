package reconcile

import "errors"

// Sentinel errors for the reconciliation core. Controllers map these onto
// HTTP statuses; the webhook handler additionally acknowledges anomalies
// with a 200 so the gateway stops redelivering.
var (
	// ErrValidation marks missing or malformed caller input.
	ErrValidation = errors.New("validation failed")

	// ErrSignatureInvalid marks a webhook whose signature does not match
	// the raw request body. Security relevant; always logged.
	ErrSignatureInvalid = errors.New("signature verification failed")

	// ErrOrderNotFound marks a verification referencing an order the store
	// does not know. Verification never creates orders.
	ErrOrderNotFound = errors.New("order not found")

	// ErrConflictingPayment marks a paid order receiving a confirmation
	// carrying a different payment id. Data-integrity anomaly.
	ErrConflictingPayment = errors.New("conflicting payment id")

	// ErrInvalidTransition marks a state change the order's current status
	// does not permit, e.g. a refund on an order that was never paid.
	ErrInvalidTransition = errors.New("invalid order state transition")

	// ErrGateway marks an upstream payment-gateway failure. No order state
	// is mutated when this is returned.
	ErrGateway = errors.New("payment gateway error")

	// ErrStore marks a persistence failure. Transitions are guarded
	// single-row updates, so a retry after ErrStore is safe.
	ErrStore = errors.New("order store error")
)
