// internal/domain/errors.go
package domain

import "errors"

var (
	// ErrAuth means the bearer token exchange with the provider failed.
	// Surfaced to the initiating caller; never retried automatically.
	ErrAuth = errors.New("mpesa authorization failed")

	// ErrOrderNotFound means a callback referenced an order this system
	// cannot resolve. Webhook handlers acknowledge and drop the callback.
	ErrOrderNotFound = errors.New("order not found")

	// ErrSignatureMismatch means the reconcile callback's sign parameter
	// did not match the tenant's configured signature. Rejected silently.
	ErrSignatureMismatch = errors.New("callback signature mismatch")

	// ErrTenantNotFound means no credential bundle exists for a tenant id.
	ErrTenantNotFound = errors.New("tenant not found")
)
