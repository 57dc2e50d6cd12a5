package ports

import "errors"

var (
	// ErrNotFound is returned when the requested order or catalog entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated is returned when the caller carries no valid identity.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrUnauthorized is returned when the caller is known but not allowed to act.
	ErrUnauthorized = errors.New("not authorized")
	// ErrInvalidAmount is returned when a catalog price cannot be charged.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrPurchaseRequired is returned when a download is attempted without a completed order.
	ErrPurchaseRequired = errors.New("purchase required")
	// ErrPaymentNotCompleted is returned by confirmation when the processor has not settled the session.
	ErrPaymentNotCompleted = errors.New("payment not completed")
	// ErrUpstream is returned when the payment processor or the media host cannot be reached or refuses a call.
	ErrUpstream = errors.New("upstream service unavailable")
	// ErrSignatureInvalid is returned when a webhook payload fails verification.
	ErrSignatureInvalid = errors.New("invalid webhook signature")
	// ErrInconsistent is returned when a checkout session exists without a matching order.
	ErrInconsistent = errors.New("checkout session has no matching order")
	// ErrStaleStatus is returned by a guarded status write when the order moved on concurrently.
	ErrStaleStatus = errors.New("order status changed concurrently")
	// ErrDuplicateSession is returned when an order already exists for a checkout session.
	ErrDuplicateSession = errors.New("order already exists for checkout session")
	// ErrRequestInFlight is returned when an idempotency key is held by a request that has not finished.
	ErrRequestInFlight = errors.New("a request with this idempotency key is still in progress")
)
