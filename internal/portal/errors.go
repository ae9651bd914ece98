package portal

import "errors"

var (
	// ErrAuthExpired indicates the portal session or anti-forgery token was
	// rejected. Fatal for the run: the operator must re-establish
	// credentials before anything else can succeed.
	ErrAuthExpired = errors.New("portal session expired")

	// ErrPortalRejected indicates a payload-level validation error returned
	// by the portal. Non-retryable for that claim.
	ErrPortalRejected = errors.New("portal rejected claim")

	// ErrDailyLimit indicates the portal refused the claim because the
	// card's daily limit for the transaction date is exhausted. Retryable
	// with an earlier transaction date.
	ErrDailyLimit = errors.New("portal daily limit reached")

	// ErrTransport indicates a network failure or server error. Retryable
	// within the engine's attempt budget.
	ErrTransport = errors.New("portal transport error")
)
