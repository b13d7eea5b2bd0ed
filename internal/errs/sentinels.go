// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a compare-and-set write lost against a concurrent writer.
	ErrConflict = errors.New("conflict")

	// ErrNotAuthenticated indicates a missing or expired session.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrRateLimitExceeded indicates the weekly point quota would be exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInsufficientBalance indicates no free or purchased tokens are left.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., replayed purchase).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates client-side input or file checks failed.
	ErrValidation = errors.New("validation failed")

	// ErrNetwork indicates a transport failure talking to a remote service.
	ErrNetwork = errors.New("network error")

	// ErrDatabase indicates the remote database rejected or failed a statement.
	ErrDatabase = errors.New("database error")

	// ErrServer indicates the remote API returned a structured error payload.
	ErrServer = errors.New("server error")

	// ErrVerification indicates a purchase record failed signature or chain checks.
	ErrVerification = errors.New("verification failed")

	// ErrPurchaseCancelled indicates the user backed out of a purchase flow.
	ErrPurchaseCancelled = errors.New("purchase cancelled")
)
