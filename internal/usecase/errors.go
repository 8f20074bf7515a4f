package usecase

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// Dispatch pipeline taxonomy.
var (
	// ErrQuotaExceeded rejects an enqueue when the account's remaining call
	// allowance is exhausted.
	ErrQuotaExceeded = errors.New("call quota exceeded")

	// ErrProviderRejected marks a validation failure from a provider; the
	// call is never retried.
	ErrProviderRejected = errors.New("provider rejected call")

	// ErrProviderUnavailable marks a network/timeout/5xx failure from a
	// provider; the call is retried with backoff.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrNoProviderAvailable signals transient capacity exhaustion. Jobs stay
	// pending and are retried on the next tick; this is backpressure, not a
	// failure state.
	ErrNoProviderAvailable = errors.New("no provider available")

	// ErrUnknownCorrelation marks an inbound event that matches no job.
	ErrUnknownCorrelation = errors.New("unknown correlation id")
)
