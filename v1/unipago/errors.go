package unipago

import "errors"

var (
	// ErrUpstreamAuth means the credential exchange did not yield a token,
	// or the service rejected the token it issued
	ErrUpstreamAuth = errors.New("upstream authentication failed")

	// ErrUpstreamUnavailable covers transport failures and answers that are
	// neither a normalized response nor a recognizable business error
	ErrUpstreamUnavailable = errors.New("upstream authorization service unavailable")

	// ErrInvalidVoidRequest means a code could not be sent as a number
	ErrInvalidVoidRequest = errors.New("invalid void request")
)
