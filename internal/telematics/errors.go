package telematics

import "errors"

var (
	// ErrAuthExpired indicates the access token was rejected. The caller
	// must refresh credentials and may retry once.
	ErrAuthExpired = errors.New("telematics access token rejected")

	// ErrUpstreamUnavailable indicates the telematics API is unreachable
	// or returned a non-success status.
	ErrUpstreamUnavailable = errors.New("telematics service unavailable")
)
