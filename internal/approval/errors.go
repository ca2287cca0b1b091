package approval

import "errors"

// Redemption errors. Handlers map all three to client-facing failures; the
// distinction matters for logging and metrics.
var (
	ErrTokenInvalid     = errors.New("approval token invalid")
	ErrTokenAlreadyUsed = errors.New("approval token already used")
	ErrTokenExpired     = errors.New("approval token expired")
)
