package relay

import "errors"

// ErrInvalidRequest is returned when a caller omits a required identifier.
// It maps to a 4xx at the HTTP boundary; nothing behind it is retried.
var ErrInvalidRequest = errors.New("invalid request")
