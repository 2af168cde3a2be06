package tracking

import "errors"

var (
	ErrNilArgument      = errors.New("required argument is nil")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrServerNotFound   = errors.New("tracking server not found")
	// ErrTracking reports a tracking server reply that breaks the deploy protocol.
	ErrTracking = errors.New("tracking failed")
)
