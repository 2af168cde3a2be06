package featureservice

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication is returned when the server rejects the credentials.
	ErrAuthentication = errors.New("tracking server authentication failed")
	// ErrCommunication is returned when the server cannot be reached.
	ErrCommunication = errors.New("tracking server communication failed")
)

// ServiceError is a fault reported by the tracking server itself.
type ServiceError struct {
	Code    int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("tracking server error %d: %s", e.Code, e.Message)
}

type errorBody struct {
	Code        int      `json:"code"`
	Message     string   `json:"message"`
	Description string   `json:"description,omitempty"`
	Details     []string `json:"details,omitempty"`
}

func (b *errorBody) err() error {
	msg := b.Message
	if msg == "" {
		msg = b.Description
	}
	switch b.Code {
	case 401, 403, 498, 499:
		return fmt.Errorf("%w: %s", ErrAuthentication, msg)
	}
	return &ServiceError{Code: b.Code, Message: msg}
}
