package chat

import (
	"errors"
	"fmt"
)

var (
	ErrInFlight       = errors.New("a request for this chat is already in flight")
	ErrTransport      = errors.New("completion endpoint request failed")
	ErrEmptyResponse  = errors.New("completion endpoint returned no body")
	ErrPromptTooLarge = errors.New("message does not fit in the context window")
	ErrEmptyMessage   = errors.New("message content is required")
)

// TransportError describes a failed completion request. StatusCode is zero
// when the endpoint could not be reached.
type TransportError struct {
	StatusCode int
	Message    string
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("completion endpoint unreachable: %s", e.Message)
	}
	return fmt.Sprintf("completion endpoint returned %d: %s", e.StatusCode, e.Message)
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
