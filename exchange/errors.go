package exchange

import (
	"fmt"
)

// Kind classifies why an exchange did not produce a result.
type Kind string

const (
	// KindTransport: the backend could not be reached or did not answer in time.
	KindTransport Kind = "transport"
	// KindRejected: the backend answered and refused the code.
	KindRejected Kind = "rejected"
	// KindMalformed: the backend answered with something unusable.
	KindMalformed Kind = "malformed"
)

// ExchangeError is the only error type returned by Client.
type ExchangeError struct {
	Kind       Kind
	StatusCode int
	// Message is the backend's own explanation, if it sent one.
	Message string
	Err     error
}

func (e *ExchangeError) Error() string {
	msg := fmt.Sprintf("code exchange %s", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}
