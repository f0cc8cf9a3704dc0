package processor

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout matches any TransportError caused by a deadline.
	ErrTimeout = errors.New("processor: request timed out")

	ErrMalformedResponse = errors.New("processor: malformed response")
)

// Rejection is a business-level refusal reported by the processor. It is
// returned as an error value so callers can branch with errors.As.
type Rejection struct {
	Code        string
	Description string
}

func (r *Rejection) Error() string {
	if r.Code == "" {
		return fmt.Sprintf("processor rejected: %s", r.Description)
	}
	return fmt.Sprintf("processor rejected [%s]: %s", r.Code, r.Description)
}

// IsCode reports whether err is a Rejection carrying the given code.
func IsCode(err error, code string) bool {
	var rej *Rejection
	return errors.As(err, &rej) && rej.Code == code
}

// TransportError means the processor could not be reached or answered with
// something that is not a processor document. The outcome is unknown.
type TransportError struct {
	Op      string
	Err     error
	Timeout bool
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: timeout: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTimeout && e.Timeout
}
