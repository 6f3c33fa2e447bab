package graphstore

import (
	"errors"
	"fmt"
)

// UnavailableError is returned after the retry budget for a graph store call
// is exhausted. The write must not be assumed to have happened.
type UnavailableError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("graphstore: %s unavailable after %d attempts: %v", e.Op, e.Attempts, e.Last)
}

func (e *UnavailableError) Unwrap() error {
	return e.Last
}

// IsUnavailable reports whether err wraps an UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// RequestError is a non-retriable rejection from the graph store: a
// malformed request or a schema/validation failure. It fails immediately
// without consuming the retry budget.
type RequestError struct {
	Op      string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("graphstore: %s rejected: %s", e.Op, e.Message)
}
