// Package dispatch contains the delivery collaborators the queue hands items to.
package dispatch

import "errors"

// permanentError marks a delivery failure that retrying cannot fix, such as a
// rejected recipient address. The queue fails the item immediately instead of
// consuming the remaining attempts.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent wraps err so the queue treats it as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

// IsPermanent reports whether err carries the non-retryable marker.
func IsPermanent(err error) bool {
	var pe *permanentError

	return errors.As(err, &pe)
}
