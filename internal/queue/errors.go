package queue

import (
	"errors"
	"fmt"
)

// ErrInvalidItem is returned by Put for records without an id or destination.
var ErrInvalidItem = errors.New("invalid queue item")

// StoreError reports a persistence failure. Op names the store operation
// ("put", "delete", "get_all", ...) and Err carries the underlying cause.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("queue store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *StoreError
	if errors.As(err, &existing) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsStoreError reports whether err originated in the queue store.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
