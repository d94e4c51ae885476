package helper

import "fmt"

// Error wraps an error with the operation that produced it.
// Nested errors build a readable trace like "create index: load sql: ...".
type Error struct {
	Trace string
	Err   error
}

// NewError wraps err with the given trace. It returns nil if err is nil.
func NewError(trace string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Trace: trace,
		Err:   err,
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Trace, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
