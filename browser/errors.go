package browser

import (
	"errors"
	"fmt"
)

var (
	ErrElementNotFound = errors.New("element not found")
	ErrTimeout         = errors.New("wait condition timed out")
	ErrSessionClosed   = errors.New("browser session closed")
	ErrUnsupported     = errors.New("unsupported by engine")
)

// Error wraps an engine failure with the operation and target that caused it.
type Error struct {
	Op     string
	Target string
	Err    error
}

func (e *Error) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("browser: %s %s: %v", e.Op, e.Target, e.Err)
	}
	return fmt.Sprintf("browser: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WrapError returns nil when err is nil, otherwise an *Error.
func WrapError(op, target string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Target: target, Err: err}
}

// IsTimeout reports whether err is a wait-condition timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsNotFound reports whether err is an element lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrElementNotFound)
}
