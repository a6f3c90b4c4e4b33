package swap

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured indicates the engine is missing its state or auth capability.
	ErrNotConfigured = errors.New("swap: engine not configured")
	// ErrArithmetic is the root of every arithmetic failure.
	ErrArithmetic = errors.New("swap: arithmetic failure")
	// ErrDivisionByZero indicates rate_den was zero.
	ErrDivisionByZero = fmt.Errorf("%w: division by zero", ErrArithmetic)
	// ErrOverflow indicates an intermediate or final value left the integer domain.
	ErrOverflow = fmt.Errorf("%w: integer overflow", ErrArithmetic)
	// ErrInvalidAmount indicates an argument is missing or not a canonical i128.
	ErrInvalidAmount = errors.New("swap: invalid amount")
	// ErrStorage wraps failures reported by the persistent store.
	ErrStorage = errors.New("swap: storage failure")
	// ErrInvalidArgs indicates an invocation carried the wrong argument list.
	ErrInvalidArgs = errors.New("swap: invalid arguments")
)
