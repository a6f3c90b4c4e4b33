package core

import (
	"context"
	"errors"
	"fmt"

	"swapledger/core/auth"
	"swapledger/native/swap"
)

var (
	// ErrInvalidInvocation indicates the request does not describe a callable invocation.
	ErrInvalidInvocation = errors.New("core: invalid invocation")
	// ErrUnknownFunction indicates the invocation names a function the contract does not export.
	ErrUnknownFunction = fmt.Errorf("%w: unknown function", ErrInvalidInvocation)
	// ErrReceiptNotFound indicates no committed invocation has the requested hash.
	ErrReceiptNotFound = errors.New("core: receipt not found")
)

// Failure reasons reported to metrics, logs and RPC clients.
const (
	ReasonUnauthorized   = "unauthorized"
	ReasonDivisionByZero = "division_by_zero"
	ReasonOverflow       = "overflow"
	ReasonInvalidArgs    = "invalid_args"
	ReasonStorage        = "storage"
	ReasonCanceled       = "canceled"
	ReasonUnknown        = "unknown"
)

// FailureReason classifies an invocation error into a stable label.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, auth.ErrUnauthorized):
		return ReasonUnauthorized
	case errors.Is(err, swap.ErrDivisionByZero):
		return ReasonDivisionByZero
	case errors.Is(err, swap.ErrOverflow):
		return ReasonOverflow
	case errors.Is(err, swap.ErrInvalidArgs), errors.Is(err, swap.ErrInvalidAmount), errors.Is(err, ErrInvalidInvocation):
		return ReasonInvalidArgs
	case errors.Is(err, swap.ErrStorage):
		return ReasonStorage
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	default:
		return ReasonUnknown
	}
}
