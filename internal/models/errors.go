package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// NotFoundError indicates a referenced entity is absent.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ForbiddenError indicates a role or assignment violation.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

// StateViolationError indicates an illegal status transition.
type StateViolationError struct {
	Message string
}

func (e *StateViolationError) Error() string { return e.Message }

// InvalidInputError indicates an amount or round mismatch, or under-funding.
type InvalidInputError struct {
	Message string
}

func (e *InvalidInputError) Error() string { return e.Message }

// ConflictError indicates a uniqueness violation or a stale write.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ReconciliationError indicates an internal consistency check failed.
// It always aborts the surrounding transaction.
type ReconciliationError struct {
	Message        string
	ExpectedCount  int
	ActualCount    int
	ExpectedAmount decimal.Decimal
	ActualAmount   decimal.Decimal
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("%s (expected %d/%s, actual %d/%s)",
		e.Message, e.ExpectedCount, e.ExpectedAmount, e.ActualCount, e.ActualAmount)
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...any) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrForbidden creates a ForbiddenError with a formatted message.
func ErrForbidden(format string, args ...any) *ForbiddenError {
	return &ForbiddenError{Message: fmt.Sprintf(format, args...)}
}

// ErrStateViolation creates a StateViolationError with a formatted message.
func ErrStateViolation(format string, args ...any) *StateViolationError {
	return &StateViolationError{Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidInput creates an InvalidInputError with a formatted message.
func ErrInvalidInput(format string, args ...any) *InvalidInputError {
	return &InvalidInputError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}
