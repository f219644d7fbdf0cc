package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed engine error. The code drives recovery decisions in
// the pipeline; Status is only consulted by the HTTP surface.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors covering the pipeline failure taxonomy.
var (
	ErrData             = New("DATA_ERROR", http.StatusUnprocessableEntity, "invalid or missing input data")
	ErrInfeasible       = New("MODEL_INFEASIBLE", http.StatusConflict, "model is infeasible")
	ErrSolverTimeout    = New("SOLVER_TIMEOUT", http.StatusGatewayTimeout, "solver time limit reached")
	ErrSolverNoSolution = New("SOLVER_NO_SOLUTION", http.StatusGatewayTimeout, "solver produced no solution")
	ErrOracle           = New("ORACLE_FAILURE", http.StatusBadGateway, "decision oracle unavailable")
	ErrActionRejected   = New("ACTION_REJECTED", http.StatusConflict, "roster action rejected")
	ErrValidation       = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrNotFound         = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict         = New("CONFLICT", http.StatusConflict, "conflict")
	ErrInternal         = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal error")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
