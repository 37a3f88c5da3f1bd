package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for the failure taxonomy shared by every service. Handlers map
// Status to the HTTP response code; callers branch on Code.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeInsufficientCapacity = "INSUFFICIENT_CAPACITY"
	CodeInsufficientStock    = "INSUFFICIENT_STOCK"
	CodeReferenceUnavailable = "REFERENCE_UNAVAILABLE"
	CodeLedgerInconsistency  = "LEDGER_INCONSISTENCY"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeInvalidArgument      = "INVALID_ARGUMENT"
	CodeInternal             = "INTERNAL"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func NotFound(kind string, id int64) *Error {
	return New(http.StatusNotFound, CodeNotFound, fmt.Errorf("%s %d not found", kind, id))
}

func InsufficientCapacity(dimension, required, available string) *Error {
	return New(http.StatusConflict, CodeInsufficientCapacity,
		fmt.Errorf("insufficient %s capacity: required %s, available %s", dimension, required, available))
}

func InsufficientStock(cargoID, unitID int64, stored, requested string) *Error {
	return New(http.StatusConflict, CodeInsufficientStock,
		fmt.Errorf("insufficient stock of cargo %d in unit %d: stored %s, requested %s", cargoID, unitID, stored, requested))
}

func ReferenceUnavailable(kind string, id int64, cause error) *Error {
	return New(http.StatusServiceUnavailable, CodeReferenceUnavailable,
		fmt.Errorf("could not verify %s %d: %w", kind, id, cause))
}

func LedgerInconsistency(unitID int64, detail string) *Error {
	return New(http.StatusInternalServerError, CodeLedgerInconsistency,
		fmt.Errorf("ledger inconsistency on unit %d: %s", unitID, detail))
}

func InvalidTransition(from, to string) *Error {
	return New(http.StatusUnprocessableEntity, CodeInvalidTransition,
		fmt.Errorf("manifest transition %s -> %s is not allowed", from, to))
}

func InvalidArgument(detail string) *Error {
	return New(http.StatusBadRequest, CodeInvalidArgument, errors.New(detail))
}

func Internal(err error) *Error {
	return New(http.StatusInternalServerError, CodeInternal, err)
}

// CodeOf extracts the taxonomy code from err, or CodeInternal for anything
// that is not an *Error.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// StatusOf extracts the HTTP status from err, defaulting to 500.
func StatusOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}

func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}
