package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error so callers can branch on the class of
// failure without string matching. Policy failures (denied, rejected) and
// infrastructure failures (unavailable) get distinct codes on purpose:
// treating them the same is how governance bugs happen.
type Code string

const (
	CodeInvalidInput          Code = "invalid_input"
	CodeNotFound              Code = "not_found"
	CodeConflict              Code = "conflict"
	CodeAccessDenied          Code = "access_denied"
	CodeContractNotFound      Code = "contract_not_found"
	CodeMaterializationDenied Code = "materialization_denied"
	CodePromotionRejected     Code = "promotion_rejected"
	CodeHandlerFailed         Code = "handler_failed"
	CodeInvalidState          Code = "invalid_state"
	CodeTimeout               Code = "timeout"
	CodeUnavailable           Code = "unavailable"
	CodeInternal              Code = "internal"
)

// Error is a coded domain error. Services return these; stores return
// sentinel errors and services translate.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is/As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// CodeOf extracts the code from an error chain, or CodeInternal when the
// error carries no code.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
