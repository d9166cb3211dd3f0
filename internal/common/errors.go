package common

import (
	"errors"
	"fmt"
)

// Error codes; every failure leaving the extraction pipeline carries one of these.
const (
	CodeInvalidInput         = "INVALID_INPUT"
	CodeRasterizationFailure = "RASTERIZATION_FAILURE"
	CodeRecognitionFailure   = "RECOGNITION_FAILURE"
	CodePersistenceFailure   = "PERSISTENCE_FAILURE"
	CodeNotFound             = "NOT_FOUND"
	CodeConfig               = "CONFIG_ERROR"
	CodeInternal             = "INTERNAL"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func InvalidInput(message string, cause error) *AppError {
	if cause == nil {
		cause = ErrInvalidInput
	}
	return NewAppError(CodeInvalidInput, message, cause)
}

func RasterizationFailure(message string, cause error) *AppError {
	return NewAppError(CodeRasterizationFailure, message, cause)
}

func RecognitionFailure(message string, cause error) *AppError {
	return NewAppError(CodeRecognitionFailure, message, cause)
}

func PersistenceFailure(message string, cause error) *AppError {
	return NewAppError(CodePersistenceFailure, message, cause)
}

func NotFound(message string) *AppError {
	return NewAppError(CodeNotFound, message, ErrNotFound)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// CodeOf returns the code of the outermost AppError in err's chain,
// or CodeInternal when there is none.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}
