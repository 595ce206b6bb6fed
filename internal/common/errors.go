package common

import (
	"errors"
	"fmt"
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

// Error codes carried by AppError.
const (
	CodeConfig     = "CONFIG_ERROR"
	CodeNotReady   = "NOT_READY"
	CodeOCRFailed  = "OCR_FAILED"
	CodeClassify   = "CLASSIFY_FAILED"
	CodeQuarantine = "QUARANTINE_FAILED"
)

// Pipeline error taxonomy.
var (
	ErrConfiguration = errors.New("invalid configuration")
	ErrNotReady      = errors.New("file not ready")
	ErrOCREngine     = errors.New("ocr engine failure")
	ErrRelocation    = errors.New("extraction or relocation failed")
)

// NewAppError builds an AppError.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapError annotates err with message; nil stays nil.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ErrorCode extracts the AppError code from err, or "" if there is none.
func ErrorCode(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
