// Package apperr defines the error kinds of the ingest and query
// pipelines: config, I/O, domain (Morton), quantization, database, and
// unsupported-query errors.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies one of the error kinds a job can fail with.
type Code string

const (
	CodeConfig           Code = "CONFIG"
	CodeIO               Code = "IO"
	CodeDomain           Code = "DOMAIN"
	CodeQuantization     Code = "QUANTIZATION"
	CodeDB               Code = "DB"
	CodeQueryUnsupported Code = "QUERY_UNSUPPORTED"
)

// AppError wraps an underlying cause with the code that determines how
// the job runner propagates it.
type AppError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError with no wrapped cause.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap creates an AppError wrapping err. Returns nil if err is nil.
func Wrap(code Code, message string, err error) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Err: err}
}

// Is reports whether err is an *AppError of the given code.
func Is(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Config wraps a configuration/job-description error.
func Config(format string, args ...interface{}) *AppError {
	return New(CodeConfig, fmt.Sprintf(format, args...))
}

// IO wraps a file or CSV I/O error.
func IO(err error, format string, args ...interface{}) *AppError {
	return Wrap(CodeIO, fmt.Sprintf(format, args...), err)
}

// Domain wraps a Morton codec domain error (out-of-range coordinate).
func Domain(format string, args ...interface{}) *AppError {
	return New(CodeDomain, fmt.Sprintf(format, args...))
}

// Quantization wraps a quantizer rejection (negative X or Y).
func Quantization(format string, args ...interface{}) *AppError {
	return New(CodeQuantization, fmt.Sprintf(format, args...))
}

// DB wraps a database connect/execute error.
func DB(err error, format string, args ...interface{}) *AppError {
	return Wrap(CodeDB, fmt.Sprintf(format, args...), err)
}

// QueryUnsupported wraps a rejected query mode (e.g. "nn").
func QueryUnsupported(format string, args ...interface{}) *AppError {
	return New(CodeQueryUnsupported, fmt.Sprintf(format, args...))
}
