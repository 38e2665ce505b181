package service

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures of the rates pipeline
type ErrorType int

const (
	ErrorTypeFetch ErrorType = iota
	ErrorTypeCacheRead
	ErrorTypeMalformedCache
	ErrorTypeMissingRates
	ErrorTypeUnknownCurrency
)

func (errorType ErrorType) String() string {
	switch errorType {
	case ErrorTypeFetch:
		return "fetch"
	case ErrorTypeCacheRead:
		return "cache_read"
	case ErrorTypeMalformedCache:
		return "malformed_cache"
	case ErrorTypeMissingRates:
		return "missing_rates"
	case ErrorTypeUnknownCurrency:
		return "unknown_currency"
	default:
		return "unknown"
	}
}

// ServiceError represents a service-specific error with type information.
// Message is complete on its own and is what the user sees; Cause carries
// the underlying error for logs.
type ServiceError struct {
	Type    ErrorType
	Message string
	Code    string // currency code for ErrorTypeUnknownCurrency
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// TypeOf returns the ErrorType carried by err and whether there was one.
func TypeOf(err error) (ErrorType, bool) {
	var serviceError *ServiceError
	if errors.As(err, &serviceError) {
		return serviceError.Type, true
	}
	return 0, false
}

// StatusError is returned when the provider answers with a non-success status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP request failed with status: %d", e.StatusCode)
}

// Retryable reports whether a repeat request could succeed.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

func unknownCurrency(code string) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeUnknownCurrency,
		Message: fmt.Sprintf("'%s' is not recognized as a currency.", code),
		Code:    code,
	}
}
