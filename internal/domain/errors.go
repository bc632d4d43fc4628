package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Daraja
	ErrorCodeGatewayError    ErrorCode = "GATEWAY_ERROR"
	ErrorCodeGatewayTimeout  ErrorCode = "GATEWAY_TIMEOUT"
	ErrorCodeGatewayRejected ErrorCode = "GATEWAY_REJECTED"

	// Transaction store and lifecycle
	ErrorCodeTxnNotFound      ErrorCode = "TXN_NOT_FOUND"
	ErrorCodeTxnAlreadyExists ErrorCode = "TXN_ALREADY_EXISTS"
	ErrorCodeTxnInvalidState  ErrorCode = "TXN_INVALID_STATE"

	// Shopify. FULFILLMENT_FAILED means money was taken but no order exists.
	ErrorCodeCommerceError     ErrorCode = "COMMERCE_ERROR"
	ErrorCodeFulfillmentFailed ErrorCode = "FULFILLMENT_FAILED"

	ErrorCodeStoreError ErrorCode = "STORE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError carrying the same code, so a wrapped
// instance still satisfies errors.Is against the package sentinels.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	var validationErr *ValidationErrors
	if errors.As(err, &validationErr) {
		return ErrorCodeValidationFailed
	}
	return ""
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	return GetErrorCode(err) == ErrorCodeTxnNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorCode(err) == ErrorCodeValidationFailed
}

// IsGatewayError checks if an error is a payment gateway error
func IsGatewayError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeGatewayError ||
		code == ErrorCodeGatewayTimeout ||
		code == ErrorCodeGatewayRejected
}

var (
	ErrValidationFailed = NewDomainError(ErrorCodeValidationFailed, "validation failed")

	ErrGatewayError    = NewDomainError(ErrorCodeGatewayError, "payment gateway error")
	ErrGatewayRejected = NewDomainError(ErrorCodeGatewayRejected, "payment gateway rejected the request")

	ErrTxnNotFound      = NewDomainError(ErrorCodeTxnNotFound, "transaction not found")
	ErrTxnAlreadyExists = NewDomainError(ErrorCodeTxnAlreadyExists, "transaction already exists")
	ErrTxnInvalidState  = NewDomainError(ErrorCodeTxnInvalidState, "transaction is in invalid state for this operation")

	ErrStoreError = NewDomainError(ErrorCodeStoreError, "transaction store error")
)

// ValidationErrors collects every problem found in a caller's input so they
// can be reported together instead of one per round trip.
type ValidationErrors struct {
	Messages []string
}

// Add records one validation message
func (e *ValidationErrors) Add(msg string) {
	e.Messages = append(e.Messages, msg)
}

// Empty reports whether no problems were recorded
func (e *ValidationErrors) Empty() bool {
	return e == nil || len(e.Messages) == 0
}

// ErrOrNil returns e as an error, or nil when nothing was recorded
func (e *ValidationErrors) ErrOrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

// Error implements the error interface
func (e *ValidationErrors) Error() string {
	return fmt.Sprintf("%s: %s", ErrorCodeValidationFailed, strings.Join(e.Messages, "; "))
}

// Unwrap ties ValidationErrors to ErrValidationFailed for errors.Is
func (e *ValidationErrors) Unwrap() error {
	return ErrValidationFailed
}
