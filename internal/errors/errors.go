package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents the type of error
type ErrorType uint

const (
	// Error types
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeValidation
	ErrorTypeAuthentication
	ErrorTypeNotFound
	ErrorTypeConflict
	ErrorTypeInternal
	ErrorTypeRateLimit

	// Ledger kinds
	ErrorTypeInvalidQuantity
	ErrorTypeQuoteUnavailable
	ErrorTypeInsufficientFunds
	ErrorTypeInsufficientShares
	ErrorTypePositionNotFound
	ErrorTypeConcurrentModification
	ErrorTypeStorageFault
)

// Error represents a custom error with additional context
type Error struct {
	Type       ErrorType
	Message    string
	Details    map[string]interface{}
	Err        error
	StatusCode int
	ErrorCode  string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new custom error
func NewError(errType ErrorType, message string, err error) *Error {
	return &Error{
		Type:       errType,
		Message:    message,
		Err:        err,
		StatusCode: errorTypeToStatusCode(errType),
		ErrorCode:  errorTypeToCode(errType),
		Details:    make(map[string]interface{}),
	}
}

// WithDetails adds context details to the error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// Is implements error comparison
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// Sentinels for errors.Is checks. Only the Type is compared.
var (
	ErrInvalidQuantity        = &Error{Type: ErrorTypeInvalidQuantity}
	ErrQuoteUnavailable       = &Error{Type: ErrorTypeQuoteUnavailable}
	ErrInsufficientFunds      = &Error{Type: ErrorTypeInsufficientFunds}
	ErrInsufficientShares     = &Error{Type: ErrorTypeInsufficientShares}
	ErrPositionNotFound       = &Error{Type: ErrorTypePositionNotFound}
	ErrConcurrentModification = &Error{Type: ErrorTypeConcurrentModification}
	ErrStorageFault           = &Error{Type: ErrorTypeStorageFault}
	ErrNotFound               = &Error{Type: ErrorTypeNotFound}
	ErrConflict               = &Error{Type: ErrorTypeConflict}
	ErrValidation             = &Error{Type: ErrorTypeValidation}
)

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the ErrorType carried by err, or ErrorTypeUnknown.
func KindOf(err error) ErrorType {
	if e, ok := As(err); ok {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Retryable reports whether the operation that produced err may be retried
// as-is. Only concurrent modification qualifies; storage faults do not.
func Retryable(err error) bool {
	return KindOf(err) == ErrorTypeConcurrentModification
}

// Common error constructors
func NewValidationError(message string, err error) *Error {
	return NewError(ErrorTypeValidation, message, err)
}

func NewAuthenticationError(message string, err error) *Error {
	return NewError(ErrorTypeAuthentication, message, err)
}

func NewNotFoundError(message string, err error) *Error {
	return NewError(ErrorTypeNotFound, message, err)
}

func NewConflictError(message string, err error) *Error {
	return NewError(ErrorTypeConflict, message, err)
}

func NewInternalError(message string, err error) *Error {
	return NewError(ErrorTypeInternal, message, err)
}

func NewRateLimitError(message string, err error) *Error {
	return NewError(ErrorTypeRateLimit, message, err)
}

// Helper functions
func errorTypeToStatusCode(errType ErrorType) int {
	switch errType {
	case ErrorTypeValidation,
		ErrorTypeInvalidQuantity,
		ErrorTypeInsufficientFunds,
		ErrorTypeInsufficientShares,
		ErrorTypePositionNotFound:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict, ErrorTypeConcurrentModification:
		return http.StatusConflict
	case ErrorTypeQuoteUnavailable:
		return http.StatusServiceUnavailable
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func errorTypeToCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeAuthentication:
		return "AUTHENTICATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeInternal:
		return "INTERNAL_ERROR"
	case ErrorTypeRateLimit:
		return "RATE_LIMIT_EXCEEDED"
	case ErrorTypeInvalidQuantity:
		return "INVALID_QUANTITY"
	case ErrorTypeQuoteUnavailable:
		return "QUOTE_UNAVAILABLE"
	case ErrorTypeInsufficientFunds:
		return "INSUFFICIENT_FUNDS"
	case ErrorTypeInsufficientShares:
		return "INSUFFICIENT_SHARES"
	case ErrorTypePositionNotFound:
		return "POSITION_NOT_FOUND"
	case ErrorTypeConcurrentModification:
		return "CONCURRENT_MODIFICATION"
	case ErrorTypeStorageFault:
		return "STORAGE_FAULT"
	default:
		return "UNKNOWN_ERROR"
	}
}

// Ledger error constructors

func NewInvalidQuantityError(message string) *Error {
	return NewError(ErrorTypeInvalidQuantity, message, nil)
}

func NewQuoteUnavailableError(symbol string, err error) *Error {
	return NewError(
		ErrorTypeQuoteUnavailable,
		fmt.Sprintf("quote unavailable for %s", symbol),
		err,
	).WithDetails(map[string]interface{}{
		"symbol": symbol,
	})
}

// NewInsufficientFundsError takes already formatted amounts so the message
// reads the way the client will display it.
func NewInsufficientFundsError(need, have string) *Error {
	return NewError(
		ErrorTypeInsufficientFunds,
		fmt.Sprintf("insufficient funds: need %s, have %s", need, have),
		nil,
	).WithDetails(map[string]interface{}{
		"required":  need,
		"available": have,
	})
}

func NewInsufficientSharesError(symbol, need, have string) *Error {
	return NewError(
		ErrorTypeInsufficientShares,
		fmt.Sprintf("insufficient shares of %s: need %s, have %s", symbol, need, have),
		nil,
	).WithDetails(map[string]interface{}{
		"symbol":    symbol,
		"required":  need,
		"available": have,
	})
}

func NewPositionNotFoundError(symbol string) *Error {
	return NewError(
		ErrorTypePositionNotFound,
		fmt.Sprintf("no position in %s", symbol),
		nil,
	).WithDetails(map[string]interface{}{
		"symbol": symbol,
	})
}

func NewConcurrentModificationError(portfolioID string, err error) *Error {
	return NewError(
		ErrorTypeConcurrentModification,
		fmt.Sprintf("portfolio %s is being modified by another request, retry", portfolioID),
		err,
	).WithDetails(map[string]interface{}{
		"portfolio_id": portfolioID,
		"retryable":    true,
	})
}

func NewStorageFaultError(operation string, err error) *Error {
	return NewError(
		ErrorTypeStorageFault,
		fmt.Sprintf("storage operation failed: %s", operation),
		err,
	).WithDetails(map[string]interface{}{
		"operation": operation,
	})
}

func NewPortfolioNotFoundError(key string) *Error {
	return NewNotFoundError(
		fmt.Sprintf("portfolio not found: %s", key),
		nil,
	).WithDetails(map[string]interface{}{
		"portfolio": key,
	})
}

func NewPortfolioExistsError(ownerID string) *Error {
	return NewConflictError(
		"portfolio already exists for owner",
		nil,
	).WithDetails(map[string]interface{}{
		"owner_id": ownerID,
	})
}

func NewInvalidTokenError(err error) *Error {
	return NewAuthenticationError("invalid token", err)
}

func NewRateLimitExceededError(rps float64, burst int) *Error {
	return NewRateLimitError(
		fmt.Sprintf("rate limit exceeded: %.0f requests per second", rps),
		nil,
	).WithDetails(map[string]interface{}{
		"rps":   rps,
		"burst": burst,
	})
}

// Error Response structure for API responses
type ErrorResponse struct {
	Status    string                 `json:"status"`
	ErrorCode string                 `json:"error_code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// NewErrorResponse creates an error response from an Error
func NewErrorResponse(err *Error, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Status:    "error",
		ErrorCode: err.ErrorCode,
		Message:   err.Message,
		Details:   err.Details,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}

// FromError maps any error to an *Error, wrapping unknown errors as internal.
func FromError(err error) *Error {
	if e, ok := As(err); ok {
		return e
	}
	return NewInternalError("internal server error", err)
}
