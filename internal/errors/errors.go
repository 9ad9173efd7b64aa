package errors

import (
	"fmt"
	"net/http"
	"time"
)

// ErrorCode identifies a class of application error
type ErrorCode string

const (
	// Generic
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeTimeout      ErrorCode = "TIMEOUT"
	ErrCodeRateLimit    ErrorCode = "RATE_LIMIT"

	// Database
	ErrCodeDBConnection  ErrorCode = "DB_CONNECTION_ERROR"
	ErrCodeDBQuery       ErrorCode = "DB_QUERY_ERROR"
	ErrCodeDBConstraint  ErrorCode = "DB_CONSTRAINT_ERROR"
	ErrCodeDBTransaction ErrorCode = "DB_TRANSACTION_ERROR"

	// Cache
	ErrCodeCacheConnection ErrorCode = "CACHE_CONNECTION_ERROR"
	ErrCodeCacheOperation  ErrorCode = "CACHE_OPERATION_ERROR"
	ErrCodeCacheMiss       ErrorCode = "CACHE_MISS"

	// MT5 gateway
	ErrCodeGatewayConnection  ErrorCode = "GATEWAY_CONNECTION_ERROR"
	ErrCodeGatewayAPI         ErrorCode = "GATEWAY_API_ERROR"
	ErrCodeGatewayTimeout     ErrorCode = "GATEWAY_TIMEOUT"
	ErrCodeAccountNotLinked   ErrorCode = "ACCOUNT_NOT_LINKED"
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeSymbolNotFound     ErrorCode = "SYMBOL_NOT_FOUND"

	// Risk / analytics
	ErrCodeRiskCalculation ErrorCode = "RISK_CALCULATION_ERROR"
	ErrCodeEmptyPortfolio  ErrorCode = "EMPTY_PORTFOLIO"

	// Alerts
	ErrCodeAlertNotFound ErrorCode = "ALERT_NOT_FOUND"
	ErrCodeAlertDelivery ErrorCode = "ALERT_DELIVERY_ERROR"
)

// ErrorSeverity grades an error for logging and alerting
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// AppError is the application error carried through handlers and middleware
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Severity  ErrorSeverity          `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  getSeverityByCode(code),
		Timestamp: time.Now(),
		Cause:     cause,
		Context:   make(map[string]interface{}),
	}
}

// WithContext adds a context key/value
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRequestID tags the error with the originating request
func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// WithUserID tags the error with the acting user
func (e *AppError) WithUserID(userID string) *AppError {
	e.UserID = userID
	return e
}

func getSeverityByCode(code ErrorCode) ErrorSeverity {
	switch code {
	case ErrCodeInternal, ErrCodeDBConnection, ErrCodeGatewayConnection:
		return SeverityCritical
	case ErrCodeDBQuery, ErrCodeDBTransaction, ErrCodeRiskCalculation, ErrCodeAlertDelivery:
		return SeverityHigh
	case ErrCodeCacheConnection, ErrCodeCacheOperation, ErrCodeGatewayAPI, ErrCodeGatewayTimeout:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// HTTPStatus maps the error code to an HTTP response status
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeInvalidInput, ErrCodeEmptyPortfolio:
		return http.StatusBadRequest
	case ErrCodeUnauthorized, ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotFound, ErrCodeAccountNotLinked, ErrCodeSymbolNotFound, ErrCodeAlertNotFound, ErrCodeCacheMiss:
		return http.StatusNotFound
	case ErrCodeConflict, ErrCodeDBConstraint:
		return http.StatusConflict
	case ErrCodeTimeout, ErrCodeGatewayTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeGatewayConnection, ErrCodeGatewayAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryable reports whether the operation may succeed on retry
func (e *AppError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeTimeout, ErrCodeDBConnection, ErrCodeCacheConnection,
		ErrCodeGatewayConnection, ErrCodeGatewayTimeout:
		return true
	default:
		return false
	}
}

// ErrorResponse is the JSON body returned for failed requests
type ErrorResponse struct {
	Error     *AppError `json:"error"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
}

// NewErrorResponse wraps an AppError for the wire
func NewErrorResponse(err *AppError, path string) *ErrorResponse {
	return &ErrorResponse{
		Error:     err,
		Success:   false,
		Timestamp: time.Now(),
		Path:      path,
	}
}

// Predefined common errors
var (
	ErrInternalServer = NewAppError(ErrCodeInternal, "Internal server error", nil)
	ErrInvalidInput   = NewAppError(ErrCodeInvalidInput, "Invalid input parameters", nil)
	ErrNotFound       = NewAppError(ErrCodeNotFound, "Resource not found", nil)
	ErrUnauthorized   = NewAppError(ErrCodeUnauthorized, "Unauthorized access", nil)
	ErrRateLimit      = NewAppError(ErrCodeRateLimit, "Rate limit exceeded", nil)
)

// WrapError wraps a standard error as an AppError; an AppError passes through
func WrapError(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewAppError(code, message, err)
}

// IsAppError reports whether err is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError returns the AppError or nil
func GetAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return nil
}
