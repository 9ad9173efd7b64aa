package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAppError(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "bad payload", nil)

	assert.Equal(t, ErrCodeInvalidInput, err.Code)
	assert.Equal(t, "bad payload", err.Message)
	assert.Equal(t, SeverityLow, err.Severity)
	assert.False(t, err.Timestamp.IsZero())
}

func TestAppErrorWrapsCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := NewAppError(ErrCodeGatewayConnection, "gateway unreachable", cause)

	assert.Contains(t, err.Error(), "GATEWAY_CONNECTION_ERROR")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, cause, err.Unwrap())
	assert.Equal(t, SeverityCritical, err.Severity)
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code   ErrorCode
		status int
	}{
		{ErrCodeInvalidInput, http.StatusBadRequest},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeAccountNotLinked, http.StatusNotFound},
		{ErrCodeConflict, http.StatusConflict},
		{ErrCodeRateLimit, http.StatusTooManyRequests},
		{ErrCodeGatewayAPI, http.StatusBadGateway},
		{ErrCodeGatewayTimeout, http.StatusGatewayTimeout},
		{ErrCodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		err := NewAppError(tt.code, "test", nil)
		assert.Equal(t, tt.status, err.HTTPStatus(), "code %s", tt.code)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, NewAppError(ErrCodeGatewayTimeout, "timeout", nil).IsRetryable())
	assert.True(t, NewAppError(ErrCodeDBConnection, "down", nil).IsRetryable())
	assert.False(t, NewAppError(ErrCodeInvalidInput, "bad", nil).IsRetryable())
}

func TestWrapErrorPassesThroughAppError(t *testing.T) {
	original := NewAppError(ErrCodeNotFound, "missing", nil)
	wrapped := WrapError(original, ErrCodeInternal, "should not replace")

	assert.Same(t, original, wrapped)
}

func TestWrapErrorWrapsStandardError(t *testing.T) {
	stdErr := fmt.Errorf("boom")
	wrapped := WrapError(stdErr, ErrCodeDBQuery, "query failed")

	assert.Equal(t, ErrCodeDBQuery, wrapped.Code)
	assert.Equal(t, stdErr, wrapped.Cause)
	assert.True(t, IsAppError(wrapped))
	assert.Nil(t, GetAppError(stdErr))
}
