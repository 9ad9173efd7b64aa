package middleware

import (
	"encoding/json"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"

	"tradeinsight/internal/errors"
	"tradeinsight/internal/logger"
)

// ErrorHandler recovers panics and converts them to structured error
// responses.
func ErrorHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		var err error

		if recovered != nil {
			logger.Error("panic recovered",
				"error", recovered,
				"stack", string(debug.Stack()),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			err = errors.NewAppError(
				errors.ErrCodeInternal,
				"Internal server error",
				nil,
			).WithRequestID(getRequestID(c))
		}

		handleError(c, err)
	})
}

// HandleError converts errors attached to the gin context into JSON
// error responses. Runs after the handler chain.
func HandleError(c *gin.Context) {
	c.Next()

	if len(c.Errors) > 0 {
		handleError(c, c.Errors.Last().Err)
	}
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var appErr *errors.AppError
	if errors.IsAppError(err) {
		appErr = errors.GetAppError(err)
	} else {
		appErr = errors.WrapError(err, errors.ErrCodeInternal, "Internal server error")
	}

	if appErr.RequestID == "" {
		appErr = appErr.WithRequestID(getRequestID(c))
	}
	if userID, exists := c.Get("user_id"); exists {
		if uid, ok := userID.(string); ok {
			appErr = appErr.WithUserID(uid)
		}
	}

	logError(c, appErr)

	response := errors.NewErrorResponse(appErr, c.Request.URL.Path)
	c.Header("Content-Type", "application/json")
	c.JSON(appErr.HTTPStatus(), response)
	c.Abort()
}

func logError(c *gin.Context, err *errors.AppError) {
	fields := []interface{}{
		"error_code", err.Code,
		"message", err.Message,
		"severity", err.Severity,
		"request_id", err.RequestID,
		"user_id", err.UserID,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"ip", c.ClientIP(),
	}

	if err.Details != "" {
		fields = append(fields, "details", err.Details)
	}
	if len(err.Context) > 0 {
		contextJSON, _ := json.Marshal(err.Context)
		fields = append(fields, "context", string(contextJSON))
	}
	if err.Cause != nil {
		fields = append(fields, "cause", err.Cause.Error())
	}

	switch err.Severity {
	case errors.SeverityCritical:
		logger.Error("critical error occurred", fields...)
	case errors.SeverityHigh:
		logger.Error("high severity error occurred", fields...)
	case errors.SeverityMedium:
		logger.Warn("medium severity error occurred", fields...)
	default:
		logger.Info("low severity error occurred", fields...)
	}
}

func getRequestID(c *gin.Context) string {
	if requestID := c.GetHeader("X-Request-ID"); requestID != "" {
		return requestID
	}
	if requestID, exists := c.Get("request_id"); exists {
		if rid, ok := requestID.(string); ok {
			return rid
		}
	}
	return ""
}

// DatabaseErrorHandler classifies database errors by message
func DatabaseErrorHandler(err error) *errors.AppError {
	if err == nil {
		return nil
	}

	errMsg := err.Error()
	switch {
	case containsAny(errMsg, []string{"connection", "connect", "dial"}):
		return errors.NewAppError(errors.ErrCodeDBConnection, "Database connection error", err)
	case containsAny(errMsg, []string{"constraint", "duplicate", "unique"}):
		return errors.NewAppError(errors.ErrCodeDBConstraint, "Database constraint violation", err)
	case containsAny(errMsg, []string{"transaction", "rollback", "commit"}):
		return errors.NewAppError(errors.ErrCodeDBTransaction, "Database transaction error", err)
	default:
		return errors.NewAppError(errors.ErrCodeDBQuery, "Database query error", err)
	}
}

// GatewayErrorHandler classifies MT5 gateway errors by message
func GatewayErrorHandler(err error) *errors.AppError {
	if err == nil {
		return nil
	}
	if appErr := errors.GetAppError(err); appErr != nil {
		return appErr
	}

	errMsg := err.Error()
	switch {
	case containsAny(errMsg, []string{"timeout", "deadline"}):
		return errors.NewAppError(errors.ErrCodeGatewayTimeout, "MT5 gateway timeout", err)
	case containsAny(errMsg, []string{"connection", "connect", "dial", "refused"}):
		return errors.NewAppError(errors.ErrCodeGatewayConnection, "MT5 gateway unreachable", err)
	case containsAny(errMsg, []string{"login", "password", "authorization", "invalid account"}):
		return errors.NewAppError(errors.ErrCodeInvalidCredentials, "MT5 credentials rejected", err)
	case containsAny(errMsg, []string{"symbol not found", "unknown symbol"}):
		return errors.NewAppError(errors.ErrCodeSymbolNotFound, "Symbol not found", err)
	default:
		return errors.NewAppError(errors.ErrCodeGatewayAPI, "MT5 gateway error", err)
	}
}

func containsAny(s string, substrings []string) bool {
	for _, substr := range substrings {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
