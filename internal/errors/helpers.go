package errors

import (
	"fmt"
	"strings"
)

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a storage error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewChatAPIError classifies a failed Bot API call. The HTTP-like status
// code and the platform's description decide the kind:
//
//	401, 403             -> FORBIDDEN
//	400 "... not found"  -> NOT_FOUND
//	400                  -> BAD_REQUEST
//	429, 5xx             -> NETWORK (retryable)
//	anything else        -> CHAT_API
func NewChatAPIError(method string, statusCode int, description string, err error) *AppError {
	var code ErrorCode
	retryable := false

	switch {
	case statusCode == 401 || statusCode == 403:
		code = ErrCodeForbidden
	case statusCode == 400 && strings.Contains(strings.ToLower(description), "not found"):
		code = ErrCodeNotFound
	case statusCode == 400:
		code = ErrCodeBadRequest
	case statusCode == 429 || statusCode >= 500:
		code = ErrCodeNetwork
		retryable = true
	default:
		code = ErrCodeChatAPI
	}

	appErr := Wrap(err, code, fmt.Sprintf("%s failed", method)).
		WithContext("method", method).
		WithContext("status_code", statusCode)
	if description != "" {
		appErr = appErr.WithContext("description", description)
	}
	appErr.Retryable = retryable
	return appErr
}

// NewNetworkError wraps a transport failure that never reached the API
func NewNetworkError(method string, err error) *AppError {
	return WrapRetryable(err, ErrCodeNetwork, fmt.Sprintf("%s failed", method)).
		WithContext("method", method)
}
